package notify

import (
	"context"
	"net/http"

	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/upstream"
)

type slackAttachment struct {
	Fallback string   `json:"fallback"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Color    string   `json:"color"`
	MrkdwnIn []string `json:"mrkdwn_in"`
}

type slackMessage struct {
	Text         string            `json:"text,omitempty"`
	ResponseType string            `json:"response_type,omitempty"`
	Attachments  []slackAttachment `json:"attachments"`
}

func attachment(message string, severity deploytypes.Severity) slackAttachment {
	title, color := "Information", "#1e90ff"
	switch severity {
	case deploytypes.SeveritySuccess:
		title, color = "Success", "good"
	case deploytypes.SeverityError:
		title, color = "Error", "danger"
	}
	return slackAttachment{
		Fallback: message,
		Title:    title,
		Text:     message,
		Color:    color,
		MrkdwnIn: []string{"text"},
	}
}

// Slack posts messages as attachments to an incoming webhook or a slash
// command response URL.
type Slack struct {
	api          *upstream.Client
	responseType string
}

func NewSlack(webhookURL string, httpClient *http.Client) *Slack {
	return &Slack{api: &upstream.Client{Service: "slack", BaseURL: webhookURL, HTTP: httpClient}}
}

// NewSlackResponse posts to a slash command response URL so the messages
// show up in the channel the command came from.
func NewSlackResponse(responseURL string, httpClient *http.Client) *Slack {
	s := NewSlack(responseURL, httpClient)
	s.responseType = "in_channel"
	return s
}

func (s *Slack) Notify(ctx context.Context, _ string, message string, severity deploytypes.Severity) error {
	const op = "post message"
	payload := slackMessage{
		ResponseType: s.responseType,
		Attachments:  []slackAttachment{attachment(message, severity)},
	}
	resp, err := s.api.Do(ctx, op, http.MethodPost, "", nil, payload)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return resp.Err("slack", op)
	}
	return nil
}
