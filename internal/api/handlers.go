package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/haloydev/deploybot/internal/apitypes"
	"github.com/haloydev/deploybot/internal/command"
	"github.com/haloydev/deploybot/internal/constants"
	"github.com/haloydev/deploybot/internal/deploytypes"
)

const maxRequestBodyBytes = 64 << 10

func (s *APIServer) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		encodeJSON(w, http.StatusOK, apitypes.HealthResponse{Status: "ok", Version: constants.Version})
	}
}

func (s *APIServer) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		encodeJSON(w, http.StatusOK, apitypes.VersionResponse{Version: constants.Version})
	}
}

// handleCommand parses a chat command and starts its pipeline. The response
// only acknowledges the command; results arrive through the notification sinks.
func (s *APIServer) handleCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req apitypes.CommandRequest
		if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		actor := strings.TrimPrefix(strings.TrimSpace(req.Actor), "@")
		if actor == "" {
			http.Error(w, "Actor is required", http.StatusBadRequest)
			return
		}

		cmd, err := command.Parse(actor, req.Text)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var replies []deploytypes.NotificationSink
		if req.ResponseURL != "" {
			if s.reply == nil {
				http.Error(w, "responseUrl is not supported by this server", http.StatusBadRequest)
				return
			}
			if err := s.validateResponseURL(req.ResponseURL); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			replies = append(replies, s.reply(req.ResponseURL))
		}

		if !s.track() {
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}

		logger := s.logger.With("requestID", cmd.Request.ID, "actor", actor, "command", cmd.Kind.String())
		logger.Info("Command accepted", "text", cmd.Request.Text)
		go func() {
			defer s.inFlight.Done()
			report := s.pipelines.Handle(s.baseCtx, cmd, replies...)
			logger.Info("Command finished", "outcome", report.Outcome, "trail", report.Trail, "dryRun", report.DryRun)
		}()

		encodeJSON(w, http.StatusAccepted, apitypes.CommandResponse{
			RequestID: cmd.Request.ID,
			Command:   cmd.Kind.String(),
		})
	}
}

// validateResponseURL only lets replies go over https to a configured host.
func (s *APIServer) validateResponseURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" || u.User != nil {
		return fmt.Errorf("Invalid responseUrl '%s'", raw)
	}
	if _, ok := s.replyHosts[strings.ToLower(u.Hostname())]; !ok {
		return fmt.Errorf("Invalid responseUrl '%s': host %s is not allowed", raw, u.Hostname())
	}
	return nil
}

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("Request body is empty")
		}
		return fmt.Errorf("Invalid JSON: %w", err)
	}
	return nil
}

func encodeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
