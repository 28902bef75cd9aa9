package apitypes

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

// CommandRequest carries one chat command. When ResponseURL is set every
// message about the command is also posted there.
type CommandRequest struct {
	Actor       string `json:"actor"`
	Text        string `json:"text"`
	ResponseURL string `json:"responseUrl,omitempty"`
}

type CommandResponse struct {
	RequestID string `json:"requestId"`
	Command   string `json:"command"`
}
