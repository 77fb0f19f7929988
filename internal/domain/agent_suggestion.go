package domain

import "time"

// ModelInfo records which provider produced a suggestion.
type ModelInfo struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	PromptVersion string `json:"promptVersion"`
	LatencyMs     int64  `json:"latencyMs"`
}

// AgentSuggestion is the output of one triage attempt. Only AutoClosed may
// change after the record is written.
type AgentSuggestion struct {
	ID                string
	TicketID          string
	TraceID           string
	PredictedCategory Category
	ArticleIDs        []string
	DraftReply        string
	Confidence        float64
	AutoClosed        bool
	ModelInfo         ModelInfo
	CreatedAt         time.Time
}
