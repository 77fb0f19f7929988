package dto

import (
	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/queue"
)

// SettingsRequest replaces the triage config. Every field is required.
type SettingsRequest struct {
	AutoCloseEnabled    *bool    `json:"autoCloseEnabled"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold"`
	SLAHours            *int     `json:"slaHours"`
}

// Complete reports whether every field was supplied.
func (r SettingsRequest) Complete() bool {
	return r.AutoCloseEnabled != nil && r.ConfidenceThreshold != nil && r.SLAHours != nil
}

// ToDomain converts a complete request.
func (r SettingsRequest) ToDomain() domain.TriageConfig {
	return domain.TriageConfig{
		AutoCloseEnabled:    *r.AutoCloseEnabled,
		ConfidenceThreshold: *r.ConfidenceThreshold,
		SLAHours:            *r.SLAHours,
	}
}

// DeadLettersResponse lists dead-lettered jobs with queue counters.
type DeadLettersResponse struct {
	Items []queue.Job `json:"items"`
	Stats queue.Stats `json:"stats"`
}
