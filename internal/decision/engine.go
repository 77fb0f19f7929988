// Package decision applies the operator auto-close policy to a
// classification result.
package decision

import (
	"time"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// Outcome is the branch the engine took.
type Outcome string

const (
	OutcomeAutoClose Outcome = "auto_close"
	OutcomeEscalate  Outcome = "escalate"
)

// Decision is the result of Decide.
type Decision struct {
	Outcome    Outcome
	Status     domain.TicketStatus
	Confidence float64
	Threshold  float64
	// SLADueAt is set when a human must answer.
	SLADueAt *time.Time
}

// AutoClose reports whether the ticket resolves without a human.
func (d Decision) AutoClose() bool { return d.Outcome == OutcomeAutoClose }

// Decide is a pure threshold comparison against the config in effect.
// createdAt anchors the SLA deadline for escalations.
func Decide(cfg domain.TriageConfig, confidence float64, createdAt time.Time) Decision {
	d := Decision{Confidence: confidence, Threshold: cfg.ConfidenceThreshold}
	if cfg.AutoCloseEnabled && confidence >= cfg.ConfidenceThreshold {
		d.Outcome = OutcomeAutoClose
		d.Status = domain.TicketStatusResolved
		return d
	}
	d.Outcome = OutcomeEscalate
	d.Status = domain.TicketStatusWaitingHuman
	if cfg.SLAHours > 0 && !createdAt.IsZero() {
		due := createdAt.Add(time.Duration(cfg.SLAHours) * time.Hour)
		d.SLADueAt = &due
	}
	return d
}
