package domain

import (
	"errors"
	"strings"
)

// JobState tracks a queued triage job.
type JobState string

const (
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
	JobStateDead    JobState = "dead"
)

// TriageJob is the queue payload for one triage run.
type TriageJob struct {
	TicketID string `json:"ticketId"`
	TraceID  string `json:"traceId"`
}

// Validate ensures both identifiers are present.
func (j TriageJob) Validate() error {
	var missing []string
	if strings.TrimSpace(j.TicketID) == "" {
		missing = append(missing, "ticketId")
	}
	if strings.TrimSpace(j.TraceID) == "" {
		missing = append(missing, "traceId")
	}
	if len(missing) > 0 {
		return errors.New("missing " + strings.Join(missing, ", "))
	}
	return nil
}
