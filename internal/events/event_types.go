package events

import (
	"time"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketTriaged    EventType = "ticket_triaged"
	EventTicketAutoClosed EventType = "ticket_auto_closed"
	EventTicketEscalated  EventType = "ticket_escalated"
	EventTicketAssigned   EventType = "ticket_assigned"
	EventReplySent        EventType = "ticket_reply_sent"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.AuditActor `json:"type"`
	ID   *string           `json:"id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	TraceID   string      `json:"trace_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title     string `json:"title"`
	CreatedBy string `json:"created_by"`
}

// TicketTriagedPayload payload.
type TicketTriagedPayload struct {
	Category     domain.Category `json:"category"`
	Confidence   float64         `json:"confidence"`
	SuggestionID string          `json:"suggestion_id"`
}

// TicketDecisionPayload is shared by auto-close and escalation events.
type TicketDecisionPayload struct {
	Status     domain.TicketStatus `json:"status"`
	Confidence float64             `json:"confidence"`
	Threshold  float64             `json:"threshold"`
	SLADueAt   *time.Time          `json:"sla_due_at,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID string `json:"assignee_id"`
}

// ReplySentPayload payload.
type ReplySentPayload struct {
	Status      domain.TicketStatus `json:"status"`
	BodyPreview string              `json:"body_preview"`
}
