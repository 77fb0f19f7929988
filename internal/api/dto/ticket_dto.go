package dto

import (
	"time"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    domain.Category `json:"category,omitempty"`
}

// CreateTicketResponse echoes the ticket and the trace id its triage runs under.
type CreateTicketResponse struct {
	Ticket  TicketResponse `json:"ticket"`
	TraceID string         `json:"traceId"`
}

// TicketResponse is the wire shape of a ticket.
type TicketResponse struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	Category          domain.Category     `json:"category"`
	Status            domain.TicketStatus `json:"status"`
	CreatedBy         string              `json:"createdBy"`
	AssigneeID        *string             `json:"assigneeId"`
	AgentSuggestionID *string             `json:"agentSuggestionId"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// SuggestionResponse is the wire shape of an agent suggestion.
type SuggestionResponse struct {
	ID                string           `json:"id"`
	TraceID           string           `json:"traceId"`
	PredictedCategory domain.Category  `json:"predictedCategory"`
	ArticleIDs        []string         `json:"articleIds"`
	DraftReply        string           `json:"draftReply"`
	Confidence        float64          `json:"confidence"`
	AutoClosed        bool             `json:"autoClosed"`
	ModelInfo         domain.ModelInfo `json:"modelInfo"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// TicketDetailResponse is a ticket with its latest suggestion.
type TicketDetailResponse struct {
	Ticket     TicketResponse      `json:"ticket"`
	Suggestion *SuggestionResponse `json:"agentSuggestion"`
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Items  []TicketResponse `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	Reply  string              `json:"reply"`
	Status domain.TicketStatus `json:"status,omitempty"`
}

// AssignRequest payload. An empty assignee means the caller.
type AssignRequest struct {
	AssigneeID string `json:"assigneeId"`
}

// AuditEntryResponse is one audit trail entry.
type AuditEntryResponse struct {
	ID        string               `json:"id"`
	TicketID  *string              `json:"ticketId"`
	TraceID   string               `json:"traceId"`
	Actor     domain.AuditActor    `json:"actor"`
	Action    domain.AuditAction   `json:"action"`
	Metadata  domain.AuditMetadata `json:"meta"`
	Timestamp time.Time            `json:"timestamp"`
}

// TicketFromDomain converts a ticket.
func TicketFromDomain(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                t.ID,
		Title:             t.Title,
		Description:       t.Description,
		Category:          t.Category,
		Status:            t.Status,
		CreatedBy:         t.CreatedBy,
		AssigneeID:        t.AssigneeID,
		AgentSuggestionID: t.AgentSuggestionID,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// TicketsFromDomain converts a page of tickets.
func TicketsFromDomain(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, TicketFromDomain(&tickets[i]))
	}
	return out
}

// SuggestionFromDomain converts a suggestion; nil stays nil.
func SuggestionFromDomain(s *domain.AgentSuggestion) *SuggestionResponse {
	if s == nil {
		return nil
	}
	ids := s.ArticleIDs
	if ids == nil {
		ids = []string{}
	}
	return &SuggestionResponse{
		ID:                s.ID,
		TraceID:           s.TraceID,
		PredictedCategory: s.PredictedCategory,
		ArticleIDs:        ids,
		DraftReply:        s.DraftReply,
		Confidence:        s.Confidence,
		AutoClosed:        s.AutoClosed,
		ModelInfo:         s.ModelInfo,
		CreatedAt:         s.CreatedAt,
	}
}

// AuditFromDomain converts audit entries.
func AuditFromDomain(entries []domain.AuditLogEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:        e.ID,
			TicketID:  e.TicketID,
			TraceID:   e.TraceID,
			Actor:     e.Actor,
			Action:    e.Action,
			Metadata:  e.Metadata,
			Timestamp: e.Timestamp,
		})
	}
	return out
}
