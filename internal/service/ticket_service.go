package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/events"
	"github.com/helpdesk-labs/triage-service/internal/repository"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// Enqueuer accepts triage jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.TriageJob) (string, error)
}

// TicketService coordinates ticket workflows outside the triage pipeline.
type TicketService struct {
	tickets     repository.TicketRepository
	suggestions repository.AgentSuggestionRepository
	audit       repository.AuditLogRepository
	queue       Enqueuer
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	SuggestionRepo repository.AgentSuggestionRepository
	AuditRepo      repository.AuditLogRepository
	Queue          Enqueuer
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    domain.Category
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Status *domain.TicketStatus
	Limit  int
	Offset int
}

// ReplyInput is an agent reply with an optional closing status.
type ReplyInput struct {
	Body   string
	Status domain.TicketStatus
}

// TicketDetail is a ticket with its authoritative suggestion.
type TicketDetail struct {
	Ticket     *domain.Ticket
	Suggestion *domain.AgentSuggestion
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		suggestions: deps.SuggestionRepo,
		audit:       deps.AuditRepo,
		queue:       deps.Queue,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// CreateTicket stores an open ticket, records TICKET_CREATED and enqueues
// triage. A failed enqueue is logged and does not fail the request.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*domain.Ticket, string, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, "", apperrors.NewValidationError("title and description are required", nil)
	}
	category := input.Category
	if category == "" {
		category = domain.CategoryOther
	}
	if !category.Valid() {
		return nil, "", apperrors.NewValidationError("invalid category", map[string]any{"category": category})
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Category:    category,
		Status:      domain.TicketStatusOpen,
		CreatedBy:   actor.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, "", apperrors.MapError(err)
	}

	traceID := uuid.NewString()
	entry := domain.NewAuditEntry(ticket.ID, traceID, domain.ActorUser, domain.TicketCreatedMeta{UserID: actor.ID})
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, "", apperrors.MapError(err)
	}

	if s.queue != nil {
		jobID, err := s.queue.Enqueue(ctx, domain.TriageJob{TicketID: ticket.ID, TraceID: traceID})
		if err != nil {
			s.logger.Error("failed to enqueue triage", zap.String("ticket_id", ticket.ID), zap.String("trace_id", traceID), zap.Error(err))
		} else {
			s.logger.Debug("triage enqueued", zap.String("ticket_id", ticket.ID), zap.String("job_id", jobID))
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Actor:    principalActor(domain.ActorUser, actor.ID),
		Payload:  events.TicketCreatedPayload{Title: ticket.Title, CreatedBy: actor.ID},
	})
	return ticket, traceID, nil
}

// GetTicket returns a ticket and its latest suggestion. End users only see
// their own tickets.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Principal, ticketID string) (*TicketDetail, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && ticket.CreatedBy != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	detail := &TicketDetail{Ticket: ticket}
	if ticket.AgentSuggestionID != nil {
		suggestion, err := s.suggestions.GetByID(ctx, *ticket.AgentSuggestionID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.MapError(err)
		}
		detail.Suggestion = suggestion
	}
	return detail, nil
}

// ListTickets scopes listing by role: users see tickets they created, agents
// the tickets assigned to them, admins everything.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Principal, filter TicketListFilter) ([]domain.Ticket, int, error) {
	repoFilter := repository.TicketFilter{Limit: filter.Limit, Offset: filter.Offset}
	if filter.Status != nil {
		if !filter.Status.Valid() {
			return nil, 0, apperrors.NewValidationError("invalid status", map[string]any{"status": *filter.Status})
		}
		repoFilter.Statuses = []domain.TicketStatus{*filter.Status}
	}
	switch actor.Role {
	case domain.RoleUser:
		repoFilter.CreatedBy = &actor.ID
	case domain.RoleAgent:
		repoFilter.AssigneeID = &actor.ID
	}
	tickets, total, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return tickets, total, nil
}

// ListWaiting returns unassigned waiting_human tickets for self-assignment.
func (s *TicketService) ListWaiting(ctx context.Context, limit, offset int) ([]domain.Ticket, int, error) {
	tickets, total, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   []domain.TicketStatus{domain.TicketStatusWaitingHuman},
		Unassigned: true,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return tickets, total, nil
}

// Assign sets the assignee of a waiting_human ticket without changing its
// status. Agents may only claim unassigned tickets for themselves; admins
// may assign or reassign anyone.
func (s *TicketService) Assign(ctx context.Context, actor domain.Principal, ticketID, assigneeID string) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only agents and admins can assign tickets")
	}
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		assigneeID = actor.ID
	}
	if actor.Role == domain.RoleAgent && assigneeID != actor.ID {
		return nil, apperrors.NewForbidden("agents can only self-assign")
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusWaitingHuman {
		return nil, apperrors.NewConflict("ticket is not waiting for a human", map[string]any{"status": ticket.Status})
	}
	if actor.Role == domain.RoleAgent && ticket.AssigneeID != nil && *ticket.AssigneeID != actor.ID {
		return nil, apperrors.NewConflict("ticket already assigned", map[string]any{"assignee_id": *ticket.AssigneeID})
	}

	ticket.AssigneeID = &assigneeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	traceID := uuid.NewString()
	entry := domain.NewAuditEntry(ticket.ID, traceID, domain.ActorAgent, domain.TicketAssignedMeta{
		AssigneeID: assigneeID,
		AssignedBy: actor.ID,
	})
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Actor:    principalActor(domain.ActorAgent, actor.ID),
		Payload:  events.TicketAssignedPayload{AssigneeID: assigneeID},
	})
	return ticket, nil
}

// Reply appends an agent reply to the description and optionally resolves or
// closes the ticket. Only the assignee may reply.
func (s *TicketService) Reply(ctx context.Context, actor domain.Principal, ticketID string, input ReplyInput) (*domain.Ticket, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("reply is required", nil)
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssigneeID == nil || *ticket.AssigneeID != actor.ID {
		return nil, apperrors.NewForbidden("only the assignee can reply")
	}
	if input.Status != "" {
		if err := ticket.Transition(input.Status, domain.ActorAgent); err != nil {
			return nil, transitionConflict(err)
		}
	}
	ticket.AppendReply(domain.AgentReplyMarker, body)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	traceID := uuid.NewString()
	entry := domain.NewAuditEntry(ticket.ID, traceID, domain.ActorAgent, domain.ReplySentMeta{
		AgentID: actor.ID,
		Reply:   body,
		Status:  input.Status,
	})
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventReplySent,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Actor:    principalActor(domain.ActorAgent, actor.ID),
		Payload:  events.ReplySentPayload{Status: ticket.Status, BodyPreview: stringPreview(body, 120)},
	})
	return ticket, nil
}

// AuditTrail lists a ticket's audit entries oldest first.
func (s *TicketService) AuditTrail(ctx context.Context, actor domain.Principal, ticketID string) ([]domain.AuditLogEntry, error) {
	if !actor.IsStaff() {
		ticket, err := s.load(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if ticket.CreatedBy != actor.ID {
			return nil, apperrors.NewForbidden("access denied")
		}
	}
	entries, err := s.audit.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return nonNilEntries(entries), nil
}

// TraceTrail lists every entry written under one trace id.
func (s *TicketService) TraceTrail(ctx context.Context, traceID string) ([]domain.AuditLogEntry, error) {
	entries, err := s.audit.ListByTrace(ctx, traceID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return nonNilEntries(entries), nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func principalActor(actorType domain.AuditActor, id string) events.Actor {
	return events.Actor{Type: actorType, ID: &id}
}

func transitionConflict(err error) error {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		return apperrors.NewConflict(te.Error(), map[string]any{
			"reason": "INVALID_TRANSITION",
			"from":   te.From,
			"to":     te.To,
		})
	}
	return apperrors.MapError(err)
}

func nonNilEntries(entries []domain.AuditLogEntry) []domain.AuditLogEntry {
	if entries == nil {
		return []domain.AuditLogEntry{}
	}
	return entries
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
