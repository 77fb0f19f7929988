package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/decision"
	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/events"
	"github.com/helpdesk-labs/triage-service/internal/kb"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/provider"
	"github.com/helpdesk-labs/triage-service/internal/repository"
)

// TriageService runs the classify, retrieve, draft and decide pipeline for
// one queued job.
type TriageService struct {
	tickets     repository.TicketRepository
	suggestions repository.AgentSuggestionRepository
	audit       repository.AuditLogRepository
	provider    provider.Provider
	retriever   *kb.Retriever
	settings    *SettingsService
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// TriageDependencies bundles collaborators for the pipeline.
type TriageDependencies struct {
	TicketRepo     repository.TicketRepository
	SuggestionRepo repository.AgentSuggestionRepository
	AuditRepo      repository.AuditLogRepository
	Provider       provider.Provider
	Retriever      *kb.Retriever
	Settings       *SettingsService
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewTriageService constructs the pipeline.
func NewTriageService(deps TriageDependencies) *TriageService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageService{
		tickets:     deps.TicketRepo,
		suggestions: deps.SuggestionRepo,
		audit:       deps.AuditRepo,
		provider:    deps.Provider,
		retriever:   deps.Retriever,
		settings:    deps.Settings,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle triages the job's ticket. A missing ticket or one that already left
// triage is recorded and reported as success, since retrying cannot help.
// Any other failure is recorded as an ERROR audit entry and returned so the
// queue can retry; the ticket keeps whatever status it last reached.
func (s *TriageService) Handle(ctx context.Context, job domain.TriageJob) (err error) {
	start := s.now()
	log := s.logger.With(zap.String("ticket_id", job.TicketID), zap.String("trace_id", job.TraceID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("triage panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("triage panic: %v", r)
		}
		if err != nil {
			s.recordFailure(ctx, job, err, log)
		}
	}()

	ticket, err := s.tickets.GetByID(ctx, job.TicketID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("triage target missing")
		return s.record(ctx, job, domain.ActorSystem, domain.ErrorMeta{Message: "ticket not found"}, log)
	}
	if err != nil {
		return fmt.Errorf("load ticket: %w", err)
	}
	if !ticket.Triageable() {
		log.Info("triage skipped", zap.String("status", string(ticket.Status)))
		return s.record(ctx, job, domain.ActorSystem, domain.TriageSkippedMeta{Status: ticket.Status}, log)
	}

	stepStart := s.now()
	classification, err := s.provider.Classify(ctx, ticket.Description+" "+ticket.Title)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	s.metrics.ObserveStep("classify", s.now().Sub(stepStart))
	s.observeProvider("classify", classification.Latency)
	if err := s.record(ctx, job, domain.ActorAgent, domain.AgentClassifiedMeta{
		Category:   classification.Category,
		Confidence: classification.Confidence,
	}, log); err != nil {
		return err
	}

	stepStart = s.now()
	articles, err := s.retriever.Retrieve(ctx, ticket.Description, classification.Category)
	if err != nil {
		return fmt.Errorf("retrieve articles: %w", err)
	}
	s.metrics.ObserveStep("retrieve", s.now().Sub(stepStart))
	if err := s.record(ctx, job, domain.ActorSystem, domain.KBRetrievedMeta{ArticleIDs: kb.IDs(articles)}, log); err != nil {
		return err
	}

	stepStart = s.now()
	draft, err := s.provider.Draft(ctx, ticket.Description, articles)
	if err != nil {
		return fmt.Errorf("draft reply: %w", err)
	}
	s.metrics.ObserveStep("draft", s.now().Sub(stepStart))
	s.observeProvider("draft", draft.Latency)
	if err := s.record(ctx, job, domain.ActorAgent, domain.DraftGeneratedMeta{DraftReply: draft.Reply}, log); err != nil {
		return err
	}

	info := s.provider.Info()
	info.LatencyMs = s.now().Sub(start).Milliseconds()
	suggestion := &domain.AgentSuggestion{
		TicketID:          ticket.ID,
		TraceID:           job.TraceID,
		PredictedCategory: classification.Category,
		ArticleIDs:        draft.Citations,
		DraftReply:        draft.Reply,
		Confidence:        classification.Confidence,
		ModelInfo:         info,
	}
	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		return fmt.Errorf("save suggestion: %w", err)
	}
	if err := ticket.Transition(domain.TicketStatusTriaged, domain.ActorSystem); err != nil {
		return err
	}
	ticket.Category = classification.Category
	ticket.AgentSuggestionID = &suggestion.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	s.publish(ctx, job, events.EventTicketTriaged, events.TicketTriagedPayload{
		Category:     classification.Category,
		Confidence:   classification.Confidence,
		SuggestionID: suggestion.ID,
	})

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return fmt.Errorf("load triage config: %w", err)
	}
	d := decision.Decide(cfg, classification.Confidence, ticket.CreatedAt)
	if d.AutoClose() {
		return s.autoClose(ctx, job, ticket, suggestion, d, log)
	}
	return s.escalate(ctx, job, ticket, d, log)
}

// observeProvider records the model round trip separately from the step,
// which also includes parsing. The stub reports no latency.
func (s *TriageService) observeProvider(step string, d time.Duration) {
	if d > 0 {
		s.metrics.ObserveStep(step+".provider", d)
	}
}

func (s *TriageService) autoClose(ctx context.Context, job domain.TriageJob, ticket *domain.Ticket, suggestion *domain.AgentSuggestion, d decision.Decision, log *zap.Logger) error {
	if err := s.suggestions.MarkAutoClosed(ctx, suggestion.ID); err != nil {
		return fmt.Errorf("mark suggestion auto-closed: %w", err)
	}
	suggestion.AutoClosed = true
	ticket.AppendReply(domain.AutoReplyMarker, suggestion.DraftReply)
	if err := ticket.Transition(d.Status, domain.ActorSystem); err != nil {
		return err
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}
	if err := s.record(ctx, job, domain.ActorSystem, domain.AutoClosedMeta{
		Confidence: d.Confidence,
		Threshold:  d.Threshold,
	}, log); err != nil {
		return err
	}
	s.publish(ctx, job, events.EventTicketAutoClosed, events.TicketDecisionPayload{
		Status:     ticket.Status,
		Confidence: d.Confidence,
		Threshold:  d.Threshold,
	})
	log.Info("ticket auto-closed", zap.Float64("confidence", d.Confidence), zap.Float64("threshold", d.Threshold))
	return nil
}

func (s *TriageService) escalate(ctx context.Context, job domain.TriageJob, ticket *domain.Ticket, d decision.Decision, log *zap.Logger) error {
	if err := ticket.Transition(d.Status, domain.ActorSystem); err != nil {
		return err
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("escalate ticket: %w", err)
	}
	if err := s.record(ctx, job, domain.ActorSystem, domain.AssignedToHumanMeta{
		Confidence: d.Confidence,
		Threshold:  d.Threshold,
		SLADueAt:   d.SLADueAt,
	}, log); err != nil {
		return err
	}
	s.publish(ctx, job, events.EventTicketEscalated, events.TicketDecisionPayload{
		Status:     ticket.Status,
		Confidence: d.Confidence,
		Threshold:  d.Threshold,
		SLADueAt:   d.SLADueAt,
	})
	log.Info("ticket assigned to human", zap.Float64("confidence", d.Confidence), zap.Float64("threshold", d.Threshold))
	return nil
}

func (s *TriageService) record(ctx context.Context, job domain.TriageJob, actor domain.AuditActor, meta domain.AuditMetadata, log *zap.Logger) error {
	entry := domain.NewAuditEntry(job.TicketID, job.TraceID, actor, meta)
	if err := s.audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("append %s audit entry: %w", meta.Action(), err)
	}
	log.Debug("audit entry written", zap.String("action", string(meta.Action())))
	return nil
}

func (s *TriageService) recordFailure(ctx context.Context, job domain.TriageJob, cause error, log *zap.Logger) {
	log.Warn("triage failed", zap.Error(cause))
	entry := domain.NewAuditEntry(job.TicketID, job.TraceID, domain.ActorSystem, domain.ErrorMeta{Message: cause.Error()})
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Error("failed to record triage error", zap.Error(err))
	}
}

func (s *TriageService) publish(ctx context.Context, job domain.TriageJob, eventType events.EventType, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  job.TicketID,
		TraceID:   job.TraceID,
		Actor:     events.Actor{Type: domain.ActorSystem},
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
