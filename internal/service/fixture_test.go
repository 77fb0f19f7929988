package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/events"
	"github.com/helpdesk-labs/triage-service/internal/kb"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/provider"
	"github.com/helpdesk-labs/triage-service/internal/queue"
	"github.com/helpdesk-labs/triage-service/internal/repository"
	"github.com/helpdesk-labs/triage-service/internal/repository/memstore"
)

var (
	requester = domain.Principal{ID: "user-1", Role: domain.RoleUser}
	agent     = domain.Principal{ID: "agent-1", Role: domain.RoleAgent}
	admin     = domain.Principal{ID: "admin-1", Role: domain.RoleAdmin}
)

type fixture struct {
	store    *memstore.Store
	queue    *queue.MemoryQueue
	settings *SettingsService
	triage   *TriageService
	tickets  *TicketService
	metrics  *observability.Metrics

	mu     sync.Mutex
	events []events.Event
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	provider   provider.Provider
	configRepo repository.TriageConfigRepository
}

func withProvider(p provider.Provider) fixtureOption {
	return func(c *fixtureConfig) { c.provider = p }
}

func withConfigRepo(r repository.TriageConfigRepository) fixtureOption {
	return func(c *fixtureConfig) { c.configRepo = r }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memstore.New()
	cfg := fixtureConfig{provider: provider.NewStub("1.0"), configRepo: store.TriageConfig()}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		store:   store,
		queue:   queue.NewMemoryQueue(queue.Options{MaxAttempts: 3, BackoffBase: time.Millisecond}),
		metrics: observability.NewMetrics(),
	}
	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketTriaged, events.EventTicketAutoClosed,
		events.EventTicketEscalated, events.EventTicketAssigned, events.EventReplySent,
	} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, e)
			return nil
		})
	}

	f.settings = NewSettingsService(cfg.configRepo, config.TriageConfig{
		AutoCloseEnabled:    true,
		ConfidenceThreshold: 0.78,
		SLAHours:            24,
	}, nil)
	f.triage = NewTriageService(TriageDependencies{
		TicketRepo:     store.Tickets(),
		SuggestionRepo: store.Suggestions(),
		AuditRepo:      store.AuditLogs(),
		Provider:       cfg.provider,
		Retriever:      kb.NewRetriever(store.Articles()),
		Settings:       f.settings,
		Dispatcher:     dispatcher,
		Metrics:        f.metrics,
	})
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:     store.Tickets(),
		SuggestionRepo: store.Suggestions(),
		AuditRepo:      store.AuditLogs(),
		Queue:          f.queue,
		Dispatcher:     dispatcher,
	})
	return f
}

func (f *fixture) seedArticles(t *testing.T, articles ...domain.Article) {
	t.Helper()
	for i := range articles {
		require.NoError(t, f.store.Articles().Upsert(context.Background(), &articles[i]))
	}
}

// create files a ticket and returns it with the job the queue received.
func (f *fixture) create(t *testing.T, title, description string) (*domain.Ticket, domain.TriageJob) {
	t.Helper()
	ticket, traceID, err := f.tickets.CreateTicket(context.Background(), requester, TicketCreateInput{Title: title, Description: description})
	require.NoError(t, err)
	job, err := f.queue.Reserve(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, f.queue.Ack(context.Background(), job))
	require.Equal(t, domain.TriageJob{TicketID: ticket.ID, TraceID: traceID}, job.Payload)
	return ticket, job.Payload
}

func (f *fixture) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets().GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) actions(t *testing.T, traceID string) []domain.AuditAction {
	t.Helper()
	entries, err := f.store.AuditLogs().ListByTrace(context.Background(), traceID)
	require.NoError(t, err)
	out := make([]domain.AuditAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func (f *fixture) eventTypes() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func configWithRefresh(seconds int) config.TriageConfig {
	return config.TriageConfig{
		AutoCloseEnabled:    true,
		ConfidenceThreshold: 0.78,
		SLAHours:            24,
		RefreshIntervalSec:  seconds,
	}
}
