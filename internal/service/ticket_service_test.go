package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/events"
	"github.com/helpdesk-labs/triage-service/internal/repository/memstore"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

func TestCreateTicketValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.tickets.CreateTicket(ctx, requester, TicketCreateInput{Title: " ", Description: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, _, err = f.tickets.CreateTicket(ctx, requester, TicketCreateInput{Title: "t", Description: "d", Category: "sales"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Ready)
}

func TestCreateTicketRecordsAndEnqueues(t *testing.T) {
	f := newFixture(t)
	ticket, job := f.create(t, "  Where is my parcel ", "It has not arrived")

	assert.Equal(t, "Where is my parcel", ticket.Title)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.CategoryOther, ticket.Category)
	assert.Equal(t, requester.ID, ticket.CreatedBy)

	entries, err := f.store.AuditLogs().ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionTicketCreated, entries[0].Action)
	assert.Equal(t, domain.ActorUser, entries[0].Actor)
	assert.Equal(t, job.TraceID, entries[0].TraceID)
	assert.Equal(t, domain.TicketCreatedMeta{UserID: requester.ID}, entries[0].Metadata)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.eventTypes())
}

type brokenQueue struct{}

func (brokenQueue) Enqueue(context.Context, domain.TriageJob) (string, error) {
	return "", errors.New("redis down")
}

func TestCreateTicketSurvivesEnqueueFailure(t *testing.T) {
	store := memstore.New()
	svc := NewTicketService(TicketDependencies{
		TicketRepo:     store.Tickets(),
		SuggestionRepo: store.Suggestions(),
		AuditRepo:      store.AuditLogs(),
		Queue:          brokenQueue{},
	})
	ticket, traceID, err := svc.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
}

// escalated creates a ticket and runs triage so it waits for a human.
func escalated(t *testing.T, f *fixture) *domain.Ticket {
	t.Helper()
	created, job := f.create(t, "Question", "How do I change my address?")
	require.NoError(t, f.triage.Handle(context.Background(), job))
	ticket := f.ticket(t, created.ID)
	require.Equal(t, domain.TicketStatusWaitingHuman, ticket.Status)
	return ticket
}

func TestAssignRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open, _ := f.create(t, "Fresh", "Not triaged yet")
	_, err := f.tickets.Assign(ctx, agent, open.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	ticket := escalated(t, f)

	_, err = f.tickets.Assign(ctx, requester, ticket.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.tickets.Assign(ctx, agent, ticket.ID, "agent-2")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "agents only self-assign")

	_, err = f.tickets.Assign(ctx, agent, "missing", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	assigned, err := f.tickets.Assign(ctx, agent, ticket.ID, "")
	require.NoError(t, err)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, agent.ID, *assigned.AssigneeID)
	assert.Equal(t, domain.TicketStatusWaitingHuman, assigned.Status, "assignment keeps status")

	other := domain.Principal{ID: "agent-2", Role: domain.RoleAgent}
	_, err = f.tickets.Assign(ctx, other, ticket.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	reassigned, err := f.tickets.Assign(ctx, admin, ticket.ID, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-2", *reassigned.AssigneeID)

	waiting, total, err := f.tickets.ListWaiting(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, waiting)

	entries, err := f.store.AuditLogs().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.ActionTicketAssigned, last.Action)
	assert.Equal(t, domain.TicketAssignedMeta{AssigneeID: "agent-2", AssignedBy: admin.ID}, last.Metadata)
}

func TestReplyRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := escalated(t, f)

	_, err := f.tickets.Reply(ctx, agent, ticket.ID, ReplyInput{Body: "hi"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "unassigned agents cannot reply")

	_, err = f.tickets.Assign(ctx, agent, ticket.ID, "")
	require.NoError(t, err)

	_, err = f.tickets.Reply(ctx, agent, ticket.ID, ReplyInput{Body: "  "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.tickets.Reply(ctx, agent, ticket.ID, ReplyInput{Body: "hi", Status: domain.TicketStatusOpen})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, domain.TicketStatusWaitingHuman, f.ticket(t, ticket.ID).Status)

	progress, err := f.tickets.Reply(ctx, agent, ticket.ID, ReplyInput{Body: "Looking into it"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaitingHuman, progress.Status)

	resolved, err := f.tickets.Reply(ctx, agent, ticket.ID, ReplyInput{Body: "Done", Status: domain.TicketStatusResolved})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	assert.True(t, strings.HasSuffix(resolved.Description, "\n\nAgent Reply: Looking into it\n\nAgent Reply: Done"))

	_, err = f.tickets.Reply(ctx, agent, ticket.ID, ReplyInput{Body: "again", Status: domain.TicketStatusClosed})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "resolved is terminal")

	trail, err := f.tickets.AuditTrail(ctx, agent, ticket.ID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, domain.ActionReplySent, last.Action)
	assert.Equal(t, domain.ReplySentMeta{AgentID: agent.ID, Reply: "Done", Status: domain.TicketStatusResolved}, last.Metadata)

	byTrace, err := f.tickets.TraceTrail(ctx, last.TraceID)
	require.NoError(t, err)
	require.Len(t, byTrace, 1, "each reply gets its own trace")
	assert.Contains(t, f.eventTypes(), events.EventReplySent)
}

func TestGetTicketScopesUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := escalated(t, f)

	detail, err := f.tickets.GetTicket(ctx, requester, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Suggestion)
	assert.Equal(t, *ticket.AgentSuggestionID, detail.Suggestion.ID)

	stranger := domain.Principal{ID: "user-2", Role: domain.RoleUser}
	_, err = f.tickets.GetTicket(ctx, stranger, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = f.tickets.AuditTrail(ctx, stranger, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.tickets.GetTicket(ctx, agent, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestListTicketsByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := escalated(t, f)
	f.create(t, "Other", "Second ticket")
	_, err := f.tickets.Assign(ctx, agent, ticket.ID, "")
	require.NoError(t, err)

	mine, total, err := f.tickets.ListTickets(ctx, requester, TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, mine, 2)

	assignedToMe, total, err := f.tickets.ListTickets(ctx, agent, TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, ticket.ID, assignedToMe[0].ID)

	status := domain.TicketStatusOpen
	open, total, err := f.tickets.ListTickets(ctx, admin, TicketListFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, domain.TicketStatusOpen, open[0].Status)

	bad := domain.TicketStatus("pending")
	_, _, err = f.tickets.ListTickets(ctx, admin, TicketListFilter{Status: &bad})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestSettingsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg, err := f.settings.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTriageConfig(), cfg)

	_, err = f.settings.Replace(ctx, domain.TriageConfig{AutoCloseEnabled: true, ConfidenceThreshold: 1.2, SLAHours: 24})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = f.settings.Replace(ctx, domain.TriageConfig{AutoCloseEnabled: true, ConfidenceThreshold: 0.5, SLAHours: 0})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = f.settings.Replace(ctx, domain.TriageConfig{AutoCloseEnabled: true, ConfidenceThreshold: math.NaN(), SLAHours: 24})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "NaN threshold is rejected")

	want := domain.TriageConfig{AutoCloseEnabled: false, ConfidenceThreshold: 0.9, SLAHours: 8}
	got, err := f.settings.Replace(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cfg, err = f.settings.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, cfg)

	stored, err := f.store.TriageConfig().GetOrCreate(ctx, domain.DefaultTriageConfig())
	require.NoError(t, err)
	assert.Equal(t, want, stored)
}

func TestSettingsCacheRefreshes(t *testing.T) {
	store := memstore.New()
	svc := NewSettingsService(store.TriageConfig(), configWithRefresh(30), nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := svc.Current(ctx)
	require.NoError(t, err)

	external := domain.TriageConfig{AutoCloseEnabled: false, ConfidenceThreshold: 0.3, SLAHours: 2}
	require.NoError(t, store.TriageConfig().Replace(ctx, external))

	cached, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTriageConfig(), cached, "served from cache")

	now = now.Add(31 * time.Second)
	fresh, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, external, fresh)
}
