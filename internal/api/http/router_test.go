package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/api/http/handlers"
	"github.com/helpdesk-labs/triage-service/internal/auth"
	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/events"
	"github.com/helpdesk-labs/triage-service/internal/kb"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/provider"
	"github.com/helpdesk-labs/triage-service/internal/queue"
	"github.com/helpdesk-labs/triage-service/internal/repository/memstore"
	"github.com/helpdesk-labs/triage-service/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	queue  *queue.MemoryQueue
	triage *service.TriageService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	q := queue.NewMemoryQueue(queue.Options{MaxAttempts: 3, BackoffBase: time.Millisecond})
	settings := service.NewSettingsService(store.TriageConfig(), config.TriageConfig{
		AutoCloseEnabled:    true,
		ConfidenceThreshold: 0.78,
		SLAHours:            24,
	}, nil)
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     store.Tickets(),
		SuggestionRepo: store.Suggestions(),
		AuditRepo:      store.AuditLogs(),
		Queue:          q,
		Dispatcher:     dispatcher,
	})
	triage := service.NewTriageService(service.TriageDependencies{
		TicketRepo:     store.Tickets(),
		SuggestionRepo: store.Suggestions(),
		AuditRepo:      store.AuditLogs(),
		Provider:       provider.NewStub("1.0"),
		Retriever:      kb.NewRetriever(store.Articles()),
		Settings:       settings,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
	})
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("triage-service", "test", nil),
		Tickets:        handlers.NewTicketsHandler(tickets),
		StaffTickets:   handlers.NewStaffTicketsHandler(tickets),
		Admin:          handlers.NewAdminHandler(settings, q, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens, queue: q, triage: triage}
}

func (s *testServer) token(t *testing.T, subject string, role domain.Role) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(subject, role)
	require.NoError(t, err)
	return token
}

// do sends a request and decodes the JSON body into a generic map.
func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, nethttp.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do(t, nethttp.MethodGet, "/api/tickets", "not-a-jwt", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, "user-1", domain.RoleUser)
	agent := s.token(t, "agent-1", domain.RoleAgent)

	status, body := s.do(t, nethttp.MethodPost, "/api/tickets", agent, map[string]string{"title": "t", "description": "d"})
	assert.Equal(t, nethttp.StatusForbidden, status, "agents do not file tickets")

	status, body = s.do(t, nethttp.MethodPost, "/api/tickets", user, map[string]string{"title": "", "description": "d"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/tickets", user, map[string]string{
		"title":       "Question",
		"description": "How do I change my address?",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	created := data(body)
	traceID, _ := created["traceId"].(string)
	require.NotEmpty(t, traceID)
	ticketID, _ := created["ticket"].(map[string]any)["id"].(string)
	require.NotEmpty(t, ticketID)

	job, err := s.queue.Reserve(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, s.triage.Handle(context.Background(), job.Payload))
	require.NoError(t, s.queue.Ack(context.Background(), job))

	status, body = s.do(t, nethttp.MethodGet, "/api/tickets/"+ticketID, user, nil)
	require.Equal(t, nethttp.StatusOK, status)
	detail := data(body)
	assert.Equal(t, "waiting_human", detail["ticket"].(map[string]any)["status"])
	assert.NotNil(t, detail["agentSuggestion"])

	status, body = s.do(t, nethttp.MethodGet, "/api/tickets/unassigned", user, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, body = s.do(t, nethttp.MethodGet, "/api/tickets/unassigned", agent, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(1), data(body)["total"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/tickets/"+ticketID+"/assign", agent, nil)
	require.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, nethttp.MethodPost, "/api/tickets/"+ticketID+"/reply", agent, map[string]string{"reply": "x", "status": "open"})
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/tickets/"+ticketID+"/reply", agent, map[string]string{"reply": "Updated it for you", "status": "resolved"})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "resolved", data(body)["status"])

	status, body = s.do(t, nethttp.MethodGet, "/api/tickets/"+ticketID+"/audit", user, nil)
	require.Equal(t, nethttp.StatusOK, status)
	entries, _ := body["data"].([]any)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.(map[string]any)["action"].(string))
	}
	assert.Equal(t, []string{
		"TICKET_CREATED", "AGENT_CLASSIFIED", "KB_RETRIEVED", "DRAFT_GENERATED",
		"ASSIGNED_TO_HUMAN", "TICKET_ASSIGNED", "REPLY_SENT",
	}, actions)

	status, body = s.do(t, nethttp.MethodGet, "/api/audit/traces/"+traceID, agent, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 5)

	status, _ = s.do(t, nethttp.MethodGet, "/api/tickets/missing", user, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin-1", domain.RoleAdmin)
	agent := s.token(t, "agent-1", domain.RoleAgent)

	status, _ := s.do(t, nethttp.MethodGet, "/api/admin/settings", agent, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, body := s.do(t, nethttp.MethodGet, "/api/admin/settings", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, 0.78, data(body)["confidenceThreshold"])

	status, body = s.do(t, nethttp.MethodPut, "/api/admin/settings", admin, map[string]any{"autoCloseEnabled": false})
	assert.Equal(t, nethttp.StatusBadRequest, status, "partial replacement is rejected")

	status, body = s.do(t, nethttp.MethodPut, "/api/admin/settings", admin, map[string]any{
		"autoCloseEnabled": true, "confidenceThreshold": 1.5, "slaHours": 4,
	})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPut, "/api/admin/settings", admin, map[string]any{
		"autoCloseEnabled": false, "confidenceThreshold": 0.5, "slaHours": 4,
	})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(4), data(body)["slaHours"])

	jobID, err := s.queue.Enqueue(context.Background(), domain.TriageJob{TicketID: "t-1", TraceID: "tr-1"})
	require.NoError(t, err)
	job, err := s.queue.Reserve(context.Background(), time.Second)
	require.NoError(t, err)
	_, err = s.queue.Fail(context.Background(), job, queue.Permanent(assert.AnError))
	require.NoError(t, err)

	status, body = s.do(t, nethttp.MethodGet, "/api/admin/queue/dead-letters", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, data(body)["items"], 1)
	assert.Equal(t, float64(1), data(body)["stats"].(map[string]any)["dead"])

	status, body = s.do(t, nethttp.MethodPost, "/api/admin/queue/jobs/"+jobID+"/requeue", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "queued", data(body)["state"])

	status, body = s.do(t, nethttp.MethodPost, "/api/admin/queue/jobs/"+jobID+"/requeue", admin, nil)
	assert.Equal(t, nethttp.StatusConflict, status)

	status, _ = s.do(t, nethttp.MethodGet, "/api/admin/queue/jobs/nope", admin, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)

	status, body = s.do(t, nethttp.MethodGet, "/api/admin/metrics", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Contains(t, data(body), "requests")
}
