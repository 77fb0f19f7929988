package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/domain"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

type fakeCompleter struct {
	reply string
	err   error
	delay time.Duration
	calls   []string
	systems []string
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls = append(f.calls, userPrompt)
	f.systems = append(f.systems, systemPrompt)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func newTestRemote(c Completer, timeout time.Duration) *Remote {
	return NewRemote(c, RemoteOptions{Name: "openai", Model: "gpt-test", PromptVersion: "1.0", Timeout: timeout}, zap.NewNop())
}

func TestRemoteClassify(t *testing.T) {
	c := &fakeCompleter{reply: "```json\n{\"predictedCategory\":\"Shipping\",\"confidence\":0.91}\n```"}
	r := newTestRemote(c, time.Second)

	got, err := r.Classify(context.Background(), "where is my parcel")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryShipping, got.Category)
	assert.InDelta(t, 0.91, got.Confidence, 1e-9)
	require.Len(t, c.systems, 1)
	assert.Contains(t, c.systems[0], "one of: billing, tech, shipping, other.")
}

func TestRemoteClassifyRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "I think it's billing"},
		{"unknown category", `{"predictedCategory":"sales","confidence":0.5}`},
		{"confidence above one", `{"predictedCategory":"billing","confidence":1.5}`},
		{"confidence missing", `{"predictedCategory":"billing"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRemote(&fakeCompleter{reply: tt.reply}, time.Second)
			_, err := r.Classify(context.Background(), "text")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalService))
		})
	}
}

func TestRemoteTimeout(t *testing.T) {
	c := &fakeCompleter{reply: `{"predictedCategory":"billing","confidence":0.9}`, delay: time.Second}
	r := newTestRemote(c, 20*time.Millisecond)

	_, err := r.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalService))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRemoteTransportError(t *testing.T) {
	r := newTestRemote(&fakeCompleter{err: errors.New("connection refused")}, time.Second)
	_, err := r.Draft(context.Background(), "text", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalService))
}

func TestRemoteDraft(t *testing.T) {
	c := &fakeCompleter{reply: `{"draftReply":"See [kb-1].","citations":["kb-1"]}`}
	r := newTestRemote(c, time.Second)

	draft, err := r.Draft(context.Background(), "double charge", []domain.Article{{ID: "kb-1", Title: "Refunds", Body: "How refunds work"}})
	require.NoError(t, err)
	assert.Equal(t, "See [kb-1].", draft.Reply)
	assert.Equal(t, []string{"kb-1"}, draft.Citations)

	require.Len(t, c.calls, 1)
	assert.True(t, strings.HasPrefix(c.calls[0], "double charge\nArticles: "))
	assert.Contains(t, c.calls[0], `"id":"kb-1"`)
}

func TestRemoteDraftRejectsEmptyReply(t *testing.T) {
	r := newTestRemote(&fakeCompleter{reply: `{"draftReply":"  ","citations":[]}`}, time.Second)
	_, err := r.Draft(context.Background(), "text", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalService))
}

func TestOpenAICompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "gpt-test", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "user", req.Messages[1].Role)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"predictedCategory":"tech","confidence":0.8}`}},
			},
		})
	}))
	defer srv.Close()

	r := newTestRemote(NewOpenAICompleter(srv.URL+"/", "sk-test", "gpt-test"), time.Second)
	got, err := r.Classify(context.Background(), "app crashes")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryTech, got.Category)
}

func TestOpenAICompleterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAICompleter(srv.URL, "sk-test", "gpt-test").Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestNewSelectsProvider(t *testing.T) {
	p, err := New(context.Background(), config.ProviderConfig{Mode: config.ProviderModeStub, PromptVersion: "1.0"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Stub{}, p)

	_, err = New(context.Background(), config.ProviderConfig{Mode: config.ProviderModeRemote}, zap.NewNop())
	assert.Error(t, err, "remote mode without an API key")

	p, err = New(context.Background(), config.ProviderConfig{
		Mode: config.ProviderModeRemote, Backend: config.BackendOpenAI, APIKey: "k", BaseURL: "http://localhost", Model: "m",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Info().Provider)

	_, err = New(context.Background(), config.ProviderConfig{Mode: "magic"}, zap.NewNop())
	assert.Error(t, err)
}
