package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// Completer sends one system+user prompt pair to a model and returns the raw
// text of its answer.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RemoteOptions configures the remote provider.
type RemoteOptions struct {
	Name          string
	Model         string
	PromptVersion string
	Timeout       time.Duration
}

// Remote asks an external model to classify and draft. Failures surface as
// EXTERNAL_SERVICE_ERROR; there is no fallback to the stub.
type Remote struct {
	completer Completer
	opts      RemoteOptions
	logger    *zap.Logger
}

// NewRemote wraps a completer.
func NewRemote(completer Completer, opts RemoteOptions, logger *zap.Logger) *Remote {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "remote"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{completer: completer, opts: opts, logger: logger}
}

type classifyResponse struct {
	PredictedCategory string   `json:"predictedCategory"`
	Confidence        *float64 `json:"confidence"`
}

type draftResponse struct {
	DraftReply string   `json:"draftReply"`
	Citations  []string `json:"citations"`
}

type promptArticle struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags,omitempty"`
}

// Classify implements Provider.
func (r *Remote) Classify(ctx context.Context, text string) (Classification, error) {
	raw, latency, err := r.call(ctx, "classify", classifyPrompt, text)
	if err != nil {
		return Classification{}, err
	}
	var resp classifyResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return Classification{}, r.fail("classify", err)
	}
	category := domain.Category(strings.ToLower(strings.TrimSpace(resp.PredictedCategory)))
	if !category.Valid() {
		return Classification{}, r.fail("classify", fmt.Errorf("unknown category %q", resp.PredictedCategory))
	}
	if resp.Confidence == nil || *resp.Confidence < 0 || *resp.Confidence > 1 {
		return Classification{}, r.fail("classify", errors.New("confidence missing or outside [0,1]"))
	}
	return Classification{Category: category, Confidence: *resp.Confidence, Latency: latency}, nil
}

// Draft implements Provider.
func (r *Remote) Draft(ctx context.Context, text string, articles []domain.Article) (Draft, error) {
	payload := make([]promptArticle, 0, len(articles))
	for _, a := range articles {
		payload = append(payload, promptArticle{ID: a.ID, Title: a.Title, Body: a.Body, Tags: a.Tags})
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Draft{}, fmt.Errorf("marshal articles: %w", err)
	}
	raw, latency, err := r.call(ctx, "draft", draftPrompt, text+"\nArticles: "+string(encoded))
	if err != nil {
		return Draft{}, err
	}
	var resp draftResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return Draft{}, r.fail("draft", err)
	}
	if strings.TrimSpace(resp.DraftReply) == "" {
		return Draft{}, r.fail("draft", errors.New("empty draftReply"))
	}
	citations := resp.Citations
	if citations == nil {
		citations = []string{}
	}
	return Draft{Reply: resp.DraftReply, Citations: citations, Latency: latency}, nil
}

// Info implements Provider.
func (r *Remote) Info() domain.ModelInfo {
	return domain.ModelInfo{Provider: r.opts.Name, Model: r.opts.Model, PromptVersion: r.opts.PromptVersion}
}

func (r *Remote) call(ctx context.Context, op, systemPrompt, userPrompt string) (string, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := r.completer.Complete(callCtx, systemPrompt, userPrompt)
	latency := time.Since(start)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.opts.Timeout, err)
		}
		r.logger.Warn("provider call failed",
			zap.String("provider", r.opts.Name),
			zap.String("op", op),
			zap.Duration("latency", latency),
			zap.Error(err))
		return "", latency, apperrors.NewExternalServiceError(r.opts.Name+" "+op, err)
	}
	r.logger.Debug("provider call completed",
		zap.String("provider", r.opts.Name),
		zap.String("op", op),
		zap.Duration("latency", latency))
	return raw, latency, nil
}

func (r *Remote) fail(op string, err error) error {
	r.logger.Warn("provider response rejected", zap.String("provider", r.opts.Name), zap.String("op", op), zap.Error(err))
	return apperrors.NewExternalServiceError(r.opts.Name+" "+op, fmt.Errorf("malformed response: %w", err))
}

// decodeJSON tolerates markdown code fences around the JSON object.
func decodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return json.Unmarshal([]byte(s), v)
}
