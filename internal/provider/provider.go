// Package provider classifies tickets and drafts replies. One implementation
// is chosen at process start and injected into the triage pipeline.
package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// Classification is the result of Classify.
type Classification struct {
	Category   domain.Category
	Confidence float64
	Latency    time.Duration
}

// Draft is the result of Draft.
type Draft struct {
	Reply     string
	Citations []string
	Latency   time.Duration
}

// Provider is the classification and drafting capability.
type Provider interface {
	Classify(ctx context.Context, text string) (Classification, error)
	Draft(ctx context.Context, text string, articles []domain.Article) (Draft, error)
	// Info describes the provider for suggestion metadata. LatencyMs is zero.
	Info() domain.ModelInfo
}

// New builds the provider selected by cfg.
func New(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Mode {
	case config.ProviderModeStub, "":
		return NewStub(cfg.PromptVersion), nil
	case config.ProviderModeRemote:
		completer, err := newCompleter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRemote(completer, RemoteOptions{
			Name:          cfg.Backend,
			Model:         cfg.Model,
			PromptVersion: cfg.PromptVersion,
			Timeout:       cfg.Timeout(),
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.Mode)
	}
}

func newCompleter(ctx context.Context, cfg config.ProviderConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY is required for remote mode")
	}
	switch cfg.Backend {
	case config.BackendOpenAI, "":
		return NewOpenAICompleter(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case config.BackendGemini:
		return NewGeminiCompleter(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.Backend)
	}
}
