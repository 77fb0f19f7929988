package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/repository"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// SettingsService owns the TriageConfig singleton. It loads (or creates) the
// stored row once, caches it for the refresh interval and is the only writer.
type SettingsService struct {
	repo     repository.TriageConfigRepository
	defaults domain.TriageConfig
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   *domain.TriageConfig
	loadedAt time.Time
}

// NewSettingsService creates the service. cfg supplies the defaults written
// when no singleton exists yet.
func NewSettingsService(repo repository.TriageConfigRepository, cfg config.TriageConfig, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := domain.TriageConfig{
		AutoCloseEnabled:    cfg.AutoCloseEnabled,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		SLAHours:            cfg.SLAHours,
	}
	if defaults.Validate() != nil {
		logger.Warn("invalid triage defaults in environment; using built-in defaults", zap.Any("defaults", defaults))
		defaults = domain.DefaultTriageConfig()
	}
	return &SettingsService{
		repo:     repo,
		defaults: defaults,
		ttl:      cfg.RefreshInterval(),
		logger:   logger,
		now:      time.Now,
	}
}

// Current returns the config in effect, reloading it once the cached copy
// is older than the refresh interval.
func (s *SettingsService) Current(ctx context.Context) (domain.TriageConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.ttl > 0 && s.now().Sub(s.loadedAt) < s.ttl {
		return *s.cached, nil
	}
	cfg, err := s.repo.GetOrCreate(ctx, s.defaults)
	if err != nil {
		if s.cached != nil {
			s.logger.Warn("triage config reload failed; serving cached copy", zap.Error(err))
			return *s.cached, nil
		}
		return domain.TriageConfig{}, apperrors.MapError(err)
	}
	s.store(cfg)
	return cfg, nil
}

// Replace validates and stores a new config.
func (s *SettingsService) Replace(ctx context.Context, cfg domain.TriageConfig) (domain.TriageConfig, error) {
	if err := cfg.Validate(); err != nil {
		return domain.TriageConfig{}, apperrors.NewValidationError(err.Error(), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Replace(ctx, cfg); err != nil {
		return domain.TriageConfig{}, apperrors.MapError(err)
	}
	s.store(cfg)
	s.logger.Info("triage config replaced",
		zap.Bool("auto_close_enabled", cfg.AutoCloseEnabled),
		zap.Float64("confidence_threshold", cfg.ConfidenceThreshold),
		zap.Int("sla_hours", cfg.SLAHours))
	return cfg, nil
}

func (s *SettingsService) store(cfg domain.TriageConfig) {
	c := cfg
	s.cached = &c
	s.loadedAt = s.now()
}
