package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROVIDER_MODE", "")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "")
	t.Setenv("TRIAGE_CONFIDENCE_THRESHOLD", "")
	t.Setenv("PROVIDER_BACKEND", "")
	t.Setenv("PROVIDER_MODEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderModeStub, cfg.Provider.Mode)
	assert.Equal(t, BackendOpenAI, cfg.Provider.Backend)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Provider.Model)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout())
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Queue.BackoffBase())
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.True(t, cfg.Triage.AutoCloseEnabled)
	assert.InDelta(t, 0.78, cfg.Triage.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 24, cfg.Triage.SLAHours)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROVIDER_MODE", "REMOTE")
	t.Setenv("PROVIDER_BACKEND", "gemini")
	t.Setenv("PROVIDER_MODEL", "")
	t.Setenv("TRIAGE_CONFIDENCE_THRESHOLD", "0.5")
	t.Setenv("TRIAGE_AUTO_CLOSE_ENABLED", "false")
	t.Setenv("QUEUE_BACKOFF_BASE_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderModeRemote, cfg.Provider.Mode)
	assert.Equal(t, BackendGemini, cfg.Provider.Backend)
	assert.Equal(t, "gemini-2.0-flash", cfg.Provider.Model, "model default follows the backend")
	assert.InDelta(t, 0.5, cfg.Triage.ConfidenceThreshold, 1e-9)
	assert.False(t, cfg.Triage.AutoCloseEnabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.BackoffBase())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	assert.Error(t, err)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("TRIAGE_SLA_HOURS", "soon")
	t.Setenv("TRIAGE_CONFIDENCE_THRESHOLD", "high")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Triage.SLAHours)
	assert.InDelta(t, 0.78, cfg.Triage.ConfidenceThreshold, 1e-9)
}

func TestExplicitModelWins(t *testing.T) {
	t.Setenv("PROVIDER_BACKEND", "gemini")
	t.Setenv("PROVIDER_MODEL", "gemini-2.5-pro")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", cfg.Provider.Model)
}
