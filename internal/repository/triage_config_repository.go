package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// TriageConfigRepository persists the settings singleton.
type TriageConfigRepository interface {
	// GetOrCreate returns the stored singleton, inserting defaults when none
	// exists. Concurrent first calls all read back the same row.
	GetOrCreate(ctx context.Context, defaults domain.TriageConfig) (domain.TriageConfig, error)
	Replace(ctx context.Context, cfg domain.TriageConfig) error
}

type triageConfigRepository struct {
	pool *pgxpool.Pool
}

// NewTriageConfigRepository builds repository.
func NewTriageConfigRepository(pool *pgxpool.Pool) TriageConfigRepository {
	return &triageConfigRepository{pool: pool}
}

// singletonID is the fixed primary key of the only settings row.
const singletonID = 1

func (r *triageConfigRepository) GetOrCreate(ctx context.Context, defaults domain.TriageConfig) (domain.TriageConfig, error) {
	const insert = `
        INSERT INTO triage_config (id, auto_close_enabled, confidence_threshold, sla_hours)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, singletonID, defaults.AutoCloseEnabled, defaults.ConfidenceThreshold, defaults.SLAHours); err != nil {
		return domain.TriageConfig{}, err
	}
	var cfg domain.TriageConfig
	err := r.pool.QueryRow(ctx,
		`SELECT auto_close_enabled, confidence_threshold, sla_hours FROM triage_config WHERE id=$1`, singletonID,
	).Scan(&cfg.AutoCloseEnabled, &cfg.ConfidenceThreshold, &cfg.SLAHours)
	return cfg, mapNoRows(err)
}

func (r *triageConfigRepository) Replace(ctx context.Context, cfg domain.TriageConfig) error {
	const query = `
        INSERT INTO triage_config (id, auto_close_enabled, confidence_threshold, sla_hours)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET auto_close_enabled=EXCLUDED.auto_close_enabled,
            confidence_threshold=EXCLUDED.confidence_threshold, sla_hours=EXCLUDED.sla_hours, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query, singletonID, cfg.AutoCloseEnabled, cfg.ConfidenceThreshold, cfg.SLAHours)
	return err
}
