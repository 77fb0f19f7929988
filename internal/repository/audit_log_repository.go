package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// AuditLogRepository stores append-only audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditLogEntry, error)
	ListByTrace(ctx context.Context, traceID string) ([]domain.AuditLogEntry, error)
}

type auditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository builds repository.
func NewAuditLogRepository(pool *pgxpool.Pool) AuditLogRepository {
	return &auditLogRepository{pool: pool}
}

func (r *auditLogRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	meta, err := domain.EncodeAuditMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO audit_logs (id, ticket_id, trace_id, actor, action, meta)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.TraceID,
		entry.Actor,
		entry.Action,
		meta,
	).Scan(&entry.Timestamp)
}

func (r *auditLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditLogEntry, error) {
	return r.list(ctx, `WHERE ticket_id=$1`, ticketID)
}

func (r *auditLogRepository) ListByTrace(ctx context.Context, traceID string) ([]domain.AuditLogEntry, error) {
	return r.list(ctx, `WHERE trace_id=$1`, traceID)
}

// Entries written in the same microsecond keep write order through seq.
func (r *auditLogRepository) list(ctx context.Context, where string, arg any) ([]domain.AuditLogEntry, error) {
	query := `SELECT id, ticket_id, trace_id, actor, action, meta, created_at FROM audit_logs ` +
		where + ` ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditLogEntry, error) {
	var result []domain.AuditLogEntry
	for rows.Next() {
		var (
			entry domain.AuditLogEntry
			raw   []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.TraceID,
			&entry.Actor,
			&entry.Action,
			&raw,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		meta, err := domain.DecodeAuditMetadata(entry.Action, raw)
		if err != nil {
			return nil, err
		}
		entry.Metadata = meta
		result = append(result, entry)
	}
	return result, rows.Err()
}
