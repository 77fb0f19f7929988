package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// AgentSuggestionRepository stores triage outputs.
type AgentSuggestionRepository interface {
	Create(ctx context.Context, suggestion *domain.AgentSuggestion) error
	// MarkAutoClosed sets the auto-closed flag once; later calls are no-ops.
	MarkAutoClosed(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.AgentSuggestion, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentSuggestion, error)
}

type agentSuggestionRepository struct {
	pool *pgxpool.Pool
}

// NewAgentSuggestionRepository builds repository.
func NewAgentSuggestionRepository(pool *pgxpool.Pool) AgentSuggestionRepository {
	return &agentSuggestionRepository{pool: pool}
}

const suggestionColumns = `id, ticket_id, trace_id, predicted_category, article_ids, draft_reply, confidence, auto_closed, model_info, created_at`

func (r *agentSuggestionRepository) Create(ctx context.Context, s *domain.AgentSuggestion) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	modelInfo, err := json.Marshal(s.ModelInfo)
	if err != nil {
		return fmt.Errorf("marshal model info: %w", err)
	}
	articleIDs := s.ArticleIDs
	if articleIDs == nil {
		articleIDs = []string{}
	}
	const query = `
        INSERT INTO agent_suggestions (id, ticket_id, trace_id, predicted_category, article_ids, draft_reply, confidence, auto_closed, model_info)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		s.ID,
		s.TicketID,
		s.TraceID,
		s.PredictedCategory,
		articleIDs,
		s.DraftReply,
		s.Confidence,
		s.AutoClosed,
		modelInfo,
	).Scan(&s.CreatedAt)
}

func (r *agentSuggestionRepository) MarkAutoClosed(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE agent_suggestions SET auto_closed=TRUE WHERE id=$1 AND auto_closed=FALSE`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM agent_suggestions WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *agentSuggestionRepository) GetByID(ctx context.Context, id string) (*domain.AgentSuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM agent_suggestions WHERE id=$1`
	s, err := scanSuggestion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return s, nil
}

func (r *agentSuggestionRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentSuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM agent_suggestions WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AgentSuggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func scanSuggestion(row pgx.Row) (*domain.AgentSuggestion, error) {
	var (
		s         domain.AgentSuggestion
		modelInfo []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.TicketID,
		&s.TraceID,
		&s.PredictedCategory,
		&s.ArticleIDs,
		&s.DraftReply,
		&s.Confidence,
		&s.AutoClosed,
		&modelInfo,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(modelInfo) > 0 {
		if err := json.Unmarshal(modelInfo, &s.ModelInfo); err != nil {
			return nil, fmt.Errorf("decode model info: %w", err)
		}
	}
	return &s, nil
}
