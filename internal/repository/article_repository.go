package repository

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// ArticleRepository reads and maintains knowledge-base articles.
type ArticleRepository interface {
	Upsert(ctx context.Context, article *domain.Article) error
	GetByID(ctx context.Context, id string) (*domain.Article, error)
	// SearchPublished ranks published articles by text relevance to query,
	// best first, returning at most limit rows.
	SearchPublished(ctx context.Context, query string, limit int) ([]domain.Article, error)
}

type articleRepository struct {
	pool *pgxpool.Pool
}

// NewArticleRepository builds repository.
func NewArticleRepository(pool *pgxpool.Pool) ArticleRepository {
	return &articleRepository{pool: pool}
}

func (r *articleRepository) Upsert(ctx context.Context, a *domain.Article) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.ArticleStatusDraft
	}
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	const query = `
        INSERT INTO articles (id, title, body, tags, status)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, body=EXCLUDED.body, tags=EXCLUDED.tags,
            status=EXCLUDED.status, updated_at=NOW()
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query, a.ID, a.Title, a.Body, tags, a.Status).Scan(&a.UpdatedAt)
}

func (r *articleRepository) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	var a domain.Article
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, body, tags, status, updated_at FROM articles WHERE id=$1`, id,
	).Scan(&a.ID, &a.Title, &a.Body, &a.Tags, &a.Status, &a.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &a, nil
}

func (r *articleRepository) SearchPublished(ctx context.Context, query string, limit int) ([]domain.Article, error) {
	terms := SearchTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []domain.Article{}, nil
	}
	// Any matching term qualifies an article; ts_rank orders them.
	const sql = `
        SELECT a.id, a.title, a.body, a.tags, a.status, a.updated_at, ts_rank(a.search_vector, q) AS score
        FROM articles a, websearch_to_tsquery('english', $1) q
        WHERE a.status = $2 AND a.search_vector @@ q
        ORDER BY score DESC, a.updated_at DESC
        LIMIT $3`
	rows, err := r.pool.Query(ctx, sql, strings.Join(terms, " or "), domain.ArticleStatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Article{}
	for rows.Next() {
		var (
			a     domain.Article
			score float32
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.Tags, &a.Status, &a.UpdatedAt, &score); err != nil {
			return nil, err
		}
		a.Score = float64(score)
		result = append(result, a)
	}
	return result, rows.Err()
}

// SearchTerms lower-cases text and splits it into unique alphanumeric words.
func SearchTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "or" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
