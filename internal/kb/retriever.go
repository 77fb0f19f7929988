// Package kb retrieves knowledge-base context for drafting replies.
package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/repository"
)

// MaxArticles caps how many articles a single retrieval returns.
const MaxArticles = 3

// Retriever ranks published articles against a ticket.
type Retriever struct {
	articles repository.ArticleRepository
	limit    int
}

// NewRetriever creates a retriever over the article store.
func NewRetriever(articles repository.ArticleRepository) *Retriever {
	return &Retriever{articles: articles, limit: MaxArticles}
}

// Query builds the relevance query for a ticket.
func Query(description string, category domain.Category) string {
	return strings.TrimSpace(description + " " + string(category))
}

// Retrieve returns up to three published articles, best match first. No
// match is an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, description string, category domain.Category) ([]domain.Article, error) {
	found, err := r.articles.SearchPublished(ctx, Query(description, category), r.limit)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	out := make([]domain.Article, 0, len(found))
	for _, a := range found {
		if a.Status != domain.ArticleStatusPublished {
			continue
		}
		out = append(out, a)
		if len(out) == r.limit {
			break
		}
	}
	return out, nil
}

// IDs lists article ids in order.
func IDs(articles []domain.Article) []string {
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}
	return ids
}
