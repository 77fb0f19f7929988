package kb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/repository"
	"github.com/helpdesk-labs/triage-service/internal/repository/memstore"
)

func seed(t *testing.T, repo repository.ArticleRepository, articles ...domain.Article) {
	t.Helper()
	for i := range articles {
		require.NoError(t, repo.Upsert(context.Background(), &articles[i]))
	}
}

func TestRetrieveRanksAndCaps(t *testing.T) {
	store := memstore.New()
	seed(t, store.Articles(),
		domain.Article{ID: "a", Title: "Refund policy", Body: "How refunds for a double charge work", Tags: []string{"billing"}, Status: domain.ArticleStatusPublished},
		domain.Article{ID: "b", Title: "Invoices", Body: "Download an invoice", Tags: []string{"billing"}, Status: domain.ArticleStatusPublished},
		domain.Article{ID: "c", Title: "Charge disputes", Body: "Dispute a charge", Tags: []string{"billing"}, Status: domain.ArticleStatusPublished},
		domain.Article{ID: "d", Title: "Billing FAQ", Body: "billing basics", Status: domain.ArticleStatusPublished},
		domain.Article{ID: "e", Title: "Charge refund draft", Body: "refund charge", Tags: []string{"billing"}, Status: domain.ArticleStatusDraft},
	)

	got, err := NewRetriever(store.Articles()).Retrieve(context.Background(), "I was charged twice, need a refund", domain.CategoryBilling)
	require.NoError(t, err)
	require.Len(t, got, MaxArticles)
	for _, a := range got {
		assert.Equal(t, domain.ArticleStatusPublished, a.Status)
		assert.NotEqual(t, "e", a.ID)
	}
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRetrieveNoMatchIsEmpty(t *testing.T) {
	store := memstore.New()
	seed(t, store.Articles(), domain.Article{ID: "a", Title: "Shipping times", Body: "Parcels arrive in a week", Status: domain.ArticleStatusPublished})

	got, err := NewRetriever(store.Articles()).Retrieve(context.Background(), "zzz qqq", domain.Category("xyz"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

type failingArticles struct{ repository.ArticleRepository }

func (failingArticles) SearchPublished(context.Context, string, int) ([]domain.Article, error) {
	return nil, errors.New("db down")
}

func TestRetrievePropagatesStoreErrors(t *testing.T) {
	_, err := NewRetriever(failingArticles{}).Retrieve(context.Background(), "x", domain.CategoryTech)
	assert.ErrorContains(t, err, "db down")
}

func TestQueryAndIDs(t *testing.T) {
	assert.Equal(t, "parcel late shipping", Query("parcel late", domain.CategoryShipping))
	assert.Equal(t, []string{"x", "y"}, IDs([]domain.Article{{ID: "x"}, {ID: "y"}}))
	assert.Equal(t, []string{}, IDs(nil))
}
