package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchTerms(t *testing.T) {
	assert.Equal(t,
		[]string{"i", "was", "charged", "twice", "for", "order", "1234", "billing"},
		SearchTerms("I was charged twice for order #1234 billing"))
	assert.Equal(t, []string{"refund", "refunds"}, SearchTerms("Refund, refund! REFUNDS or"))
	assert.Empty(t, SearchTerms("  --- "))
}

func TestNormalizePage(t *testing.T) {
	limit, offset := normalizePage(0, -4)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 0, offset)
	limit, _ = normalizePage(500, 0)
	assert.Equal(t, 100, limit)
}
