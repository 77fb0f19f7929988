package provider

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// stubKeywords is checked in this order; order does not affect results.
var stubKeywords = []struct {
	category domain.Category
	words    []string
}{
	{domain.CategoryBilling, []string{"refund", "invoice", "payment", "charge"}},
	{domain.CategoryTech, []string{"error", "bug", "stack", "login"}},
	{domain.CategoryShipping, []string{"delivery", "shipment", "package", "track"}},
}

const excerptLength = 100

// Stub is a deterministic keyword classifier with template drafting.
type Stub struct {
	promptVersion string
}

// NewStub returns the stub provider.
func NewStub(promptVersion string) *Stub {
	return &Stub{promptVersion: promptVersion}
}

// Classify counts keyword hits per category. The single best category wins;
// ties and zero hits give other, which has no keywords and so confidence 0.
func (s *Stub) Classify(_ context.Context, text string) (Classification, error) {
	lower := strings.ToLower(text)
	best := domain.CategoryOther
	bestHits := 0
	tied := false
	for _, entry := range stubKeywords {
		hits := 0
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				hits++
			}
		}
		switch {
		case hits > bestHits:
			best, bestHits, tied = entry.category, hits, false
		case hits == bestHits && hits > 0:
			tied = true
		}
	}
	if tied || bestHits == 0 {
		return Classification{Category: domain.CategoryOther, Confidence: 0}, nil
	}
	return Classification{
		Category:   best,
		Confidence: math.Min(float64(bestHits)/3, 1),
	}, nil
}

// Draft echoes the issue followed by numbered article excerpts.
func (s *Stub) Draft(_ context.Context, text string, articles []domain.Article) (Draft, error) {
	var b strings.Builder
	b.WriteString("Based on your issue: ")
	b.WriteString(text)
	citations := make([]string, 0, len(articles))
	for i, a := range articles {
		fmt.Fprintf(&b, "\n[%d] %s: %s...", i+1, a.Title, excerpt(a.Body, excerptLength))
		citations = append(citations, a.ID)
	}
	return Draft{Reply: b.String(), Citations: citations}, nil
}

// Info implements Provider.
func (s *Stub) Info() domain.ModelInfo {
	return domain.ModelInfo{Provider: "stub", Model: "keyword-v1", PromptVersion: s.promptVersion}
}

func excerpt(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max])
}
