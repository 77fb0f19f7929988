// Package memstore keeps every repository in process memory. It backs local
// runs without POSTGRES_DSN and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/repository"
)

// Store holds all in-memory tables behind one lock.
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	tickets     map[string]domain.Ticket
	suggestions map[string]domain.AgentSuggestion
	audit       []domain.AuditLogEntry
	config      *domain.TriageConfig
	articles    map[string]domain.Article
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:         time.Now,
		tickets:     make(map[string]domain.Ticket),
		suggestions: make(map[string]domain.AgentSuggestion),
		articles:    make(map[string]domain.Article),
	}
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Suggestions returns the agent suggestion repository view.
func (s *Store) Suggestions() repository.AgentSuggestionRepository { return suggestionRepo{s} }

// AuditLogs returns the audit repository view.
func (s *Store) AuditLogs() repository.AuditLogRepository { return auditRepo{s} }

// TriageConfig returns the settings repository view.
func (s *Store) TriageConfig() repository.TriageConfigRepository { return configRepo{s} }

// Articles returns the article repository view.
func (s *Store) Articles() repository.ArticleRepository { return articleRepo{s} }

// DeleteTicket removes a ticket, as an external admin flow would.
func (s *Store) DeleteTicket(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, id)
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := r.s.now()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticket.ID]; !ok {
		return repository.ErrNotFound
	}
	ticket.UpdatedAt = r.s.now()
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func (r ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var matched []domain.Ticket
	for _, t := range r.s.tickets {
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if filter.Unassigned && t.AssigneeID != nil {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		matched = append(matched, cloneTicket(t))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	limit, offset := filter.Limit, filter.Offset
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 || offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

type suggestionRepo struct{ s *Store }

func (r suggestionRepo) Create(_ context.Context, sg *domain.AgentSuggestion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	sg.CreatedAt = r.s.now()
	copied := *sg
	copied.ArticleIDs = append([]string(nil), sg.ArticleIDs...)
	r.s.suggestions[sg.ID] = copied
	return nil
}

func (r suggestionRepo) MarkAutoClosed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sg, ok := r.s.suggestions[id]
	if !ok {
		return repository.ErrNotFound
	}
	sg.AutoClosed = true
	r.s.suggestions[id] = sg
	return nil
}

func (r suggestionRepo) GetByID(_ context.Context, id string) (*domain.AgentSuggestion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sg, ok := r.s.suggestions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sg, nil
}

func (r suggestionRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AgentSuggestion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AgentSuggestion
	for _, sg := range r.s.suggestions {
		if sg.TicketID == ticketID {
			out = append(out, sg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Append(_ context.Context, entry *domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Timestamp = r.s.now()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r auditRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditLogEntry, error) {
	return r.filter(func(e domain.AuditLogEntry) bool { return e.TicketID != nil && *e.TicketID == ticketID }), nil
}

func (r auditRepo) ListByTrace(_ context.Context, traceID string) ([]domain.AuditLogEntry, error) {
	return r.filter(func(e domain.AuditLogEntry) bool { return e.TraceID == traceID }), nil
}

// filter keeps write order, which is also timestamp order.
func (r auditRepo) filter(keep func(domain.AuditLogEntry) bool) []domain.AuditLogEntry {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AuditLogEntry
	for _, e := range r.s.audit {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

type configRepo struct{ s *Store }

func (r configRepo) GetOrCreate(_ context.Context, defaults domain.TriageConfig) (domain.TriageConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.config == nil {
		cfg := defaults
		r.s.config = &cfg
	}
	return *r.s.config, nil
}

func (r configRepo) Replace(_ context.Context, cfg domain.TriageConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.config = &cfg
	return nil
}

type articleRepo struct{ s *Store }

func (r articleRepo) Upsert(_ context.Context, a *domain.Article) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.ArticleStatusDraft
	}
	a.UpdatedAt = r.s.now()
	copied := *a
	copied.Tags = append([]string(nil), a.Tags...)
	r.s.articles[a.ID] = copied
	return nil
}

func (r articleRepo) GetByID(_ context.Context, id string) (*domain.Article, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.articles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

// SearchPublished scores each published article by how many query words
// occur in its title, tags and body, with title hits weighted highest. Words
// shorter than three letters are ignored and a shared prefix of four or more
// letters counts as a match, which roughly follows the Postgres english
// dictionary used by the SQL repository.
func (r articleRepo) SearchPublished(_ context.Context, query string, limit int) ([]domain.Article, error) {
	var terms []string
	for _, term := range repository.SearchTerms(query) {
		if len([]rune(term)) >= 3 {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 || limit <= 0 {
		return []domain.Article{}, nil
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var ranked []domain.Article
	for _, a := range r.s.articles {
		if a.Status != domain.ArticleStatusPublished {
			continue
		}
		title := repository.SearchTerms(a.Title)
		tags := repository.SearchTerms(strings.Join(a.Tags, " "))
		body := repository.SearchTerms(a.Body)
		var score float64
		for _, term := range terms {
			score += 1.0 * float64(countMatches(title, term))
			score += 0.4 * float64(countMatches(tags, term))
			score += 0.1 * float64(countMatches(body, term))
		}
		if score == 0 {
			continue
		}
		a.Score = score
		ranked = append(ranked, a)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if ranked == nil {
		ranked = []domain.Article{}
	}
	return ranked, nil
}

func countMatches(words []string, term string) int {
	n := 0
	for _, w := range words {
		switch {
		case w == term:
			n++
		case len(term) >= 4 && strings.HasPrefix(w, term):
			n++
		case len(w) >= 4 && strings.HasPrefix(term, w):
			n++
		}
	}
	return n
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.AssigneeID != nil {
		v := *t.AssigneeID
		t.AssigneeID = &v
	}
	if t.AgentSuggestionID != nil {
		v := *t.AgentSuggestionID
		t.AgentSuggestionID = &v
	}
	return t
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
