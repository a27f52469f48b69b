// Package datasource owns the authoritative current page of the user grid:
// one composable query (page/size/sort/search/role) against the collection
// endpoint, and the rule that only the most recently issued request's
// response may ever land.
package datasource

import (
	"context"
	"strings"
	"sync"

	"usergrid/internal/api"
	"usergrid/internal/domain"
	"usergrid/internal/metrics"

	"go.uber.org/zap"
)

// Fetcher is the slice of the API client the source needs.
type Fetcher interface {
	ListUsers(ctx context.Context, q api.ListUsersQuery) (*api.UserPage, error)
}

// Query is the composed input of one fetch. Inputs are independent:
// changing size/search/role resets to page 1, changing sort preserves
// the page, changing page touches nothing else.
type Query struct {
	Page      int
	PageSize  int
	SortField string
	SortDesc  bool
	Search    string
	Role      domain.Role
}

// Ordering renders the sort in wire form ("-field" for descending).
func (q Query) Ordering() string {
	if q.SortField == "" {
		return ""
	}
	if q.SortDesc {
		return "-" + q.SortField
	}
	return q.SortField
}

func (q Query) toAPI() api.ListUsersQuery {
	return api.ListUsersQuery{
		Page:     q.Page,
		PageSize: q.PageSize,
		Ordering: q.Ordering(),
		Search:   strings.TrimSpace(q.Search),
		Role:     q.Role,
	}
}

// Result is one fetch outcome, tagged with the id of the request that
// produced it. The owner feeds results back through Apply, which drops
// anything superseded.
type Result struct {
	RequestID uint64
	Query     Query
	Page      *api.UserPage
	Err       error
}

// ResultFunc delivers completed fetches to the owner. It is called from
// the fetch goroutine; owners hand off to their own loop before Apply.
type ResultFunc func(Result)

// Source mirrors the server-side collection. Rows are only ever replaced
// wholesale by Apply or patched in place by PatchPresence.
type Source struct {
	fetcher  Fetcher
	logger   *zap.Logger
	onResult ResultFunc

	mu        sync.Mutex
	query     Query
	latestReq uint64
	rows      []*domain.User
	index     map[string]int
	total     int
	loading   bool
	lastErr   error
}

// NewSource builds a source with the given initial query.
func NewSource(fetcher Fetcher, initial Query, onResult ResultFunc, logger *zap.Logger) *Source {
	if initial.Page < 1 {
		initial.Page = 1
	}
	if initial.PageSize < 1 {
		initial.PageSize = 10
	}
	return &Source{
		fetcher:  fetcher,
		logger:   logger,
		onResult: onResult,
		query:    initial,
		index:    map[string]int{},
	}
}

// SetPage navigates to a page, keeping every other input.
func (s *Source) SetPage(ctx context.Context, page int) {
	s.mutate(ctx, func(q *Query) {
		if page < 1 {
			page = 1
		}
		q.Page = page
	})
}

// SetPageSize changes the page size and resets to page 1.
func (s *Source) SetPageSize(ctx context.Context, size int) {
	s.mutate(ctx, func(q *Query) {
		if size < 1 {
			size = 10
		}
		q.PageSize = size
		q.Page = 1
	})
}

// SetSort changes the ordering and preserves the current page.
func (s *Source) SetSort(ctx context.Context, field string, desc bool) {
	s.mutate(ctx, func(q *Query) {
		q.SortField = field
		q.SortDesc = desc
	})
}

// SetSearch changes the free-text search and resets to page 1.
func (s *Source) SetSearch(ctx context.Context, search string) {
	s.mutate(ctx, func(q *Query) {
		q.Search = search
		q.Page = 1
	})
}

// SetRoleFilter changes the role filter and resets to page 1.
func (s *Source) SetRoleFilter(ctx context.Context, role domain.Role) {
	s.mutate(ctx, func(q *Query) {
		q.Role = role
		q.Page = 1
	})
}

// Refresh re-issues the current query unchanged.
func (s *Source) Refresh(ctx context.Context) {
	s.mutate(ctx, func(q *Query) {})
}

func (s *Source) mutate(ctx context.Context, change func(*Query)) {
	s.mu.Lock()
	change(&s.query)
	s.latestReq++
	id := s.latestReq
	q := s.query
	s.loading = true
	s.mu.Unlock()

	go func() {
		page, err := s.fetcher.ListUsers(ctx, q.toAPI())
		if err != nil {
			metrics.Fetches.WithLabelValues("error").Inc()
		} else {
			metrics.Fetches.WithLabelValues("success").Inc()
		}
		s.onResult(Result{RequestID: id, Query: q, Page: page, Err: err})
	}()
}

// Apply lands a fetch result. It returns false, changing nothing, when a
// newer request was issued after this one, regardless of arrival order.
// Stale responses are dropped on arrival; no transport abort needed.
func (s *Source) Apply(res Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.RequestID != s.latestReq {
		metrics.StaleResponsesDropped.Inc()
		s.logger.Debug("dropping superseded fetch response",
			zap.Uint64("request_id", res.RequestID),
			zap.Uint64("latest", s.latestReq),
		)
		return false
	}

	s.loading = false
	if res.Err != nil {
		// retained as the page-level error; the current rows stay rendered
		s.lastErr = res.Err
		s.logger.Warn("page fetch failed", zap.Error(res.Err))
		return true
	}

	s.lastErr = nil
	s.rows = res.Page.Items
	s.total = res.Page.Total
	s.index = make(map[string]int, len(s.rows))
	for i, u := range s.rows {
		s.index[u.ID] = i
	}
	return true
}

// PatchPresence flips one row's presence flag in place. A delta for a row
// not on the current page is a no-op; order, scroll and every other row
// are untouched.
func (s *Source) PatchPresence(userID string, online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[userID]
	if !ok {
		return false
	}
	s.rows[i].IsOnline = online
	return true
}

// ReplaceRow swaps one row's fields for the server's canonical copy,
// in place and without re-sorting. Used after a successful inline save.
func (s *Source) ReplaceRow(row *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[row.ID]
	if !ok {
		return false
	}
	s.rows[i] = row
	return true
}

// Rows returns the authoritative page in display order.
func (s *Source) Rows() []*domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.User, len(s.rows))
	copy(out, s.rows)
	return out
}

// RowByID addresses one row by identity.
func (s *Source) RowByID(id string) (*domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.rows[i], true
}

// Total is the filtered collection size reported by the server.
func (s *Source) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Query returns the current composed query.
func (s *Source) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Loading reports whether a fetch is outstanding.
func (s *Source) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the retained page-level error, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
