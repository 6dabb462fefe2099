package dq

import (
	"context"

	"github.com/Hamza-Filali13/check-quality-project/internal/auth"
)

// Scope is the storage-level restriction derived from a permission set:
// either everything, or the union of coarse domains and exact table grants.
type Scope struct {
	All     bool
	Domains []string
	Tables  []auth.TableRef
}

// Empty reports whether the scope cannot see any row.
func (s Scope) Empty() bool {
	return !s.All && len(s.Domains) == 0 && len(s.Tables) == 0
}

// ScopeFor converts a resolved permission set into a storage scope.
func ScopeFor(set auth.PermissionSet) Scope {
	if set.Admin {
		return Scope{All: true}
	}
	return Scope{Domains: set.SortedDomains(), Tables: set.SortedTables()}
}

// Store is the persistence boundary for data-quality reads. Every
// implementation applies the scope inside the query; rows outside it never
// leave the database.
type Store interface {
	ListResults(ctx context.Context, scope Scope, f Filter) ([]TestResult, error)
	ListScores(ctx context.Context, scope Scope, f ScoreFilter) ([]TableScore, error)
	ListIssues(ctx context.Context, scope Scope, f IssueFilter) ([]Issue, error)
	Summarize(ctx context.Context, scope Scope, f Filter) (Summary, error)
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Service answers data-quality reads for one permission set at a time.
// Authorization is decided here, before any query: an empty scope returns
// empty data without touching the store, and requested domain filters are
// intersected with the accessible ones.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) ListResults(ctx context.Context, set auth.PermissionSet, f Filter) ([]TestResult, error) {
	scope := ScopeFor(set)
	domains, visible := narrowDomains(scope, f.Domains)
	if !visible {
		return []TestResult{}, nil
	}
	f.Domains = domains
	f.Limit = clampLimit(f.Limit)

	results, err := s.store.ListResults(ctx, scope, f)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []TestResult{}
	}
	return results, nil
}

func (s *Service) ListScores(ctx context.Context, set auth.PermissionSet, f ScoreFilter) ([]TableScore, error) {
	scope := ScopeFor(set)
	domains, visible := narrowDomains(scope, f.Domains)
	if !visible {
		return []TableScore{}, nil
	}
	f.Domains = domains
	f.Limit = clampLimit(f.Limit)

	scores, err := s.store.ListScores(ctx, scope, f)
	if err != nil {
		return nil, err
	}
	if scores == nil {
		scores = []TableScore{}
	}
	return scores, nil
}

func (s *Service) ListIssues(ctx context.Context, set auth.PermissionSet, f IssueFilter) ([]Issue, error) {
	scope := ScopeFor(set)
	domains, visible := narrowDomains(scope, f.Domains)
	if !visible {
		return []Issue{}, nil
	}
	f.Domains = domains
	f.Limit = clampLimit(f.Limit)

	issues, err := s.store.ListIssues(ctx, scope, f)
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []Issue{}
	}
	return issues, nil
}

func (s *Service) Summarize(ctx context.Context, set auth.PermissionSet, f Filter) (Summary, error) {
	scope := ScopeFor(set)
	domains, visible := narrowDomains(scope, f.Domains)
	if !visible {
		return Summary{Domains: []DomainSummary{}}, nil
	}
	f.Domains = domains

	summary, err := s.store.Summarize(ctx, scope, f)
	if err != nil {
		return Summary{}, err
	}
	if summary.Domains == nil {
		summary.Domains = []DomainSummary{}
	}
	return summary, nil
}

// narrowDomains intersects requested domains with the ones the scope can
// reach. visible is false when nothing can match, so callers skip the store
// entirely.
func narrowDomains(scope Scope, requested []string) (domains []string, visible bool) {
	if scope.Empty() {
		return nil, false
	}
	if scope.All || len(requested) == 0 {
		return requested, true
	}

	accessible := make(map[string]struct{}, len(scope.Domains)+len(scope.Tables))
	for _, d := range scope.Domains {
		accessible[d] = struct{}{}
	}
	for _, t := range scope.Tables {
		accessible[t.Domain] = struct{}{}
	}
	kept := make([]string, 0, len(requested))
	for _, d := range requested {
		if _, ok := accessible[d]; ok {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return nil, false
	}
	return kept, true
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
