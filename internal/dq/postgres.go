package dq

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore reads data-quality outcomes from PostgreSQL. Queries are built
// dynamically but every value travels as a bound parameter; nothing from a
// filter or a permission set is ever spliced into SQL text.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) ListResults(ctx context.Context, scope Scope, f Filter) ([]TestResult, error) {
	var (
		conds []string
		args  []any
	)
	appendScope(&conds, &args, scope)
	appendIn(&conds, &args, "domain_name", f.Domains)
	appendIn(&conds, &args, "status", asStrings(f.Statuses))
	if f.Table != "" {
		args = append(args, f.Table)
		conds = append(conds, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		conds = append(conds, fmt.Sprintf("executed_at >= $%d", len(args)))
	}

	query := `select id, test_name, domain_name, schema_name, table_name, coalesce(column_name, ''), status, score, executed_at
		from dq_test_results`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by executed_at desc, domain_name, schema_name, table_name"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TestResult
	for rows.Next() {
		var r TestResult
		if err := rows.Scan(&r.ID, &r.TestName, &r.Domain, &r.Schema, &r.Table, &r.Column, &r.Status, &r.Score, &r.ExecutedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PGStore) ListScores(ctx context.Context, scope Scope, f ScoreFilter) ([]TableScore, error) {
	var (
		conds []string
		args  []any
	)
	appendScope(&conds, &args, scope)
	appendIn(&conds, &args, "domain_name", f.Domains)

	query := `select domain_name, schema_name, table_name, score, test_count, executed_at
		from dq_score`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by domain_name, schema_name, table_name"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []TableScore
	for rows.Next() {
		var ts TableScore
		if err := rows.Scan(&ts.Domain, &ts.Schema, &ts.Table, &ts.Score, &ts.TestCount, &ts.ExecutedAt); err != nil {
			return nil, err
		}
		scores = append(scores, ts)
	}
	return scores, rows.Err()
}

func (s *PGStore) ListIssues(ctx context.Context, scope Scope, f IssueFilter) ([]Issue, error) {
	var (
		conds []string
		args  []any
	)
	appendScope(&conds, &args, scope)
	appendIn(&conds, &args, "domain_name", f.Domains)
	appendIn(&conds, &args, "severity", asStrings(f.Severities))
	appendIn(&conds, &args, "status", asStrings(f.States))
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		conds = append(conds, fmt.Sprintf("detected_at >= $%d", len(args)))
	}

	query := `select id, test_name, domain_name, schema_name, table_name, severity, status, message, detected_at, resolved_at
		from dq_issues`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by detected_at desc"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var (
			issue      Issue
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(&issue.ID, &issue.TestName, &issue.Domain, &issue.Schema, &issue.Table,
			&issue.Severity, &issue.Status, &issue.Message, &issue.DetectedAt, &resolvedAt); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			issue.ResolvedAt = &t
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *PGStore) Summarize(ctx context.Context, scope Scope, f Filter) (Summary, error) {
	var (
		conds []string
		args  []any
	)
	appendScope(&conds, &args, scope)
	appendIn(&conds, &args, "domain_name", f.Domains)
	appendIn(&conds, &args, "status", asStrings(f.Statuses))
	if f.Table != "" {
		args = append(args, f.Table)
		conds = append(conds, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		conds = append(conds, fmt.Sprintf("executed_at >= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " where " + strings.Join(conds, " and ")
	}

	var (
		sum      Summary
		lastExec sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, `select count(*),
			count(*) filter (where status = 'pass'),
			count(*) filter (where status = 'fail'),
			count(*) filter (where status = 'unknown'),
			coalesce(avg(score), 0),
			max(executed_at)
		from dq_test_results`+where, args...)
	if err := row.Scan(&sum.Total, &sum.Passed, &sum.Failed, &sum.Unknown, &sum.AverageScore, &lastExec); err != nil {
		return Summary{}, err
	}
	if sum.Total > 0 {
		sum.PassRate = float64(sum.Passed) / float64(sum.Total) * 100
	}
	if lastExec.Valid {
		t := lastExec.Time
		sum.LastExecuted = &t
	}

	rows, err := s.db.QueryContext(ctx, `select domain_name,
			count(*),
			count(*) filter (where status = 'pass'),
			count(*) filter (where status = 'fail'),
			count(*) filter (where status = 'unknown'),
			coalesce(avg(score), 0)
		from dq_test_results`+where+`
		group by domain_name
		order by domain_name`, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var d DomainSummary
		if err := rows.Scan(&d.Domain, &d.Total, &d.Passed, &d.Failed, &d.Unknown, &d.AverageScore); err != nil {
			return Summary{}, err
		}
		if d.Total > 0 {
			d.PassRate = float64(d.Passed) / float64(d.Total) * 100
		}
		sum.Domains = append(sum.Domains, d)
	}
	return sum, rows.Err()
}

// appendScope translates a restricted scope into one WHERE condition:
// coarse domains OR exact (domain, schema, table) triples. Unrestricted
// scopes add nothing; a scope with no reach matches nothing.
func appendScope(conds *[]string, args *[]any, scope Scope) {
	if scope.All {
		return
	}
	var parts []string
	if len(scope.Domains) > 0 {
		ph := make([]string, len(scope.Domains))
		for i, d := range scope.Domains {
			*args = append(*args, d)
			ph[i] = fmt.Sprintf("$%d", len(*args))
		}
		parts = append(parts, "domain_name in ("+strings.Join(ph, ", ")+")")
	}
	if len(scope.Tables) > 0 {
		triples := make([]string, len(scope.Tables))
		for i, t := range scope.Tables {
			*args = append(*args, t.Domain, t.Schema, t.Table)
			n := len(*args)
			triples[i] = fmt.Sprintf("($%d, $%d, $%d)", n-2, n-1, n)
		}
		parts = append(parts, "(domain_name, schema_name, table_name) in ("+strings.Join(triples, ", ")+")")
	}
	switch len(parts) {
	case 0:
		*conds = append(*conds, "false")
	case 1:
		*conds = append(*conds, parts[0])
	default:
		*conds = append(*conds, "("+strings.Join(parts, " or ")+")")
	}
}

func appendIn(conds *[]string, args *[]any, column string, values []string) {
	if len(values) == 0 {
		return
	}
	ph := make([]string, len(values))
	for i, v := range values {
		*args = append(*args, v)
		ph[i] = fmt.Sprintf("$%d", len(*args))
	}
	*conds = append(*conds, column+" in ("+strings.Join(ph, ", ")+")")
}

func asStrings[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
