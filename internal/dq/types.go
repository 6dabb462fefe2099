// Package dq is the read layer over dbt-produced data-quality outcomes:
// test results, per-table scores and open issues, always filtered by the
// caller's resolved permissions.
package dq

import (
	"fmt"
	"time"
)

// Status is the outcome of one executed dbt test.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusUnknown Status = "unknown"
)

// ParseStatus validates a status token from a query string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPass, StatusFail, StatusUnknown:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Severity ranks how badly a failing test hurts the table's fitness.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// IssueState tracks an issue through triage.
type IssueState string

const (
	IssueOpen         IssueState = "open"
	IssueAcknowledged IssueState = "acknowledged"
	IssueResolved     IssueState = "resolved"
)

func ParseIssueState(s string) (IssueState, error) {
	switch IssueState(s) {
	case IssueOpen, IssueAcknowledged, IssueResolved:
		return IssueState(s), nil
	}
	return "", fmt.Errorf("unknown issue state %q", s)
}

// TestResult is one executed dbt test against one table (or one of its
// columns). Score is 0..100.
type TestResult struct {
	ID         string    `json:"id"`
	TestName   string    `json:"test_name"`
	Domain     string    `json:"domain"`
	Schema     string    `json:"schema"`
	Table      string    `json:"table"`
	Column     string    `json:"column,omitempty"`
	Status     Status    `json:"status"`
	Score      float64   `json:"score"`
	ExecutedAt time.Time `json:"executed_at"`
}

// TableScore is the current aggregate quality score of one table.
type TableScore struct {
	Domain     string    `json:"domain"`
	Schema     string    `json:"schema"`
	Table      string    `json:"table"`
	Score      float64   `json:"score"`
	TestCount  int       `json:"test_count"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Issue is a persistent data-quality finding raised from failing tests.
type Issue struct {
	ID         string     `json:"id"`
	TestName   string     `json:"test_name"`
	Domain     string     `json:"domain"`
	Schema     string     `json:"schema"`
	Table      string     `json:"table"`
	Severity   Severity   `json:"severity"`
	Status     IssueState `json:"status"`
	Message    string     `json:"message"`
	DetectedAt time.Time  `json:"detected_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Filter narrows test-result reads. Zero values mean "not filtered".
type Filter struct {
	Domains  []string
	Statuses []Status
	Table    string
	Since    time.Time
	Limit    int
}

// ScoreFilter narrows table-score reads.
type ScoreFilter struct {
	Domains []string
	Limit   int
}

// IssueFilter narrows issue reads.
type IssueFilter struct {
	Domains    []string
	Severities []Severity
	States     []IssueState
	Since      time.Time
	Limit      int
}

// DomainSummary is the per-domain rollup inside a Summary.
type DomainSummary struct {
	Domain       string  `json:"domain"`
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	Unknown      int     `json:"unknown"`
	PassRate     float64 `json:"pass_rate"`
	AverageScore float64 `json:"average_score"`
}

// Summary aggregates test outcomes over the caller's visible rows.
type Summary struct {
	Total        int             `json:"total"`
	Passed       int             `json:"passed"`
	Failed       int             `json:"failed"`
	Unknown      int             `json:"unknown"`
	PassRate     float64         `json:"pass_rate"`
	AverageScore float64         `json:"average_score"`
	LastExecuted *time.Time      `json:"last_executed,omitempty"`
	Domains      []DomainSummary `json:"domains"`
}
