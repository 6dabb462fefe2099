package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Hamza-Filali13/check-quality-project/internal/dq"
)

type listResponse[T any] struct {
	Items []T       `json:"items"`
	AsOf  time.Time `json:"as_of"`
}

func (a *API) handleDQResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	f, err := parseResultFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.dq.ListResults(r.Context(), s.Permissions(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[dq.TestResult]{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) handleDQScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	f := dq.ScoreFilter{
		Domains: cleanList(q["domain"]),
		Limit:   limit,
	}
	items, err := a.dq.ListScores(r.Context(), s.Permissions(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[dq.TableScore]{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) handleDQIssues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	f, err := parseIssueFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.dq.ListIssues(r.Context(), s.Permissions(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[dq.Issue]{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) handleDQSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	f, err := parseResultFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := a.dq.Summarize(r.Context(), s.Permissions(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- query parsing ---

func parseResultFilter(r *http.Request) (dq.Filter, error) {
	q := r.URL.Query()
	f := dq.Filter{
		Domains: cleanList(q["domain"]),
		Table:   strings.TrimSpace(q.Get("table")),
	}
	for _, raw := range q["status"] {
		status, err := dq.ParseStatus(raw)
		if err != nil {
			return dq.Filter{}, err
		}
		f.Statuses = append(f.Statuses, status)
	}
	since, err := parseSince(q.Get("since"))
	if err != nil {
		return dq.Filter{}, err
	}
	f.Since = since
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return dq.Filter{}, err
	}
	f.Limit = limit
	return f, nil
}

func parseIssueFilter(r *http.Request) (dq.IssueFilter, error) {
	q := r.URL.Query()
	f := dq.IssueFilter{
		Domains: cleanList(q["domain"]),
	}
	for _, raw := range q["severity"] {
		severity, err := dq.ParseSeverity(raw)
		if err != nil {
			return dq.IssueFilter{}, err
		}
		f.Severities = append(f.Severities, severity)
	}
	for _, raw := range q["state"] {
		state, err := dq.ParseIssueState(raw)
		if err != nil {
			return dq.IssueFilter{}, err
		}
		f.States = append(f.States, state)
	}
	since, err := parseSince(q.Get("since"))
	if err != nil {
		return dq.IssueFilter{}, err
	}
	f.Since = since
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return dq.IssueFilter{}, err
	}
	f.Limit = limit
	return f, nil
}

func parseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("since must be an RFC3339 timestamp")
	}
	return t, nil
}

// parseLimit accepts any positive integer; the read layer clamps it.
func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return val, nil
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
