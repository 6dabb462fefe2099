// Package httpapi hosts the dashboard's JSON API: session login and
// restoration, the permission-scoped data-quality reads, and the admin
// surface for accounts and grants.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Hamza-Filali13/check-quality-project/internal/audit"
	"github.com/Hamza-Filali13/check-quality-project/internal/auth"
	"github.com/Hamza-Filali13/check-quality-project/internal/dq"
	"github.com/Hamza-Filali13/check-quality-project/internal/obs"
)

const serviceName = "dq-dashboard-api"

// ReadyProbe reports whether the backing database is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	if err := rp.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	return nil
}

// API is the HTTP layer. Tunables default to development values; the
// server wires them from configuration.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	sessions *auth.Manager
	accounts *auth.Service
	dq       *dq.Service

	cookieTTL       time.Duration
	cookieSecure    bool
	allowedOrigin   string
	maxBodyBytes    int64
	loginRatePerSec float64
	loginRateBurst  int

	loginMu      sync.Mutex
	loginBuckets map[string]*loginBucket
}

// Option configures API beyond its development defaults.
type Option func(*API)

// WithCookie sets the session cookie lifetime and its Secure attribute.
func WithCookie(ttl time.Duration, secure bool) Option {
	return func(a *API) {
		if ttl > 0 {
			a.cookieTTL = ttl
		}
		a.cookieSecure = secure
	}
}

// WithAllowedOrigin sets the dashboard origin allowed by CORS.
func WithAllowedOrigin(origin string) Option {
	return func(a *API) { a.allowedOrigin = origin }
}

// WithMaxBodyBytes caps request body sizes.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithLoginRate tunes the per-IP login limiter.
func WithLoginRate(perSec float64, burst int) Option {
	return func(a *API) {
		if perSec > 0 {
			a.loginRatePerSec = perSec
		}
		if burst > 0 {
			a.loginRateBurst = burst
		}
	}
}

func New(rp ReadyProbe, version string, sessions *auth.Manager, accounts *auth.Service, dqs *dq.Service, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,

		sessions: sessions,
		accounts: accounts,
		dq:       dqs,

		cookieTTL:       auth.DefaultSessionTimeout,
		maxBodyBytes:    1 << 20,
		loginRatePerSec: 1,
		loginRateBurst:  5,
		loginBuckets:    make(map[string]*loginBucket),
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sessions
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)

	// authorization-scoped catalog
	a.mux.HandleFunc("/v1/domains", a.handleDomains)
	a.mux.HandleFunc("/v1/domains/", a.handleDomainScoped)
	a.mux.HandleFunc("/v1/tables", a.handleTables)

	// data-quality reads
	a.mux.HandleFunc("/v1/dq/results", a.handleDQResults)
	a.mux.HandleFunc("/v1/dq/scores", a.handleDQScores)
	a.mux.HandleFunc("/v1/dq/issues", a.handleDQIssues)
	a.mux.HandleFunc("/v1/dq/summary", a.handleDQSummary)

	// administration
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h, a.allowedOrigin)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps account and grant errors onto HTTP statuses.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}

func (a *API) audit(ctx context.Context, event, targetType, targetID string, meta map[string]string) {
	fields := map[string]any{
		"target_type": targetType,
		"target_id":   targetID,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}
