package httpapi

import (
	"net/http"
	"strings"

	"github.com/Hamza-Filali13/check-quality-project/internal/audit"
	"github.com/Hamza-Filali13/check-quality-project/internal/auth"
	"github.com/Hamza-Filali13/check-quality-project/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths that never need a session; probes and scrapes skip the store.
var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/",
}

// withSession restores the caller's session from the cookie or a bearer
// token and stores it in the request context. It never rejects: anonymous
// requests carry an anonymous session and the route handlers decide.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		s := &auth.Session{}
		if token := sessionToken(r); token != "" {
			if a.sessions.Restore(r.Context(), s, token) {
				obs.ObserveSessionRestore("success")
			} else {
				obs.ObserveSessionRestore("denied")
				_ = audit.LogEvent(r.Context(), "auth.session.restore_denied", map[string]any{
					"path": r.URL.Path,
				})
			}
		}

		ctx := auth.ContextWithSession(r.Context(), s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionToken prefers the session cookie; API clients may send the same
// token as a bearer header instead.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func (a *API) requireSession(w http.ResponseWriter, r *http.Request) (*auth.Session, bool) {
	s, ok := auth.SessionFromContext(r.Context())
	if !ok || !s.IsAuthenticated() {
		w.Header().Set("WWW-Authenticate", `Bearer realm="dq-dashboard"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return s, true
}

func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.Session, bool) {
	s, ok := a.requireSession(w, r)
	if !ok {
		return nil, false
	}
	if !s.Admin() {
		writeError(w, r, http.StatusForbidden, "admin access required")
		return nil, false
	}
	return s, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
