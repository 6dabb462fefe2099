package httpapi

import (
	"net/http"
	"strings"

	"github.com/Hamza-Filali13/check-quality-project/internal/audit"
	"github.com/Hamza-Filali13/check-quality-project/internal/auth"
	"github.com/Hamza-Filali13/check-quality-project/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.allowLogin(clientIP(r)) {
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s, ok := auth.SessionFromContext(r.Context())
	if !ok {
		s = &auth.Session{}
	}

	token, ok := a.sessions.Authenticate(r.Context(), s, req.Username, req.Password)
	if !ok {
		obs.ObserveLogin("denied")
		_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{
			"username": strings.TrimSpace(req.Username),
		})
		writeError(w, r, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	// An empty token means the session was already established; leave the
	// existing cookie untouched.
	if token != "" {
		obs.ObserveLogin("success")
		http.SetCookie(w, a.sessionCookie(token, int(a.cookieTTL.Seconds())))
		_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
			"username": s.Username(),
			"admin":    s.Admin(),
		})
	}

	writeJSON(w, http.StatusOK, s.UserInfo())
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	s, _ := auth.SessionFromContext(r.Context())
	username := s.Username()
	wasAuthenticated := s.IsAuthenticated()

	a.sessions.Logout(s)
	http.SetCookie(w, a.sessionCookie("", -1))

	if wasAuthenticated {
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
			"username": username,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.UserInfo())
}

func (a *API) handleDomains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domains": s.Domains(),
	})
}

func (a *API) handleTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	tables := a.sessions.Resolver().EnumerateTables(r.Context(), s.Permissions())
	if tables == nil {
		tables = []auth.TableRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
	})
}

// handleDomainScoped serves /v1/domains/{domain}/tables: the accessible
// tables of one domain can be shorter than the full table listing when the
// caller only holds fine-grained grants there.
func (a *API) handleDomainScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/domains/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "tables" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	s, ok := a.requireSession(w, r)
	if !ok {
		return
	}

	domain := parts[0]
	tables := []auth.TableRef{}
	for _, ref := range a.sessions.Resolver().EnumerateTables(r.Context(), s.Permissions()) {
		if ref.Domain == domain {
			tables = append(tables, ref)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain": domain,
		"tables": tables,
	})
}

func (a *API) sessionCookie(token string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
