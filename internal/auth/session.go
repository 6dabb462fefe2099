package auth

import (
	"context"
	"strings"
	"time"
)

// CookieName is the fixed key under which the session token is persisted
// client-side.
const CookieName = "dq_session"

// DefaultSessionTimeout matches the dashboard's one-day sessions.
const DefaultSessionTimeout = 24 * time.Hour

// Session is per-request authentication state. The zero value is anonymous.
// The hosting layer owns exactly one Session per request context; sessions
// are never shared across requests and never stored process-wide.
type Session struct {
	authenticated bool
	userID        string
	username      string
	admin         bool
	domains       []string
	perms         PermissionSet
	loginAt       time.Time
}

// UserInfo is the read view of a session handed to the UI layer.
type UserInfo struct {
	Username  string    `json:"username"`
	Admin     bool      `json:"is_admin"`
	Domains   []string  `json:"domains"`
	LoginTime time.Time `json:"login_time"`
}

// IsAuthenticated reports whether the session holds a signed-in user.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.authenticated
}

// UserID returns the signed-in user's id, or "" for anonymous sessions.
func (s *Session) UserID() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.userID
}

// Username returns the signed-in username, or "" for anonymous sessions.
func (s *Session) Username() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.username
}

// Admin reports whether the session belongs to an administrator.
func (s *Session) Admin() bool {
	return s.IsAuthenticated() && s.admin
}

// Permissions returns the session's resolved permission set. Anonymous
// sessions hold the zero set, which denies everything.
func (s *Session) Permissions() PermissionSet {
	if !s.IsAuthenticated() {
		return PermissionSet{}
	}
	return s.perms
}

// Domains returns the effective domain list enumerated at login/restore.
func (s *Session) Domains() []string {
	if !s.IsAuthenticated() {
		return nil
	}
	out := make([]string, len(s.domains))
	copy(out, s.domains)
	return out
}

// UserInfo returns the session's identity view.
func (s *Session) UserInfo() UserInfo {
	if !s.IsAuthenticated() {
		return UserInfo{Domains: []string{}}
	}
	return UserInfo{
		Username:  s.username,
		Admin:     s.admin,
		Domains:   s.Domains(),
		LoginTime: s.loginAt,
	}
}

// FilterDomains keeps the given domains the session has coarse access to,
// preserving order. Anonymous sessions see nothing.
func (s *Session) FilterDomains(domains []string) []string {
	if !s.IsAuthenticated() {
		return []string{}
	}
	return s.perms.FilterDomains(domains)
}

func (s *Session) establish(user User, perms PermissionSet, domains []string, at time.Time) {
	s.authenticated = true
	s.userID = user.ID
	s.username = user.Username
	s.admin = user.Admin
	s.perms = perms
	s.domains = domains
	s.loginAt = at
}

func (s *Session) clear() {
	*s = Session{}
}

// Manager drives the Anonymous/Authenticated session state machine over the
// credential store. All failure modes collapse to boolean outcomes; nothing
// from the store layer propagates to callers.
type Manager struct {
	store    Store
	codec    *TokenCodec
	resolver *Resolver
	now      func() time.Time
}

func NewManager(store Store, codec *TokenCodec) *Manager {
	return &Manager{
		store:    store,
		codec:    codec,
		resolver: NewResolver(store),
		now:      time.Now,
	}
}

// Resolver exposes the manager's permission resolver for callers that
// enumerate domains or tables themselves.
func (m *Manager) Resolver() *Resolver { return m.resolver }

// Authenticate verifies credentials and, on success, populates s and returns
// a signed session token for the transport layer to persist. Unknown
// username, deactivated account, password mismatch and store failure are one
// indistinguishable rejection: ok is false and s stays anonymous. A session
// that is already authenticated short-circuits to ok without touching the
// store or re-checking the password.
func (m *Manager) Authenticate(ctx context.Context, s *Session, username, password string) (string, bool) {
	if s.IsAuthenticated() {
		return "", true
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", false
	}

	user, err := m.store.FindActiveUserByUsername(ctx, username)
	if err != nil {
		return "", false
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return "", false
	}

	now := m.now().UTC()
	if err := m.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		return "", false
	}

	perms := m.resolver.Resolve(ctx, user.ID)
	domains := m.resolver.EnumerateDomains(ctx, perms)

	token, err := m.codec.Encode(user.ID, user.Username, user.Admin)
	if err != nil {
		return "", false
	}

	s.establish(user, perms, domains, now)
	return token, true
}

// Restore rebuilds s from a persisted token. The token is trusted for
// identity only: the user's liveness is re-checked against the store and
// permissions are re-resolved fresh, so grants revoked after issuance are
// gone from the restored session. An invalid or expired token, a deactivated
// or deleted user and a store failure all leave s anonymous. An already
// authenticated session short-circuits to true.
func (m *Manager) Restore(ctx context.Context, s *Session, token string) bool {
	if s.IsAuthenticated() {
		return true
	}

	claims, err := m.codec.Decode(token)
	if err != nil {
		return false
	}

	user, err := m.store.FindUser(ctx, claims.Subject)
	if err != nil || !user.Active {
		return false
	}

	perms := m.resolver.Resolve(ctx, user.ID)
	domains := m.resolver.EnumerateDomains(ctx, perms)

	s.establish(user, perms, domains, claims.IssuedAt.Time)
	return true
}

// Logout clears the in-memory session. The clear is unconditional and
// idempotent; removing the persisted token is the transport layer's job and
// its failure cannot block this transition.
func (m *Manager) Logout(s *Session) {
	if s == nil {
		return
	}
	s.clear()
}

// HasDomainAccess re-checks coarse access to one domain fresh from the
// store. Admin sessions always pass; anonymous sessions never do; store
// failures deny.
func (m *Manager) HasDomainAccess(ctx context.Context, s *Session, domain string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	if s.admin {
		return true
	}
	return m.resolver.HasDomainAccess(ctx, s.userID, domain)
}
