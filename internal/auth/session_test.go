package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type stubStore struct {
	findActiveUserFn   func(context.Context, string) (User, error)
	findUserFn         func(context.Context, string) (User, error)
	createUserFn       func(context.Context, *User) error
	updateUserFn       func(context.Context, string, UserPatch) error
	listUsersFn        func(context.Context) ([]User, error)
	touchLastLoginFn   func(context.Context, string, time.Time) error
	listDomainsFn      func(context.Context) ([]Domain, error)
	listDomainNamesFn  func(context.Context) ([]string, error)
	listDomainTablesFn func(context.Context, []string) ([]TableRef, error)
	listDomainGrantsFn func(context.Context, string) ([]DomainGrant, error)
	listTableGrantsFn  func(context.Context, string) ([]TableGrant, error)
	upsertDomainFn     func(context.Context, *DomainGrant) error
	upsertTableFn      func(context.Context, *TableGrant) error
	deleteDomainFn     func(context.Context, string, string) error
	deleteTableFn      func(context.Context, string, TableRef) error
}

var _ Store = (*stubStore)(nil)

func (s *stubStore) FindActiveUserByUsername(ctx context.Context, username string) (User, error) {
	if s.findActiveUserFn != nil {
		return s.findActiveUserFn(ctx, username)
	}
	return User{}, ErrNotFound
}

func (s *stubStore) FindUser(ctx context.Context, id string) (User, error) {
	if s.findUserFn != nil {
		return s.findUserFn(ctx, id)
	}
	return User{}, ErrNotFound
}

func (s *stubStore) CreateUser(ctx context.Context, u *User) error {
	if s.createUserFn != nil {
		return s.createUserFn(ctx, u)
	}
	return nil
}

func (s *stubStore) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	if s.updateUserFn != nil {
		return s.updateUserFn(ctx, id, patch)
	}
	return nil
}

func (s *stubStore) ListUsers(ctx context.Context) ([]User, error) {
	if s.listUsersFn != nil {
		return s.listUsersFn(ctx)
	}
	return nil, nil
}

func (s *stubStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if s.touchLastLoginFn != nil {
		return s.touchLastLoginFn(ctx, id, at)
	}
	return nil
}

func (s *stubStore) ListDomains(ctx context.Context) ([]Domain, error) {
	if s.listDomainsFn != nil {
		return s.listDomainsFn(ctx)
	}
	return nil, nil
}

func (s *stubStore) ListDomainNames(ctx context.Context) ([]string, error) {
	if s.listDomainNamesFn != nil {
		return s.listDomainNamesFn(ctx)
	}
	return nil, nil
}

func (s *stubStore) ListDomainTables(ctx context.Context, domains []string) ([]TableRef, error) {
	if s.listDomainTablesFn != nil {
		return s.listDomainTablesFn(ctx, domains)
	}
	return nil, nil
}

func (s *stubStore) ListDomainGrants(ctx context.Context, userID string) ([]DomainGrant, error) {
	if s.listDomainGrantsFn != nil {
		return s.listDomainGrantsFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubStore) ListTableGrants(ctx context.Context, userID string) ([]TableGrant, error) {
	if s.listTableGrantsFn != nil {
		return s.listTableGrantsFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubStore) UpsertDomainGrant(ctx context.Context, g *DomainGrant) error {
	if s.upsertDomainFn != nil {
		return s.upsertDomainFn(ctx, g)
	}
	return nil
}

func (s *stubStore) UpsertTableGrant(ctx context.Context, g *TableGrant) error {
	if s.upsertTableFn != nil {
		return s.upsertTableFn(ctx, g)
	}
	return nil
}

func (s *stubStore) DeleteDomainGrant(ctx context.Context, userID, domain string) error {
	if s.deleteDomainFn != nil {
		return s.deleteDomainFn(ctx, userID, domain)
	}
	return nil
}

func (s *stubStore) DeleteTableGrant(ctx context.Context, userID string, ref TableRef) error {
	if s.deleteTableFn != nil {
		return s.deleteTableFn(ctx, userID, ref)
	}
	return nil
}

func testClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func testHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func TestAuthenticateSuccess(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	user := User{ID: "u-1", Username: "alice", PasswordHash: testHash(t, "open sesame"), Active: true}

	var touchedID string
	var touchedAt time.Time
	store := &stubStore{
		findActiveUserFn: func(_ context.Context, username string) (User, error) {
			if username != "alice" {
				return User{}, ErrNotFound
			}
			return user, nil
		},
		findUserFn: func(_ context.Context, id string) (User, error) {
			if id != "u-1" {
				return User{}, ErrNotFound
			}
			return user, nil
		},
		touchLastLoginFn: func(_ context.Context, id string, at time.Time) error {
			touchedID, touchedAt = id, at
			return nil
		},
		listDomainGrantsFn: func(_ context.Context, _ string) ([]DomainGrant, error) {
			return []DomainGrant{{UserID: "u-1", Domain: "hr"}}, nil
		},
		listTableGrantsFn: func(_ context.Context, _ string) ([]TableGrant, error) {
			return []TableGrant{{UserID: "u-1", Table: TableRef{Domain: "finance", Schema: "public", Table: "transactions"}}}, nil
		},
	}
	codec := NewTokenCodec(testSecret, time.Hour, WithClock(testClock(now)))
	mgr := NewManager(store, codec)
	mgr.now = testClock(now)

	var s Session
	token, ok := mgr.Authenticate(context.Background(), &s, "alice", "open sesame")
	if !ok {
		t.Fatalf("expected login to succeed")
	}
	if token == "" {
		t.Fatalf("expected a session token")
	}
	if !s.IsAuthenticated() {
		t.Fatalf("session stayed anonymous")
	}
	if s.UserID() != "u-1" || s.Username() != "alice" {
		t.Fatalf("unexpected identity: %s/%s", s.UserID(), s.Username())
	}
	if s.Admin() {
		t.Fatalf("unexpected admin flag")
	}
	if want := []string{"finance", "hr"}; !reflect.DeepEqual(s.Domains(), want) {
		t.Fatalf("domains = %v, want %v", s.Domains(), want)
	}
	if !s.Permissions().HasTable(TableRef{Domain: "finance", Schema: "public", Table: "transactions"}) {
		t.Fatalf("fine grant missing from the session")
	}
	if s.Permissions().HasDomain("finance") {
		t.Fatalf("table grant widened to its domain")
	}
	if touchedID != "u-1" || !touchedAt.Equal(now) {
		t.Fatalf("last login not stamped: id=%s at=%v", touchedID, touchedAt)
	}
	if !s.UserInfo().LoginTime.Equal(now) {
		t.Fatalf("unexpected login time: %v", s.UserInfo().LoginTime)
	}

	claims, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Subject != "u-1" || claims.Username != "alice" {
		t.Fatalf("token identity mismatch: %s/%s", claims.Subject, claims.Username)
	}
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	alice := User{ID: "u-1", Username: "alice", PasswordHash: testHash(t, "right password"), Active: true}

	cases := []struct {
		name     string
		store    *stubStore
		password string
	}{
		{
			// the store hides deactivated accounts behind the same ErrNotFound
			name: "unknown or deactivated username",
			store: &stubStore{findActiveUserFn: func(_ context.Context, _ string) (User, error) {
				return User{}, ErrNotFound
			}},
			password: "right password",
		},
		{
			name: "wrong password",
			store: &stubStore{findActiveUserFn: func(_ context.Context, _ string) (User, error) {
				return alice, nil
			}},
			password: "wrong password",
		},
		{
			name: "store offline",
			store: &stubStore{findActiveUserFn: func(_ context.Context, _ string) (User, error) {
				return User{}, errors.New("store offline")
			}},
			password: "right password",
		},
		{
			name: "last-login write fails",
			store: &stubStore{
				findActiveUserFn: func(_ context.Context, _ string) (User, error) {
					return alice, nil
				},
				touchLastLoginFn: func(_ context.Context, _ string, _ time.Time) error {
					return errors.New("store offline")
				},
			},
			password: "right password",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mgr := NewManager(tc.store, NewTokenCodec(testSecret, time.Hour))
			var s Session
			token, ok := mgr.Authenticate(context.Background(), &s, "alice", tc.password)
			if ok || token != "" {
				t.Fatalf("expected uniform rejection, got token=%q ok=%v", token, ok)
			}
			if s.IsAuthenticated() {
				t.Fatalf("session must stay anonymous after a failed login")
			}
		})
	}
}

func TestAuthenticateRequiresCredentials(t *testing.T) {
	calls := 0
	store := &stubStore{findActiveUserFn: func(_ context.Context, _ string) (User, error) {
		calls++
		return User{}, ErrNotFound
	}}
	mgr := NewManager(store, NewTokenCodec(testSecret, time.Hour))

	var s Session
	for _, in := range []struct{ username, password string }{
		{"", "password"},
		{"   ", "password"},
		{"alice", ""},
	} {
		if _, ok := mgr.Authenticate(context.Background(), &s, in.username, in.password); ok {
			t.Fatalf("empty credentials %q/%q were accepted", in.username, in.password)
		}
	}
	if calls != 0 {
		t.Fatalf("store was consulted for empty credentials")
	}
}

func TestAuthenticateShortCircuitsWhenAlreadySignedIn(t *testing.T) {
	var s Session
	s.establish(User{ID: "u-1", Username: "alice"}, PermissionSet{}, []string{"hr"}, time.Now())

	calls := 0
	store := &stubStore{findActiveUserFn: func(_ context.Context, _ string) (User, error) {
		calls++
		return User{}, ErrNotFound
	}}
	mgr := NewManager(store, NewTokenCodec(testSecret, time.Hour))

	token, ok := mgr.Authenticate(context.Background(), &s, "mallory", "whatever")
	if !ok {
		t.Fatalf("expected signed-in session to short-circuit")
	}
	if token != "" {
		t.Fatalf("short-circuit must not mint a token")
	}
	if calls != 0 {
		t.Fatalf("store consulted despite short-circuit")
	}
	if s.Username() != "alice" {
		t.Fatalf("session identity changed to %s", s.Username())
	}
}

func TestRestoreReResolvesPermissions(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	user := User{ID: "u-1", Username: "alice", PasswordHash: testHash(t, "open sesame"), Active: true}

	granted := map[string]bool{"hr": true, "sales": true}
	store := &stubStore{
		findActiveUserFn: func(_ context.Context, _ string) (User, error) { return user, nil },
		findUserFn:       func(_ context.Context, _ string) (User, error) { return user, nil },
		listDomainGrantsFn: func(_ context.Context, _ string) ([]DomainGrant, error) {
			var out []DomainGrant
			for _, d := range []string{"hr", "sales"} {
				if granted[d] {
					out = append(out, DomainGrant{UserID: "u-1", Domain: d})
				}
			}
			return out, nil
		},
	}
	codec := NewTokenCodec(testSecret, time.Hour, WithClock(testClock(now)))
	mgr := NewManager(store, codec)
	mgr.now = testClock(now)

	var first Session
	token, ok := mgr.Authenticate(context.Background(), &first, "alice", "open sesame")
	if !ok {
		t.Fatalf("expected login to succeed")
	}
	if want := []string{"hr", "sales"}; !reflect.DeepEqual(first.Domains(), want) {
		t.Fatalf("domains = %v, want %v", first.Domains(), want)
	}

	granted["hr"] = false

	var second Session
	if !mgr.Restore(context.Background(), &second, token) {
		t.Fatalf("expected restore to succeed")
	}
	if want := []string{"sales"}; !reflect.DeepEqual(second.Domains(), want) {
		t.Fatalf("restored domains = %v, want %v", second.Domains(), want)
	}
	if second.Permissions().HasDomain("hr") {
		t.Fatalf("revoked grant survived restoration")
	}
	if !second.UserInfo().LoginTime.Equal(now) {
		t.Fatalf("login time should come from the token, got %v", second.UserInfo().LoginTime)
	}
}

func TestRestoreRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	current := issued
	clock := func() time.Time { return current }

	user := User{ID: "u-1", Username: "alice", PasswordHash: testHash(t, "open sesame"), Active: true}
	store := &stubStore{
		findActiveUserFn: func(_ context.Context, _ string) (User, error) { return user, nil },
		findUserFn:       func(_ context.Context, _ string) (User, error) { return user, nil },
	}
	codec := NewTokenCodec(testSecret, 30*time.Minute, WithClock(clock))
	mgr := NewManager(store, codec)
	mgr.now = clock

	var s Session
	token, ok := mgr.Authenticate(context.Background(), &s, "alice", "open sesame")
	if !ok {
		t.Fatalf("expected login to succeed")
	}

	current = issued.Add(30*time.Minute - time.Second)
	var fresh Session
	if !mgr.Restore(context.Background(), &fresh, token) {
		t.Fatalf("token inside the window was rejected")
	}

	current = issued.Add(30*time.Minute + time.Second)
	var stale Session
	if mgr.Restore(context.Background(), &stale, token) {
		t.Fatalf("expired token was accepted")
	}
	if stale.IsAuthenticated() {
		t.Fatalf("session authenticated from an expired token")
	}
}

func TestRestoreRejectsRevokedUser(t *testing.T) {
	codec := NewTokenCodec(testSecret, time.Hour)
	token, err := codec.Encode("u-1", "alice", false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cases := []struct {
		name  string
		store *stubStore
	}{
		{
			name: "deleted user",
			store: &stubStore{findUserFn: func(_ context.Context, _ string) (User, error) {
				return User{}, ErrNotFound
			}},
		},
		{
			name: "deactivated user",
			store: &stubStore{findUserFn: func(_ context.Context, _ string) (User, error) {
				return User{ID: "u-1", Username: "alice", Active: false}, nil
			}},
		},
		{
			name: "store offline",
			store: &stubStore{findUserFn: func(_ context.Context, _ string) (User, error) {
				return User{}, errors.New("store offline")
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mgr := NewManager(tc.store, codec)
			var s Session
			if mgr.Restore(context.Background(), &s, token) {
				t.Fatalf("expected restore to fail")
			}
			if s.IsAuthenticated() {
				t.Fatalf("session must stay anonymous")
			}
		})
	}
}

func TestRestoreRejectsGarbageWithoutStoreAccess(t *testing.T) {
	calls := 0
	store := &stubStore{findUserFn: func(_ context.Context, _ string) (User, error) {
		calls++
		return User{}, ErrNotFound
	}}
	mgr := NewManager(store, NewTokenCodec(testSecret, time.Hour))

	var s Session
	for _, token := range []string{"", "garbage", "a.b.c"} {
		if mgr.Restore(context.Background(), &s, token) {
			t.Fatalf("token %q was accepted", token)
		}
	}
	if calls != 0 {
		t.Fatalf("store consulted for undecodable tokens")
	}
}

func TestRestoreShortCircuitsWhenAlreadySignedIn(t *testing.T) {
	var s Session
	s.establish(User{ID: "u-1", Username: "alice"}, PermissionSet{}, nil, time.Now())

	mgr := NewManager(&stubStore{}, NewTokenCodec(testSecret, time.Hour))
	if !mgr.Restore(context.Background(), &s, "complete garbage") {
		t.Fatalf("expected signed-in session to short-circuit restore")
	}
	if s.Username() != "alice" {
		t.Fatalf("session identity changed to %s", s.Username())
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	var s Session
	s.establish(User{ID: "u-1", Username: "alice", Admin: true}, PermissionSet{Admin: true}, []string{"hr"}, time.Now())
	mgr := NewManager(&stubStore{}, NewTokenCodec(testSecret, time.Hour))

	mgr.Logout(&s)
	if s.IsAuthenticated() || s.Username() != "" || s.UserID() != "" {
		t.Fatalf("logout did not clear the session")
	}
	if got := s.Domains(); got != nil {
		t.Fatalf("domains survived logout: %v", got)
	}
	if s.Permissions().HasDomain("hr") {
		t.Fatalf("permissions survived logout")
	}

	mgr.Logout(&s)
	if s.IsAuthenticated() {
		t.Fatalf("second logout re-authenticated the session")
	}
	mgr.Logout(nil)
}

func TestAuthenticateAdminSeesEveryDomain(t *testing.T) {
	admin := User{ID: "u-0", Username: "root", PasswordHash: testHash(t, "open sesame"), Active: true, Admin: true}

	grantReads := 0
	store := &stubStore{
		findActiveUserFn: func(_ context.Context, _ string) (User, error) { return admin, nil },
		findUserFn:       func(_ context.Context, _ string) (User, error) { return admin, nil },
		listDomainNamesFn: func(_ context.Context) ([]string, error) {
			return []string{"sales", "finance", "hr"}, nil
		},
		listDomainGrantsFn: func(_ context.Context, _ string) ([]DomainGrant, error) {
			grantReads++
			return nil, nil
		},
		listTableGrantsFn: func(_ context.Context, _ string) ([]TableGrant, error) {
			grantReads++
			return nil, nil
		},
	}
	mgr := NewManager(store, NewTokenCodec(testSecret, time.Hour))

	var s Session
	if _, ok := mgr.Authenticate(context.Background(), &s, "root", "open sesame"); !ok {
		t.Fatalf("expected login to succeed")
	}
	if !s.Admin() {
		t.Fatalf("admin flag missing")
	}
	if want := []string{"finance", "hr", "sales"}; !reflect.DeepEqual(s.Domains(), want) {
		t.Fatalf("domains = %v, want %v", s.Domains(), want)
	}
	if grantReads != 0 {
		t.Fatalf("admin resolution read grant tables %d times", grantReads)
	}
	if !s.Permissions().HasDomain("anything-at-all") {
		t.Fatalf("admin set denied a domain")
	}
}

func TestHasDomainAccessChecksTheStoreFresh(t *testing.T) {
	user := User{ID: "u-1", Username: "alice", PasswordHash: testHash(t, "open sesame"), Active: true}

	granted := true
	store := &stubStore{
		findActiveUserFn: func(_ context.Context, _ string) (User, error) { return user, nil },
		findUserFn:       func(_ context.Context, _ string) (User, error) { return user, nil },
		listDomainGrantsFn: func(_ context.Context, _ string) ([]DomainGrant, error) {
			if granted {
				return []DomainGrant{{UserID: "u-1", Domain: "hr"}}, nil
			}
			return nil, nil
		},
	}
	mgr := NewManager(store, NewTokenCodec(testSecret, time.Hour))

	var s Session
	if _, ok := mgr.Authenticate(context.Background(), &s, "alice", "open sesame"); !ok {
		t.Fatalf("expected login to succeed")
	}
	if !mgr.HasDomainAccess(context.Background(), &s, "hr") {
		t.Fatalf("granted domain was denied")
	}

	granted = false
	if mgr.HasDomainAccess(context.Background(), &s, "hr") {
		t.Fatalf("revocation was not picked up")
	}
	if !s.Permissions().HasDomain("hr") {
		t.Fatalf("in-session view should keep the login-time grants")
	}

	var anonymous Session
	if mgr.HasDomainAccess(context.Background(), &anonymous, "hr") {
		t.Fatalf("anonymous session passed a domain check")
	}
}
