package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateUserHashesAndScrubs(t *testing.T) {
	var stored User
	store := &stubStore{createUserFn: func(_ context.Context, u *User) error {
		u.ID = "u-9"
		stored = *u
		return nil
	}}
	svc := NewService(store)

	user, err := svc.CreateUser(context.Background(), NewUser{
		Username: "  bob  ",
		Email:    "bob@example.com",
		FullName: "Bob Example",
		Password: "open sesame",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID != "u-9" || user.Username != "bob" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash != "" {
		t.Fatalf("returned user carries a password hash")
	}
	if !user.Active {
		t.Fatalf("new accounts must start active")
	}
	if stored.PasswordHash == "open sesame" || stored.PasswordHash == "" {
		t.Fatalf("password was not hashed before storage")
	}
	if !VerifyPassword(stored.PasswordHash, "open sesame") {
		t.Fatalf("stored hash does not verify the password")
	}
}

func TestCreateUserValidation(t *testing.T) {
	calls := 0
	store := &stubStore{createUserFn: func(_ context.Context, _ *User) error {
		calls++
		return nil
	}}
	svc := NewService(store)

	cases := []struct {
		name string
		in   NewUser
	}{
		{"missing username", NewUser{Email: "x@example.com", Password: "open sesame"}},
		{"missing email", NewUser{Username: "x", Password: "open sesame"}},
		{"short password", NewUser{Username: "x", Email: "x@example.com", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateUser(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("invalid input reached the store")
	}
}

func TestCreateUserSurfacesConflict(t *testing.T) {
	store := &stubStore{createUserFn: func(_ context.Context, _ *User) error {
		return ErrConflict
	}}
	svc := NewService(store)
	_, err := svc.CreateUser(context.Background(), NewUser{
		Username: "bob", Email: "bob@example.com", Password: "open sesame",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateUserRehashesPassword(t *testing.T) {
	var patched UserPatch
	store := &stubStore{
		updateUserFn: func(_ context.Context, id string, patch UserPatch) error {
			if id != "u-1" {
				t.Fatalf("unexpected id %s", id)
			}
			patched = patch
			return nil
		},
		findUserFn: func(_ context.Context, id string) (User, error) {
			return User{ID: id, Username: "alice", PasswordHash: "$2a$10$whatever", Active: true}, nil
		},
	}
	svc := NewService(store)

	password := "fresh password"
	user, err := svc.UpdateUser(context.Background(), "u-1", UserUpdate{Password: &password})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if patched.PasswordHash == nil || !VerifyPassword(*patched.PasswordHash, password) {
		t.Fatalf("password was not re-hashed for storage")
	}
	if user.PasswordHash != "" {
		t.Fatalf("returned user carries a password hash")
	}
}

func TestUpdateUserRequiresChanges(t *testing.T) {
	svc := NewService(&stubStore{})
	if _, err := svc.UpdateUser(context.Background(), "u-1", UserUpdate{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	short := "short"
	if _, err := svc.UpdateUser(context.Background(), "u-1", UserUpdate{Password: &short}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a short password, got %v", err)
	}
}

func TestListUsersScrubsHashes(t *testing.T) {
	store := &stubStore{listUsersFn: func(_ context.Context) ([]User, error) {
		return []User{
			{ID: "u-1", Username: "alice", PasswordHash: "$2a$10$aaa"},
			{ID: "u-2", Username: "bob", PasswordHash: "$2a$10$bbb"},
		}, nil
	}}
	users, err := NewService(store).ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Fatalf("user %s still carries a password hash", u.Username)
		}
	}
}

func TestGrantDomain(t *testing.T) {
	store := &stubStore{upsertDomainFn: func(_ context.Context, g *DomainGrant) error {
		g.ID = "g-1"
		g.GrantedAt = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
		return nil
	}}
	svc := NewService(store)

	grant, err := svc.GrantDomain(context.Background(), " u-1 ", " hr ", "root")
	if err != nil {
		t.Fatalf("GrantDomain: %v", err)
	}
	if grant.ID != "g-1" || grant.UserID != "u-1" || grant.Domain != "hr" || grant.GrantedBy != "root" {
		t.Fatalf("unexpected grant: %+v", grant)
	}
	if grant.GrantedAt.IsZero() {
		t.Fatalf("granted-at was not filled")
	}

	if _, err := svc.GrantDomain(context.Background(), "", "hr", "root"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.GrantDomain(context.Background(), "u-1", "", "root"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGrantTableRequiresFullReference(t *testing.T) {
	svc := NewService(&stubStore{})
	for _, ref := range []TableRef{
		{Schema: "public", Table: "transactions"},
		{Domain: "finance", Table: "transactions"},
		{Domain: "finance", Schema: "public"},
	} {
		if _, err := svc.GrantTable(context.Background(), "u-1", ref, "root"); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ref %v: expected ErrInvalidInput, got %v", ref, err)
		}
	}

	var stored TableGrant
	store := &stubStore{upsertTableFn: func(_ context.Context, g *TableGrant) error {
		stored = *g
		return nil
	}}
	ref := TableRef{Domain: "finance", Schema: "public", Table: "transactions"}
	if _, err := NewService(store).GrantTable(context.Background(), "u-1", ref, "root"); err != nil {
		t.Fatalf("GrantTable: %v", err)
	}
	if stored.Table != ref || stored.UserID != "u-1" {
		t.Fatalf("unexpected grant: %+v", stored)
	}
}

func TestRevokePassesThroughNotFound(t *testing.T) {
	store := &stubStore{
		deleteDomainFn: func(_ context.Context, _, _ string) error { return ErrNotFound },
		deleteTableFn:  func(_ context.Context, _ string, _ TableRef) error { return ErrNotFound },
	}
	svc := NewService(store)

	if err := svc.RevokeDomain(context.Background(), "u-1", "hr"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ref := TableRef{Domain: "finance", Schema: "public", Table: "transactions"}
	if err := svc.RevokeTable(context.Background(), "u-1", ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
