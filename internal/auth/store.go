package auth

import (
	"context"
	"time"
)

// Store is the persistence boundary for accounts, domains and grants.
// Implementations must bind every query parameter; user input is never
// interpolated into SQL text.
type Store interface {
	// FindActiveUserByUsername returns the active account with this username,
	// password hash included. Unknown and deactivated usernames are both
	// ErrNotFound.
	FindActiveUserByUsername(ctx context.Context, username string) (User, error)
	// FindUser returns the account with this id regardless of its active flag.
	FindUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, id string, patch UserPatch) error
	ListUsers(ctx context.Context) ([]User, error)
	// TouchLastLogin stamps a successful login on the account.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	ListDomains(ctx context.Context) ([]Domain, error)
	ListDomainNames(ctx context.Context) ([]string, error)
	// ListDomainTables returns catalog rows for the given domains, or the
	// whole catalog when domains is empty.
	ListDomainTables(ctx context.Context, domains []string) ([]TableRef, error)

	ListDomainGrants(ctx context.Context, userID string) ([]DomainGrant, error)
	ListTableGrants(ctx context.Context, userID string) ([]TableGrant, error)
	// UpsertDomainGrant inserts the grant or, when it already exists,
	// refreshes granted_by and granted_at.
	UpsertDomainGrant(ctx context.Context, g *DomainGrant) error
	UpsertTableGrant(ctx context.Context, g *TableGrant) error
	DeleteDomainGrant(ctx context.Context, userID, domain string) error
	DeleteTableGrant(ctx context.Context, userID string, ref TableRef) error
}
