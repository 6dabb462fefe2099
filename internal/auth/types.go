package auth

import "time"

// User is an account able to sign in to the dashboard. Accounts are never
// hard-deleted; deactivation flips Active off.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	Admin        bool       `json:"is_admin"`
	Active       bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Domain is a named partition of business data ("hr", "finance", "sales").
type Domain struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableRef identifies one concrete table inside a domain.
type TableRef struct {
	Domain string `json:"domain"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (t TableRef) String() string {
	return t.Domain + "." + t.Schema + "." + t.Table
}

// DomainGrant gives a user access to every table in one domain.
type DomainGrant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Domain    string    `json:"domain"`
	GrantedBy string    `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

// TableGrant gives a user access to a single table. It never implies access
// to the rest of the table's domain.
type TableGrant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Table     TableRef  `json:"table"`
	GrantedBy string    `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

// NewUser is the input for account creation.
type NewUser struct {
	Username string
	Email    string
	FullName string
	Password string
	Admin    bool
}

// UserUpdate is a partial account update; nil fields stay unchanged.
type UserUpdate struct {
	Email    *string
	FullName *string
	Admin    *bool
	Active   *bool
	Password *string
}

// UserPatch is the store-level form of UserUpdate, with the password already
// hashed.
type UserPatch struct {
	Email        *string
	FullName     *string
	Admin        *bool
	Active       *bool
	PasswordHash *string
}

func (p UserPatch) isEmpty() bool {
	return p.Email == nil && p.FullName == nil && p.Admin == nil && p.Active == nil && p.PasswordHash == nil
}
