package auth

import (
	"context"
	"fmt"
	"strings"
)

// Service implements account and grant administration for the dashboard's
// admin surface. Session establishment lives on Manager; Service only
// manages the records sessions are built from.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateUser validates and stores a new account. The password is hashed
// before it leaves this method; the returned User never carries the hash.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if in.Email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	user := User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Admin:        in.Admin,
		Active:       true,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateUser applies a partial account update. A password change is re-hashed
// here; everything else passes through as-is.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	patch := UserPatch{
		Email:    trimmed(upd.Email),
		FullName: trimmed(upd.FullName),
		Admin:    upd.Admin,
		Active:   upd.Active,
	}
	if upd.Password != nil {
		if len(*upd.Password) < 8 {
			return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return User{}, err
		}
		patch.PasswordHash = &hash
	}
	if patch.isEmpty() {
		return User{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if err := s.store.UpdateUser(ctx, id, patch); err != nil {
		return User{}, err
	}
	user, err := s.store.FindUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// ListUsers returns all accounts without password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// ListDomains returns the domain reference catalog.
func (s *Service) ListDomains(ctx context.Context) ([]Domain, error) {
	return s.store.ListDomains(ctx)
}

// GrantDomain gives userID coarse access to an entire domain. Granting twice
// refreshes the grant metadata instead of failing.
func (s *Service) GrantDomain(ctx context.Context, userID, domain, grantedBy string) (DomainGrant, error) {
	userID = strings.TrimSpace(userID)
	domain = strings.TrimSpace(domain)
	if userID == "" {
		return DomainGrant{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if domain == "" {
		return DomainGrant{}, fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}
	grant := DomainGrant{
		UserID:    userID,
		Domain:    domain,
		GrantedBy: strings.TrimSpace(grantedBy),
	}
	if err := s.store.UpsertDomainGrant(ctx, &grant); err != nil {
		return DomainGrant{}, err
	}
	return grant, nil
}

// RevokeDomain removes a coarse domain grant. Revoking a grant that does not
// exist is ErrNotFound.
func (s *Service) RevokeDomain(ctx context.Context, userID, domain string) error {
	userID = strings.TrimSpace(userID)
	domain = strings.TrimSpace(domain)
	if userID == "" || domain == "" {
		return fmt.Errorf("%w: user id and domain are required", ErrInvalidInput)
	}
	return s.store.DeleteDomainGrant(ctx, userID, domain)
}

// GrantTable gives userID access to a single table. The grant stays
// fine-grained: it never implies access to the table's whole domain.
func (s *Service) GrantTable(ctx context.Context, userID string, ref TableRef, grantedBy string) (TableGrant, error) {
	userID = strings.TrimSpace(userID)
	ref.Domain = strings.TrimSpace(ref.Domain)
	ref.Schema = strings.TrimSpace(ref.Schema)
	ref.Table = strings.TrimSpace(ref.Table)
	if userID == "" {
		return TableGrant{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if ref.Domain == "" || ref.Schema == "" || ref.Table == "" {
		return TableGrant{}, fmt.Errorf("%w: domain, schema and table are required", ErrInvalidInput)
	}
	grant := TableGrant{
		UserID:    userID,
		Table:     ref,
		GrantedBy: strings.TrimSpace(grantedBy),
	}
	if err := s.store.UpsertTableGrant(ctx, &grant); err != nil {
		return TableGrant{}, err
	}
	return grant, nil
}

// RevokeTable removes a fine-grained table grant.
func (s *Service) RevokeTable(ctx context.Context, userID string, ref TableRef) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || ref.Domain == "" || ref.Schema == "" || ref.Table == "" {
		return fmt.Errorf("%w: user id, domain, schema and table are required", ErrInvalidInput)
	}
	return s.store.DeleteTableGrant(ctx, userID, ref)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
