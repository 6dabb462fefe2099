package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Hamza-Filali13/check-quality-project/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
		&u.Admin, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (s *PGStore) FindActiveUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, username, email, full_name, password_hash, is_admin, is_active, last_login, created_at, updated_at
		from users
		where username = $1 and is_active
	`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PGStore) FindUser(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, username, email, full_name, password_hash, is_admin, is_active, last_login, created_at, updated_at
		from users
		where id = $1
	`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, full_name, password_hash, is_admin, is_active)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at, updated_at
	`, u.ID, u.Username, u.Email, u.FullName, u.PasswordHash, u.Admin, u.Active).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PGStore) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if patch.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *patch.Email)
		idx++
	}
	if patch.FullName != nil {
		sets = append(sets, fmt.Sprintf("full_name = $%d", idx))
		args = append(args, *patch.FullName)
		idx++
	}
	if patch.Admin != nil {
		sets = append(sets, fmt.Sprintf("is_admin = $%d", idx))
		args = append(args, *patch.Admin)
		idx++
	}
	if patch.Active != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *patch.Active)
		idx++
	}
	if patch.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *patch.PasswordHash)
		idx++
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, username, email, full_name, password_hash, is_admin, is_active, last_login, created_at, updated_at
		from users
		order by username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login = $2, updated_at = now() where id = $1`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListDomains(ctx context.Context) ([]Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`select name, description, created_at from domains order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.Name, &d.Description, &d.CreatedAt); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func (s *PGStore) ListDomainNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select name from domains order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PGStore) ListDomainTables(ctx context.Context, domains []string) ([]TableRef, error) {
	query := `
		select domain_name, schema_name, table_name
		from domain_tables
		order by domain_name, schema_name, table_name`
	var args []any
	if len(domains) > 0 {
		placeholders := make([]string, len(domains))
		args = make([]any, len(domains))
		for i, d := range domains {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = d
		}
		query = fmt.Sprintf(`
		select domain_name, schema_name, table_name
		from domain_tables
		where domain_name in (%s)
		order by domain_name, schema_name, table_name`, strings.Join(placeholders, ", "))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []TableRef
	for rows.Next() {
		var t TableRef
		if err := rows.Scan(&t.Domain, &t.Schema, &t.Table); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (s *PGStore) ListDomainGrants(ctx context.Context, userID string) ([]DomainGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, domain_name, granted_by, granted_at
		from user_domain_permissions
		where user_id = $1
		order by domain_name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []DomainGrant
	for rows.Next() {
		var g DomainGrant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Domain, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *PGStore) ListTableGrants(ctx context.Context, userID string) ([]TableGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, domain_name, schema_name, table_name, granted_by, granted_at
		from user_table_permissions
		where user_id = $1
		order by domain_name, schema_name, table_name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []TableGrant
	for rows.Next() {
		var g TableGrant
		if err := rows.Scan(&g.ID, &g.UserID, &g.Table.Domain, &g.Table.Schema, &g.Table.Table, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *PGStore) UpsertDomainGrant(ctx context.Context, g *DomainGrant) error {
	if g.ID == "" {
		g.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into user_domain_permissions (id, user_id, domain_name, granted_by)
		values ($1, $2, $3, $4)
		on conflict (user_id, domain_name)
		do update set granted_by = excluded.granted_by, granted_at = now()
		returning id, granted_at
	`, g.ID, g.UserID, g.Domain, g.GrantedBy).Scan(&g.ID, &g.GrantedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *PGStore) UpsertTableGrant(ctx context.Context, g *TableGrant) error {
	if g.ID == "" {
		g.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into user_table_permissions (id, user_id, domain_name, schema_name, table_name, granted_by)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (user_id, domain_name, schema_name, table_name)
		do update set granted_by = excluded.granted_by, granted_at = now()
		returning id, granted_at
	`, g.ID, g.UserID, g.Table.Domain, g.Table.Schema, g.Table.Table, g.GrantedBy).Scan(&g.ID, &g.GrantedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *PGStore) DeleteDomainGrant(ctx context.Context, userID, domain string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from user_domain_permissions where user_id = $1 and domain_name = $2`,
		userID, domain)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteTableGrant(ctx context.Context, userID string, ref TableRef) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_table_permissions
		where user_id = $1 and domain_name = $2 and schema_name = $3 and table_name = $4
	`, userID, ref.Domain, ref.Schema, ref.Table)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
