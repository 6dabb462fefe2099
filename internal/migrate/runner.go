// Package migrate applies the dashboard's schema and demo data from plain
// SQL files. Applied files are journaled so reruns are no-ops.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const (
	defaultJournalTable = "dq_schema_journal"

	kindMigration = "migration"
	kindSeed      = "seed"

	migrationsDir = "sql"
	seedsDir      = "seeds"
)

// Runner executes the SQL files under a migrations tree:
//
//	sql/0001_core.up.sql
//	sql/0001_core.down.sql
//	seeds/0001_demo.sql
type Runner struct {
	db      *sql.DB
	fsys    fs.FS
	journal string
}

// Option configures Runner.
type Option func(*Runner)

// WithJournalTable overrides the bookkeeping table name.
func WithJournalTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.journal = name
		}
	}
}

// NewRunner constructs a Runner over a migrations tree, typically
// os.DirFS("ops/migrations").
func NewRunner(db *sql.DB, fsys fs.FS, opts ...Option) *Runner {
	r := &Runner{
		db:      db,
		fsys:    fsys,
		journal: defaultJournalTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply runs every pending up migration in lexical order and returns the
// names it applied.
func (r *Runner) Apply(ctx context.Context) ([]string, error) {
	if err := r.ensureJournal(ctx); err != nil {
		return nil, err
	}
	done, err := r.appliedSet(ctx, kindMigration)
	if err != nil {
		return nil, err
	}
	names, err := r.listSQL(migrationsDir, ".up.sql")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range names {
		if _, ok := done[name]; ok {
			continue
		}
		if err := r.runFile(ctx, migrationsDir+"/"+name); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		if err := r.record(ctx, kindMigration, name); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Rollback reverts the newest applied migration using its .down.sql twin.
func (r *Runner) Rollback(ctx context.Context) (string, error) {
	if err := r.ensureJournal(ctx); err != nil {
		return "", err
	}
	var last string
	query := fmt.Sprintf(`select name from %s where kind = $1 order by name desc limit 1`, r.journal)
	err := r.db.QueryRowContext(ctx, query, kindMigration).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("no migrations applied")
	}
	if err != nil {
		return "", err
	}

	downName := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	downPath := migrationsDir + "/" + downName
	if _, err := fs.Stat(r.fsys, downPath); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.runFile(ctx, downPath); err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	if err := r.forget(ctx, kindMigration, last); err != nil {
		return "", err
	}
	return last, nil
}

// Seed loads demo and reference data. Each seed file runs at most once.
func (r *Runner) Seed(ctx context.Context) ([]string, error) {
	if err := r.ensureJournal(ctx); err != nil {
		return nil, err
	}
	done, err := r.appliedSet(ctx, kindSeed)
	if err != nil {
		return nil, err
	}
	names, err := r.listSQL(seedsDir, ".sql")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range names {
		if _, ok := done[name]; ok {
			continue
		}
		if err := r.runFile(ctx, seedsDir+"/"+name); err != nil {
			return applied, fmt.Errorf("apply seed %s: %w", name, err)
		}
		if err := r.record(ctx, kindSeed, name); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Record is one journaled file.
type Record struct {
	Name      string
	AppliedAt time.Time
}

// Status reports applied migrations and the ones still pending.
type Status struct {
	Applied []Record
	Pending []string
}

func (r *Runner) Status(ctx context.Context) (Status, error) {
	if err := r.ensureJournal(ctx); err != nil {
		return Status{}, err
	}

	var st Status
	query := fmt.Sprintf(`select name, applied_at from %s where kind = $1 order by name`, r.journal)
	rows, err := r.db.QueryContext(ctx, query, kindMigration)
	if err != nil {
		return Status{}, err
	}
	defer rows.Close()
	seen := make(map[string]struct{})
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.AppliedAt); err != nil {
			return Status{}, err
		}
		st.Applied = append(st.Applied, rec)
		seen[rec.Name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return Status{}, err
	}

	names, err := r.listSQL(migrationsDir, ".up.sql")
	if err != nil {
		return Status{}, err
	}
	for _, name := range names {
		if _, ok := seen[name]; !ok {
			st.Pending = append(st.Pending, name)
		}
	}
	return st, nil
}

func (r *Runner) ensureJournal(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			name text not null,
			kind text not null,
			applied_at timestamptz not null default now(),
			primary key (kind, name)
		);`, r.journal)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *Runner) appliedSet(ctx context.Context, kind string) (map[string]struct{}, error) {
	query := fmt.Sprintf(`select name from %s where kind = $1`, r.journal)
	rows, err := r.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		set[name] = struct{}{}
	}
	return set, rows.Err()
}

func (r *Runner) record(ctx context.Context, kind, name string) error {
	query := fmt.Sprintf(`insert into %s(name, kind, applied_at) values ($1, $2, $3)`, r.journal)
	_, err := r.db.ExecContext(ctx, query, name, kind, time.Now().UTC())
	return err
}

func (r *Runner) forget(ctx context.Context, kind, name string) error {
	query := fmt.Sprintf(`delete from %s where kind = $1 and name = $2`, r.journal)
	_, err := r.db.ExecContext(ctx, query, kind, name)
	return err
}

// runFile executes one SQL file inside a single transaction.
func (r *Runner) runFile(ctx context.Context, path string) error {
	script, err := fs.ReadFile(r.fsys, path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(script)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) listSQL(dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements cuts a script on semicolons, ignoring the ones inside
// string literals and line comments.
func splitStatements(script string) []string {
	var stmts []string
	var cur strings.Builder
	runes := []rune(script)
	inString, inComment := false, false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inComment:
			cur.WriteRune(r)
			if r == '\n' {
				inComment = false
			}
		case inString:
			cur.WriteRune(r)
			if r == '\'' {
				inString = false
			}
		case r == '\'':
			inString = true
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inComment = true
			cur.WriteRune(r)
		case r == ';':
			cur.WriteRune(r)
			stmts = append(stmts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}
