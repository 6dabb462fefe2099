// dqctl administers dashboard accounts and grants directly against the
// database. It is the only way to create the first admin account.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Hamza-Filali13/check-quality-project/internal/auth"
	"github.com/Hamza-Filali13/check-quality-project/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "create-user":
		runCreateUser(args)
	case "set-password":
		runSetPassword(args)
	case "deactivate-user":
		runDeactivateUser(args)
	case "grant-domain":
		runGrantDomain(args)
	case "revoke-domain":
		runRevokeDomain(args)
	case "grant-table":
		runGrantTable(args)
	case "revoke-table":
		runRevokeTable(args)
	case "list-users":
		runListUsers(args)
	case "list-domains":
		runListDomains(args)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dqctl <command> [flags]

commands:
  create-user      -username -email -password [-name] [-admin]
  set-password     -username -password
  deactivate-user  -username
  grant-domain     -username -domain
  revoke-domain    -username -domain
  grant-table      -username -domain -schema -table
  revoke-table     -username -domain -schema -table
  list-users
  list-domains

The database DSN comes from -dsn or DQ_DATABASE_URL.`)
	os.Exit(1)
}

// tool bundles everything a subcommand needs once flags are parsed.
type tool struct {
	ctx    context.Context
	cancel context.CancelFunc
	db     *sql.DB
	store  *auth.PGStore
	svc    *auth.Service
}

func dial(dsn string) *tool {
	if dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DQ_DATABASE_URL")
	}
	db, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store := auth.NewPGStore(db)
	return &tool{
		ctx:    ctx,
		cancel: cancel,
		db:     db,
		store:  store,
		svc:    auth.NewService(store),
	}
}

func (t *tool) close() {
	t.cancel()
	_ = t.db.Close()
}

func (t *tool) userID(username string) string {
	user, err := t.store.FindActiveUserByUsername(t.ctx, username)
	if err != nil {
		log.Fatalf("find user %q: %v", username, err)
	}
	return user.ID
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv("DQ_DATABASE_URL"), "PostgreSQL DSN")
	return fs, dsn
}

func runCreateUser(args []string) {
	fs, dsn := newFlagSet("create-user")
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "full name")
	password := fs.String("password", "", "initial password")
	admin := fs.Bool("admin", false, "grant admin rights")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	user, err := t.svc.CreateUser(t.ctx, auth.NewUser{
		Username: *username,
		Email:    *email,
		FullName: *name,
		Password: *password,
		Admin:    *admin,
	})
	if err != nil {
		log.Fatalf("create user: %v", err)
	}
	fmt.Printf("created %s (%s)\n", user.Username, user.ID)
}

func runSetPassword(args []string) {
	fs, dsn := newFlagSet("set-password")
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "new password")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	id := t.userID(*username)
	if _, err := t.svc.UpdateUser(t.ctx, id, auth.UserUpdate{Password: password}); err != nil {
		log.Fatalf("set password: %v", err)
	}
	fmt.Printf("password updated for %s\n", *username)
}

func runDeactivateUser(args []string) {
	fs, dsn := newFlagSet("deactivate-user")
	username := fs.String("username", "", "login name")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	id := t.userID(*username)
	inactive := false
	if _, err := t.svc.UpdateUser(t.ctx, id, auth.UserUpdate{Active: &inactive}); err != nil {
		log.Fatalf("deactivate user: %v", err)
	}
	fmt.Printf("deactivated %s\n", *username)
}

func runGrantDomain(args []string) {
	fs, dsn := newFlagSet("grant-domain")
	username := fs.String("username", "", "login name")
	domain := fs.String("domain", "", "domain name")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	grant, err := t.svc.GrantDomain(t.ctx, t.userID(*username), *domain, "dqctl")
	if err != nil {
		log.Fatalf("grant domain: %v", err)
	}
	fmt.Printf("granted %s to %s\n", grant.Domain, *username)
}

func runRevokeDomain(args []string) {
	fs, dsn := newFlagSet("revoke-domain")
	username := fs.String("username", "", "login name")
	domain := fs.String("domain", "", "domain name")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	if err := t.svc.RevokeDomain(t.ctx, t.userID(*username), *domain); err != nil {
		log.Fatalf("revoke domain: %v", err)
	}
	fmt.Printf("revoked %s from %s\n", *domain, *username)
}

func runGrantTable(args []string) {
	fs, dsn := newFlagSet("grant-table")
	username := fs.String("username", "", "login name")
	domain := fs.String("domain", "", "domain name")
	schema := fs.String("schema", "", "schema name")
	table := fs.String("table", "", "table name")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	ref := auth.TableRef{Domain: *domain, Schema: *schema, Table: *table}
	grant, err := t.svc.GrantTable(t.ctx, t.userID(*username), ref, "dqctl")
	if err != nil {
		log.Fatalf("grant table: %v", err)
	}
	fmt.Printf("granted %s to %s\n", grant.Table, *username)
}

func runRevokeTable(args []string) {
	fs, dsn := newFlagSet("revoke-table")
	username := fs.String("username", "", "login name")
	domain := fs.String("domain", "", "domain name")
	schema := fs.String("schema", "", "schema name")
	table := fs.String("table", "", "table name")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	ref := auth.TableRef{Domain: *domain, Schema: *schema, Table: *table}
	if err := t.svc.RevokeTable(t.ctx, t.userID(*username), ref); err != nil {
		log.Fatalf("revoke table: %v", err)
	}
	fmt.Printf("revoked %s from %s\n", ref, *username)
}

func runListUsers(args []string) {
	fs, dsn := newFlagSet("list-users")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	users, err := t.svc.ListUsers(t.ctx)
	if err != nil {
		log.Fatalf("list users: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tEMAIL\tADMIN\tACTIVE\tLAST LOGIN")
	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", u.Username, u.Email, u.Admin, u.Active, lastLogin)
	}
	_ = w.Flush()
}

func runListDomains(args []string) {
	fs, dsn := newFlagSet("list-domains")
	_ = fs.Parse(args)

	t := dial(*dsn)
	defer t.close()

	domains, err := t.svc.ListDomains(t.ctx)
	if err != nil {
		log.Fatalf("list domains: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, d := range domains {
		fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Description)
	}
	_ = w.Flush()
}
