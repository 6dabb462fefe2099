package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Hamza-Filali13/check-quality-project/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn  = flag.String("dsn", os.Getenv("DQ_DATABASE_URL"), "PostgreSQL DSN")
		path = flag.String("path", "ops/migrations", "Migrations tree holding sql/ and seeds/")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DQ_DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.NewRunner(db, os.DirFS(*path))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = runner.Apply(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = runner.Rollback(ctx)
		if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		var applied []string
		applied, err = runner.Seed(ctx)
		for _, name := range applied {
			fmt.Println("seeded", name)
		}
	case "status":
		var st migrate.Status
		st, err = runner.Status(ctx)
		if err == nil {
			for _, rec := range st.Applied {
				fmt.Printf("applied  %s  %s\n", rec.Name, rec.AppliedAt.Format(time.RFC3339))
			}
			for _, name := range st.Pending {
				fmt.Println("pending ", name)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
