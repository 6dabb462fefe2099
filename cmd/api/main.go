package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hamza-Filali13/check-quality-project/internal/auth"
	"github.com/Hamza-Filali13/check-quality-project/internal/config"
	"github.com/Hamza-Filali13/check-quality-project/internal/dq"
	"github.com/Hamza-Filali13/check-quality-project/internal/httpapi"
	"github.com/Hamza-Filali13/check-quality-project/internal/obs"
	"github.com/Hamza-Filali13/check-quality-project/internal/store/pg"
)

// Stamped via -ldflags at release time.
var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Register metrics before the first request can hit /metrics.
	obs.Init()
	obs.InitBuildInfo(version, commit)

	db, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	store := auth.NewPGStore(db)
	codec := auth.NewTokenCodec([]byte(cfg.SessionSecret), cfg.SessionTTL())
	sessions := auth.NewManager(store, codec)
	accounts := auth.NewService(store)
	quality := dq.NewService(dq.NewPGStore(db))

	api := httpapi.New(
		httpapi.ReadyProbe{DB: db},
		version,
		sessions,
		accounts,
		quality,
		httpapi.WithCookie(cfg.SessionTTL(), cfg.CookieSecure),
		httpapi.WithAllowedOrigin(cfg.AllowedOrigin),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
		httpapi.WithLoginRate(cfg.LoginRatePerSec, cfg.LoginRateBurst),
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting dq-dashboard-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
