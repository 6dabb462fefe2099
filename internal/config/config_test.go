package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DQ_DATABASE_URL", "postgres://dq:dq@localhost:5432/dq")
	t.Setenv("DQ_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Fatalf("session ttl = %v, want 24h", cfg.SessionTTL())
	}
	if cfg.LoginRateBurst != 5 || cfg.LoginRatePerSec != 1 {
		t.Fatalf("rate limit defaults = %v/%v", cfg.LoginRatePerSec, cfg.LoginRateBurst)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("max body = %d, want %d", cfg.MaxBodyBytes, 1<<20)
	}
	if cfg.ShutdownGrace() != 10*time.Second {
		t.Fatalf("shutdown grace = %v, want 10s", cfg.ShutdownGrace())
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
}

func TestLoadLayersFileUnderEnv(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := strings.Join([]string{
		"port: 9090",
		"cookie_secure: true",
		"session_timeout_seconds: 3600",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("DQ_PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7070 {
		t.Fatalf("env should win over the file: port = %d", cfg.Port)
	}
	if !cfg.CookieSecure {
		t.Fatalf("file value lost: cookie_secure = false")
	}
	if cfg.SessionTTL() != time.Hour {
		t.Fatalf("file value lost: session ttl = %v", cfg.SessionTTL())
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	setRequired(t)
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing dsn", map[string]string{
			"DQ_DATABASE_URL":   "",
			"DQ_SESSION_SECRET": "0123456789abcdef0123456789abcdef",
		}},
		{"missing secret", map[string]string{
			"DQ_DATABASE_URL":   "postgres://dq:dq@localhost:5432/dq",
			"DQ_SESSION_SECRET": "",
		}},
		{"short secret", map[string]string{
			"DQ_DATABASE_URL":   "postgres://dq:dq@localhost:5432/dq",
			"DQ_SESSION_SECRET": "too-short",
		}},
		{"port out of range", map[string]string{
			"DQ_DATABASE_URL":   "postgres://dq:dq@localhost:5432/dq",
			"DQ_SESSION_SECRET": "0123456789abcdef0123456789abcdef",
			"DQ_PORT":           "70000",
		}},
		{"zero timeout", map[string]string{
			"DQ_DATABASE_URL":            "postgres://dq:dq@localhost:5432/dq",
			"DQ_SESSION_SECRET":          "0123456789abcdef0123456789abcdef",
			"DQ_SESSION_TIMEOUT_SECONDS": "0",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
