package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "media-tracker.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_ADDR", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "LOG_LEVEL", "LOG_FORMAT",
		"TMDB_API_KEY", "TMDB_BASE_URL", "TMDB_LANGUAGE", "TMDB_TIMEOUT",
		"CB_ENABLED", "CB_TIMEOUT", "CB_INTERVAL", "CB_FAILURE_THRESHOLD",
		"JWT_SECRET", "JWT_TTL", "NATS_URL", "BACKUP_DIR", "BACKUP_KEEP",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.DSN() != "media_tracker.db" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.TokenTTL() != 24*time.Hour || cfg.TMDBTimeout() != 10*time.Second {
		t.Fatalf("durations = %v, %v", cfg.TokenTTL(), cfg.TMDBTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if err := cfg.ValidateServe(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("serve without secret = %v", err)
	}
}

func TestFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "Postgres"
url = "postgres://file/db"

[tmdb]
api_key = "from-file"
base_url = "http://tmdb.local/3/"

[auth]
jwt_secret = "file-secret"
token_ttl_hours = 48
`)
	clearEnv(t)
	t.Setenv("TMDB_API_KEY", "from-env")
	t.Setenv("TMDB_TIMEOUT", "3s")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("BACKUP_KEEP", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.DSN() != "postgres://file/db" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.TMDB.APIKey != "from-env" {
		t.Fatalf("env must win, got %q", cfg.TMDB.APIKey)
	}
	if cfg.TMDB.BaseURL != "http://tmdb.local/3" {
		t.Fatalf("base url not normalized: %q", cfg.TMDB.BaseURL)
	}
	if cfg.TMDBTimeout() != 3*time.Second || cfg.TokenTTL() != 2*time.Hour {
		t.Fatalf("durations = %v, %v", cfg.TMDBTimeout(), cfg.TokenTTL())
	}
	if cfg.Backup.Dir != "backups" || cfg.Backup.Keep != 8 {
		t.Fatalf("backup = %+v", cfg.Backup)
	}
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("ValidateServe: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":   func(c *Config) { c.Database.Driver = "mysql" },
		"postgres no url":  func(c *Config) { c.Database.Driver = "postgres" },
		"sqlite no path":   func(c *Config) { c.Database.Path = "" },
		"zero tmdb timout": func(c *Config) { c.TMDB.TimeoutSeconds = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("missing explicit config file must fail")
	}
	if _, err := Load(writeConfig(t, "[database]\nunknown_key = 1\n")); err == nil {
		t.Fatal("unknown keys must fail")
	}
	t.Setenv("CB_FAILURE_THRESHOLD", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("bad CB_FAILURE_THRESHOLD must fail")
	}
}
