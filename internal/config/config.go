// Package config loads server settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server contains the HTTP listener settings.
type Server struct {
	Addr                   string `toml:"addr"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// Database selects the store. Driver is "sqlite" or "postgres".
type Database struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	URL    string `toml:"url"`
}

// Log contains logger settings.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Breaker configures the circuit breaker guarding TMDB.
type Breaker struct {
	Enabled          bool   `toml:"enabled"`
	MaxRequests      uint32 `toml:"max_requests"`
	IntervalSeconds  int    `toml:"interval_seconds"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	FailureThreshold uint32 `toml:"failure_threshold"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Language       string  `toml:"language"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Breaker        Breaker `toml:"breaker"`
}

// Auth contains token settings.
type Auth struct {
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

// NATS contains the event bus connection. An empty URL disables publishing.
type NATS struct {
	URL string `toml:"url"`
}

// Backup controls the weekly SQLite snapshot. An empty Dir disables it.
type Backup struct {
	Dir  string `toml:"dir"`
	Keep int    `toml:"keep"`
}

// Config holds the application configuration
type Config struct {
	Server   Server   `toml:"server"`
	Database Database `toml:"database"`
	Log      Log      `toml:"log"`
	TMDB     TMDB     `toml:"tmdb"`
	Auth     Auth     `toml:"auth"`
	NATS     NATS     `toml:"nats"`
	Backup   Backup   `toml:"backup"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server:   Server{Addr: ":8080", ShutdownTimeoutSeconds: 10},
		Database: Database{Driver: "sqlite", Path: "media_tracker.db"},
		Log:      Log{Level: "info", Format: "json"},
		TMDB: TMDB{
			BaseURL:        "https://api.themoviedb.org/3",
			Language:       "fr-FR",
			TimeoutSeconds: 10,
			Breaker: Breaker{
				Enabled:          true,
				MaxRequests:      1,
				IntervalSeconds:  60,
				TimeoutSeconds:   30,
				FailureThreshold: 5,
			},
		},
		Auth:   Auth{TokenTTLHours: 24},
		Backup: Backup{Dir: "backups", Keep: 4},
	}
}

// Load reads path when it is set and exists, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config file %s does not exist", path)
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.TMDB.APIKey = getEnv("TMDB_API_KEY", c.TMDB.APIKey)
	c.TMDB.BaseURL = getEnv("TMDB_BASE_URL", c.TMDB.BaseURL)
	c.TMDB.Language = getEnv("TMDB_LANGUAGE", c.TMDB.Language)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Backup.Dir = getEnv("BACKUP_DIR", c.Backup.Dir)

	var err error
	if c.TMDB.TimeoutSeconds, err = envSeconds("TMDB_TIMEOUT", c.TMDB.TimeoutSeconds); err != nil {
		return err
	}
	if c.TMDB.Breaker.TimeoutSeconds, err = envSeconds("CB_TIMEOUT", c.TMDB.Breaker.TimeoutSeconds); err != nil {
		return err
	}
	if c.TMDB.Breaker.IntervalSeconds, err = envSeconds("CB_INTERVAL", c.TMDB.Breaker.IntervalSeconds); err != nil {
		return err
	}
	if v := os.Getenv("CB_FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("CB_FAILURE_THRESHOLD: %w", err)
		}
		c.TMDB.Breaker.FailureThreshold = uint32(n)
	}
	if v := os.Getenv("CB_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CB_ENABLED: %w", err)
		}
		c.TMDB.Breaker.Enabled = enabled
	}
	if v := os.Getenv("BACKUP_KEEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BACKUP_KEEP: %w", err)
		}
		c.Backup.Keep = n
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWT_TTL: %w", err)
		}
		c.Auth.TokenTTLHours = int(d / time.Hour)
	}
	return nil
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.Database.URL
	}
	return c.Database.Path
}

// TMDBTimeout is the per-request deadline for catalog calls.
func (c *Config) TMDBTimeout() time.Duration {
	return time.Duration(c.TMDB.TimeoutSeconds) * time.Second
}

// TokenTTL is the lifetime of issued tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envSeconds reads a Go duration ("15s", "2m") or a bare number of seconds.
func envSeconds(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return int(d / time.Second), nil
}
