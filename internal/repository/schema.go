package repository

import (
	"context"
	"database/sql"
	"fmt"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	pseudo TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS films (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	runtime_minutes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS series (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	series_id INTEGER NOT NULL REFERENCES series(id),
	season INTEGER NOT NULL,
	episode INTEGER NOT NULL,
	runtime_minutes INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (series_id, season, episode)
);

CREATE TABLE IF NOT EXISTS lists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS film_membership (
	list_id INTEGER NOT NULL REFERENCES lists(id),
	film_id INTEGER NOT NULL REFERENCES films(id),
	rank TEXT NOT NULL DEFAULT 'unranked',
	place_rank INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (list_id, film_id)
);

CREATE TABLE IF NOT EXISTS series_membership (
	list_id INTEGER NOT NULL REFERENCES lists(id),
	series_id INTEGER NOT NULL REFERENCES series(id),
	rank TEXT NOT NULL DEFAULT 'unranked',
	place_rank INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (list_id, series_id)
);

CREATE TABLE IF NOT EXISTS episode_membership (
	list_id INTEGER NOT NULL REFERENCES lists(id),
	series_id INTEGER NOT NULL,
	season INTEGER NOT NULL,
	episode INTEGER NOT NULL,
	PRIMARY KEY (list_id, series_id, season, episode),
	FOREIGN KEY (series_id, season, episode) REFERENCES episodes(series_id, season, episode)
);

CREATE INDEX IF NOT EXISTS idx_lists_owner ON lists(owner_id);
CREATE INDEX IF NOT EXISTS idx_episode_membership_series ON episode_membership(list_id, series_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	pseudo TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS films (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	runtime_minutes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS series (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	series_id INTEGER NOT NULL REFERENCES series(id),
	season INTEGER NOT NULL,
	episode INTEGER NOT NULL,
	runtime_minutes INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (series_id, season, episode)
);

CREATE TABLE IF NOT EXISTS lists (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS film_membership (
	list_id BIGINT NOT NULL REFERENCES lists(id),
	film_id INTEGER NOT NULL REFERENCES films(id),
	rank TEXT NOT NULL DEFAULT 'unranked',
	place_rank INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (list_id, film_id)
);

CREATE TABLE IF NOT EXISTS series_membership (
	list_id BIGINT NOT NULL REFERENCES lists(id),
	series_id INTEGER NOT NULL REFERENCES series(id),
	rank TEXT NOT NULL DEFAULT 'unranked',
	place_rank INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (list_id, series_id)
);

CREATE TABLE IF NOT EXISTS episode_membership (
	list_id BIGINT NOT NULL REFERENCES lists(id),
	series_id INTEGER NOT NULL,
	season INTEGER NOT NULL,
	episode INTEGER NOT NULL,
	PRIMARY KEY (list_id, series_id, season, episode),
	FOREIGN KEY (series_id, season, episode) REFERENCES episodes(series_id, season, episode)
);

CREATE INDEX IF NOT EXISTS idx_lists_owner ON lists(owner_id);
CREATE INDEX IF NOT EXISTS idx_episode_membership_series ON episode_membership(list_id, series_id);
`

// InitSchema creates the database tables and runs migrations
func (s *DB) InitSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return s.runMigrations(ctx)
}

// runMigrations executes pending database migrations
func (s *DB) runMigrations(ctx context.Context) error {
	var isDefault bool
	err := s.db.QueryRowContext(ctx, "SELECT is_default FROM lists LIMIT 1").Scan(&isDefault)
	if err == nil || isNoRows(err) {
		return nil
	}
	// Column doesn't exist: databases created before default lists were flagged.
	return s.migrateListDefaults(ctx)
}

// migrateListDefaults adds lists.is_default and flags the lists every account
// was created with.
func (s *DB) migrateListDefaults(ctx context.Context) error {
	c := s.conn()
	return s.InTx(ctx, func(tx *sql.Tx) error {
		txc := c.withTx(tx)
		if _, err := txc.Exec(ctx, `ALTER TABLE lists ADD COLUMN is_default BOOLEAN NOT NULL DEFAULT FALSE`); err != nil {
			return fmt.Errorf("failed to add lists.is_default: %w", err)
		}
		if _, err := txc.Exec(ctx, `
			UPDATE lists SET is_default = TRUE
			WHERE LOWER(name) IN ('to watch', 'seen', 'a regarder', 'vu')
		`); err != nil {
			return fmt.Errorf("failed to flag default lists: %w", err)
		}
		return nil
	})
}
