package repository

import (
	"context"
	"database/sql"
	"fmt"

	"media-tracker/internal/models"
)

// EntityRepository stores films, series and episodes materialized from the
// catalog. Rows are never updated or deleted.
type EntityRepository struct {
	c conn
}

// NewEntityRepository creates a new EntityRepository
func NewEntityRepository(db *DB) *EntityRepository {
	return &EntityRepository{c: db.conn()}
}

// WithTx returns a repository bound to tx.
func (r *EntityRepository) WithTx(tx *sql.Tx) *EntityRepository {
	return &EntityRepository{c: r.c.withTx(tx)}
}

// FilmExists reports whether a film row exists
func (r *EntityRepository) FilmExists(ctx context.Context, id int) (bool, error) {
	return r.c.exists(ctx, `SELECT 1 FROM films WHERE id = ?`, id)
}

// SeriesExists reports whether a series row exists
func (r *EntityRepository) SeriesExists(ctx context.Context, id int) (bool, error) {
	return r.c.exists(ctx, `SELECT 1 FROM series WHERE id = ?`, id)
}

// EpisodeExists reports whether an episode row exists
func (r *EntityRepository) EpisodeExists(ctx context.Context, seriesID, season, episode int) (bool, error) {
	return r.c.exists(ctx, `
		SELECT 1 FROM episodes WHERE series_id = ? AND season = ? AND episode = ?
	`, seriesID, season, episode)
}

// InsertFilm inserts a film, returning ErrDuplicateKey if the id is taken.
func (r *EntityRepository) InsertFilm(ctx context.Context, f models.Film) error {
	_, err := r.c.Exec(ctx, `
		INSERT INTO films (id, title, runtime_minutes) VALUES (?, ?, ?)
	`, f.ID, f.Title, f.RuntimeMinutes)
	return insertErr(err, "film")
}

// InsertSeries inserts a series, returning ErrDuplicateKey if the id is taken.
func (r *EntityRepository) InsertSeries(ctx context.Context, s models.Series) error {
	_, err := r.c.Exec(ctx, `INSERT INTO series (id, title) VALUES (?, ?)`, s.ID, s.Title)
	return insertErr(err, "series")
}

// InsertEpisode inserts an episode, returning ErrDuplicateKey if the key is taken.
func (r *EntityRepository) InsertEpisode(ctx context.Context, e models.Episode) error {
	_, err := r.c.Exec(ctx, `
		INSERT INTO episodes (series_id, season, episode, runtime_minutes) VALUES (?, ?, ?, ?)
	`, e.SeriesID, e.Season, e.Episode, e.RuntimeMinutes)
	return insertErr(err, "episode")
}

// EnsureFilm inserts the film unless a row with the same id exists.
// created is false when another writer got there first.
func (r *EntityRepository) EnsureFilm(ctx context.Context, f models.Film) (bool, error) {
	res, err := r.c.Exec(ctx, `
		INSERT INTO films (id, title, runtime_minutes) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, f.ID, f.Title, f.RuntimeMinutes)
	return affected(res, err)
}

// EnsureSeries inserts the series unless a row with the same id exists.
func (r *EntityRepository) EnsureSeries(ctx context.Context, s models.Series) (bool, error) {
	res, err := r.c.Exec(ctx, `
		INSERT INTO series (id, title) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.Title)
	return affected(res, err)
}

// EnsureEpisode inserts the episode unless the composite key exists.
func (r *EntityRepository) EnsureEpisode(ctx context.Context, e models.Episode) (bool, error) {
	res, err := r.c.Exec(ctx, `
		INSERT INTO episodes (series_id, season, episode, runtime_minutes) VALUES (?, ?, ?, ?)
		ON CONFLICT (series_id, season, episode) DO NOTHING
	`, e.SeriesID, e.Season, e.Episode, e.RuntimeMinutes)
	return affected(res, err)
}

// GetFilm retrieves a film by id, nil when absent
func (r *EntityRepository) GetFilm(ctx context.Context, id int) (*models.Film, error) {
	f := &models.Film{}
	err := r.c.QueryRow(ctx, `SELECT id, title, runtime_minutes FROM films WHERE id = ?`, id).
		Scan(&f.ID, &f.Title, &f.RuntimeMinutes)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetSeries retrieves a series by id, nil when absent
func (r *EntityRepository) GetSeries(ctx context.Context, id int) (*models.Series, error) {
	s := &models.Series{}
	err := r.c.QueryRow(ctx, `SELECT id, title FROM series WHERE id = ?`, id).Scan(&s.ID, &s.Title)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetEpisode retrieves an episode by key, nil when absent
func (r *EntityRepository) GetEpisode(ctx context.Context, seriesID, season, episode int) (*models.Episode, error) {
	e := &models.Episode{}
	err := r.c.QueryRow(ctx, `
		SELECT series_id, season, episode, runtime_minutes
		FROM episodes WHERE series_id = ? AND season = ? AND episode = ?
	`, seriesID, season, episode).Scan(&e.SeriesID, &e.Season, &e.Episode, &e.RuntimeMinutes)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func insertErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ErrDuplicateKey)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
