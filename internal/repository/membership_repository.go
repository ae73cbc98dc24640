package repository

import (
	"context"
	"database/sql"
	"fmt"

	"media-tracker/internal/models"
)

// MembershipRepository handles the film, series and episode association
// tables of a list.
type MembershipRepository struct {
	c conn
}

// NewMembershipRepository creates a new MembershipRepository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{c: db.conn()}
}

// WithTx returns a repository bound to tx.
func (r *MembershipRepository) WithTx(tx *sql.Tx) *MembershipRepository {
	return &MembershipRepository{c: r.c.withTx(tx)}
}

// rankOrder sorts tiers S..F first and unranked rows last.
const rankOrder = `CASE rank
	WHEN 'S' THEN 0 WHEN 'A' THEN 1 WHEN 'B' THEN 2 WHEN 'C' THEN 3
	WHEN 'D' THEN 4 WHEN 'E' THEN 5 WHEN 'F' THEN 6 ELSE 7 END`

// rankedTable describes film_membership and series_membership, which share a shape.
type rankedTable struct {
	name   string
	column string
}

var (
	filmMembership   = rankedTable{name: "film_membership", column: "film_id"}
	seriesMembership = rankedTable{name: "series_membership", column: "series_id"}
)

// IsFilmInList reports whether the film belongs to the list
func (r *MembershipRepository) IsFilmInList(ctx context.Context, filmID int, listID int64) (bool, error) {
	return r.isRankedIn(ctx, filmMembership, filmID, listID)
}

// IsSeriesInList reports whether the series belongs to the list
func (r *MembershipRepository) IsSeriesInList(ctx context.Context, seriesID int, listID int64) (bool, error) {
	return r.isRankedIn(ctx, seriesMembership, seriesID, listID)
}

// IsEpisodeInList reports whether the episode belongs to the list
func (r *MembershipRepository) IsEpisodeInList(ctx context.Context, seriesID, season, episode int, listID int64) (bool, error) {
	return r.c.exists(ctx, `
		SELECT 1 FROM episode_membership
		WHERE list_id = ? AND series_id = ? AND season = ? AND episode = ?
	`, listID, seriesID, season, episode)
}

func (r *MembershipRepository) isRankedIn(ctx context.Context, t rankedTable, mediaID int, listID int64) (bool, error) {
	return r.c.exists(ctx, `SELECT 1 FROM `+t.name+` WHERE list_id = ? AND `+t.column+` = ?`, listID, mediaID)
}

// AddFilmToList inserts an unranked film row, ErrDuplicateAssociation if present.
func (r *MembershipRepository) AddFilmToList(ctx context.Context, filmID int, listID int64) error {
	return r.addRanked(ctx, filmMembership, filmID, listID)
}

// AddSeriesToList inserts an unranked series row, ErrDuplicateAssociation if present.
func (r *MembershipRepository) AddSeriesToList(ctx context.Context, seriesID int, listID int64) error {
	return r.addRanked(ctx, seriesMembership, seriesID, listID)
}

// AddEpisodeToList inserts an episode row, ErrDuplicateAssociation if present.
func (r *MembershipRepository) AddEpisodeToList(ctx context.Context, seriesID, season, episode int, listID int64) error {
	_, err := r.c.Exec(ctx, `
		INSERT INTO episode_membership (list_id, series_id, season, episode) VALUES (?, ?, ?, ?)
	`, listID, seriesID, season, episode)
	return associationErr(err, "episode")
}

func (r *MembershipRepository) addRanked(ctx context.Context, t rankedTable, mediaID int, listID int64) error {
	_, err := r.c.Exec(ctx, `
		INSERT INTO `+t.name+` (list_id, `+t.column+`, rank, place_rank) VALUES (?, ?, ?, 0)
	`, listID, mediaID, string(models.RankUnranked))
	return associationErr(err, t.name)
}

// LinkFilm adds the film unless it is already in the list.
func (r *MembershipRepository) LinkFilm(ctx context.Context, filmID int, listID int64) (bool, error) {
	return r.linkRanked(ctx, filmMembership, filmID, listID)
}

// LinkSeries adds the series unless it is already in the list.
func (r *MembershipRepository) LinkSeries(ctx context.Context, seriesID int, listID int64) (bool, error) {
	return r.linkRanked(ctx, seriesMembership, seriesID, listID)
}

// LinkEpisode adds the episode unless it is already in the list.
func (r *MembershipRepository) LinkEpisode(ctx context.Context, seriesID, season, episode int, listID int64) (bool, error) {
	res, err := r.c.Exec(ctx, `
		INSERT INTO episode_membership (list_id, series_id, season, episode) VALUES (?, ?, ?, ?)
		ON CONFLICT (list_id, series_id, season, episode) DO NOTHING
	`, listID, seriesID, season, episode)
	return affected(res, err)
}

func (r *MembershipRepository) linkRanked(ctx context.Context, t rankedTable, mediaID int, listID int64) (bool, error) {
	res, err := r.c.Exec(ctx, `
		INSERT INTO `+t.name+` (list_id, `+t.column+`, rank, place_rank) VALUES (?, ?, ?, 0)
		ON CONFLICT (list_id, `+t.column+`) DO NOTHING
	`, listID, mediaID, string(models.RankUnranked))
	return affected(res, err)
}

// RemoveFilmFromList deletes the film row. Absent rows are not an error.
func (r *MembershipRepository) RemoveFilmFromList(ctx context.Context, filmID int, listID int64) error {
	return r.removeRanked(ctx, filmMembership, filmID, listID)
}

// RemoveSeriesFromList deletes the series row. Absent rows are not an error.
func (r *MembershipRepository) RemoveSeriesFromList(ctx context.Context, seriesID int, listID int64) error {
	return r.removeRanked(ctx, seriesMembership, seriesID, listID)
}

// RemoveEpisodeFromList deletes the episode row. Absent rows are not an error.
func (r *MembershipRepository) RemoveEpisodeFromList(ctx context.Context, seriesID, season, episode int, listID int64) error {
	_, err := r.c.Exec(ctx, `
		DELETE FROM episode_membership
		WHERE list_id = ? AND series_id = ? AND season = ? AND episode = ?
	`, listID, seriesID, season, episode)
	if err != nil {
		return fmt.Errorf("failed to remove episode from list: %w", err)
	}
	return nil
}

// RemoveSeriesEpisodes deletes every episode row of the series in the list.
func (r *MembershipRepository) RemoveSeriesEpisodes(ctx context.Context, seriesID int, listID int64) error {
	_, err := r.c.Exec(ctx, `DELETE FROM episode_membership WHERE list_id = ? AND series_id = ?`, listID, seriesID)
	if err != nil {
		return fmt.Errorf("failed to remove series episodes from list: %w", err)
	}
	return nil
}

func (r *MembershipRepository) removeRanked(ctx context.Context, t rankedTable, mediaID int, listID int64) error {
	_, err := r.c.Exec(ctx, `DELETE FROM `+t.name+` WHERE list_id = ? AND `+t.column+` = ?`, listID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", t.name, err)
	}
	return nil
}

// SeriesHasRemainingEpisodes reports whether any episode of the series is
// still in the list.
func (r *MembershipRepository) SeriesHasRemainingEpisodes(ctx context.Context, seriesID int, listID int64) (bool, error) {
	return r.c.exists(ctx, `
		SELECT 1 FROM episode_membership WHERE list_id = ? AND series_id = ?
	`, listID, seriesID)
}

// SetFilmRank updates rank and place in place. ErrNotFound if the film is not in the list.
func (r *MembershipRepository) SetFilmRank(ctx context.Context, filmID int, listID int64, rank models.Rank, place int) error {
	return r.setRank(ctx, filmMembership, filmID, listID, rank, place)
}

// SetSeriesRank updates rank and place in place. ErrNotFound if the series is not in the list.
func (r *MembershipRepository) SetSeriesRank(ctx context.Context, seriesID int, listID int64, rank models.Rank, place int) error {
	return r.setRank(ctx, seriesMembership, seriesID, listID, rank, place)
}

func (r *MembershipRepository) setRank(ctx context.Context, t rankedTable, mediaID int, listID int64, rank models.Rank, place int) error {
	res, err := r.c.Exec(ctx, `
		UPDATE `+t.name+` SET rank = ?, place_rank = ? WHERE list_id = ? AND `+t.column+` = ?
	`, string(rank), place, listID, mediaID)
	changed, err := affected(res, err)
	if err != nil {
		return fmt.Errorf("failed to rank %s: %w", t.name, err)
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

// ListFilms returns the films of a list ordered by tier, place, then id.
func (r *MembershipRepository) ListFilms(ctx context.Context, listID int64) ([]models.RankedMembership, error) {
	return r.listRanked(ctx, filmMembership, listID)
}

// ListSeries returns the series of a list ordered by tier, place, then id.
func (r *MembershipRepository) ListSeries(ctx context.Context, listID int64) ([]models.RankedMembership, error) {
	return r.listRanked(ctx, seriesMembership, listID)
}

func (r *MembershipRepository) listRanked(ctx context.Context, t rankedTable, listID int64) ([]models.RankedMembership, error) {
	rows, err := r.c.Query(ctx, `
		SELECT `+t.column+`, rank, place_rank FROM `+t.name+`
		WHERE list_id = ?
		ORDER BY `+rankOrder+`, place_rank, `+t.column, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.RankedMembership{}
	for rows.Next() {
		var m models.RankedMembership
		var rank string
		if err := rows.Scan(&m.MediaID, &rank, &m.PlaceInRank); err != nil {
			return nil, err
		}
		m.Rank = models.Rank(rank)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListEpisodes returns the episodes of a list ordered by series, season, episode.
func (r *MembershipRepository) ListEpisodes(ctx context.Context, listID int64) ([]models.EpisodeMembership, error) {
	rows, err := r.c.Query(ctx, `
		SELECT series_id, season, episode FROM episode_membership
		WHERE list_id = ?
		ORDER BY series_id, season, episode
	`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.EpisodeMembership{}
	for rows.Next() {
		var m models.EpisodeMembership
		if err := rows.Scan(&m.SeriesID, &m.Season, &m.Episode); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearFilms deletes every film row of the list.
func (r *MembershipRepository) ClearFilms(ctx context.Context, listID int64) error {
	return r.clear(ctx, filmMembership.name, listID)
}

// ClearSeries deletes every series row of the list.
func (r *MembershipRepository) ClearSeries(ctx context.Context, listID int64) error {
	return r.clear(ctx, seriesMembership.name, listID)
}

// ClearEpisodes deletes every episode row of the list.
func (r *MembershipRepository) ClearEpisodes(ctx context.Context, listID int64) error {
	return r.clear(ctx, "episode_membership", listID)
}

func (r *MembershipRepository) clear(ctx context.Context, table string, listID int64) error {
	if _, err := r.c.Exec(ctx, `DELETE FROM `+table+` WHERE list_id = ?`, listID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

func associationErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ErrDuplicateAssociation)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}
