package service

import (
	"context"
	"time"

	"media-tracker/internal/events"
	"media-tracker/internal/models"
)

// EntityStore persists films, series and episodes materialized from the catalog.
type EntityStore interface {
	FilmExists(ctx context.Context, id int) (bool, error)
	SeriesExists(ctx context.Context, id int) (bool, error)
	EpisodeExists(ctx context.Context, seriesID, season, episode int) (bool, error)
	EnsureFilm(ctx context.Context, f models.Film) (bool, error)
	EnsureSeries(ctx context.Context, s models.Series) (bool, error)
	EnsureEpisode(ctx context.Context, e models.Episode) (bool, error)
}

// MembershipStore persists which media belong to which list.
// Link* report whether a row was created, so adding twice is safe.
type MembershipStore interface {
	LinkFilm(ctx context.Context, filmID int, listID int64) (bool, error)
	LinkSeries(ctx context.Context, seriesID int, listID int64) (bool, error)
	LinkEpisode(ctx context.Context, seriesID, season, episode int, listID int64) (bool, error)

	RemoveFilmFromList(ctx context.Context, filmID int, listID int64) error
	RemoveSeriesFromList(ctx context.Context, seriesID int, listID int64) error
	RemoveEpisodeFromList(ctx context.Context, seriesID, season, episode int, listID int64) error
	RemoveSeriesEpisodes(ctx context.Context, seriesID int, listID int64) error
	SeriesHasRemainingEpisodes(ctx context.Context, seriesID int, listID int64) (bool, error)

	SetFilmRank(ctx context.Context, filmID int, listID int64, rank models.Rank, place int) error
	SetSeriesRank(ctx context.Context, seriesID int, listID int64, rank models.Rank, place int) error

	ListFilms(ctx context.Context, listID int64) ([]models.RankedMembership, error)
	ListSeries(ctx context.Context, listID int64) ([]models.RankedMembership, error)
	ListEpisodes(ctx context.Context, listID int64) ([]models.EpisodeMembership, error)
}

// ListStore persists lists.
type ListStore interface {
	Create(ctx context.Context, list *models.List) error
	CreateDefaults(ctx context.Context, ownerID string, names []string) ([]models.List, error)
	GetByID(ctx context.Context, id int64) (*models.List, error)
	GetByIDAndOwner(ctx context.Context, id int64, ownerID string) (*models.List, error)
	GetByOwner(ctx context.Context, ownerID string) ([]models.List, error)
	Rename(ctx context.Context, id int64, name string) error
	DeleteCascade(ctx context.Context, id int64) error
}

// UserStore persists accounts.
type UserStore interface {
	CreateWithDefaults(ctx context.Context, u *models.User, listNames []string) ([]models.List, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	GetByPseudo(ctx context.Context, pseudo string) (*models.User, error)
	PseudoOrEmailTaken(ctx context.Context, pseudo, email string) (bool, error)
}

// EventPublisher receives list activity after each successful mutation.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.ListEvent) error
}

// TokenIssuer signs the token returned on login.
type TokenIssuer interface {
	Issue(pseudo, email string) (string, time.Time, error)
}
