// Package catalog describes the read-only media catalog consumed when a film,
// series or episode is referenced for the first time.
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the catalog has no record for the requested id.
	ErrNotFound = errors.New("catalog: media not found")
	// ErrUnavailable means the catalog could not be reached or answered with a
	// transient failure. Callers may retry.
	ErrUnavailable = errors.New("catalog: upstream unavailable")
)

// FilmMetadata is the canonical film shape kept in the entity store.
type FilmMetadata struct {
	Title          string
	RuntimeMinutes int
}

// SeriesMetadata is the canonical series shape kept in the entity store.
type SeriesMetadata struct {
	Title string
}

// EpisodeMetadata is the canonical episode shape kept in the entity store.
type EpisodeMetadata struct {
	RuntimeMinutes int
}

// Gateway looks up canonical metadata by id.
type Gateway interface {
	FetchFilmMetadata(ctx context.Context, id int) (FilmMetadata, error)
	FetchSeriesMetadata(ctx context.Context, id int) (SeriesMetadata, error)
	FetchEpisodeMetadata(ctx context.Context, seriesID, season, episode int) (EpisodeMetadata, error)
}
