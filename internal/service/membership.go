package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"media-tracker/internal/catalog"
	"media-tracker/internal/events"
	"media-tracker/internal/models"
	"media-tracker/internal/repository"
)

// MembershipService adds, removes and ranks media inside lists. Entities are
// materialized from the catalog the first time they are referenced.
type MembershipService struct {
	catalog  catalog.Gateway
	entities EntityStore
	members  MembershipStore
	lists    ListStore
	events   EventPublisher
	log      *zap.Logger
}

// NewMembershipService creates a new MembershipService. publisher may be nil.
func NewMembershipService(
	gateway catalog.Gateway,
	entities EntityStore,
	members MembershipStore,
	lists ListStore,
	publisher EventPublisher,
	log *zap.Logger,
) *MembershipService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MembershipService{
		catalog:  gateway,
		entities: entities,
		members:  members,
		lists:    lists,
		events:   publisher,
		log:      log.Named("membership"),
	}
}

// AddFilmToList materializes the film if needed and links it to the list.
// Adding a film that is already in the list is a no-op.
func (s *MembershipService) AddFilmToList(ctx context.Context, filmID int, listID int64) error {
	if filmID <= 0 {
		return ErrInvalidMediaID
	}
	if err := s.requireList(ctx, listID); err != nil {
		return err
	}
	if err := s.ensureFilm(ctx, filmID); err != nil {
		return err
	}

	created, err := s.members.LinkFilm(ctx, filmID, listID)
	if err != nil && !isLostRace(err) {
		return fmt.Errorf("failed to add film %d to list %d: %w", filmID, listID, err)
	}
	if created {
		s.publish(ctx, events.MediaEvent(events.TypeAdded, models.KindFilm, listID, filmID))
	}
	return nil
}

// AddSeriesToList materializes the series if needed and links it to the list.
func (s *MembershipService) AddSeriesToList(ctx context.Context, seriesID int, listID int64) error {
	if seriesID <= 0 {
		return ErrInvalidMediaID
	}
	if err := s.requireList(ctx, listID); err != nil {
		return err
	}
	if err := s.ensureSeries(ctx, seriesID); err != nil {
		return err
	}
	return s.linkSeries(ctx, seriesID, listID)
}

// AddEpisodeToList marks an episode as watched in the list. The series entity,
// the series membership and the episode entity are created on the way when
// missing.
func (s *MembershipService) AddEpisodeToList(ctx context.Context, seriesID int, listID int64, season, episode int) error {
	if seriesID <= 0 || season < 0 || episode <= 0 {
		return ErrInvalidMediaID
	}
	if err := s.requireList(ctx, listID); err != nil {
		return err
	}
	if err := s.ensureSeries(ctx, seriesID); err != nil {
		return err
	}
	if err := s.linkSeries(ctx, seriesID, listID); err != nil {
		return err
	}
	if err := s.ensureEpisode(ctx, seriesID, season, episode); err != nil {
		return err
	}

	created, err := s.members.LinkEpisode(ctx, seriesID, season, episode, listID)
	if err != nil && !isLostRace(err) {
		return fmt.Errorf("failed to add episode S%02dE%02d of series %d to list %d: %w", season, episode, seriesID, listID, err)
	}
	if created {
		s.publish(ctx, events.EpisodeEvent(events.TypeAdded, listID, seriesID, season, episode))
	}
	// A concurrent removal of the last sibling episode may have unlinked the
	// series between the first link and LinkEpisode.
	return s.linkSeries(ctx, seriesID, listID)
}

// RemoveFilmFromList unlinks the film. The film entity is kept.
func (s *MembershipService) RemoveFilmFromList(ctx context.Context, filmID int, listID int64) error {
	if err := s.requireList(ctx, listID); err != nil {
		return err
	}
	if err := s.members.RemoveFilmFromList(ctx, filmID, listID); err != nil {
		return err
	}
	s.publish(ctx, events.MediaEvent(events.TypeRemoved, models.KindFilm, listID, filmID))
	return nil
}

// RemoveSeriesFromList unlinks the series together with every episode of it
// marked in the list.
func (s *MembershipService) RemoveSeriesFromList(ctx context.Context, seriesID int, listID int64) error {
	if err := s.requireList(ctx, listID); err != nil {
		return err
	}
	if err := s.members.RemoveSeriesEpisodes(ctx, seriesID, listID); err != nil {
		return err
	}
	if err := s.members.RemoveSeriesFromList(ctx, seriesID, listID); err != nil {
		return err
	}
	s.publish(ctx, events.MediaEvent(events.TypeRemoved, models.KindSeries, listID, seriesID))
	return nil
}

// RemoveEpisodeFromList unmarks the episode. When it was the last marked
// episode of its series in the list, the series leaves the list too.
func (s *MembershipService) RemoveEpisodeFromList(ctx context.Context, seriesID int, listID int64, season, episode int) error {
	if err := s.requireList(ctx, listID); err != nil {
		return err
	}
	if err := s.members.RemoveEpisodeFromList(ctx, seriesID, season, episode, listID); err != nil {
		return err
	}
	s.publish(ctx, events.EpisodeEvent(events.TypeRemoved, listID, seriesID, season, episode))

	// Must observe the committed delete above.
	remaining, err := s.members.SeriesHasRemainingEpisodes(ctx, seriesID, listID)
	if err != nil {
		return fmt.Errorf("failed to check remaining episodes: %w", err)
	}
	if remaining {
		return nil
	}
	if err := s.members.RemoveSeriesFromList(ctx, seriesID, listID); err != nil {
		return err
	}
	s.log.Debug("series left list with its last episode",
		zap.Int("series_id", seriesID), zap.Int64("list_id", listID))
	s.publish(ctx, events.MediaEvent(events.TypeRemoved, models.KindSeries, listID, seriesID))
	return nil
}

// SetFilmRank updates the tier and place of a film already in the list.
func (s *MembershipService) SetFilmRank(ctx context.Context, filmID int, listID int64, rank models.Rank, place int) error {
	return s.setRank(ctx, models.KindFilm, filmID, listID, rank, place)
}

// SetSeriesRank updates the tier and place of a series already in the list.
func (s *MembershipService) SetSeriesRank(ctx context.Context, seriesID int, listID int64, rank models.Rank, place int) error {
	return s.setRank(ctx, models.KindSeries, seriesID, listID, rank, place)
}

func (s *MembershipService) setRank(ctx context.Context, kind models.MediaKind, mediaID int, listID int64, rank models.Rank, place int) error {
	if !rank.Valid() || place < 0 {
		return fmt.Errorf("%w: %q at place %d", ErrInvalidRank, rank, place)
	}
	if err := s.requireList(ctx, listID); err != nil {
		return err
	}

	var err error
	if kind == models.KindSeries {
		err = s.members.SetSeriesRank(ctx, mediaID, listID, rank, place)
	} else {
		err = s.members.SetFilmRank(ctx, mediaID, listID, rank, place)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotInList
	}
	if err != nil {
		return err
	}
	s.publish(ctx, events.RankEvent(kind, listID, mediaID, rank, place))
	return nil
}

// GetFilmsInList returns the films of the list, best tier first.
func (s *MembershipService) GetFilmsInList(ctx context.Context, listID int64) ([]models.RankedMembership, error) {
	if err := s.requireList(ctx, listID); err != nil {
		return nil, err
	}
	return s.members.ListFilms(ctx, listID)
}

// GetSeriesInList returns the series of the list, best tier first.
func (s *MembershipService) GetSeriesInList(ctx context.Context, listID int64) ([]models.RankedMembership, error) {
	if err := s.requireList(ctx, listID); err != nil {
		return nil, err
	}
	return s.members.ListSeries(ctx, listID)
}

// GetEpisodesInList returns the watched episodes of the list.
func (s *MembershipService) GetEpisodesInList(ctx context.Context, listID int64) ([]models.EpisodeMembership, error) {
	if err := s.requireList(ctx, listID); err != nil {
		return nil, err
	}
	return s.members.ListEpisodes(ctx, listID)
}

// Add dispatches to AddFilmToList or AddSeriesToList.
func (s *MembershipService) Add(ctx context.Context, kind models.MediaKind, mediaID int, listID int64) error {
	switch kind {
	case models.KindFilm:
		return s.AddFilmToList(ctx, mediaID, listID)
	case models.KindSeries:
		return s.AddSeriesToList(ctx, mediaID, listID)
	}
	return unknownKind(kind)
}

// Remove dispatches to RemoveFilmFromList or RemoveSeriesFromList.
func (s *MembershipService) Remove(ctx context.Context, kind models.MediaKind, mediaID int, listID int64) error {
	switch kind {
	case models.KindFilm:
		return s.RemoveFilmFromList(ctx, mediaID, listID)
	case models.KindSeries:
		return s.RemoveSeriesFromList(ctx, mediaID, listID)
	}
	return unknownKind(kind)
}

// SetRank dispatches to SetFilmRank or SetSeriesRank.
func (s *MembershipService) SetRank(ctx context.Context, kind models.MediaKind, mediaID int, listID int64, rank models.Rank, place int) error {
	switch kind {
	case models.KindFilm, models.KindSeries:
		return s.setRank(ctx, kind, mediaID, listID, rank, place)
	}
	return unknownKind(kind)
}

// ListMedia dispatches to GetFilmsInList or GetSeriesInList.
func (s *MembershipService) ListMedia(ctx context.Context, kind models.MediaKind, listID int64) ([]models.RankedMembership, error) {
	switch kind {
	case models.KindFilm:
		return s.GetFilmsInList(ctx, listID)
	case models.KindSeries:
		return s.GetSeriesInList(ctx, listID)
	}
	return nil, unknownKind(kind)
}

func unknownKind(kind models.MediaKind) error {
	return fmt.Errorf("unsupported media kind %d", int(kind))
}

func (s *MembershipService) requireList(ctx context.Context, listID int64) error {
	list, err := s.lists.GetByID(ctx, listID)
	if err != nil {
		return fmt.Errorf("failed to load list %d: %w", listID, err)
	}
	if list == nil {
		return ErrListNotFound
	}
	return nil
}

func (s *MembershipService) ensureFilm(ctx context.Context, filmID int) error {
	exists, err := s.entities.FilmExists(ctx, filmID)
	if err != nil {
		return fmt.Errorf("failed to check film %d: %w", filmID, err)
	}
	if exists {
		return nil
	}

	meta, err := s.catalog.FetchFilmMetadata(ctx, filmID)
	if err != nil {
		return fmt.Errorf("failed to fetch film %d: %w", filmID, err)
	}
	created, err := s.entities.EnsureFilm(ctx, models.Film{ID: filmID, Title: meta.Title, RuntimeMinutes: meta.RuntimeMinutes})
	if err != nil && !isLostRace(err) {
		return fmt.Errorf("failed to store film %d: %w", filmID, err)
	}
	s.log.Debug("film materialized", zap.Int("film_id", filmID), zap.Bool("created", created))
	return nil
}

func (s *MembershipService) ensureSeries(ctx context.Context, seriesID int) error {
	exists, err := s.entities.SeriesExists(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("failed to check series %d: %w", seriesID, err)
	}
	if exists {
		return nil
	}

	meta, err := s.catalog.FetchSeriesMetadata(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("failed to fetch series %d: %w", seriesID, err)
	}
	created, err := s.entities.EnsureSeries(ctx, models.Series{ID: seriesID, Title: meta.Title})
	if err != nil && !isLostRace(err) {
		return fmt.Errorf("failed to store series %d: %w", seriesID, err)
	}
	s.log.Debug("series materialized", zap.Int("series_id", seriesID), zap.Bool("created", created))
	return nil
}

func (s *MembershipService) ensureEpisode(ctx context.Context, seriesID, season, episode int) error {
	exists, err := s.entities.EpisodeExists(ctx, seriesID, season, episode)
	if err != nil {
		return fmt.Errorf("failed to check episode: %w", err)
	}
	if exists {
		return nil
	}

	meta, err := s.catalog.FetchEpisodeMetadata(ctx, seriesID, season, episode)
	if err != nil {
		return fmt.Errorf("failed to fetch episode S%02dE%02d of series %d: %w", season, episode, seriesID, err)
	}
	_, err = s.entities.EnsureEpisode(ctx, models.Episode{
		SeriesID:       seriesID,
		Season:         season,
		Episode:        episode,
		RuntimeMinutes: meta.RuntimeMinutes,
	})
	if err != nil && !isLostRace(err) {
		return fmt.Errorf("failed to store episode: %w", err)
	}
	return nil
}

func (s *MembershipService) linkSeries(ctx context.Context, seriesID int, listID int64) error {
	created, err := s.members.LinkSeries(ctx, seriesID, listID)
	if err != nil && !isLostRace(err) {
		return fmt.Errorf("failed to add series %d to list %d: %w", seriesID, listID, err)
	}
	if created {
		s.publish(ctx, events.MediaEvent(events.TypeAdded, models.KindSeries, listID, seriesID))
	}
	return nil
}

func (s *MembershipService) publish(ctx context.Context, evt events.ListEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("failed to publish list event",
			zap.String("subject", evt.Subject()),
			zap.String("event_id", evt.EventID),
			zap.Error(err),
		)
	}
}
