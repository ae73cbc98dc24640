package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"media-tracker/internal/catalog"
	"media-tracker/internal/events"
	"media-tracker/internal/models"
	"media-tracker/internal/repository"
)

type episodeKey struct{ series, season, episode int }

// fakeCatalog serves fixed metadata and counts lookups.
type fakeCatalog struct {
	mu       sync.Mutex
	films    map[int]catalog.FilmMetadata
	series   map[int]catalog.SeriesMetadata
	episodes map[episodeKey]catalog.EpisodeMetadata
	err      error
	calls    int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		films: map[int]catalog.FilmMetadata{
			550: {Title: "Fight Club", RuntimeMinutes: 139},
		},
		series: map[int]catalog.SeriesMetadata{
			1399: {Title: "Game of Thrones"},
		},
		episodes: map[episodeKey]catalog.EpisodeMetadata{},
	}
}

func (c *fakeCatalog) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeCatalog) FetchFilmMetadata(_ context.Context, id int) (catalog.FilmMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return catalog.FilmMetadata{}, c.err
	}
	if m, ok := c.films[id]; ok {
		return m, nil
	}
	if id >= 10_000 {
		return catalog.FilmMetadata{Title: "generated", RuntimeMinutes: id % 200}, nil
	}
	return catalog.FilmMetadata{}, catalog.ErrNotFound
}

func (c *fakeCatalog) FetchSeriesMetadata(_ context.Context, id int) (catalog.SeriesMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return catalog.SeriesMetadata{}, c.err
	}
	if m, ok := c.series[id]; ok {
		return m, nil
	}
	if id >= 10_000 {
		return catalog.SeriesMetadata{Title: "generated"}, nil
	}
	return catalog.SeriesMetadata{}, catalog.ErrNotFound
}

func (c *fakeCatalog) FetchEpisodeMetadata(_ context.Context, seriesID, season, episode int) (catalog.EpisodeMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return catalog.EpisodeMetadata{}, c.err
	}
	if m, ok := c.episodes[episodeKey{seriesID, season, episode}]; ok {
		return m, nil
	}
	return catalog.EpisodeMetadata{RuntimeMinutes: 50 + episode}, nil
}

// recordingPublisher keeps every subject it was asked to publish.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.ListEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, evt.Subject())
	return p.err
}

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type testEnv struct {
	db       *repository.DB
	catalog  *fakeCatalog
	events   *recordingPublisher
	entities *repository.EntityRepository
	members  *repository.MembershipRepository
	listRepo *repository.ListRepository
	users    *repository.UserRepository
	svc      *MembershipService
	lists    *ListService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	env := &testEnv{
		db:       db,
		catalog:  newFakeCatalog(),
		events:   &recordingPublisher{},
		entities: repository.NewEntityRepository(db),
		members:  repository.NewMembershipRepository(db),
		listRepo: repository.NewListRepository(db),
		users:    repository.NewUserRepository(db),
	}
	env.svc = NewMembershipService(env.catalog, env.entities, env.members, env.listRepo, env.events, nil)
	env.lists = NewListService(env.listRepo, env.events, nil)
	return env
}

func (e *testEnv) newList(t *testing.T, owner, name string) int64 {
	t.Helper()
	l, err := e.lists.CreateList(context.Background(), owner, name)
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	return l.ID
}

// losingEntities behaves as if another writer inserted every entity between
// the existence check and the insert.
type losingEntities struct {
	*repository.EntityRepository
}

func (l losingEntities) FilmExists(context.Context, int) (bool, error) { return false, nil }

func (l losingEntities) EnsureFilm(ctx context.Context, f models.Film) (bool, error) {
	if _, err := l.EntityRepository.EnsureFilm(ctx, f); err != nil {
		return false, err
	}
	return false, repository.ErrDuplicateKey
}

// losingMembers reports every film link as a duplicate after writing it.
type losingMembers struct {
	*repository.MembershipRepository
}

func (l losingMembers) LinkFilm(ctx context.Context, filmID int, listID int64) (bool, error) {
	if _, err := l.MembershipRepository.LinkFilm(ctx, filmID, listID); err != nil {
		return false, err
	}
	return false, repository.ErrDuplicateAssociation
}

var errBoom = errors.New("boom")
