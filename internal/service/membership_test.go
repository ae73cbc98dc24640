package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"media-tracker/internal/catalog"
	"media-tracker/internal/models"
	"media-tracker/internal/repository"
)

func TestFightClubScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "alice", "Cult classics")

	if err := env.svc.AddFilmToList(ctx, 550, listID); err != nil {
		t.Fatalf("first add: %v", err)
	}
	film, err := env.entities.GetFilm(ctx, 550)
	if err != nil || film == nil || film.Title != "Fight Club" || film.RuntimeMinutes != 139 {
		t.Fatalf("Film(550) = %+v, %v", film, err)
	}
	if env.catalog.Calls() != 1 {
		t.Fatalf("catalog calls = %d, want 1", env.catalog.Calls())
	}

	if err := env.svc.AddFilmToList(ctx, 550, listID); err != nil {
		t.Fatalf("second add must not fail: %v", err)
	}
	if env.catalog.Calls() != 1 {
		t.Fatalf("second add consulted the catalog again (%d calls)", env.catalog.Calls())
	}

	if err := env.svc.SetFilmRank(ctx, 550, listID, models.RankS, 1); err != nil {
		t.Fatalf("SetFilmRank: %v", err)
	}
	films, err := env.svc.GetFilmsInList(ctx, listID)
	if err != nil {
		t.Fatal(err)
	}
	want := models.RankedMembership{MediaID: 550, Rank: models.RankS, PlaceInRank: 1}
	if len(films) != 1 || films[0] != want {
		t.Fatalf("films = %+v, want [%+v]", films, want)
	}

	if err := env.svc.RemoveFilmFromList(ctx, 550, listID); err != nil {
		t.Fatal(err)
	}
	if in, _ := env.members.IsFilmInList(ctx, 550, listID); in {
		t.Fatal("membership still present after remove")
	}
	if ok, _ := env.entities.FilmExists(ctx, 550); !ok {
		t.Fatal("film entity must never be deleted")
	}

	wantSubjects := []string{"lists.film.added", "lists.film.ranked", "lists.film.removed"}
	got := env.events.Subjects()
	if len(got) != len(wantSubjects) {
		t.Fatalf("events = %v, want %v", got, wantSubjects)
	}
	for i := range wantSubjects {
		if got[i] != wantSubjects[i] {
			t.Fatalf("events = %v, want %v", got, wantSubjects)
		}
	}
}

// Adding a film any number of times leaves one membership and one catalog call.
func TestAddFilmIdempotence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "prop", "idempotence")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated adds equal one add", prop.ForAll(
		func(filmID int, repeats int) bool {
			before := env.catalog.Calls()
			for i := 0; i < repeats; i++ {
				if err := env.svc.AddFilmToList(ctx, filmID, listID); err != nil {
					t.Logf("AddFilmToList: %v", err)
					return false
				}
			}
			fetched := env.catalog.Calls() - before

			films, err := env.svc.GetFilmsInList(ctx, listID)
			if err != nil {
				return false
			}
			count := 0
			for _, f := range films {
				if f.MediaID == filmID {
					count++
				}
			}
			// A film seen in an earlier run is already materialized.
			return count == 1 && fetched <= 1
		},
		gen.IntRange(10_000, 20_000),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestAddFilmCatalogFailuresLeaveNoEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "alice", "Films")

	err := env.svc.AddFilmToList(ctx, 404, listID)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("unknown film err = %v, want catalog.ErrNotFound", err)
	}
	if ok, _ := env.entities.FilmExists(ctx, 404); ok {
		t.Fatal("film created despite catalog miss")
	}

	env.catalog.err = catalog.ErrUnavailable
	err = env.svc.AddFilmToList(ctx, 12345, listID)
	if !errors.Is(err, catalog.ErrUnavailable) {
		t.Fatalf("outage err = %v, want catalog.ErrUnavailable", err)
	}
	if ok, _ := env.entities.FilmExists(ctx, 12345); ok {
		t.Fatal("film created despite catalog outage")
	}
	if films, _ := env.svc.GetFilmsInList(ctx, listID); len(films) != 0 {
		t.Fatalf("memberships created despite failures: %+v", films)
	}
}

func TestAddToUnknownListSkipsCatalog(t *testing.T) {
	env := newTestEnv(t)

	if err := env.svc.AddFilmToList(context.Background(), 550, 999); !errors.Is(err, ErrListNotFound) {
		t.Fatalf("err = %v, want ErrListNotFound", err)
	}
	if env.catalog.Calls() != 0 {
		t.Fatal("catalog consulted for a missing list")
	}
}

func TestEpisodeCascadeAdd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "bob", "Watching")

	if err := env.svc.AddEpisodeToList(ctx, 1399, listID, 1, 1); err != nil {
		t.Fatalf("AddEpisodeToList: %v", err)
	}

	if ok, _ := env.entities.SeriesExists(ctx, 1399); !ok {
		t.Error("series entity missing")
	}
	if ok, _ := env.members.IsSeriesInList(ctx, 1399, listID); !ok {
		t.Error("series membership missing")
	}
	if ep, _ := env.entities.GetEpisode(ctx, 1399, 1, 1); ep == nil || ep.RuntimeMinutes != 51 {
		t.Errorf("episode entity = %+v", ep)
	}
	if ok, _ := env.members.IsEpisodeInList(ctx, 1399, 1, 1, listID); !ok {
		t.Error("episode membership missing")
	}

	calls := env.catalog.Calls()
	if err := env.svc.AddEpisodeToList(ctx, 1399, listID, 1, 1); err != nil {
		t.Fatalf("repeat AddEpisodeToList: %v", err)
	}
	if env.catalog.Calls() != calls {
		t.Fatal("repeat add consulted the catalog")
	}
}

func TestEpisodeCascadeRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("last episode", func(t *testing.T) {
		env := newTestEnv(t)
		listID := env.newList(t, "bob", "Watching")
		if err := env.svc.AddEpisodeToList(ctx, 1399, listID, 1, 1); err != nil {
			t.Fatal(err)
		}

		if err := env.svc.RemoveEpisodeFromList(ctx, 1399, listID, 1, 1); err != nil {
			t.Fatal(err)
		}
		if ok, _ := env.members.IsEpisodeInList(ctx, 1399, 1, 1, listID); ok {
			t.Error("episode membership still present")
		}
		if ok, _ := env.members.IsSeriesInList(ctx, 1399, listID); ok {
			t.Error("series membership must leave with its last episode")
		}
	})

	t.Run("not last episode", func(t *testing.T) {
		env := newTestEnv(t)
		listID := env.newList(t, "bob", "Watching")
		for _, ep := range []int{1, 2} {
			if err := env.svc.AddEpisodeToList(ctx, 1399, listID, 1, ep); err != nil {
				t.Fatal(err)
			}
		}

		if err := env.svc.RemoveEpisodeFromList(ctx, 1399, listID, 1, 1); err != nil {
			t.Fatal(err)
		}
		if ok, _ := env.members.IsSeriesInList(ctx, 1399, listID); !ok {
			t.Error("series membership removed while episodes remain")
		}
		if ok, _ := env.members.IsEpisodeInList(ctx, 1399, 1, 2, listID); !ok {
			t.Error("sibling episode membership removed")
		}
	})
}

func TestRemoveSeriesDropsItsEpisodes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "bob", "Watching")
	for _, ep := range []int{1, 2, 3} {
		if err := env.svc.AddEpisodeToList(ctx, 1399, listID, 2, ep); err != nil {
			t.Fatal(err)
		}
	}

	if err := env.svc.RemoveSeriesFromList(ctx, 1399, listID); err != nil {
		t.Fatal(err)
	}
	eps, err := env.svc.GetEpisodesInList(ctx, listID)
	if err != nil || len(eps) != 0 {
		t.Fatalf("episodes left = %+v, %v", eps, err)
	}
	if series, _ := env.svc.GetSeriesInList(ctx, listID); len(series) != 0 {
		t.Fatalf("series left = %+v", series)
	}
}

func TestSeriesAddedDirectlyHasNoEpisodes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "bob", "Later")

	if err := env.svc.Add(ctx, models.KindSeries, 1399, listID); err != nil {
		t.Fatal(err)
	}
	series, err := env.svc.ListMedia(ctx, models.KindSeries, listID)
	if err != nil || len(series) != 1 || series[0].Rank != models.RankUnranked {
		t.Fatalf("series = %+v, %v", series, err)
	}
	if eps, _ := env.svc.GetEpisodesInList(ctx, listID); len(eps) != 0 {
		t.Fatalf("adding a series must not mark episodes: %+v", eps)
	}
}

func TestSetRankValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "carol", "Ranked")

	if err := env.svc.SetFilmRank(ctx, 550, listID, models.RankS, 1); !errors.Is(err, ErrNotInList) {
		t.Fatalf("rank without membership = %v, want ErrNotInList", err)
	}
	if ok, _ := env.members.IsFilmInList(ctx, 550, listID); ok {
		t.Fatal("ranking must never create a membership")
	}

	if err := env.svc.AddFilmToList(ctx, 550, listID); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.SetRank(ctx, models.KindFilm, 550, listID, models.Rank("Z"), 1); !errors.Is(err, ErrInvalidRank) {
		t.Fatalf("bad tier = %v, want ErrInvalidRank", err)
	}
	if err := env.svc.SetRank(ctx, models.KindFilm, 550, listID, models.RankA, -1); !errors.Is(err, ErrInvalidRank) {
		t.Fatalf("negative place = %v, want ErrInvalidRank", err)
	}
	if err := env.svc.SetSeriesRank(ctx, 1399, listID, models.RankA, 0); !errors.Is(err, ErrNotInList) {
		t.Fatalf("series rank without membership = %v, want ErrNotInList", err)
	}
}

func TestQueriesOnUnknownList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.svc.GetFilmsInList(ctx, 77); !errors.Is(err, ErrListNotFound) {
		t.Errorf("GetFilmsInList = %v", err)
	}
	if _, err := env.svc.GetSeriesInList(ctx, 77); !errors.Is(err, ErrListNotFound) {
		t.Errorf("GetSeriesInList = %v", err)
	}
	if _, err := env.svc.GetEpisodesInList(ctx, 77); !errors.Is(err, ErrListNotFound) {
		t.Errorf("GetEpisodesInList = %v", err)
	}
}

func TestLostInsertRaceIsSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "dave", "Race")

	svc := NewMembershipService(
		env.catalog,
		losingEntities{env.entities},
		losingMembers{env.members},
		env.listRepo,
		env.events,
		nil,
	)
	if err := svc.AddFilmToList(ctx, 550, listID); err != nil {
		t.Fatalf("lost race surfaced as error: %v", err)
	}
	if ok, _ := env.members.IsFilmInList(ctx, 550, listID); !ok {
		t.Fatal("membership missing")
	}
	if len(env.events.Subjects()) != 0 {
		t.Fatal("the losing writer must not announce the add")
	}
}

func TestConcurrentAddsOfSameFilm(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "erin", "Busy")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.svc.AddFilmToList(ctx, 550, listID)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent add failed: %v", err)
		}
	}
	films, err := env.svc.GetFilmsInList(ctx, listID)
	if err != nil || len(films) != 1 {
		t.Fatalf("films = %+v, %v", films, err)
	}
}

func TestPublishFailureIsNotSurfaced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.events.err = errBoom
	listID := env.newList(t, "frank", "Quiet")

	if err := env.svc.AddFilmToList(ctx, 550, listID); err != nil {
		t.Fatalf("publish error leaked: %v", err)
	}
}

func TestUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.Add(context.Background(), models.MediaKind(0), 1, 1); err == nil {
		t.Fatal("expected error for zero kind")
	}
}

// interleavingMembers runs hook once, right after the first series link.
type interleavingMembers struct {
	*repository.MembershipRepository
	hook func()
}

func (m *interleavingMembers) LinkSeries(ctx context.Context, seriesID int, listID int64) (bool, error) {
	created, err := m.MembershipRepository.LinkSeries(ctx, seriesID, listID)
	if m.hook != nil {
		hook := m.hook
		m.hook = nil
		hook()
	}
	return created, err
}

func TestEpisodeAddSurvivesConcurrentLastEpisodeRemoval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	listID := env.newList(t, "bob", "Watching")
	if err := env.svc.AddEpisodeToList(ctx, 1399, listID, 1, 1); err != nil {
		t.Fatal(err)
	}

	members := &interleavingMembers{MembershipRepository: env.members}
	members.hook = func() {
		// Another device removes the only episode, taking the series with it.
		if err := env.svc.RemoveEpisodeFromList(ctx, 1399, listID, 1, 1); err != nil {
			t.Errorf("concurrent remove: %v", err)
		}
	}
	other := NewMembershipService(env.catalog, env.entities, members, env.listRepo, env.events, nil)
	if err := other.AddEpisodeToList(ctx, 1399, listID, 1, 2); err != nil {
		t.Fatalf("AddEpisodeToList: %v", err)
	}

	episodes, err := env.members.ListEpisodes(ctx, listID)
	if err != nil || len(episodes) != 1 || episodes[0] != (models.EpisodeMembership{SeriesID: 1399, Season: 1, Episode: 2}) {
		t.Fatalf("episodes = %+v, %v", episodes, err)
	}
	if ok, err := env.members.IsSeriesInList(ctx, 1399, listID); err != nil || !ok {
		t.Fatalf("series must be in the list while one of its episodes is: %v, %v", ok, err)
	}
}
