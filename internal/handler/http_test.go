package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"media-tracker/internal/auth"
	"media-tracker/internal/catalog"
	"media-tracker/internal/models"
	"media-tracker/internal/repository"
	"media-tracker/internal/service"
	"media-tracker/internal/tmdb"
)

type stubGateway struct{ err error }

func (g stubGateway) FetchFilmMetadata(_ context.Context, id int) (catalog.FilmMetadata, error) {
	if g.err != nil {
		return catalog.FilmMetadata{}, g.err
	}
	if id == 550 {
		return catalog.FilmMetadata{Title: "Fight Club", RuntimeMinutes: 139}, nil
	}
	return catalog.FilmMetadata{}, catalog.ErrNotFound
}

func (g stubGateway) FetchSeriesMetadata(_ context.Context, id int) (catalog.SeriesMetadata, error) {
	if g.err != nil {
		return catalog.SeriesMetadata{}, g.err
	}
	return catalog.SeriesMetadata{Title: "Series"}, nil
}

func (g stubGateway) FetchEpisodeMetadata(context.Context, int, int, int) (catalog.EpisodeMetadata, error) {
	if g.err != nil {
		return catalog.EpisodeMetadata{}, g.err
	}
	return catalog.EpisodeMetadata{RuntimeMinutes: 45}, nil
}

type stubBrowser struct{}

func (stubBrowser) Search(_ context.Context, kind models.MediaKind, query string) ([]tmdb.SearchResult, error) {
	return []tmdb.SearchResult{{ID: 550, Title: query}}, nil
}

func (stubBrowser) Trending(context.Context, models.MediaKind) ([]tmdb.SearchResult, error) {
	return nil, catalog.ErrUnavailable
}

func (stubBrowser) Series(_ context.Context, seriesID int) (*tmdb.TVDetails, error) {
	if seriesID != 1399 {
		return nil, catalog.ErrNotFound
	}
	return &tmdb.TVDetails{ID: 1399, Name: "Game of Thrones", NumberOfSeasons: 8}, nil
}

func (stubBrowser) Season(_ context.Context, seriesID, season int) (*tmdb.SeasonDetails, error) {
	if seriesID != 1399 || season != 1 {
		return nil, catalog.ErrNotFound
	}
	return &tmdb.SeasonDetails{SeasonNumber: 1, Episodes: []tmdb.EpisodeDetails{
		{SeasonNumber: 1, EpisodeNumber: 1, Name: "Winter Is Coming"},
		{SeasonNumber: 1, EpisodeNumber: 2, Name: "The Kingsroad"},
	}}, nil
}

func (stubBrowser) Episode(_ context.Context, seriesID, season, episode int) (*tmdb.EpisodeDetails, error) {
	if seriesID != 1399 || season != 1 || episode != 2 {
		return nil, catalog.ErrNotFound
	}
	runtime := 56
	return &tmdb.EpisodeDetails{SeasonNumber: 1, EpisodeNumber: 2, Name: "The Kingsroad", Runtime: &runtime}, nil
}

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func setupRouter(t *testing.T, gateway catalog.Gateway) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	listRepo := repository.NewListRepository(db)
	issuer := auth.NewIssuer("test-secret", time.Hour)
	lists := service.NewListService(listRepo, nil, nil)
	members := service.NewMembershipService(gateway,
		repository.NewEntityRepository(db), repository.NewMembershipRepository(db), listRepo, nil, nil)
	accounts := service.NewAccountService(repository.NewUserRepository(db), issuer, nil)
	accounts.SetHashCost(bcrypt.MinCost)

	r := gin.New()
	NewHTTPHandler(accounts, lists, members, stubBrowser{}, issuer, nil).RegisterRoutes(r)
	return &apiClient{t: t, router: r}
}

func (a *apiClient) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			a.t.Fatalf("%s %s: invalid JSON %q", method, path, w.Body.String())
		}
	}
	return w, out
}

func (a *apiClient) expect(method, path string, body any, status int) map[string]any {
	a.t.Helper()
	w, out := a.do(method, path, body)
	if w.Code != status {
		a.t.Fatalf("%s %s = %d, want %d (%s)", method, path, w.Code, status, w.Body.String())
	}
	return out
}

func (a *apiClient) login(pseudo string) {
	a.t.Helper()
	a.token = ""
	a.expect(http.MethodPost, "/api/auth/register", map[string]string{
		"pseudo": pseudo, "email": pseudo + "@example.com", "password": "pw",
	}, http.StatusCreated)
	out := a.expect(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": pseudo, "password": "pw",
	}, http.StatusOK)
	a.token = out["token"].(string)
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func listIDs(t *testing.T, out map[string]any) []int64 {
	t.Helper()
	raw, _ := out["lists"].([]any)
	ids := make([]int64, 0, len(raw))
	for _, l := range raw {
		ids = append(ids, int64(l.(map[string]any)["id"].(float64)))
	}
	return ids
}

func TestHealthIsPublic(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	w, out := api.do(http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("health = %d %v", w.Code, out)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("missing X-Request-ID response header")
	}
}

func TestAuthRequired(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	out := api.expect(http.MethodGet, "/api/lists", nil, http.StatusUnauthorized)
	if errorCode(out) != "UNAUTHORIZED" {
		t.Fatalf("error = %v", out)
	}
	api.token = "garbage"
	api.expect(http.MethodGet, "/api/lists", nil, http.StatusUnauthorized)
}

func TestRegisterAndLogin(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	api.login("alice")

	out := api.expect(http.MethodGet, "/api/lists", nil, http.StatusOK)
	if len(listIDs(t, out)) != 2 {
		t.Fatalf("new account lists = %v", out)
	}

	api.token = ""
	out = api.expect(http.MethodPost, "/api/auth/register", map[string]string{
		"pseudo": "alice", "email": "x@example.com", "password": "pw",
	}, http.StatusConflict)
	if errorCode(out) != "USER_EXISTS" {
		t.Fatalf("error = %v", out)
	}
	api.expect(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "alice", "password": "nope",
	}, http.StatusUnauthorized)
}

func TestFilmLifecycleOverHTTP(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	api.login("alice")

	out := api.expect(http.MethodPost, "/api/lists", map[string]string{"name": "Cult"}, http.StatusCreated)
	id := int64(out["list"].(map[string]any)["id"].(float64))
	base := "/api/lists/" + itoa(id)

	api.expect(http.MethodPost, base+"/film", map[string]int{"media_id": 550}, http.StatusOK)
	api.expect(http.MethodPost, base+"/movies", map[string]int{"media_id": 550}, http.StatusOK)

	out = api.expect(http.MethodPut, base+"/film/550/rank", map[string]any{"rank": "s", "place": 1}, http.StatusOK)
	if out["rank"] != "S" {
		t.Fatalf("rank response = %v", out)
	}
	out = api.expect(http.MethodGet, base+"/films", nil, http.StatusOK)
	items := out["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["rank"] != "S" {
		t.Fatalf("items = %v", items)
	}

	out = api.expect(http.MethodPut, base+"/film/550/rank", map[string]any{"rank": "Z"}, http.StatusBadRequest)
	if errorCode(out) != "INVALID_RANK" {
		t.Fatalf("error = %v", out)
	}
	out = api.expect(http.MethodPut, base+"/series/1399/rank", map[string]any{"rank": "A"}, http.StatusNotFound)
	if errorCode(out) != "NOT_IN_LIST" {
		t.Fatalf("error = %v", out)
	}
	out = api.expect(http.MethodPost, base+"/film", map[string]int{"media_id": 404}, http.StatusNotFound)
	if errorCode(out) != "MEDIA_NOT_FOUND" {
		t.Fatalf("error = %v", out)
	}
	out = api.expect(http.MethodGet, base+"/books", nil, http.StatusNotFound)
	if errorCode(out) != "UNKNOWN_KIND" {
		t.Fatalf("error = %v", out)
	}

	api.expect(http.MethodDelete, base+"/film/550", nil, http.StatusOK)
	out = api.expect(http.MethodGet, base+"/film", nil, http.StatusOK)
	if len(out["items"].([]any)) != 0 {
		t.Fatalf("items after delete = %v", out)
	}
}

func TestEpisodesOverHTTP(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	api.login("bob")
	out := api.expect(http.MethodPost, "/api/lists", map[string]string{"name": "Binge"}, http.StatusCreated)
	base := "/api/lists/" + itoa(int64(out["list"].(map[string]any)["id"].(float64)))

	api.expect(http.MethodPost, base+"/episodes", map[string]int{"series_id": 1399, "season": 1, "episode": 1}, http.StatusOK)
	out = api.expect(http.MethodGet, base+"/series", nil, http.StatusOK)
	if len(out["items"].([]any)) != 1 {
		t.Fatalf("series not linked by episode add: %v", out)
	}

	api.expect(http.MethodDelete, base+"/episodes/1399/1/1", nil, http.StatusOK)
	out = api.expect(http.MethodGet, base+"/episodes", nil, http.StatusOK)
	if len(out["episodes"].([]any)) != 0 {
		t.Fatalf("episodes = %v", out)
	}
	out = api.expect(http.MethodGet, base+"/series", nil, http.StatusOK)
	if len(out["items"].([]any)) != 0 {
		t.Fatalf("series must leave with its last episode: %v", out)
	}
}

func TestListOwnershipAndProtection(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	api.login("alice")
	defaults := listIDs(t, api.expect(http.MethodGet, "/api/lists", nil, http.StatusOK))
	out := api.expect(http.MethodPost, "/api/lists", map[string]string{"name": "Mine"}, http.StatusCreated)
	mine := "/api/lists/" + itoa(int64(out["list"].(map[string]any)["id"].(float64)))

	out = api.expect(http.MethodPatch, "/api/lists/"+itoa(defaults[0]), map[string]string{"name": "x"}, http.StatusBadRequest)
	if errorCode(out) != "PROTECTED_LIST" {
		t.Fatalf("error = %v", out)
	}
	api.expect(http.MethodDelete, "/api/lists/"+itoa(defaults[1]), nil, http.StatusBadRequest)

	api.expect(http.MethodPatch, mine, map[string]string{"name": "Renamed"}, http.StatusOK)
	out = api.expect(http.MethodGet, mine+"/name", nil, http.StatusOK)
	if out["name"] != "Renamed" {
		t.Fatalf("name = %v", out)
	}

	api.login("mallory")
	api.expect(http.MethodGet, mine+"/name", nil, http.StatusNotFound)
	api.expect(http.MethodPost, mine+"/film", map[string]int{"media_id": 550}, http.StatusNotFound)
	out = api.expect(http.MethodDelete, mine, nil, http.StatusNotFound)
	if errorCode(out) != "LIST_NOT_FOUND" {
		t.Fatalf("error = %v", out)
	}
	api.expect(http.MethodGet, "/api/lists/abc/name", nil, http.StatusBadRequest)
}

func TestUpstreamUnavailable(t *testing.T) {
	api := setupRouter(t, stubGateway{err: catalog.ErrUnavailable})
	api.login("carol")
	out := api.expect(http.MethodPost, "/api/lists", map[string]string{"name": "x"}, http.StatusCreated)
	base := "/api/lists/" + itoa(int64(out["list"].(map[string]any)["id"].(float64)))

	out = api.expect(http.MethodPost, base+"/film", map[string]int{"media_id": 550}, http.StatusServiceUnavailable)
	if errorCode(out) != "UPSTREAM_UNAVAILABLE" {
		t.Fatalf("error = %v", out)
	}
	api.expect(http.MethodGet, "/api/catalog/tv/trending", nil, http.StatusServiceUnavailable)

	out = api.expect(http.MethodGet, "/api/catalog/movie/search?q=fight", nil, http.StatusOK)
	if len(out["results"].([]any)) != 1 {
		t.Fatalf("search = %v", out)
	}
	api.expect(http.MethodGet, "/api/catalog/movie/search", nil, http.StatusBadRequest)
}

func TestProfile(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	api.expect(http.MethodGet, "/api/me", nil, http.StatusUnauthorized)

	api.login("erin")
	out := api.expect(http.MethodGet, "/api/me", nil, http.StatusOK)
	user, _ := out["user"].(map[string]any)
	if user["pseudo"] != "erin" || user["email"] != "erin@example.com" {
		t.Fatalf("profile = %v", out)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatalf("profile leaks the password hash: %v", out)
	}
}

func TestSeriesBrowsing(t *testing.T) {
	api := setupRouter(t, stubGateway{})
	api.login("frank")

	out := api.expect(http.MethodGet, "/api/series/1399", nil, http.StatusOK)
	if series := out["series"].(map[string]any); series["number_of_seasons"] != float64(8) {
		t.Fatalf("series = %v", out)
	}
	out = api.expect(http.MethodGet, "/api/series/1399/seasons/1", nil, http.StatusOK)
	if eps := out["season"].(map[string]any)["episodes"].([]any); len(eps) != 2 {
		t.Fatalf("season = %v", out)
	}
	out = api.expect(http.MethodGet, "/api/series/1399/seasons/1/episodes/2", nil, http.StatusOK)
	if ep := out["episode"].(map[string]any); ep["runtime"] != float64(56) {
		t.Fatalf("episode = %v", out)
	}

	out = api.expect(http.MethodGet, "/api/series/1399/seasons/9", nil, http.StatusNotFound)
	if errorCode(out) != "MEDIA_NOT_FOUND" {
		t.Fatalf("error = %v", out)
	}
	api.expect(http.MethodGet, "/api/series/abc", nil, http.StatusBadRequest)
	api.expect(http.MethodGet, "/api/series/1399/seasons/-1", nil, http.StatusBadRequest)

	api.token = ""
	api.expect(http.MethodGet, "/api/series/1399", nil, http.StatusUnauthorized)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
