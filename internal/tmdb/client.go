package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"media-tracker/internal/catalog"
	"media-tracker/internal/models"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultTimeout  = 10 * time.Second
	defaultLanguage = "en-US"
	requestInterval = 50 * time.Millisecond
)

// ErrInvalidID is returned before any request is made for ids TMDB cannot hold.
var ErrInvalidID = errors.New("invalid TMDB ID")

// Client handles all interactions with the TMDB API
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithLanguage sets the language used for titles in search and trending results.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithCircuitBreaker guards every request with cb.
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithLogger sets the logger used for request failures.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a new TMDB API client
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		language: defaultLanguage,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetBaseURL allows overriding the base URL (useful for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// APIError represents an error returned by the TMDB API
type APIError struct {
	HTTPStatus    int    `json:"-"`
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TMDB API error (http %d, code %d): %s", e.HTTPStatus, e.StatusCode, e.StatusMessage)
}

// statusResourceNotFound is TMDB's status_code for an unknown id.
const statusResourceNotFound = 34

// NotFound reports whether TMDB answered that the resource does not exist.
func (e *APIError) NotFound() bool {
	return e.HTTPStatus == http.StatusNotFound || e.StatusCode == statusResourceNotFound
}

// MovieDetails is the subset of /movie/{id} kept by the entity store.
type MovieDetails struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	OriginalTitle string `json:"original_title"`
	Runtime       *int   `json:"runtime"`
}

// TVDetails is the subset of /tv/{id} used by the entity store and the
// series overview.
type TVDetails struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	OriginalName     string `json:"original_name"`
	Overview         string `json:"overview"`
	PosterPath       string `json:"poster_path"`
	FirstAirDate     string `json:"first_air_date"`
	NumberOfSeasons  int    `json:"number_of_seasons"`
	NumberOfEpisodes int    `json:"number_of_episodes"`
}

// EpisodeDetails is the subset of /tv/{id}/season/{s}/episode/{e}.
type EpisodeDetails struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	AirDate       string `json:"air_date"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	Runtime       *int   `json:"runtime"`
}

// SeasonDetails is /tv/{id}/season/{season} with its episodes.
type SeasonDetails struct {
	ID           int              `json:"id"`
	Name         string           `json:"name"`
	Overview     string           `json:"overview"`
	AirDate      string           `json:"air_date"`
	SeasonNumber int              `json:"season_number"`
	Episodes     []EpisodeDetails `json:"episodes"`
}

// SearchResult is a film or series entry from search and trending endpoints.
// Films fill Title/ReleaseDate, series fill Name/FirstAirDate.
type SearchResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	Popularity   float64 `json:"popularity"`
}

type pagedResponse struct {
	Results []SearchResult `json:"results"`
}

// GetMovieDetails fetches /movie/{id}.
func (c *Client) GetMovieDetails(ctx context.Context, id int) (*MovieDetails, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	endpoint := fmt.Sprintf("%s/movie/%d?%s", c.baseURL, id, c.query(nil).Encode())
	return getJSON[MovieDetails](ctx, c, endpoint)
}

// GetTVDetails fetches /tv/{id}.
func (c *Client) GetTVDetails(ctx context.Context, id int) (*TVDetails, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	endpoint := fmt.Sprintf("%s/tv/%d?%s", c.baseURL, id, c.query(nil).Encode())
	return getJSON[TVDetails](ctx, c, endpoint)
}

// GetSeasonDetails fetches /tv/{id}/season/{season}.
func (c *Client) GetSeasonDetails(ctx context.Context, seriesID, season int) (*SeasonDetails, error) {
	if seriesID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, seriesID)
	}
	if season < 0 {
		return nil, fmt.Errorf("%w: season %d", ErrInvalidID, season)
	}
	endpoint := fmt.Sprintf("%s/tv/%d/season/%d?%s", c.baseURL, seriesID, season, c.query(nil).Encode())
	return getJSON[SeasonDetails](ctx, c, endpoint)
}

// GetEpisodeDetails fetches /tv/{id}/season/{season}/episode/{episode}.
func (c *Client) GetEpisodeDetails(ctx context.Context, seriesID, season, episode int) (*EpisodeDetails, error) {
	if seriesID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, seriesID)
	}
	if season < 0 || episode < 0 {
		return nil, fmt.Errorf("%w: S%02dE%02d", ErrInvalidID, season, episode)
	}
	endpoint := fmt.Sprintf("%s/tv/%d/season/%d/episode/%d?%s",
		c.baseURL, seriesID, season, episode, c.query(nil).Encode())
	return getJSON[EpisodeDetails](ctx, c, endpoint)
}

// Search runs /search/movie or /search/tv ordered by popularity.
func (c *Client) Search(ctx context.Context, kind models.MediaKind, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	q := c.query(url.Values{"query": {query}})
	endpoint := fmt.Sprintf("%s/search/%s?%s", c.baseURL, path, q.Encode())
	resp, err := getJSON[pagedResponse](ctx, c, endpoint)
	if err != nil {
		return nil, classify(err)
	}
	return nonNil(resp.Results), nil
}

// Trending returns the week's trending films or series.
func (c *Client) Trending(ctx context.Context, kind models.MediaKind) ([]SearchResult, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/trending/%s/week?%s", c.baseURL, path, c.query(nil).Encode())
	resp, err := getJSON[pagedResponse](ctx, c, endpoint)
	if err != nil {
		return nil, classify(err)
	}
	return nonNil(resp.Results), nil
}

// Series returns the overview of a series, including its season count.
func (c *Client) Series(ctx context.Context, seriesID int) (*TVDetails, error) {
	details, err := c.GetTVDetails(ctx, seriesID)
	if err != nil {
		return nil, classify(err)
	}
	return details, nil
}

// Season returns one season of a series with its episodes.
func (c *Client) Season(ctx context.Context, seriesID, season int) (*SeasonDetails, error) {
	details, err := c.GetSeasonDetails(ctx, seriesID, season)
	if err != nil {
		return nil, classify(err)
	}
	if details.Episodes == nil {
		details.Episodes = []EpisodeDetails{}
	}
	return details, nil
}

// Episode returns one episode of a series.
func (c *Client) Episode(ctx context.Context, seriesID, season, episode int) (*EpisodeDetails, error) {
	details, err := c.GetEpisodeDetails(ctx, seriesID, season, episode)
	if err != nil {
		return nil, classify(err)
	}
	return details, nil
}

// FetchFilmMetadata implements catalog.Gateway.
func (c *Client) FetchFilmMetadata(ctx context.Context, id int) (catalog.FilmMetadata, error) {
	details, err := c.GetMovieDetails(ctx, id)
	if err != nil {
		return catalog.FilmMetadata{}, classify(err)
	}
	return catalog.FilmMetadata{
		Title:          firstNonEmpty(details.OriginalTitle, details.Title),
		RuntimeMinutes: derefInt(details.Runtime),
	}, nil
}

// FetchSeriesMetadata implements catalog.Gateway.
func (c *Client) FetchSeriesMetadata(ctx context.Context, id int) (catalog.SeriesMetadata, error) {
	details, err := c.GetTVDetails(ctx, id)
	if err != nil {
		return catalog.SeriesMetadata{}, classify(err)
	}
	return catalog.SeriesMetadata{Title: firstNonEmpty(details.OriginalName, details.Name)}, nil
}

// FetchEpisodeMetadata implements catalog.Gateway.
func (c *Client) FetchEpisodeMetadata(ctx context.Context, seriesID, season, episode int) (catalog.EpisodeMetadata, error) {
	details, err := c.GetEpisodeDetails(ctx, seriesID, season, episode)
	if err != nil {
		return catalog.EpisodeMetadata{}, classify(err)
	}
	return catalog.EpisodeMetadata{RuntimeMinutes: derefInt(details.Runtime)}, nil
}

func getJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	if c.breaker == nil {
		return doJSON[T](ctx, c, endpoint)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return doJSON[T](ctx, c, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return result.(*T), nil
}

func doJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	if err := c.rateLimit(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("tmdb request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return nil, fmt.Errorf("failed to call TMDB: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return nil, err
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode TMDB response: %w", err)
	}
	return &out, nil
}

// checkResponse checks the HTTP response for errors
func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &APIError{
			HTTPStatus:    resp.StatusCode,
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: failed to read error response", resp.StatusCode),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			HTTPStatus:    resp.StatusCode,
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	apiErr.HTTPStatus = resp.StatusCode
	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = resp.StatusCode
	}
	if apiErr.StatusMessage == "" {
		apiErr.StatusMessage = fmt.Sprintf("HTTP %d error", resp.StatusCode)
	}

	return &apiErr
}

// rateLimit spaces requests out to stay under the TMDB request budget.
func (c *Client) rateLimit(ctx context.Context) error {
	c.mu.Lock()
	wait := requestInterval - time.Since(c.lastRequest)
	if wait < 0 {
		wait = 0
	}
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (c *Client) query(extra url.Values) url.Values {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("language", c.language)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return q
}

// classify maps client failures onto the catalog error taxonomy.
func classify(err error) error {
	if errors.Is(err, ErrInvalidID) {
		return fmt.Errorf("%w: %v", catalog.ErrNotFound, err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.NotFound() {
			return fmt.Errorf("%w: %s", catalog.ErrNotFound, apiErr.StatusMessage)
		}
		return fmt.Errorf("%w: %v", catalog.ErrUnavailable, apiErr)
	}
	return fmt.Errorf("%w: %v", catalog.ErrUnavailable, err)
}

// IsBreakerFailure reports whether err should count against the circuit breaker.
// Missing media is a valid answer from a healthy upstream.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus >= 500 || apiErr.HTTPStatus == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// BreakerConfig tunes NewCircuitBreaker.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// NewCircuitBreaker builds the breaker guarding TMDB calls.
func NewCircuitBreaker(cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tmdb",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return !IsBreakerFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

func kindPath(kind models.MediaKind) (string, error) {
	switch kind {
	case models.KindFilm:
		return "movie", nil
	case models.KindSeries:
		return "tv", nil
	}
	return "", fmt.Errorf("unsupported media kind %v", kind)
}

func nonNil(results []SearchResult) []SearchResult {
	if results == nil {
		return []SearchResult{}
	}
	return results
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
