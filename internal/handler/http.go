package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"media-tracker/internal/models"
	"media-tracker/internal/service"
	"media-tracker/internal/tmdb"
)

// CatalogBrowser serves the read-only catalog passthrough.
type CatalogBrowser interface {
	Search(ctx context.Context, kind models.MediaKind, query string) ([]tmdb.SearchResult, error)
	Trending(ctx context.Context, kind models.MediaKind) ([]tmdb.SearchResult, error)
	Series(ctx context.Context, seriesID int) (*tmdb.TVDetails, error)
	Season(ctx context.Context, seriesID, season int) (*tmdb.SeasonDetails, error)
	Episode(ctx context.Context, seriesID, season, episode int) (*tmdb.EpisodeDetails, error)
}

// TokenVerifier resolves the pseudo carried by an Authorization header.
type TokenVerifier interface {
	PseudoFromHeader(authz string) (string, error)
}

// HTTPHandler handles HTTP requests for the list API
type HTTPHandler struct {
	accounts *service.AccountService
	lists    *service.ListService
	members  *service.MembershipService
	browser  CatalogBrowser
	tokens   TokenVerifier
	log      *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler
func NewHTTPHandler(
	accounts *service.AccountService,
	lists *service.ListService,
	members *service.MembershipService,
	browser CatalogBrowser,
	tokens TokenVerifier,
	log *zap.Logger,
) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{
		accounts: accounts,
		lists:    lists,
		members:  members,
		browser:  browser,
		tokens:   tokens,
		log:      log.Named("http"),
	}
}

// RegisterRoutes registers all HTTP routes
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.Use(h.requestID, h.logRequests)

	// Health check must allow unauthenticated ping for probes
	r.GET("/api/health", h.Health)

	auth := r.Group("/api/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)

	api := r.Group("/api")
	api.Use(h.authMiddleware)

	api.GET("/me", h.Profile)

	// Catalog
	api.GET("/catalog/:kind/trending", h.Trending)
	api.GET("/catalog/:kind/search", h.Search)
	api.GET("/series/:seriesID", h.SeriesOverview)
	api.GET("/series/:seriesID/seasons/:season", h.Season)
	api.GET("/series/:seriesID/seasons/:season/episodes/:episode", h.Episode)

	// Lists
	api.GET("/lists", h.GetLists)
	api.POST("/lists", h.CreateList)
	api.GET("/lists/:id/name", h.GetListName)
	api.PATCH("/lists/:id", h.RenameList)
	api.DELETE("/lists/:id", h.DeleteList)

	// Episodes
	api.GET("/lists/:id/episodes", h.GetEpisodes)
	api.POST("/lists/:id/episodes", h.AddEpisode)
	api.DELETE("/lists/:id/episodes/:seriesID/:season/:episode", h.RemoveEpisode)

	// Films and series
	api.GET("/lists/:id/:kind", h.GetMedia)
	api.POST("/lists/:id/:kind", h.AddMedia)
	api.DELETE("/lists/:id/:kind/:mediaID", h.RemoveMedia)
	api.PUT("/lists/:id/:kind/:mediaID/rank", h.SetRank)
}

// Health returns health status
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Register creates an account with its default lists
func (h *HTTPHandler) Register(c *gin.Context) {
	var req struct {
		Pseudo   string `json:"pseudo" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), req.Pseudo, req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login exchanges credentials for a bearer token
func (h *HTTPHandler) Login(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Profile returns the caller's account
func (h *HTTPHandler) Profile(c *gin.Context) {
	user, err := h.accounts.Profile(c.Request.Context(), pseudo(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Trending returns the week's trending films or series
func (h *HTTPHandler) Trending(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	results, err := h.browser.Trending(c.Request.Context(), kind)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Search searches films or series by title
func (h *HTTPHandler) Search(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		h.badRequest(c, "MISSING_QUERY", "query parameter q is required")
		return
	}
	results, err := h.browser.Search(c.Request.Context(), kind, query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// SeriesOverview returns a series with its number of seasons
func (h *HTTPHandler) SeriesOverview(c *gin.Context) {
	seriesID, ok := h.intParam(c, "seriesID")
	if !ok {
		return
	}
	series, err := h.browser.Series(c.Request.Context(), seriesID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": series})
}

// Season returns the episodes of one season
func (h *HTTPHandler) Season(c *gin.Context) {
	seriesID, ok := h.intParam(c, "seriesID")
	if !ok {
		return
	}
	season, ok := h.intParam(c, "season")
	if !ok {
		return
	}
	details, err := h.browser.Season(c.Request.Context(), seriesID, season)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"season": details})
}

// Episode returns one episode, including its runtime
func (h *HTTPHandler) Episode(c *gin.Context) {
	seriesID, ok := h.intParam(c, "seriesID")
	if !ok {
		return
	}
	season, ok := h.intParam(c, "season")
	if !ok {
		return
	}
	episode, ok := h.intParam(c, "episode")
	if !ok {
		return
	}
	details, err := h.browser.Episode(c.Request.Context(), seriesID, season, episode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"episode": details})
}

// GetLists returns the caller's lists
func (h *HTTPHandler) GetLists(c *gin.Context) {
	lists, err := h.lists.GetUserLists(c.Request.Context(), pseudo(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lists": lists})
}

// CreateList creates a list for the caller
func (h *HTTPHandler) CreateList(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	list, err := h.lists.CreateList(c.Request.Context(), pseudo(c), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"list": list})
}

// GetListName returns the name of one of the caller's lists
func (h *HTTPHandler) GetListName(c *gin.Context) {
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	name, err := h.lists.GetListName(c.Request.Context(), listID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}

// RenameList renames one of the caller's lists
func (h *HTTPHandler) RenameList(c *gin.Context) {
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	if err := h.lists.RenameList(c.Request.Context(), listID, req.Name); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "list renamed"})
}

// DeleteList deletes one of the caller's lists and everything in it
func (h *HTTPHandler) DeleteList(c *gin.Context) {
	listID, ok := h.listIDParam(c)
	if !ok {
		return
	}
	if err := h.lists.DeleteList(c.Request.Context(), listID, pseudo(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "list deleted"})
}

// GetMedia returns the films or series of a list
func (h *HTTPHandler) GetMedia(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	items, err := h.members.ListMedia(c.Request.Context(), kind, listID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// AddMedia adds a film or series to a list
func (h *HTTPHandler) AddMedia(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	var req struct {
		MediaID int `json:"media_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	if err := h.members.Add(c.Request.Context(), kind, req.MediaID, listID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": kind.String() + " added"})
}

// RemoveMedia removes a film or series from a list
func (h *HTTPHandler) RemoveMedia(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	mediaID, ok := h.intParam(c, "mediaID")
	if !ok {
		return
	}

	if err := h.members.Remove(c.Request.Context(), kind, mediaID, listID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": kind.String() + " removed"})
}

// SetRank moves a film or series to a tier and place
func (h *HTTPHandler) SetRank(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	mediaID, ok := h.intParam(c, "mediaID")
	if !ok {
		return
	}
	var req struct {
		Rank  string `json:"rank" binding:"required"`
		Place int    `json:"place"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "INVALID_BODY", err.Error())
		return
	}
	rank, valid := models.ParseRank(req.Rank)
	if !valid {
		h.writeError(c, service.ErrInvalidRank)
		return
	}

	if err := h.members.SetRank(c.Request.Context(), kind, mediaID, listID, rank, req.Place); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media_id": mediaID, "rank": rank, "place": req.Place})
}

// GetEpisodes returns the watched episodes of a list
func (h *HTTPHandler) GetEpisodes(c *gin.Context) {
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	episodes, err := h.members.GetEpisodesInList(c.Request.Context(), listID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"episodes": episodes})
}

// AddEpisode marks an episode as watched in a list
func (h *HTTPHandler) AddEpisode(c *gin.Context) {
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	var req struct {
		SeriesID int `json:"series_id" binding:"required"`
		Season   int `json:"season"`
		Episode  int `json:"episode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	if err := h.members.AddEpisodeToList(c.Request.Context(), req.SeriesID, listID, req.Season, req.Episode); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "episode added"})
}

// RemoveEpisode unmarks an episode, dropping the series once no episode is left
func (h *HTTPHandler) RemoveEpisode(c *gin.Context) {
	listID, ok := h.ownedList(c)
	if !ok {
		return
	}
	seriesID, ok := h.intParam(c, "seriesID")
	if !ok {
		return
	}
	season, ok := h.intParam(c, "season")
	if !ok {
		return
	}
	episode, ok := h.intParam(c, "episode")
	if !ok {
		return
	}

	if err := h.members.RemoveEpisodeFromList(c.Request.Context(), seriesID, listID, season, episode); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "episode removed"})
}

// Helper functions

func (h *HTTPHandler) kindParam(c *gin.Context) (models.MediaKind, bool) {
	kind, err := models.ParseMediaKind(c.Param("kind"))
	if err != nil {
		h.notFound(c, "UNKNOWN_KIND", err.Error())
		return 0, false
	}
	return kind, true
}

func (h *HTTPHandler) listIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "INVALID_LIST_ID", "invalid list id")
		return 0, false
	}
	return id, true
}

// ownedList parses :id and checks the caller owns that list.
func (h *HTTPHandler) ownedList(c *gin.Context) (int64, bool) {
	id, ok := h.listIDParam(c)
	if !ok {
		return 0, false
	}
	if _, err := h.lists.GetOwnedList(c.Request.Context(), id, pseudo(c)); err != nil {
		h.writeError(c, err)
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) intParam(c *gin.Context, key string) (int, bool) {
	v, err := strconv.Atoi(c.Param(key))
	if err != nil || v < 0 {
		h.badRequest(c, "INVALID_PARAMETER", "invalid "+key)
		return 0, false
	}
	return v, true
}
