package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"media-tracker/internal/catalog"
	"media-tracker/internal/service"
)

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrListNotFound, http.StatusNotFound, "LIST_NOT_FOUND"},
	{service.ErrNotInList, http.StatusNotFound, "NOT_IN_LIST"},
	{catalog.ErrNotFound, http.StatusNotFound, "MEDIA_NOT_FOUND"},
	{service.ErrAccountNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
	{service.ErrProtectedList, http.StatusBadRequest, "PROTECTED_LIST"},
	{service.ErrInvalidRank, http.StatusBadRequest, "INVALID_RANK"},
	{service.ErrInvalidListName, http.StatusBadRequest, "INVALID_LIST_NAME"},
	{service.ErrInvalidMediaID, http.StatusBadRequest, "INVALID_MEDIA_ID"},
	{service.ErrInvalidAccount, http.StatusBadRequest, "INVALID_ACCOUNT"},
	{service.ErrUserExists, http.StatusConflict, "USER_EXISTS"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{catalog.ErrUnavailable, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
}

// writeError maps a service error onto a status and error code.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			h.abort(c, e.status, e.code, e.err.Error())
			return
		}
	}
	h.log.Error("unhandled error",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	h.abort(c, http.StatusInternalServerError, "INTERNAL", "Internal server error")
}

func (h *HTTPHandler) badRequest(c *gin.Context, code, message string) {
	h.abort(c, http.StatusBadRequest, code, message)
}

func (h *HTTPHandler) notFound(c *gin.Context, code, message string) {
	h.abort(c, http.StatusNotFound, code, message)
}

func (h *HTTPHandler) unauthorized(c *gin.Context, code, message string) {
	h.abort(c, http.StatusUnauthorized, code, message)
}

func (h *HTTPHandler) abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: apiError{
		Code:      code,
		Message:   message,
		RequestID: c.GetString(requestIDKey),
	}})
}
