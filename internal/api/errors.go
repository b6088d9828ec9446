package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kalambet/artribune/internal/auth"
	"github.com/kalambet/artribune/internal/query"
	"github.com/kalambet/artribune/internal/search"
	"github.com/kalambet/artribune/internal/storage"
)

// Stable error codes of the error envelope.
const (
	CodeUnauthorized       = "unauthorized"
	CodeInvalidArgument    = "invalid_argument"
	CodeNotFound           = "not_found"
	CodeBackendUnavailable = "backend_unavailable"
	CodePoolTimeout        = "pool_timeout"
	CodeInternal           = "internal"
)

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func httpError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// classify maps an error to its HTTP status, code and client message. It is
// the only place that translates internal errors for clients; backend
// detail never reaches the message.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized, "missing or invalid API key"
	case errors.Is(err, storage.ErrPoolTimeout):
		return http.StatusServiceUnavailable, CodePoolTimeout, "server is busy, retry later"
	case errors.Is(err, query.ErrInvalidArgument), errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest, CodeInvalidArgument, err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, search.ErrBackendUnavailable),
		errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeBackendUnavailable, "search backend unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

// writeError logs err with the request-scoped logger and writes its
// envelope. When the request deadline has passed the timeout middleware
// owns the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	logger := query.LoggerFrom(r.Context(), slog.Default())
	switch {
	case status >= 500:
		logger.Error("request failed", "code", code, "error", err)
	default:
		logger.Debug("request rejected", "code", code, "error", err)
	}
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		return
	}
	httpError(w, status, code, msg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
