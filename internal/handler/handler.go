// Package handler provides the HTTP handlers of the API.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/jassnet/Fraudhunter/internal/handler/dto"
	"github.com/jassnet/Fraudhunter/internal/jobs"
	"github.com/jassnet/Fraudhunter/internal/middleware"
	"github.com/jassnet/Fraudhunter/internal/service"
	"github.com/jassnet/Fraudhunter/internal/settings"
)

// NotFound handles unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles known routes with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: dto.ErrorDetail{Code: code, Message: message}})
}

// fail maps service errors to responses; anything unknown is logged and
// reported as a 500 without detail.
func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, settings.ErrInvalidSetting):
		writeError(w, http.StatusBadRequest, "INVALID_SETTING", err.Error())
	case errors.Is(err, jobs.ErrConflict):
		writeError(w, http.StatusConflict, "JOB_RUNNING", "Another job is already running")
	case errors.Is(err, jobs.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "The server is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "The request timed out")
	default:
		logger.Error("internal_error",
			"error", err,
			"endpoint", r.Method+" "+r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// decodeJSON decodes a JSON body strictly. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func badRequest(w http.ResponseWriter, code string, err error) {
	writeError(w, http.StatusBadRequest, code, err.Error())
}
