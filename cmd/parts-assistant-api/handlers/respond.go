// Package handlers provides HTTP handlers for the parts assistant API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/machineparts/parts-assistant/internal/assistant"
	"github.com/machineparts/parts-assistant/internal/observability"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps an assistant error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrInvalidState), errors.Is(err, assistant.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusServiceUnavailable:
		return "storage_unavailable"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs server-side failures and writes the mapped error body.
func writeError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: errorCode(status), Message: message})
}

// WriteError is writeError for callers outside this package.
func WriteError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	writeError(w, r, logger, err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", assistant.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", assistant.ErrInvalidInput, name)
	}
	return n, nil
}
