package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// ONE ENVELOPE FOR EVERYTHING:
// Every response from the API — success or failure — has the same outer
// shape, so clients branch on a single boolean instead of sniffing shapes:
//
//	{"success": true,  "data": {...}}
//	{"success": false, "error": "not_found", "message": "summary not found with id abc"}
//
// "error" is the machine-readable type, "message" the human-readable
// description.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/recap/internal/apperror"
)

// Response is the envelope wrapping every API payload.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`   // machine-readable type, e.g. "not_found"
	Message string `json:"message,omitempty"` // human-readable description
}

// writeData sends a successful enveloped JSON response.
//
// HEADER ORDER MATTERS:
// Headers and status code MUST be set before the body. Once Encode calls
// w.Write(), the headers are on the wire and further changes are silently
// ignored.
func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data}); err != nil {
		// Headers already sent — all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError maps a domain error to the appropriate HTTP status and sends
// the failure envelope.
//
// ERROR MAPPING:
// This is the single place domain errors become HTTP. The service layer
// returns apperror sentinels; this function translates them:
//
//	validation            → 400
//	unauthenticated       → 401
//	insufficient credits  → 403
//	not found / not yours → 404 (deliberately identical — a non-owner must
//	                             not learn that a summary exists)
//	conflict              → 409
//	upstream failure      → 500
//
// errors.Is() walks the wrapped chain (via Unwrap), so services are free
// to add context with fmt.Errorf("...: %w", err).
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	// errors.As() extracts the *AppError from anywhere in the chain.
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrInsufficientCredits):
			status = http.StatusForbidden
			errorType = "insufficient_credits"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrUpstream):
			status = http.StatusInternalServerError
			errorType = "upstream_error"
		}

		writeFailure(w, status, errorType, appErr.Message)
		return
	}

	// Unknown error — generic 500. NEVER expose internal error details to
	// the client; the raw message might contain SQL or file paths.
	writeFailure(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
}

func writeFailure(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   errorType,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode JSON error response", slog.String("error", err.Error()))
	}
}
