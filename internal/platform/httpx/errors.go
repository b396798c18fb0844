// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/cascade/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrVersionConflict):
		Problem(w, http.StatusConflict, "Version Conflict", err.Error())
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Fail responds with RespondError. Unexpected errors are logged and reported
// as "failed to <action>" without leaking internals.
func Fail(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	if IsExpected(err) {
		RespondError(w, err)
		return
	}
	if logger != nil {
		logger.Error("failed to "+action, slog.Any("error", err))
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "failed to "+action)
}

// IsExpected reports whether err belongs to the shared error taxonomy.
func IsExpected(err error) bool {
	for _, kind := range []error{
		shared.ErrNotFound,
		shared.ErrInvalidTransition,
		shared.ErrVersionConflict,
		shared.ErrConflict,
		shared.ErrIdempotencyConflict,
		shared.ErrInsufficientStock,
		shared.ErrValidation,
		shared.ErrInvalidCredentials,
		shared.ErrUnauthorized,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
