// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RetryAfterSeconds is advertised to clients that hit a lock timeout.
const RetryAfterSeconds = "1"

// StatusFor maps a domain error to its HTTP status and problem title.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrInvalidTransition):
		return http.StatusConflict, "Invalid Transition"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "Insufficient Stock"
	case errors.Is(err, shared.ErrLockTimeout):
		return http.StatusServiceUnavailable, "Lock Timeout"
	case errors.Is(err, shared.ErrNegativeStock):
		return http.StatusInternalServerError, "Ledger Invariant Violated"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	problem := ProblemDetail{Title: title, Status: status}
	switch status {
	case http.StatusInternalServerError:
		if errors.Is(err, shared.ErrNegativeStock) {
			problem.Detail = err.Error()
		}
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", RetryAfterSeconds)
		problem.Detail = err.Error()
	default:
		problem.Detail = err.Error()
	}
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		problem.Field = verr.Field
	}
	WriteProblem(w, problem)
}
