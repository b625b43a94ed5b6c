// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RetryAfterSeconds is advertised on concurrency conflicts.
const RetryAfterSeconds = 1

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := Classify(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	var missing *shared.MissingAccountsError
	if errors.As(err, &missing) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(status)
		writeBody(w, ProblemDetail{Title: title, Status: status, Detail: detail, MissingCodes: missing.Codes})
		return
	}
	if errors.Is(err, shared.ErrConcurrency) {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	Problem(w, status, title, detail)
}

// Classify returns the status code and problem title for err.
func Classify(err error) (int, string) {
	var missing *shared.MissingAccountsError
	switch {
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, "Missing Accounts"
	case errors.Is(err, shared.ErrConcurrency):
		return http.StatusConflict, "Concurrent Update"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrPrecondition):
		return http.StatusUnprocessableEntity, "Precondition Failed"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
