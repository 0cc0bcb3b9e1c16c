package http

import (
	"errors"
	"net/http"

	"foodbudget/internal/auth"
	"foodbudget/internal/core"
	"foodbudget/internal/log"
	"foodbudget/internal/services"
	"foodbudget/internal/store"
)

// statusFor maps domain errors to an HTTP status and the message shown to
// the client. Unknown errors become a generic 500.
func statusFor(err error) (int, string) {
	var recErr *core.RecordError
	switch {
	case errors.As(err, &recErr):
		// A stored record the engine refuses, e.g. a negative amount.
		return http.StatusInternalServerError, "stored expense " + recErr.RecordID + " is invalid"
	case errors.Is(err, services.ErrFetchFailed):
		return http.StatusServiceUnavailable, services.ErrFetchFailed.Error()
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errInvalidParam),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrWeekendDate),
		errors.Is(err, core.ErrUnknownMeal),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrNegativeAmount),
		errors.Is(err, core.ErrInvalidSettings),
		errors.Is(err, services.ErrFutureWeek),
		errors.Is(err, services.ErrEmptyPatch),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "expense not found"
	case errors.Is(err, services.ErrSyncPending),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrDomainNotAllowed):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

// writeError logs err with the request logger and sends the mapped JSON
// error.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithOperation(op).WithError(err)
	fields[log.FieldStatusCode] = status
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	ErrorResponse(status, msg).Write(w)
}
