// Package transport contains the operational HTTP router: health, readiness,
// metrics and read-only pipeline snapshots.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/crmflow/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:        http.StatusBadRequest,
	model.ErrUnknownStage:      http.StatusNotFound,
	model.ErrUnknownRole:       http.StatusNotFound,
	model.ErrNotFound:          http.StatusNotFound,
	model.ErrPermissionDenied:  http.StatusForbidden,
	model.ErrConflict:          http.StatusConflict,
	model.ErrNoAvailableUser:   http.StatusConflict,
	model.ErrInvalidTransition: http.StatusUnprocessableEntity,
	model.ErrMissingFields:     http.StatusUnprocessableEntity,
	model.ErrInternalError:     http.StatusInternalServerError,
	model.ErrStoreUnavailable:  http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for an error code. Unknown codes map
// to 500.
func StatusFor(code string) int {
	if status, ok := statusForCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the matching
// HTTP status code. Errors that do not wrap an *ErrorEnvelope become a
// generic 500 so internal details never leak.
func WriteError(w http.ResponseWriter, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, StatusFor(ee.Code), errorResponse{Error: ee})
}
