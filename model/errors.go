package model

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrStoreUnavailable  = "STORE_UNAVAILABLE"
)

// Catalog and handoff error codes.
const (
	ErrUnknownStage     = "UNKNOWN_STAGE"
	ErrUnknownRole      = "UNKNOWN_ROLE"
	ErrPermissionDenied = "PERMISSION_DENIED"
	ErrMissingFields    = "MISSING_FIELDS"
	ErrNoAvailableUser  = "NO_AVAILABLE_USER"
)

// ErrorEnvelope is the error type returned by every catalog, engine and
// handoff operation. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level problem, such as a missing handoff field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf returns the ErrorEnvelope code carried by err, or "" if err does
// not wrap an ErrorEnvelope.
func CodeOf(err error) string {
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsCode reports whether err wraps an ErrorEnvelope with the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error.
func NewInvalidTransitionError(from, to StageID) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %q to %q", from, to),
	}
}

// NewUnknownStageError returns an UNKNOWN_STAGE error.
func NewUnknownStageError(id StageID) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnknownStage, Message: fmt.Sprintf("stage %q is not defined", id)}
}

// NewUnknownRoleError returns an UNKNOWN_ROLE error.
func NewUnknownRoleError(id RoleID) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnknownRole, Message: fmt.Sprintf("role %q is not defined", id)}
}

// NewPermissionDeniedError returns a PERMISSION_DENIED error.
func NewPermissionDeniedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrPermissionDenied, Message: msg}
}

// NewMissingFieldsError returns a MISSING_FIELDS error with one detail per
// absent field.
func NewMissingFieldsError(fields []string) *ErrorEnvelope {
	details := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		details = append(details, FieldError{
			Field:   f,
			Code:    "REQUIRED",
			Message: fmt.Sprintf("%s is required for this handoff", f),
		})
	}
	return &ErrorEnvelope{
		Code:    ErrMissingFields,
		Message: "missing required fields: " + strings.Join(fields, ", "),
		Details: details,
	}
}

// NewNoAvailableUserError returns a NO_AVAILABLE_USER error.
func NewNoAvailableUserError(role RoleID) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNoAvailableUser,
		Message: fmt.Sprintf("no active user available in role %q", role),
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewStoreUnavailableError returns a STORE_UNAVAILABLE error.
func NewStoreUnavailableError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrStoreUnavailable, Message: msg}
}
