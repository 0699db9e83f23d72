package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned to API callers.
const (
	CodeMalformedPayload  = "MALFORMED_PAYLOAD"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeUnknownAssignee   = "UNKNOWN_ASSIGNEE"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewMalformedPayload rejects an ingestion payload, naming the first violated field.
func NewMalformedPayload(field, message string) error {
	return NewDomainError(CodeMalformedPayload, message, http.StatusBadRequest, map[string]any{"field": field})
}

// NewInvalidTransition names the current and requested status.
func NewInvalidTransition(current, requested string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot transition from %s to %s", current, requested),
		http.StatusConflict,
		map[string]any{"current_status": current, "requested_status": requested})
}

// NewVersionConflict tells the caller to re-read and retry.
func NewVersionConflict(expected, current int64) error {
	return NewDomainError(CodeVersionConflict, "ticket was modified concurrently",
		http.StatusConflict,
		map[string]any{"expected_version": expected, "current_version": current})
}

// NewUnknownAssignee rejects assignment to a missing or inactive courier.
func NewUnknownAssignee(assigneeID string) error {
	return NewDomainError(CodeUnknownAssignee, "assignee is not a valid delivery-staff account",
		http.StatusUnprocessableEntity,
		map[string]any{"assignee_id": assigneeID})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewTimeout(message string) error {
	return NewDomainError(CodeTimeout, message, http.StatusGatewayTimeout, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if de, ok := NewTimeout("request timed out").(*DomainError); ok {
			de.Err = err
			return de
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
