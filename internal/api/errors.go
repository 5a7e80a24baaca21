// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Sgtscottadams/ab-poller/internal/plc"
	"github.com/Sgtscottadams/ab-poller/internal/store"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewTransportError creates a 502 error for controller connection failures
func NewTransportError(address string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "TRANSPORT_FAILURE",
		Message: fmt.Sprintf("controller unreachable: %s", address),
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewDecodeError creates a 422 error naming the tag that failed to decode
func NewDecodeError(tagName string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "DECODE_ERROR",
		Message: fmt.Sprintf("failed to decode tag: %s", tagName),
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewExportError creates a 422 error for export failures
func NewExportError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "EXPORT_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// MapStoreError converts typed knowledge-store failures to API errors
func MapStoreError(resource, id string, err error) *APIError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NewNotFoundError(resource, id)
	case errors.Is(err, store.ErrConflict):
		return NewConflictError(err.Error())
	default:
		return NewInternalError(fmt.Sprintf("%s operation failed", resource), err)
	}
}

// MapDriverError converts driver failures to API errors
func MapDriverError(address string, err error) *APIError {
	if plc.IsConnError(err) {
		return NewTransportError(address, err)
	}
	return NewInternalError("controller operation failed", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
			Details: err.Error(),
		}
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
