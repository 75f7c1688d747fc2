// Package errs defines the error taxonomy used across the trigger runtime.
// Every error type carries an HTTP status code so the httpapi package can
// map any returned error to a response without a type switch per handler.
package errs

import "net/http"

// ValidationError indicates malformed or missing request input.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string   { return e.Msg }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// AuthError indicates a failed or insufficient authorization check.
type AuthError struct{ Msg string }

func (e *AuthError) Error() string   { return e.Msg }
func (e *AuthError) StatusCode() int { return http.StatusUnauthorized }

// NotFound indicates the referenced trigger or resource does not exist.
type NotFound struct{ Msg string }

func (e *NotFound) Error() string   { return e.Msg }
func (e *NotFound) StatusCode() int { return http.StatusNotFound }

// ConflictError indicates a state transition that the current lifecycle
// state forbids (for example, any transition out of DELETING).
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string   { return e.Msg }
func (e *ConflictError) StatusCode() int { return http.StatusConflict }

// UpstreamError wraps a failure from a downstream HTTP dependency (queue,
// action, or identity service).
type UpstreamError struct {
	Msg       string
	Transient bool
}

func (e *UpstreamError) Error() string   { return e.Msg }
func (e *UpstreamError) StatusCode() int { return http.StatusBadGateway }

// ExpressionError indicates a filter or template expression failed to
// parse or evaluate, or exceeded its step budget.
type ExpressionError struct{ Msg string }

func (e *ExpressionError) Error() string   { return e.Msg }
func (e *ExpressionError) StatusCode() int { return http.StatusBadRequest }

// InternalError indicates an unexpected failure with no more specific
// classification.
type InternalError struct{ Msg string }

func (e *InternalError) Error() string   { return e.Msg }
func (e *InternalError) StatusCode() int { return http.StatusInternalServerError }

// StatusCoder is implemented by every error type in this package.
type StatusCoder interface {
	StatusCode() int
}

// HTTPStatus returns the status code an error should be reported with,
// defaulting to 500 for errors outside this taxonomy.
func HTTPStatus(err error) int {
	if sc, ok := err.(StatusCoder); ok {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
