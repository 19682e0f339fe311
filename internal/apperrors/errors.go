// Package apperrors defines the error taxonomy shared by the handlers and the
// provider clients. Handlers translate these into HTTP status codes; the
// message returned to callers is always generic, the full detail goes to logs.
package apperrors

import "fmt"

// ValidationError means the request input was missing or malformed (HTTP 400).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError means a referenced session or template does not exist (HTTP 404).
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// AuthError means the provider token exchange failed in every environment.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// GatewayError carries the status and raw body of a non-2xx provider response.
// The body is for operator logs only and must never be echoed to callers.
type GatewayError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// PersistenceError means a datastore write could not be verified after retries.
type PersistenceError struct {
	Msg string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *PersistenceError) Unwrap() error { return e.Err }
