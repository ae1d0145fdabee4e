package infast

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error classes returned by the client. Match them with errors.Is; the
// concrete types below carry the details.
var (
	// ErrMissingCredentials is returned before any network call when the
	// client ID or secret is empty.
	ErrMissingCredentials = errors.New("INFast API credentials are not configured")

	// ErrAuthenticationFailed is returned when the token exchange is refused
	// or cannot be completed.
	ErrAuthenticationFailed = errors.New("INFast authentication failed")

	// ErrNetwork is returned when a request could not be sent or its response
	// could not be read.
	ErrNetwork = errors.New("INFast network error")

	// ErrMalformedResponse is returned when a response body is not JSON or
	// lacks an expected field.
	ErrMalformedResponse = errors.New("malformed INFast response")

	// ErrAPI is returned for any response with status 400 or above.
	ErrAPI = errors.New("INFast API error")

	// ErrNotFound matches API errors that denote a missing resource.
	ErrNotFound = errors.New("INFast resource not found")

	// ErrValidation is returned for local payload validation failures.
	ErrValidation = errors.New("invalid INFast request data")
)

// AuthError describes a failed client-credentials exchange.
type AuthError struct {
	Status  int    // HTTP status of the token endpoint, 0 if none was received
	Body    string // Raw response body, truncated
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("infast: authentication failed (status %d): %s", e.Status, msg)
	}
	return fmt.Sprintf("infast: authentication failed: %s", msg)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuthenticationFailed }

// NetworkError wraps a transport failure.
type NetworkError struct {
	Op  string // Method and path of the failed request
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("infast: %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// MalformedResponseError reports a body that could not be decoded.
type MalformedResponseError struct {
	Status int
	Body   string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("infast: malformed response (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("infast: malformed response (status %d)", e.Status)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// APIError is a response with status 400 or above.
type APIError struct {
	Status  int
	Message string
	Details any // The body's "details" value, nil when absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("infast: API error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return true
	case ErrNotFound:
		return e.NotFound()
	}
	return false
}

// NotFound reports whether the error denotes a missing resource: status 404
// or a message mentioning "not found".
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound || strings.Contains(strings.ToLower(e.Message), "not found")
}

// ValidationError represents invalid data detected before a request is sent.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsNotFound reports whether err carries a not-found API error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Status
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return malformed.Status
	}
	return 0
}

func newAPIError(status int, decoded any) *APIError {
	apiErr := &APIError{Status: status}
	if body, ok := decoded.(map[string]any); ok {
		apiErr.Details = body["details"]
		for _, key := range []string{"error", "message"} {
			if msg, ok := body[key].(string); ok && msg != "" {
				apiErr.Message = msg
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
