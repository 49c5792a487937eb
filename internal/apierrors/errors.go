package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrCredentialStore  = errors.New("credential store unreadable")
	ErrNoRefreshToken   = errors.New("refresh token not found")
	ErrRefreshInFlight  = errors.New("token refresh already in flight")
	ErrAlreadyRetried   = errors.New("request already retried once")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// APIError is the single error shape surfaced to callers of the API client.
// Message is taken from the backend error payload when present, Status and
// StatusText mirror the HTTP response. Transport errors get Status 0.
type APIError struct {
	Message    string
	Status     int
	StatusText string
	Err        error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api: %s", e.Message)
	}
	return fmt.Sprintf("api: %s (status=%d %s)", e.Message, e.Status, e.StatusText)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// New builds an APIError that didn't originate from an HTTP response.
func New(message string, err error) *APIError {
	return &APIError{
		Message: message,
		Err:     err,
	}
}

// backend error payload, e.g. {"error": "User not found"}
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// FromResponse normalizes a non-2xx response into an APIError. The body is
// consumed; callers must not read it again.
func FromResponse(resp *http.Response, err error) *APIError {
	e := &APIError{
		Message:    http.StatusText(resp.StatusCode),
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Err:        err,
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return e
	}

	var parsed errorBody
	if json.Unmarshal(body, &parsed) != nil {
		return e
	}

	// Prefer the most specific field the backend filled in
	switch {
	case parsed.Error != "":
		e.Message = parsed.Error
	case parsed.Message != "":
		e.Message = parsed.Message
	case parsed.Detail != "":
		e.Message = parsed.Detail
	}

	return e
}

// AsAPIError unwraps err to an *APIError if there is one in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
