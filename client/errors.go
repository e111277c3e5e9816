package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches errors for HTTP 401 responses.
	ErrUnauthorized = errors.New("client: unauthorized")
	// ErrForbidden matches errors for HTTP 403 responses.
	ErrForbidden = errors.New("client: forbidden")
)

// GenericMessage is shown when the backend gives no message of its own.
const GenericMessage = "Request failed, please try again later"

// APIError is a failed backend call: a non-OK envelope, an HTTP error status
// or an undecodable body.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string

	cause error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = GenericMessage
	}
	if e.cause != nil {
		return fmt.Sprintf("api error (status %d): %s: %v", e.Status, msg, e.cause)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error (status %d, code %s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, msg)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	return e.cause
}

// UserMessage returns the text to show a user for err: the backend message
// when there is one, the generic message otherwise.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericMessage
}

// IsAuthError reports whether err is a 401 or 403 from the backend.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
