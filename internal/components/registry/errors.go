package registry

import (
	"errors"
	"fmt"
)

// Category classifies a failed registry lookup.
type Category string

const (
	// CategoryUnauthorized: the registry kept answering 401 after the
	// allowed number of token refreshes.
	CategoryUnauthorized Category = "unauthorized"
	// CategoryStatus: any other non-200 answer.
	CategoryStatus Category = "status"
	// CategoryTransport: the request never produced a response.
	CategoryTransport Category = "transport"
	// CategoryBadData: a 200 answer whose body could not be decoded.
	CategoryBadData Category = "bad_data"
)

// FetchError is a failed participant lookup.
type FetchError struct {
	Category   Category
	ExternalID string
	StatusCode int
	Body       string
	Cause      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("registry lookup %s: %s", e.ExternalID, e.Category)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// CategoryOf returns the category of a *FetchError in err's chain, or ""
// when err is nil or not a registry error.
func CategoryOf(err error) Category {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}

// ErrUnreachable is returned by Ping when the liveness probe fails.
var ErrUnreachable = errors.New("registry unreachable")
