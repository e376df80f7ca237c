package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of failed page requests.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than auth and rate limit.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 responses (bad or missing API key).
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ErrInvalidEndpoint is returned when the table endpoint cannot be parsed.
var ErrInvalidEndpoint = errors.New("invalid table endpoint")

// UpstreamError is returned when Airtable answers with a non-success status.
// Body holds the raw response text.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Body       string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Failed to fetch from Airtable (status %d)", e.StatusCode)
}

// IsUpstreamError reports whether err wraps an *UpstreamError and returns it.
func IsUpstreamError(err error) (*UpstreamError, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream, true
	}
	return nil, false
}
