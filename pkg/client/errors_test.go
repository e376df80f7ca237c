package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestUpstreamError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *UpstreamError
		expected string
	}{
		{
			name:     "unauthorized",
			err:      &UpstreamError{StatusCode: 401, ErrorClass: ErrorClassAuth, Body: `{"error":"AUTHENTICATION_REQUIRED"}`},
			expected: "Failed to fetch from Airtable (status 401)",
		},
		{
			name:     "not found",
			err:      &UpstreamError{StatusCode: 404, ErrorClass: ErrorClassClient},
			expected: "Failed to fetch from Airtable (status 404)",
		},
		{
			name:     "server error",
			err:      &UpstreamError{StatusCode: 503, ErrorClass: ErrorClassServer, Body: "unavailable"},
			expected: "Failed to fetch from Airtable (status 503)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.Error(); result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestIsUpstreamError(t *testing.T) {
	base := &UpstreamError{StatusCode: 401, Body: "denied"}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "direct", err: base, expected: true},
		{name: "wrapped", err: fmt.Errorf("page 3: %w", base), expected: true},
		{name: "other error", err: errors.New("boom"), expected: false},
		{name: "nil", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream, ok := IsUpstreamError(tt.err)
			if ok != tt.expected {
				t.Fatalf("IsUpstreamError() ok = %v, want %v", ok, tt.expected)
			}
			if ok && upstream.Body != "denied" {
				t.Errorf("Body = %q, want %q", upstream.Body, "denied")
			}
		})
	}
}
