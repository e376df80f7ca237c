// Package ratelimit tracks Airtable's 429 penalty window and gates outbound
// requests while it is active. Airtable rejects a base with 429 once it
// exceeds its request budget and expects clients to stay quiet for 30
// seconds; the window is kept in Redis so every instance honours it.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyPrefix namespaces throttle state in Redis.
const RedisKeyPrefix = "airtable:throttle:"

// DefaultPenalty is how long requests are held back after a 429 when the
// response carries no usable Retry-After header.
const DefaultPenalty = 30 * time.Second

// ThrottleState is the penalty window for one scope (an Airtable base).
type ThrottleState struct {
	// Scope identifies what the window applies to, usually "<host>/<base>".
	Scope string `json:"scope"`

	// BlockedUntil is when outbound requests may resume.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the window was last recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether the penalty window is still open.
func (s *ThrottleState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining penalty.
// Returns 0 if the window has already closed.
func (s *ThrottleState) TimeUntilUnblocked() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// BlockedError is returned for requests short-circuited by an open window.
type BlockedError struct {
	Scope   string
	RetryIn time.Duration
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("airtable rate limit penalty active for %s (retry in %s)",
		e.Scope, e.RetryIn.Round(time.Second))
}

// RedisKey returns the Redis key holding the state of a scope.
func RedisKey(scope string) string {
	return RedisKeyPrefix + strings.Trim(scope, "/")
}

// PenaltyFromHeaders derives the penalty from a Retry-After header, which
// may carry either delay seconds or an HTTP date.
func PenaltyFromHeaders(headers http.Header, now time.Time) time.Duration {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return DefaultPenalty
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return DefaultPenalty
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return DefaultPenalty
}
