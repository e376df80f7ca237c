package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airtable_throttle_active",
		Help: "1 while an Airtable 429 penalty window is active",
	})

	throttleBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airtable_throttle_blocks_total",
		Help: "Total number of requests short-circuited during a penalty window",
	})

	throttleEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airtable_throttle_events_total",
		Help: "Total number of 429 responses recorded",
	})
)

// Tracker records Airtable penalty windows and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the penalty window for scope from Redis.
// Returns an open (unblocked) state if no window is stored.
func (t *Tracker) GetState(ctx context.Context, scope string) (*ThrottleState, error) {
	data, err := t.redis.Get(ctx, RedisKey(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Str("scope", scope).Msg("No throttle state in Redis")
		return &ThrottleState{Scope: scope}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get throttle state: %w", err)
	}

	var state ThrottleState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse throttle state: %w", err)
	}

	return &state, nil
}

// RecordThrottle opens a penalty window for scope after a 429 response.
// The Redis key expires together with the window.
func (t *Tracker) RecordThrottle(ctx context.Context, scope string, headers http.Header) (*ThrottleState, error) {
	now := time.Now()
	penalty := PenaltyFromHeaders(headers, now)

	state := &ThrottleState{
		Scope:        scope,
		BlockedUntil: now.Add(penalty),
		LastUpdate:   now,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal throttle state: %w", err)
	}

	if err := t.redis.Set(ctx, RedisKey(scope), data, penalty).Err(); err != nil {
		return nil, fmt.Errorf("store throttle state in redis: %w", err)
	}

	throttleEventsTotal.Inc()
	throttleActive.Set(1)

	t.logger.Warn().
		Str("scope", scope).
		Dur("penalty", penalty).
		Time("blocked_until", state.BlockedUntil).
		Msg("Airtable rate limit hit - penalty window opened")

	return state, nil
}

// ShouldAllowRequest checks whether a request for scope may go out.
// When blocked, the remaining penalty is returned alongside false.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, scope string) (bool, time.Duration, error) {
	state, err := t.GetState(ctx, scope)
	if err != nil {
		return false, 0, fmt.Errorf("get throttle state: %w", err)
	}

	if !state.IsBlocked() {
		throttleActive.Set(0)
		return true, 0, nil
	}

	wait := state.TimeUntilUnblocked()
	t.logger.Warn().
		Str("scope", scope).
		Dur("wait_duration", wait).
		Msg("Airtable penalty window active - blocking request")

	throttleBlocksTotal.Inc()
	return false, wait, nil
}

// Clear removes any stored window for scope.
func (t *Tracker) Clear(ctx context.Context, scope string) error {
	if err := t.redis.Del(ctx, RedisKey(scope)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	throttleActive.Set(0)
	return nil
}
