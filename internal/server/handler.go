package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/airtable-record-counter/internal/config"
	"github.com/Sternrassler/airtable-record-counter/pkg/client"
	"github.com/Sternrassler/airtable-record-counter/pkg/pagination"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RecordCounter counts the records of the table behind an endpoint.
type RecordCounter interface {
	CountRecords(ctx context.Context, endpoint, token string) (*pagination.Result, error)
}

type CountHandler struct {
	counter  RecordCounter
	endpoint string
	token    string
	tableID  string
}

func NewCountHandler(counter RecordCounter, airtable config.Airtable) *CountHandler {
	return &CountHandler{
		counter:  counter,
		endpoint: airtable.Endpoint(),
		token:    airtable.APIKey,
		tableID:  airtable.TableID,
	}
}

type CountResponse struct {
	TableID     string `json:"table_id"`
	RecordCount int    `json:"record_count"`
}

// ErrorResponse is sent for failed counts. Details is set only for
// upstream failures and then always present, even when the body was empty.
type ErrorResponse struct {
	Error   string  `json:"error"`
	Details *string `json:"details,omitempty"`
}

// GetRecordCount answers 200 in every case; callers tell failures apart by
// the "error" key.
func (h *CountHandler) GetRecordCount(w http.ResponseWriter, r *http.Request) {
	result, err := h.counter.CountRecords(r.Context(), h.endpoint, h.token)
	if err != nil {
		if upstream, ok := client.IsUpstreamError(err); ok {
			details := upstream.Body
			writeJSON(w, http.StatusOK, ErrorResponse{Error: upstream.Error(), Details: &details})
			return
		}
		writeJSON(w, http.StatusOK, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{
		TableID:     h.tableID,
		RecordCount: result.RecordCount,
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports 503 when Redis is configured but unreachable.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
