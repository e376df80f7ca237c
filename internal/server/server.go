// Package server wires the HTTP surface of the record counter.
package server

import (
	"context"
	"net/http"

	"github.com/Sternrassler/airtable-record-counter/internal/config"
	"github.com/Sternrassler/airtable-record-counter/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Server struct {
	httpServer *http.Server
}

func NewServer(cfg *config.Config, counter RecordCounter, redisClient *redis.Client, logger zerolog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.HTTP.Addr(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
			Handler:      NewRouter(cfg.Airtable, counter, redisClient, logger),
		},
	}
}

// NewRouter builds the routes. redisClient may be nil.
func NewRouter(airtable config.Airtable, counter RecordCounter, redisClient *redis.Client, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions()))

	h := NewCountHandler(counter, airtable)
	r.Get("/count", h.GetRecordCount)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(redisClient))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// corsOptions accepts any origin, header and common method, with
// credentials. Origins are echoed since "*" is invalid with credentials.
func corsOptions() cors.Options {
	return cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool { return true },
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodOptions, http.MethodHead,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
