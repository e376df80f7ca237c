// Package app assembles the record counter from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/airtable-record-counter/internal/config"
	"github.com/Sternrassler/airtable-record-counter/internal/server"
	"github.com/Sternrassler/airtable-record-counter/pkg/client"
	"github.com/Sternrassler/airtable-record-counter/pkg/logging"
	"github.com/Sternrassler/airtable-record-counter/pkg/pagination"
	"github.com/Sternrassler/airtable-record-counter/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	log zerolog.Logger
	cfg *config.Config
}

func New(log zerolog.Logger, cfg *config.Config) *App {
	return &App{
		log: log,
		cfg: cfg,
	}
}

func (a *App) Run(ctx context.Context) error {
	if missing := a.cfg.Airtable.Missing(); len(missing) > 0 {
		a.log.Warn().Strs("missing", missing).Msg("Missing one or more Airtable environment variables")
	}

	a.log.Debug().
		Str("base_id", a.cfg.Airtable.BaseID).
		Str("table_id", a.cfg.Airtable.TableID).
		Int("max_pages", a.cfg.Counter.MaxPages).
		Msg("Airtable configuration loaded")

	redisClient, err := a.connectRedis(ctx)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	counter, err := a.buildCounter(redisClient)
	if err != nil {
		return err
	}

	srv := server.NewServer(a.cfg, counter, redisClient, logging.NewLogger("http"))

	erg, ctx := errgroup.WithContext(ctx)

	erg.Go(func() error {
		a.log.Info().Str("addr", srv.Addr()).Msg("Starting record counter server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}

		return nil
	})

	erg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := erg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("Server stopped with error")
		return err
	}

	a.log.Info().Msg("Server stopped gracefully")

	return nil
}

// connectRedis returns nil when no Redis address is configured.
func (a *App) connectRedis(ctx context.Context) (*redis.Client, error) {
	if !a.cfg.Redis.Enabled() {
		a.log.Info().Msg("Redis not configured, throttle guard disabled")
		return nil, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}
	a.log.Info().Str("addr", a.cfg.Redis.Addr).Msg("Connected to Redis")

	return redisClient, nil
}

func (a *App) buildCounter(redisClient *redis.Client) (*pagination.Counter, error) {
	clientCfg := client.DefaultConfig()
	if a.cfg.Airtable.UserAgent != "" {
		clientCfg.UserAgent = a.cfg.Airtable.UserAgent
	}
	if a.cfg.Airtable.Timeout > 0 {
		clientCfg.Timeout = a.cfg.Airtable.Timeout
	}
	if redisClient != nil {
		clientCfg.Throttle = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
	}

	airtable, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create airtable client: %w", err)
	}

	return pagination.NewCounter(airtable, pagination.Config{MaxPages: a.cfg.Counter.MaxPages}), nil
}
