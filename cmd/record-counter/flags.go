package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/airtable-record-counter/internal/app"
	"github.com/Sternrassler/airtable-record-counter/internal/config"
	"github.com/Sternrassler/airtable-record-counter/pkg/logging"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func cmd() *cli.Command {
	return &cli.Command{
		Name:    "record-counter",
		Usage:   "Serve the total record count of an Airtable table",
		Version: version,
		Flags:   flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load(cmd)
			if err := validateMaxPages(cfg.Counter.MaxPages); err != nil {
				return err
			}

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Log.Level),
				Pretty: cfg.Log.Pretty,
			})

			return app.New(logging.NewLogger("app"), cfg).Run(ctx)
		},
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "airtable-api-key",
			Usage:   "Set Airtable personal access token",
			Sources: cli.EnvVars("AIRTABLE_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "airtable-base-id",
			Usage:   "Set Airtable base ID",
			Sources: cli.EnvVars("AIRTABLE_BASE_ID"),
		},
		&cli.StringFlag{
			Name:    "airtable-table-id",
			Usage:   "Set Airtable table ID or name",
			Sources: cli.EnvVars("AIRTABLE_TABLE_ID"),
		},
		&cli.StringFlag{
			Name:      "airtable-api-url",
			Usage:     "Set Airtable API root `URL`",
			Value:     config.DefaultAPIURL,
			Sources:   cli.EnvVars("AIRTABLE_API_URL"),
			Validator: validateURL,
		},
		&cli.StringFlag{
			Name:    "user-agent",
			Usage:   "Set User-Agent sent to Airtable",
			Value:   "airtable-record-counter/" + version,
			Sources: cli.EnvVars("USER_AGENT"),
		},
		&cli.DurationFlag{
			Name:    "upstream-timeout",
			Usage:   "Set timeout for a single Airtable page request",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("UPSTREAM_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-pages",
			Usage:   "Abort a count after this many pages (0 = unbounded)",
			Value:   0,
			Sources: cli.EnvVars("MAX_PAGES"),
		},
		&cli.StringFlag{
			Name:    "http-host",
			Usage:   "Set HTTP server host",
			Value:   "0.0.0.0",
			Sources: cli.EnvVars("HOST"),
		},
		&cli.StringFlag{
			Name:    "http-port",
			Usage:   "Set HTTP server port",
			Value:   "8000",
			Sources: cli.EnvVars("PORT"),
		},
		&cli.DurationFlag{
			Name:    "http-idle-timeout",
			Usage:   "Set HTTP server idle timeout",
			Value:   1 * time.Minute,
			Sources: cli.EnvVars("HTTP_IDLE_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "http-read-timeout",
			Usage:   "Set HTTP server read timeout",
			Value:   15 * time.Second,
			Sources: cli.EnvVars("HTTP_READ_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "http-write-timeout",
			Usage:   "Set HTTP server write timeout",
			Value:   0,
			Sources: cli.EnvVars("HTTP_WRITE_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Set Redis address for the shared throttle guard (empty disables it)",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Set Redis password",
			Sources: cli.EnvVars("REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Set Redis database number",
			Value:   0,
			Sources: cli.EnvVars("REDIS_DB"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Set log level (debug, info, warn, error)",
			Value:   string(logging.LevelDebug),
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "log-pretty",
			Usage:   "Write human-readable logs instead of JSON",
			Sources: cli.EnvVars("LOG_PRETTY"),
		},
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}

func validateMaxPages(n int) error {
	if n < 0 {
		return fmt.Errorf("max-pages must be >= 0 (got %d)", n)
	}
	return nil
}
