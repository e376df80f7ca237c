package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/Sternrassler/airtable-record-counter/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for count runs.
var (
	countRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "record_count_runs_total",
		Help: "Total record count runs by outcome",
	}, []string{"outcome"})

	countPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "record_count_pages_total",
		Help: "Total pages consumed by record count runs",
	})

	lastRecordCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "record_count_last",
		Help: "Most recent record count per table",
	}, []string{"table"})
)

// ErrMaxPagesExceeded is returned when a table keeps returning offsets
// beyond Config.MaxPages.
var ErrMaxPagesExceeded = errors.New("maximum page count exceeded")

// Config holds counter configuration
type Config struct {
	// MaxPages bounds the pages fetched per run; 0 means unbounded
	MaxPages int
}

// DefaultConfig returns the default configuration: no page bound.
func DefaultConfig() Config {
	return Config{MaxPages: 0}
}

// PageFetcher is the interface the Airtable client implements for single-page fetching
type PageFetcher interface {
	// FetchPage fetches the page identified by offset ("" for the first page)
	FetchPage(ctx context.Context, endpoint, token, offset string) (*client.Page, error)
}

// Result is the outcome of a completed count run.
type Result struct {
	TableID     string `json:"table_id"`
	RecordCount int    `json:"record_count"`
	Pages       int    `json:"-"`
}

// Counter walks table pages and sums their record counts
type Counter struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewCounter creates a new record counter
func NewCounter(fetcher PageFetcher, config Config) *Counter {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &Counter{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "record-counter").Logger(),
	}
}

// CountRecords fetches every page of the table at endpoint and returns the
// total number of records. Any failure discards the running total.
func (c *Counter) CountRecords(ctx context.Context, endpoint, token string) (*Result, error) {
	start := time.Now()
	tableID := TableID(endpoint)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("table_id", tableID).
		Msg("Starting record count retrieval")

	total := 0
	offset := ""
	iteration := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, c.fail(endpoint, iteration, fmt.Errorf("count cancelled: %w", err))
		}

		if c.config.MaxPages > 0 && iteration >= c.config.MaxPages {
			return nil, c.fail(endpoint, iteration,
				fmt.Errorf("%w: %d pages fetched and more remain", ErrMaxPagesExceeded, iteration))
		}

		iteration++
		if offset != "" {
			c.logger.Debug().Int("iteration", iteration).Str("offset", offset).Msg("Continuing from offset")
		} else {
			c.logger.Debug().Int("iteration", iteration).Msg("Fetching first page")
		}

		page, err := c.fetcher.FetchPage(ctx, endpoint, token, offset)
		if err != nil {
			return nil, c.fail(endpoint, iteration, err)
		}
		countPagesTotal.Inc()

		batch := len(page.Records)
		total += batch

		c.logger.Debug().
			Int("iteration", iteration).
			Int("batch_count", batch).
			Int("record_count", total).
			Msg("Fetched page")

		offset = page.Offset
		if offset == "" {
			c.logger.Debug().Int("iteration", iteration).Msg("No more pages left to fetch")
			break
		}
	}

	countRunsTotal.WithLabelValues("success").Inc()
	lastRecordCount.WithLabelValues(tableID).Set(float64(total))

	c.logger.Info().
		Str("table_id", tableID).
		Int("record_count", total).
		Int("pages", iteration).
		Dur("duration", time.Since(start)).
		Msg("Finished record count")

	return &Result{
		TableID:     tableID,
		RecordCount: total,
		Pages:       iteration,
	}, nil
}

func (c *Counter) fail(endpoint string, iteration int, err error) error {
	countRunsTotal.WithLabelValues("error").Inc()
	c.logger.Error().
		Err(err).
		Str("endpoint", endpoint).
		Int("iteration", iteration).
		Msg("Record count failed")
	return err
}

// TableID returns the last path segment of a table endpoint, unescaped.
func TableID(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}

	id := path.Base(path.Clean("/" + u.Path))
	if id == "/" || id == "." {
		return ""
	}
	return id
}
