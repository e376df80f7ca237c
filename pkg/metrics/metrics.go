// Package metrics exposes the Prometheus registry used by the record counter.
// All metrics are defined in their respective packages (client, pagination,
// ratelimit) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - airtable_requests_total{status} (Counter): Outbound page requests by HTTP status
//   - airtable_request_duration_seconds (Histogram): Outbound page request duration
//   - airtable_errors_total{class} (Counter): Errors by class (client, auth, rate_limit, server, network)
//
// Pagination Metrics (pkg/pagination):
//   - record_count_runs_total{outcome} (Counter): Completed count runs by outcome (success, error)
//   - record_count_pages_total (Counter): Pages consumed across all runs
//   - record_count_last (Gauge{table}): Most recent record count per table
//
// Throttle Metrics (pkg/ratelimit):
//   - airtable_throttle_active (Gauge): 1 while a 429 penalty window is active
//   - airtable_throttle_blocks_total (Counter): Requests short-circuited during a penalty window
//   - airtable_throttle_events_total (Counter): 429 responses recorded
//
// Example Prometheus Queries:
//
//   # Upstream error rate
//   rate(airtable_errors_total[5m])
//
//   # Average pages per count
//   rate(record_count_pages_total[5m]) / rate(record_count_runs_total[5m])
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(airtable_request_duration_seconds_bucket[5m]))
