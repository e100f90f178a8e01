// Package metrics exposes the Prometheus registry shared by the aggregator.
// Individual metrics live next to the code that updates them (client,
// ratelimit, pagination, resolve, server) and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is where promauto registers every metric in this module.
var Registry = prometheus.DefaultRegisterer

// Gatherer is read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the Prometheus text exposition of Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Has reports whether a metric family with the given name has been gathered.
func Has(name string) (bool, error) {
	families, err := Gatherer.Gather()
	if err != nil {
		return false, err
	}
	for _, f := range families {
		if f.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// Metrics Documentation
//
// Upstream requests (pkg/client):
//   - swapi_upstream_requests_total{endpoint, status} (Counter)
//   - swapi_upstream_request_duration_seconds{endpoint} (Histogram)
//   - swapi_upstream_errors_total{class} (Counter): client, server, rate_limit, network, decode,
//     budget_unavailable (error budget store unreachable, request allowed)
//
// Retries (pkg/client), only when MAX_RETRIES > 0:
//   - swapi_upstream_retries_total{error_class} (Counter)
//   - swapi_upstream_retry_backoff_seconds{error_class} (Histogram)
//   - swapi_upstream_retry_exhausted_total{error_class} (Counter)
//
// Error budget (pkg/ratelimit), only when REDIS_URL is set:
//   - swapi_error_budget_remaining (Gauge)
//   - swapi_error_budget_blocks_total (Counter)
//   - swapi_error_budget_throttles_total (Counter)
//
// Aggregation:
//   - swapi_pages_fetched_total{collection} (Counter, pkg/pagination)
//   - swapi_residents_resolved_total{outcome} (Counter, pkg/resolve)
//
// Inbound HTTP (internal/server):
//   - swapi_http_requests_total{route, method, status} (Counter)
//   - swapi_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Upstream error rate by class
//   sum by (class) (rate(swapi_upstream_errors_total[5m]))
//
//   # Pages per /people aggregation
//   rate(swapi_pages_fetched_total{collection="people"}[5m]) /
//   rate(swapi_http_requests_total{route="/people"}[5m])
//
//   # P95 inbound latency
//   histogram_quantile(0.95, rate(swapi_http_request_duration_seconds_bucket[5m]))
