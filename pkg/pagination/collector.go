package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// ErrPaginationCycle is returned when a next link points at a page already fetched.
	ErrPaginationCycle = errors.New("pagination cycle detected")

	// ErrTooManyPages is returned when a chain is longer than Config.MaxPages.
	ErrTooManyPages = errors.New("pagination exceeded page limit")
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swapi_pages_fetched_total",
	Help: "Total collection pages fetched by start URL",
}, []string{"collection"})

// Config holds collector configuration
type Config struct {
	// MaxPages bounds the length of a pagination chain
	MaxPages int
}

// DefaultConfig returns the default collector configuration
func DefaultConfig() Config {
	return Config{MaxPages: 100}
}

// JSONFetcher fetches a URL and decodes its JSON body into v.
// *client.Client implements it.
type JSONFetcher interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Collector walks pagination chains
type Collector struct {
	fetcher JSONFetcher
	config  Config
	logger  zerolog.Logger
}

// NewCollector creates a new collector
func NewCollector(fetcher JSONFetcher, config Config) *Collector {
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultConfig().MaxPages
	}
	return &Collector{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("pagination"),
	}
}

// Collect fetches startURL and every page reachable through its next links,
// returning all results in page order.
func Collect[T any](ctx context.Context, c *Collector, startURL string) ([]T, error) {
	start := time.Now()
	visited := make(map[string]struct{})
	results := make([]T, 0)

	next := startURL
	pages := 0
	for next != "" {
		if _, seen := visited[next]; seen {
			return nil, fmt.Errorf("%w: %s", ErrPaginationCycle, next)
		}
		if pages >= c.config.MaxPages {
			return nil, fmt.Errorf("%w (%d pages from %s)", ErrTooManyPages, c.config.MaxPages, startURL)
		}
		visited[next] = struct{}{}

		var page swapi.Page[T]
		if err := c.fetcher.GetJSON(ctx, next, &page); err != nil {
			c.logger.Warn().
				Err(err).
				Str("url", next).
				Int("page", pages+1).
				Msg("Page fetch failed")
			return nil, fmt.Errorf("fetch page %d: %w", pages+1, err)
		}

		pages++
		pagesFetchedTotal.WithLabelValues(startURL).Inc()
		results = append(results, page.Results...)

		c.logger.Debug().
			Str("url", next).
			Int("page", pages).
			Int("items", len(page.Results)).
			Msg("Page fetched")

		next = page.NextURL()
	}

	c.logger.Info().
		Str("start_url", startURL).
		Int("pages", pages).
		Int("items", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Collection complete")

	return results, nil
}
