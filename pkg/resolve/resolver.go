// Package resolve replaces cross-reference URLs embedded in catalog records
// with the display names they point at.
package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var residentsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swapi_residents_resolved_total",
	Help: "Resident references resolved by outcome",
}, []string{"outcome"})

// JSONFetcher fetches a URL and decodes its JSON body into v.
type JSONFetcher interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Config holds resolver configuration.
type Config struct {
	// MaxConcurrency bounds in-flight lookups per call; <= 0 means unbounded.
	MaxConcurrency int
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 16}
}

// Resolver turns planet resident URLs into names.
type Resolver struct {
	fetcher JSONFetcher
	config  Config
	logger  zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(fetcher JSONFetcher, config Config) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("resolver"),
	}
}

// Resolve returns a copy of planet with every resident URL replaced by the
// resident's name.
func (r *Resolver) Resolve(ctx context.Context, planet swapi.Planet) (swapi.Planet, error) {
	out, err := r.ResolveAll(ctx, []swapi.Planet{planet})
	if err != nil {
		return swapi.Planet{}, err
	}
	return out[0], nil
}

// ResolveAll resolves the residents of every planet concurrently. Either all
// references resolve or an error is returned; the first failure cancels the
// lookups still in flight. The input slice and its planets are not modified.
func (r *Resolver) ResolveAll(ctx context.Context, planets []swapi.Planet) ([]swapi.Planet, error) {
	start := time.Now()

	out := make([]swapi.Planet, len(planets))
	total := 0
	for i, p := range planets {
		out[i] = p
		out[i].Residents = make([]string, len(p.Residents))
		total += len(p.Residents)
	}

	g, ctx := errgroup.WithContext(ctx)
	if r.config.MaxConcurrency > 0 {
		g.SetLimit(r.config.MaxConcurrency)
	}

	for i := range planets {
		for j, ref := range planets[i].Residents {
			i, j, ref := i, j, ref
			g.Go(func() error {
				name, err := r.lookupName(ctx, ref)
				if err != nil {
					residentsResolvedTotal.WithLabelValues("error").Inc()
					return fmt.Errorf("resolve resident %d of planet %q: %w", j, planets[i].Name, err)
				}
				residentsResolvedTotal.WithLabelValues("ok").Inc()
				// each goroutine owns exactly one slot
				out[i].Residents[j] = name
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn().
			Err(err).
			Int("planets", len(planets)).
			Int("residents", total).
			Msg("Resident resolution failed")
		return nil, err
	}

	r.logger.Debug().
		Int("planets", len(planets)).
		Int("residents", total).
		Dur("duration", time.Since(start)).
		Msg("Residents resolved")

	return out, nil
}

func (r *Resolver) lookupName(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var named swapi.Named
	if err := r.fetcher.GetJSON(ctx, ref, &named); err != nil {
		return "", err
	}
	return named.Name, nil
}
