package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/swapi-aggregator/pkg/pagination"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
)

// handlePeople serves GET /people: every character, optionally sorted.
func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	query, err := parsePeopleQuery(r.URL.RawQuery)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	people, err := pagination.Collect[swapi.Person](ctx, s.collector, swapi.PeoplePath)
	if err != nil {
		s.writeError(w, r, internalError(fmt.Errorf("collect people: %w", err)))
		return
	}

	if len(people) == 0 {
		s.writeError(w, r, errNoPeople)
		return
	}

	if query.SortBy != nil {
		swapi.SortPeople(people, *query.SortBy)
	}

	writeJSON(w, http.StatusOK, swapi.NewAggregate(people))
}

// handlePlanets serves GET /planets: every planet with resident names.
func (s *Server) handlePlanets(w http.ResponseWriter, r *http.Request) {
	if err := ensureNoQuery(r.URL.RawQuery); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	planets, err := pagination.Collect[swapi.Planet](ctx, s.collector, swapi.PlanetsPath)
	if err != nil {
		s.writeError(w, r, internalError(fmt.Errorf("collect planets: %w", err)))
		return
	}

	if len(planets) == 0 {
		s.writeError(w, r, errNoPlanets)
		return
	}

	resolved, err := s.resolver.ResolveAll(ctx, planets)
	if err != nil {
		s.writeError(w, r, internalError(fmt.Errorf("resolve residents: %w", err)))
		return
	}

	writeJSON(w, http.StatusOK, swapi.NewAggregate(resolved))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleReady reports 503 while a configured dependency is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.ReadyTimeout)
		defer cancel()

		if err := s.readiness(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// requestContext bounds the upstream work for one request.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}
