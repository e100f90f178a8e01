// Package testutil provides testing utilities for the catalog aggregator.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSWAPI is a configurable fake of the paginated catalog API.
// Routes are keyed by path, or by path plus raw query ("/people/?page=2").
type MockSWAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount int
	routeCount   map[string]int
}

// NewMockSWAPI creates and starts a mock catalog server.
func NewMockSWAPI() *MockSWAPI {
	mock := &MockSWAPI{
		handlers:   make(map[string]http.HandlerFunc),
		routeCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if r.URL.RawQuery != "" {
			route += "?" + r.URL.RawQuery
		}

		mock.mu.Lock()
		mock.requestCount++
		mock.routeCount[route]++
		handler, exists := mock.handlers[route]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSWAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSWAPI) Close() {
	m.server.Close()
}

// Reset clears tracking counters.
func (m *MockSWAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.routeCount = make(map[string]int)
}

// SetHandler sets a custom handler for a route.
func (m *MockSWAPI) SetHandler(route string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[route] = handler
}

// SetResponse configures a fixed response for a route.
func (m *MockSWAPI) SetResponse(route string, resp MockResponse) {
	m.SetHandler(route, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetCollection serves pages as a pagination chain rooted at path. Page one is
// served at path, page N at path+"?page=N", each linking to the next.
func (m *MockSWAPI) SetCollection(path string, pages ...[]any) {
	if len(pages) == 0 {
		pages = [][]any{{}}
	}

	total := 0
	for _, p := range pages {
		total += len(p)
	}

	for i, results := range pages {
		var next any
		if i+1 < len(pages) {
			next = fmt.Sprintf("%s%s?page=%d", m.URL(), path, i+2)
		}
		var previous any
		if i > 0 {
			previous = fmt.Sprintf("%s%s?page=%d", m.URL(), path, i)
		}
		if results == nil {
			results = []any{}
		}

		route := path
		if i > 0 {
			route = fmt.Sprintf("%s?page=%d", path, i+1)
		}
		m.SetResponse(route, NewJSONResponse(map[string]any{
			"count":    total,
			"next":     next,
			"previous": previous,
			"results":  results,
		}))
	}
}

// SetPerson serves a single person resource and returns its absolute URL.
func (m *MockSWAPI) SetPerson(id int, name string) string {
	path := fmt.Sprintf("/people/%d/", id)
	m.SetResponse(path, NewJSONResponse(map[string]any{
		"name": name,
		"url":  m.URL() + path,
	}))
	return m.URL() + path
}

// PersonURL returns the absolute URL a person resource would be served at.
func (m *MockSWAPI) PersonURL(id int) string {
	return fmt.Sprintf("%s/people/%d/", m.URL(), id)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSWAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RouteCount returns the number of requests made to one route.
func (m *MockSWAPI) RouteCount(route string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.routeCount[route]
}

// defaultHandler answers like the catalog does for unknown resources.
func (m *MockSWAPI) defaultHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"detail":"Not found"}`))
}

// NewJSONResponse creates a 200 OK response with v encoded as JSON.
func NewJSONResponse(v any) MockResponse {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal mock body: %v", err))
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail":"Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail":"Request was throttled."}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  "1",
		},
	}
}

// Person builds a people record for use in SetCollection.
func Person(name, height, mass string) map[string]any {
	return map[string]any{
		"name":   name,
		"height": height,
		"mass":   mass,
	}
}

// Planet builds a planet record for use in SetCollection.
func Planet(name string, residents ...string) map[string]any {
	if residents == nil {
		residents = []string{}
	}
	return map[string]any{
		"name":      name,
		"residents": residents,
	}
}
