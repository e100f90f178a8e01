package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig("TestApp/1.0.0 (test@example.com)")
	cfg.BaseURL = baseURL
	cfg.RateLimit = 0
	cfg.InitialBackoff = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:     "empty user agent",
			mutate:   func(c *Config) { c.UserAgent = "" },
			errorMsg: "user-agent is required",
		},
		{
			name:     "relative base url",
			mutate:   func(c *Config) { c.BaseURL = "/api" },
			errorMsg: `base url must be an absolute http(s) url (got "/api")`,
		},
		{
			name:     "unsupported scheme",
			mutate:   func(c *Config) { c.BaseURL = "ftp://swapi.dev/api" },
			errorMsg: `base url must be an absolute http(s) url (got "ftp://swapi.dev/api")`,
		},
		{
			name:     "negative rate limit",
			mutate:   func(c *Config) { c.RateLimit = -1 },
			errorMsg: "rate_limit must be >= 0 (got -1)",
		},
		{
			name:     "negative retries",
			mutate:   func(c *Config) { c.MaxRetries = -2 },
			errorMsg: "max_retries must be >= 0 (got -2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("TestApp/1.0.0")
			tt.mutate(&cfg)
			client, err := New(cfg)

			if tt.errorMsg != "" {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("TestApp/1.0.0")

	if cfg.UserAgent != "TestApp/1.0.0" {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, "TestApp/1.0.0")
	}
	if cfg.BaseURL != "https://swapi.dev/api" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.MaxRetries)
	}
	if cfg.Redis != nil {
		t.Error("Redis should be unset by default")
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}

	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{name: "network error", err: io.EOF, expected: ErrorClassNetwork},
		{name: "client error 404", statusCode: 404, expected: ErrorClassClient},
		{name: "client error 403", statusCode: 403, expected: ErrorClassClient},
		{name: "rate limit 429", statusCode: 429, expected: ErrorClassRateLimit},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "server error 503", statusCode: 503, expected: ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}

			if got := client.classifyError(resp, tt.err); got != tt.expected {
				t.Errorf("classifyError() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDo_HeadersSet(t *testing.T) {
	var userAgent, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		w.Write([]byte(`{"name":"Luke"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	resp, err := client.Get(context.Background(), "/people/1/")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	resp.Body.Close()

	if userAgent != "TestApp/1.0.0 (test@example.com)" {
		t.Errorf("User-Agent = %q", userAgent)
	}
	if accept != "application/json" {
		t.Errorf("Accept = %q, want application/json", accept)
	}
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/people/1/":
			w.Write([]byte(`{"name":"Luke Skywalker"}`))
		case "/broken/":
			w.Write([]byte(`{"name":`))
		case "/missing/":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	ctx := context.Background()

	t.Run("decodes body", func(t *testing.T) {
		var v struct {
			Name string `json:"name"`
		}
		if err := client.GetJSON(ctx, server.URL+"/people/1/", &v); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
		if v.Name != "Luke Skywalker" {
			t.Errorf("Name = %q", v.Name)
		}
	})

	tests := []struct {
		path   string
		class  ErrorClass
		status int
	}{
		{path: "/broken/", class: ErrorClassDecode, status: 200},
		{path: "/missing/", class: ErrorClassClient, status: 404},
		{path: "/boom/", class: ErrorClassServer, status: 500},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var v map[string]any
			err := client.GetJSON(ctx, tt.path, &v)

			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("error = %v, want *UpstreamError", err)
			}
			if ue.ErrorClass != tt.class {
				t.Errorf("ErrorClass = %q, want %q", ue.ErrorClass, tt.class)
			}
			if ue.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", ue.StatusCode, tt.status)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	client := newTestClient(t, "https://swapi.dev/api/", nil)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "/people", want: "https://swapi.dev/api/people"},
		{in: "https://swapi.dev/api/planets/?page=2", want: "https://swapi.dev/api/planets/?page=2"},
		{in: "people/1", wantErr: true},
		{in: "mailto:luke@tatooine", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := client.ResolveURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ResolveURL(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveURL(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ResolveURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDo_NoRetryByDefault(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	_, err := client.Get(context.Background(), "/people")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("single attempt should not report retry exhaustion")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestDo_RetryOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(c *Config) { c.MaxRetries = 2 })

	resp, err := client.Get(context.Background(), "/people")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(c *Config) { c.MaxRetries = 3 })

	_, err := client.Get(context.Background(), "/people/999/")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusNotFound {
		t.Fatalf("error = %v, want 404 UpstreamError", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(c *Config) { c.MaxRetries = 1 })

	_, err := client.Get(context.Background(), "/planets")
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if !IsUpstreamError(err) {
		t.Error("exhausted error should still wrap the UpstreamError")
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, server.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "/people")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded in chain", err)
	}
}

func TestEndpointLabel(t *testing.T) {
	client := newTestClient(t, "https://swapi.dev/api", nil)

	tests := map[string]string{
		"/people":          "people",
		"/people/1/":       "people",
		"/planets/?page=3": "planets",
	}
	for in, want := range tests {
		u, err := client.ResolveURL(in)
		if err != nil {
			t.Fatalf("ResolveURL(%q) error = %v", in, err)
		}
		req, _ := http.NewRequest(http.MethodGet, u, nil)
		if got := endpointLabel(req.URL); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetJSON_BudgetStoreUnavailableFailsOpen(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"Luke Skywalker"}`)
	}))
	defer server.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer rdb.Close()

	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.Redis = rdb })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var v struct {
		Name string `json:"name"`
	}
	if err := c.GetJSON(ctx, "/people/1", &v); err != nil {
		t.Fatalf("GetJSON() error = %v, want request to proceed without the budget store", err)
	}
	if v.Name != "Luke Skywalker" {
		t.Errorf("Name = %q, want Luke Skywalker", v.Name)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("upstream calls = %d, want 1", atomic.LoadInt32(&calls))
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("Ping() = nil, want error for unreachable Redis")
	}
}
