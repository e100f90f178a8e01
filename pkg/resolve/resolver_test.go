package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/swapi-aggregator/internal/testutil"
	"github.com/Sternrassler/swapi-aggregator/pkg/client"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
)

// fakeFetcher serves names from a map. URLs in fail return an error; URLs in
// block wait for cancellation.
type fakeFetcher struct {
	names    map[string]string
	fail     map[string]error
	block    map[string]bool
	calls    int32
	inFlight int32
	peak     int32
	mu       sync.Mutex
}

func (f *fakeFetcher) GetJSON(ctx context.Context, url string, v any) error {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	if cur > f.peak {
		f.peak = cur
	}
	f.mu.Unlock()

	if f.block[url] {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := f.fail[url]; err != nil {
		return err
	}
	name, ok := f.names[url]
	if !ok {
		return fmt.Errorf("unknown url %s", url)
	}
	// give siblings a chance to overlap
	time.Sleep(time.Millisecond)
	v.(*swapi.Named).Name = name
	return nil
}

func TestResolveAll_ReplacesURLsInOrder(t *testing.T) {
	fetcher := &fakeFetcher{names: map[string]string{
		"https://swapi.dev/api/people/1/": "Luke Skywalker",
		"https://swapi.dev/api/people/2/": "C-3PO",
		"https://swapi.dev/api/people/5/": "Leia Organa",
	}}
	r := NewResolver(fetcher, DefaultConfig())

	planets := []swapi.Planet{
		{Name: "Tatooine", Residents: []string{
			"https://swapi.dev/api/people/1/",
			"https://swapi.dev/api/people/2/",
		}},
		{Name: "Alderaan", Residents: []string{"https://swapi.dev/api/people/5/"}},
		{Name: "Yavin IV", Residents: []string{}},
	}

	got, err := r.ResolveAll(context.Background(), planets)
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}

	want := [][]string{{"Luke Skywalker", "C-3PO"}, {"Leia Organa"}, {}}
	for i := range want {
		if got[i].Name != planets[i].Name {
			t.Errorf("planet %d name = %q, want %q", i, got[i].Name, planets[i].Name)
		}
		if len(got[i].Residents) != len(want[i]) {
			t.Fatalf("planet %d residents = %v, want %v", i, got[i].Residents, want[i])
		}
		for j := range want[i] {
			if got[i].Residents[j] != want[i][j] {
				t.Errorf("planet %d resident %d = %q, want %q", i, j, got[i].Residents[j], want[i][j])
			}
		}
	}

	if planets[0].Residents[0] != "https://swapi.dev/api/people/1/" {
		t.Error("input planet was mutated")
	}
}

func TestResolveAll_FailureIsAllOrNothing(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &fakeFetcher{
		names: map[string]string{"ok": "Luke Skywalker"},
		fail:  map[string]error{"bad": boom},
		block: map[string]bool{"slow": true},
	}
	r := NewResolver(fetcher, Config{})

	planets := []swapi.Planet{
		{Name: "Tatooine", Residents: []string{"ok", "slow"}},
		{Name: "Hoth", Residents: []string{"bad"}},
	}

	done := make(chan struct{})
	var got []swapi.Planet
	var err error
	go func() {
		got, err = r.ResolveAll(context.Background(), planets)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ResolveAll did not cancel the blocked lookup after a failure")
	}

	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped boom", err)
	}
	if got != nil {
		t.Errorf("expected no result on failure, got %v", got)
	}
}

func TestResolveAll_RespectsConcurrencyLimit(t *testing.T) {
	names := map[string]string{}
	var refs []string
	for i := 0; i < 20; i++ {
		url := fmt.Sprintf("https://swapi.dev/api/people/%d/", i)
		names[url] = fmt.Sprintf("person-%d", i)
		refs = append(refs, url)
	}
	fetcher := &fakeFetcher{names: names}
	r := NewResolver(fetcher, Config{MaxConcurrency: 3})

	_, err := r.ResolveAll(context.Background(), []swapi.Planet{{Name: "Coruscant", Residents: refs}})
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	if fetcher.peak > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", fetcher.peak)
	}
	if got := atomic.LoadInt32(&fetcher.calls); got != 20 {
		t.Errorf("calls = %d, want 20", got)
	}
}

func TestResolveAll_CancelledContext(t *testing.T) {
	fetcher := &fakeFetcher{names: map[string]string{"a": "A"}}
	r := NewResolver(fetcher, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ResolveAll(ctx, []swapi.Planet{{Name: "Naboo", Residents: []string{"a"}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestResolve_AgainstMockUpstream(t *testing.T) {
	mock := testutil.NewMockSWAPI()
	defer mock.Close()

	luke := mock.SetPerson(1, "Luke Skywalker")

	cfg := client.DefaultConfig("resolve-test/1.0")
	cfg.BaseURL = mock.URL()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	r := NewResolver(c, DefaultConfig())

	planet, err := r.Resolve(context.Background(), swapi.Planet{Name: "Tatooine", Residents: []string{luke}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(planet.Residents) != 1 || planet.Residents[0] != "Luke Skywalker" {
		t.Errorf("Residents = %v, want [Luke Skywalker]", planet.Residents)
	}

	_, err = r.Resolve(context.Background(), swapi.Planet{Name: "Kamino", Residents: []string{mock.PersonURL(99)}})
	if !client.IsUpstreamError(err) {
		t.Errorf("error = %v, want UpstreamError for missing resident", err)
	}
}
