// WHAT: Tests for the flight service: cache-before-limiter ordering,
// TTL expiry, LRU bound, rolling rate limit, and status normalization.
// WHY: The provider bills per call; the cache and limiter are the only
// things standing between a chatty frontend and the invoice. And unlike
// research sources, errors here must reach the caller.
package flight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// stubProvider returns a canned status and counts calls.
type stubProvider struct {
	calls  atomic.Int64
	status *Status
	err    error
}

func (p *stubProvider) Lookup(ctx context.Context, iata string) (*Status, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	st := *p.status
	st.FlightIATA = iata
	return &st, nil
}

func newTestService(p Provider, cfg Config, clock *time.Time) *Service {
	return NewService(p, cfg, WithClock(func() time.Time { return *clock }))
}

func TestLookupCachesWithinTTL(t *testing.T) {
	clock := time.Now()
	p := &stubProvider{status: &Status{Status: StatusActive}}
	s := newTestService(p, Config{}, &clock)

	ctx := context.Background()
	first, err := s.Lookup(ctx, "AF1234")
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if first.Status != StatusActive {
		t.Errorf("status = %q", first.Status)
	}

	// Within TTL: cache hit, no provider call, no limiter spend.
	clock = clock.Add(2 * time.Minute)
	second, err := s.Lookup(ctx, "AF1234")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls.Load())
	}
	if second.FetchedAt != first.FetchedAt {
		t.Errorf("cache returned a different entry")
	}

	// Past TTL: one refetch.
	clock = clock.Add(4 * time.Minute)
	if _, err := s.Lookup(ctx, "AF1234"); err != nil {
		t.Fatalf("third lookup: %v", err)
	}
	if p.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2 after TTL expiry", p.calls.Load())
	}
}

func TestLookupRateLimitsDistinctFlights(t *testing.T) {
	clock := time.Now()
	p := &stubProvider{status: &Status{Status: StatusScheduled}}
	s := newTestService(p, Config{}, &clock)

	ctx := context.Background()
	if _, err := s.Lookup(ctx, "AF1234"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	// A different flight inside the same window: rejected before the
	// provider is touched.
	_, err := s.Lookup(ctx, "BA42")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider was called despite limiter rejection")
	}

	// Same first flight again: cache hit, succeeds even while limited.
	if _, err := s.Lookup(ctx, "AF1234"); err != nil {
		t.Errorf("cached lookup failed under rate limit: %v", err)
	}

	// Window rolls over: the second flight goes through.
	clock = clock.Add(1100 * time.Millisecond)
	if _, err := s.Lookup(ctx, "BA42"); err != nil {
		t.Errorf("lookup after window: %v", err)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Now()
	c := NewCache(2, time.Hour)
	c.now = func() time.Time { return now }

	c.Put("AF1", &Status{FlightIATA: "AF1"})
	c.Put("AF2", &Status{FlightIATA: "AF2"})

	// Touch AF1 so AF2 becomes the eviction candidate.
	if _, ok := c.Get("AF1"); !ok {
		t.Fatal("AF1 missing")
	}
	c.Put("AF3", &Status{FlightIATA: "AF3"})

	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("AF2"); ok {
		t.Error("AF2 should have been evicted")
	}
	if _, ok := c.Get("AF1"); !ok {
		t.Error("recently used AF1 was evicted")
	}
}

func TestLimiterRollingWindow(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1, time.Second)
	l.now = func() time.Time { return now }

	if !l.Allow() {
		t.Fatal("first call rejected")
	}
	if l.Allow() {
		t.Fatal("second call inside window admitted")
	}
	now = now.Add(500 * time.Millisecond)
	if l.Allow() {
		t.Fatal("call at +500ms admitted")
	}
	now = now.Add(600 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("call after window rejected")
	}
}

func TestLookupPropagatesProviderErrors(t *testing.T) {
	clock := time.Now()
	p := &stubProvider{err: ErrNotFound}
	s := newTestService(p, Config{}, &clock)

	_, err := s.Lookup(context.Background(), "XX999")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClientMapsProviderStatuses(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"scheduled", `{"data":[{"flight_status":"scheduled","flight":{"iata":"AF1"},"departure":{"delay":0}}]}`, StatusScheduled},
		{"delayed", `{"data":[{"flight_status":"scheduled","flight":{"iata":"AF1"},"departure":{"delay":25}}]}`, StatusDelayed},
		{"active", `{"data":[{"flight_status":"active","flight":{"iata":"AF1"}}]}`, StatusActive},
		{"landed", `{"data":[{"flight_status":"landed","flight":{"iata":"AF1"}}]}`, StatusLanded},
		{"cancelled", `{"data":[{"flight_status":"cancelled","flight":{"iata":"AF1"}}]}`, StatusCancelled},
		{"diverted", `{"data":[{"flight_status":"diverted","flight":{"iata":"AF1"}}]}`, StatusCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.Client(), ClientConfig{BaseURL: srv.URL})
			st, err := c.Lookup(context.Background(), "AF1")
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if st.Status != tc.want {
				t.Errorf("status = %q, want %q", st.Status, tc.want)
			}
		})
	}
}

func TestClientDistinguishesErrorShapes(t *testing.T) {
	t.Run("http error wraps ErrProvider", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(srv.Client(), ClientConfig{BaseURL: srv.URL})
		_, err := c.Lookup(context.Background(), "AF1")
		if !errors.Is(err, ErrProvider) {
			t.Errorf("err = %v, want ErrProvider", err)
		}
	})

	t.Run("error payload wraps ErrProvider", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"code":"invalid_access_key","message":"nope"}}`))
		}))
		defer srv.Close()

		c := NewClient(srv.Client(), ClientConfig{BaseURL: srv.URL})
		_, err := c.Lookup(context.Background(), "AF1")
		if !errors.Is(err, ErrProvider) {
			t.Errorf("err = %v, want ErrProvider", err)
		}
	})

	t.Run("empty data is ErrNotFound", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		c := NewClient(srv.Client(), ClientConfig{BaseURL: srv.URL})
		_, err := c.Lookup(context.Background(), "AF1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}
