package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRandomPacerStaysInRange(t *testing.T) {
	t.Parallel()

	p := NewRandomPacer(time.Second, 3*time.Second)
	var got []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		got = append(got, d)
		return nil
	}

	for i := 0; i < 200; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	for _, d := range got {
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("delay %v out of range", d)
		}
	}
}

func TestRandomPacerNormalisesRange(t *testing.T) {
	t.Parallel()

	p := NewRandomPacer(3*time.Second, time.Second)
	if p.Min != time.Second || p.Max != 3*time.Second {
		t.Fatalf("unexpected range %v..%v", p.Min, p.Max)
	}

	fixed := NewRandomPacer(time.Second, time.Second)
	if d := fixed.Next(); d != time.Second {
		t.Fatalf("expected fixed delay, got %v", d)
	}
}

func TestRandomPacerHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRandomPacer(time.Hour, time.Hour).Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestRobotsPolicy(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/REGDOCS/robots.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /REGDOCS/Private\n"))
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(srv.URL+"/REGDOCS", "/robots.txt", "FilingBot/1.0", srv.Client(), nil)
	ctx := context.Background()

	if !policy.Allowed(ctx, "/REGDOCS/Search/RecentFilings", "") {
		t.Fatalf("expected listing path to be allowed")
	}
	if policy.Allowed(ctx, "/REGDOCS/Private/x", "") {
		t.Fatalf("expected private path to be disallowed")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected robots.txt to be fetched once, got %d", hits.Load())
	}
}

func TestRobotsPolicyFailsOpen(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(srv.URL, "/robots.txt", "FilingBot/1.0", srv.Client(), nil)
	if !policy.Allowed(context.Background(), "/anything", "FilingBot/1.0") {
		t.Fatalf("unreadable policy must allow")
	}

	unreachable := NewRobotsPolicy("http://127.0.0.1:1", "", "FilingBot/1.0", nil, nil)
	if !unreachable.Allowed(context.Background(), "/anything", "") {
		t.Fatalf("unreachable policy must allow")
	}
}

func TestRobotsPolicyRefreshPicksUpChanges(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer srv.Close()

	policy := NewRobotsPolicy(srv.URL, "/robots.txt", "FilingBot/1.0", srv.Client(), nil)
	ctx := context.Background()

	policy.Refresh(ctx)
	if !policy.Allowed(ctx, "/REGDOCS/Search/RecentFilings", "") {
		t.Fatalf("first run: unreadable policy must allow")
	}

	policy.Refresh(ctx)
	if policy.Allowed(ctx, "/REGDOCS/Search/RecentFilings", "") {
		t.Fatalf("second run: refreshed policy must disallow")
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one fetch per run, got %d", hits.Load())
	}
}
