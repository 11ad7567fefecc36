package entropy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSeededDeterministic(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 100; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestCryptoRange(t *testing.T) {
	src := Crypto()
	for i := 0; i < 1000; i++ {
		if v := src.Float64(); v < 0 || v >= 1 {
			t.Fatalf("draw out of range: %v", v)
		}
	}
}

func TestNilClientFallsBack(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatal("nil client reported enabled")
	}
	if v := c.Float64(); v < 0 || v >= 1 {
		t.Fatalf("fallback draw out of range: %v", v)
	}
	if NewClient("") != nil {
		t.Error("empty key should yield nil client")
	}
}

func testClient(url string) *Client {
	c := NewClient("key")
	c.endpoint = url
	c.minBackoff = 100 * time.Millisecond
	c.maxBackoff = time.Second
	return c
}

func runClient(t *testing.T, c *Client) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return cancel
}

func waitPooled(t *testing.T, c *Client, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Pooled() < n {
		if time.Now().After(deadline) {
			t.Fatalf("pool = %d after 2s, want %d", c.Pooled(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientPoolsDraws(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"result":{"random":{"data":[0.1,0.2,0.3,0.4,0.5,0.6,0.7,0.8,0.9,0.11,0.12,0.13]}}}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	runClient(t, c)
	waitPooled(t, c, 12)

	if got := c.Float64(); got != 0.1 {
		t.Fatalf("first draw = %v, want 0.1", got)
	}
	if got := c.Float64(); got != 0.2 {
		t.Fatalf("second draw = %v, want 0.2", got)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if c.Pooled() != 10 {
		t.Errorf("pooled = %d, want 10", c.Pooled())
	}

	// Dropping below the low-water mark wakes the refill loop.
	c.Float64()
	waitPooled(t, c, 12)
	if calls.Load() != 2 {
		t.Errorf("calls after low pool = %d, want 2", calls.Load())
	}
}

func TestClientDrawsNeverTouchNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	start := time.Now()
	for i := 0; i < 10; i++ {
		if v := c.Float64(); v < 0 || v >= 1 {
			t.Fatalf("fallback draw out of range: %v", v)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("draws without Run made %d requests", calls.Load())
	}

	runClient(t, c)
	for i := 0; i < 10; i++ {
		c.Float64()
	}
	if el := time.Since(start); el > 50*time.Millisecond {
		t.Errorf("20 draws took %v; draws must not wait on the API", el)
	}

	// Failures back off: 100ms request, 100ms wait, 100ms request, 200ms wait.
	time.Sleep(350 * time.Millisecond)
	if n := calls.Load(); n < 1 || n > 3 {
		t.Errorf("requests during backoff = %d, want 1..3", n)
	}
	if c.Pooled() != 0 {
		t.Errorf("pool filled from error responses")
	}
}

func TestClientAPIErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"quota"}}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, err := c.fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("fetch err = %v, want quota error", err)
	}
	runClient(t, c)
	if v := c.Float64(); v < 0 || v >= 1 {
		t.Fatalf("fallback draw out of range: %v", v)
	}
	if c.Pooled() != 0 {
		t.Errorf("pool filled from error response")
	}
}

func TestClientRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	cancel := runClient(t, c)
	time.Sleep(20 * time.Millisecond)
	// The cleanup asserts Run returns promptly despite the hanging request.
	cancel()
}

func TestSelect(t *testing.T) {
	if _, ok := Select("", 3).(*Seeded); !ok {
		t.Error("seed should select Seeded")
	}
	if _, ok := Select("k", 3).(*Client); !ok {
		t.Error("api key should select Client")
	}
	if _, ok := Select("", 0).(cryptoSource); !ok {
		t.Error("default should be crypto")
	}
}
