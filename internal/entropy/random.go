// Package entropy supplies the random draws behind activity selection.
// Sources: a seeded PRNG for reproducible runs, crypto/rand, and a pooled
// random.org client refilled in the background, falling back to crypto/rand
// while its pool is empty.
package entropy

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"sync"
	"time"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Seeded is a deterministic Source. Safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded returns a deterministic source for seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

type cryptoSource struct{}

func (cryptoSource) Float64() float64 { return cryptoRandFloat() }

// Crypto returns a Source backed by crypto/rand.
func Crypto() Source { return cryptoSource{} }

const (
	randomOrgURL = "https://api.random.org/json-rpc/4/invoke"
	poolLow      = 10
	batchSize    = 100

	minBackoff = time.Second
	maxBackoff = 5 * time.Minute
)

// Client provides true random numbers from random.org with a local pool.
// Draws never touch the network: Run refills the pool in the background and
// Float64 falls back to crypto/rand while the pool is empty.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client

	minBackoff time.Duration
	maxBackoff time.Duration

	mu   sync.Mutex
	pool []float64
	wake chan struct{}
}

// NewClient creates a random.org client. Returns nil if apiKey is empty;
// a nil *Client still works as a Source and draws from crypto/rand.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:     apiKey,
		endpoint:   randomOrgURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		wake:       make(chan struct{}, 1),
	}
}

// Float64 returns a random float64 in [0, 1) from the pool, or from
// crypto/rand when the pool is empty. It never blocks on I/O.
func (c *Client) Float64() float64 {
	if c == nil {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	if len(c.pool) == 0 {
		c.mu.Unlock()
		c.signal()
		return cryptoRandFloat()
	}
	val := c.pool[0]
	c.pool = c.pool[1:]
	low := len(c.pool) < poolLow
	c.mu.Unlock()

	if low {
		c.signal()
	}
	return val
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pooled returns how many draws are buffered.
func (c *Client) Pooled() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

// Run keeps the pool topped up until ctx is cancelled. Failed fetches back
// off exponentially up to five minutes.
func (c *Client) Run(ctx context.Context) {
	if c == nil {
		return
	}
	backoff := c.minBackoff
	for {
		if c.Pooled() < poolLow {
			vals, err := c.fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.Debug("random.org fetch failed", "error", err, "retry_in", backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > c.maxBackoff {
					backoff = c.maxBackoff
				}
				continue
			}
			backoff = c.minBackoff
			c.mu.Lock()
			c.pool = append(c.pool, vals...)
			c.mu.Unlock()
			slog.Debug("random.org pool refilled", "count", len(vals))
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
	}
}

func (c *Client) fetch(ctx context.Context) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             batchSize,
			"decimalPlaces": 6,
		},
		"id": 1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("api: %s", result.Error.Message)
	}

	vals := make([]float64, 0, len(result.Result.Random.Data))
	for _, v := range result.Result.Random.Data {
		if v >= 0 && v < 1 {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil, errors.New("empty batch")
	}
	return vals, nil
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	// 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Select picks the source for a run: the random.org client when a key is
// configured, a seeded PRNG when seed is non-zero, crypto/rand otherwise.
// A returned *Client serves crypto/rand until its Run loop is started.
func Select(apiKey string, seed int64) Source {
	if c := NewClient(apiKey); c.Enabled() {
		return c
	}
	if seed != 0 {
		return NewSeeded(seed)
	}
	return Crypto()
}
