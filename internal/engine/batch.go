package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

// Flush reasons.
const (
	FlushSize     = "size"
	FlushCritical = "critical"
	FlushAge      = "age"
	FlushForced   = "forced"
)

type batchKey struct {
	entity entities.ID
	kind   Kind
}

// Batcher coalesces updates keyed by (entity, kind) with last-write-wins
// and hands them to a Sink. A stats update that replaces a pending one
// keeps the sum of both deltas. Not safe for concurrent use.
type Batcher struct {
	sink    Sink
	runID   string
	maxSize int
	maxAge  time.Duration
	log     *slog.Logger

	index  map[batchKey]int
	queue  []Update
	oldest time.Time
	seq    uint64

	flushed uint64 // updates handed to the sink
	errors  uint64
}

// NewBatcher returns a batcher flushing into sink.
func NewBatcher(sink Sink, runID string, maxSize int, maxAge time.Duration, logger *slog.Logger) *Batcher {
	if maxSize < 1 {
		maxSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		sink:    sink,
		runID:   runID,
		maxSize: maxSize,
		maxAge:  maxAge,
		log:     logger,
		index:   make(map[batchKey]int),
	}
}

// Len returns the number of pending updates.
func (b *Batcher) Len() int { return len(b.queue) }

// Add queues u, stamping it with now when it has no time yet, and flushes
// when u is critical or the queue is full.
func (b *Batcher) Add(ctx context.Context, u Update, now time.Time) error {
	if u.At.IsZero() {
		u.At = now
	}
	if len(b.queue) == 0 {
		b.oldest = now
	}

	key := batchKey{u.Entity, u.Kind}
	if i, ok := b.index[key]; ok {
		prev := b.queue[i]
		if u.Kind == KindStats && prev.Delta != nil && u.Delta != nil {
			sum := prev.Delta.AddScaled(*u.Delta, 1)
			u.Delta = &sum
		}
		b.queue[i] = u
	} else {
		b.index[key] = len(b.queue)
		b.queue = append(b.queue, u)
	}

	switch {
	case u.Kind.Critical():
		return b.Flush(ctx, now, FlushCritical)
	case len(b.queue) >= b.maxSize:
		return b.Flush(ctx, now, FlushSize)
	}
	return nil
}

// FlushIfStale flushes when the oldest pending update is older than the
// age bound.
func (b *Batcher) FlushIfStale(ctx context.Context, now time.Time) error {
	if len(b.queue) == 0 || now.Sub(b.oldest) < b.maxAge {
		return nil
	}
	return b.Flush(ctx, now, FlushAge)
}

// Flush hands every pending update to the sink. The queue is cleared even
// when the sink fails.
func (b *Batcher) Flush(ctx context.Context, now time.Time, reason string) error {
	if len(b.queue) == 0 {
		return nil
	}
	b.seq++
	batch := Batch{
		RunID:     b.runID,
		Seq:       b.seq,
		FlushedAt: now,
		Reason:    reason,
		Updates:   b.queue,
	}
	b.queue = nil
	clear(b.index)
	b.flushed += uint64(len(batch.Updates))

	if b.sink == nil {
		return nil
	}
	if err := b.sink.Apply(ctx, batch); err != nil {
		b.errors++
		b.log.Warn("update sink failed", "seq", batch.Seq, "updates", len(batch.Updates), "error", err)
		return fmt.Errorf("flush batch %d: %w", batch.Seq, err)
	}
	return nil
}

// Counters returns the number of batches, updates flushed and sink errors.
func (b *Batcher) Counters() (batches, updates, errs uint64) {
	return b.seq, b.flushed, b.errors
}
