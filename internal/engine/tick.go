// Package engine runs the simulation: a fixed-interval tick loop, the
// per-tick ordering of the needs, decision, resonance and health systems,
// and the batching of the updates they emit.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// pausePoll is how often a paused loop checks for a speed change.
const pausePoll = 100 * time.Millisecond

type periodic struct {
	every uint64
	fn    func(ctx context.Context, tick uint64)
}

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // wall time between ticks

	// OnTick runs every tick with the wall-clock time of the tick.
	OnTick func(ctx context.Context, tick uint64, now time.Time)
	// OnWake runs on every wakeup of the loop that is not a tick: each
	// WakeEvery period and each paused poll. It shares the loop goroutine
	// with OnTick.
	OnWake func(ctx context.Context, now time.Time)
	// WakeEvery is the OnWake period while running. Zero disables the
	// extra timer; paused polls still call OnWake.
	WakeEvery time.Duration
	// OnStop runs once when Run returns, with a context that outlives the
	// caller's cancellation.
	OnStop func(ctx context.Context)

	tick      atomic.Uint64
	speed     atomic.Uint64 // float64 bits; game minutes per wall minute
	running   atomic.Bool
	periodics []periodic
	now       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewEngine creates an engine ticking every interval at game speed 1.
func NewEngine(interval time.Duration) *Engine {
	e := &Engine{
		Interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	e.SetSpeed(1)
	return e
}

// Every registers fn to run on every n-th tick, after OnTick.
func (e *Engine) Every(n uint64, fn func(ctx context.Context, tick uint64)) {
	if n == 0 || fn == nil {
		return
	}
	e.periodics = append(e.periodics, periodic{every: n, fn: fn})
}

// Tick returns the number of ticks run so far.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// Speed returns the game speed multiplier. Zero means paused.
func (e *Engine) Speed() float64 { return math.Float64frombits(e.speed.Load()) }

// SetSpeed changes the game speed. Negative or non-finite values pause.
func (e *Engine) SetSpeed(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the simulation loop. Blocks until ctx is cancelled or Stop is
// called, then runs OnStop.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}
	defer e.running.Store(false)

	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed(), "interval", e.Interval)

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	var wakeC <-chan time.Time
	if e.WakeEvery > 0 && e.OnWake != nil {
		wake := time.NewTicker(e.WakeEvery)
		defer wake.Stop()
		wakeC = wake.C
	}

	defer func() {
		if e.OnStop != nil {
			e.OnStop(context.WithoutCancel(ctx))
		}
		slog.Info("simulation engine stopped", "tick", e.Tick())
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case <-wakeC:
			e.wake(ctx)
			continue
		case <-ticker.C:
		}

		if e.Speed() <= 0 {
			// Paused. Keep the ticker but slow the polling down.
			ticker.Reset(pausePoll)
			e.wake(ctx)
			continue
		}
		ticker.Reset(e.Interval)
		e.Step(ctx)
	}
}

func (e *Engine) wake(ctx context.Context) {
	if e.OnWake != nil {
		e.OnWake(ctx, e.now())
	}
}

// Stop halts the simulation loop. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Step advances the simulation by one tick.
func (e *Engine) Step(ctx context.Context) {
	tick := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(ctx, tick, e.now())
	}
	for _, p := range e.periodics {
		if tick%p.every == 0 {
			p.fn(ctx, tick)
		}
	}
}

// GameTime formats an amount of game time as a day and clock reading.
func GameTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalMinutes := uint64(d / time.Minute)
	minutes := totalMinutes % 60
	totalHours := totalMinutes / 60
	hours := totalHours % 24
	days := totalHours/24 + 1
	return fmt.Sprintf("Day %d, %d:%02d", days, hours, minutes)
}
