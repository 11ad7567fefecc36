package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

// Kind is the type of an emitted update.
type Kind uint8

const (
	KindStats Kind = iota
	KindMood
	KindActivity
	KindState
	KindResonance
	KindKill
	numKinds
)

var kindNames = [numKinds]string{"stats", "mood", "activity", "state", "resonance", "kill"}

// ErrInvalidKind is returned when decoding an unknown update kind.
var ErrInvalidKind = errors.New("invalid update kind")

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind converts an update kind name.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if k >= numKinds {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Critical reports whether updates of this kind force an immediate flush.
func (k Kind) Critical() bool {
	return k == KindState || k == KindKill
}

// Update is one mutation emitted by the simulation. Only the field that
// matches Kind is set. Resonance updates carry no entity.
type Update struct {
	Tick   uint64      `json:"tick"`
	At     time.Time   `json:"at"`
	Entity entities.ID `json:"entity,omitempty"`
	Kind   Kind        `json:"kind"`

	Stats     *entities.Stats    `json:"stats,omitempty"` // absolute values
	Delta     *entities.Stats    `json:"delta,omitempty"` // change since the last stats update
	Mood      *entities.Mood     `json:"mood,omitempty"`
	Activity  *entities.Activity `json:"activity,omitempty"`
	State     *entities.State    `json:"state,omitempty"`
	Resonance *float64           `json:"resonance,omitempty"`
}

// StatsUpdate reports new absolute stats and the delta that produced them.
func StatsUpdate(id entities.ID, stats, delta entities.Stats) Update {
	return Update{Entity: id, Kind: KindStats, Stats: &stats, Delta: &delta}
}

func MoodUpdate(id entities.ID, m entities.Mood) Update {
	return Update{Entity: id, Kind: KindMood, Mood: &m}
}

func ActivityUpdate(id entities.ID, a entities.Activity) Update {
	return Update{Entity: id, Kind: KindActivity, Activity: &a}
}

func StateUpdate(id entities.ID, s entities.State) Update {
	return Update{Entity: id, Kind: KindState, State: &s}
}

func ResonanceUpdate(r float64) Update {
	return Update{Kind: KindResonance, Resonance: &r}
}

func KillUpdate(id entities.ID) Update {
	return Update{Entity: id, Kind: KindKill}
}

// Batch is a flushed group of updates, in emission order.
type Batch struct {
	RunID     string    `json:"run_id"`
	Seq       uint64    `json:"seq"`
	FlushedAt time.Time `json:"flushed_at"`
	Reason    string    `json:"reason"`
	Updates   []Update  `json:"updates"`
}

// Sink consumes flushed batches.
type Sink interface {
	Apply(ctx context.Context, b Batch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, b Batch) error

func (f SinkFunc) Apply(ctx context.Context, b Batch) error { return f(ctx, b) }

// MultiSink fans a batch out to every sink in order. All sinks run even if
// one fails; the errors are joined.
type MultiSink []Sink

func (m MultiSink) Apply(ctx context.Context, b Batch) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Apply(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
