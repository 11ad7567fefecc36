// Package entities defines the two simulated companions, their needs and the
// discrete enums (mood, activity, state) the simulation reasons about.
//
// The package is pure: no logging, no I/O, no clocks. Everything here is a
// value type that the engine snapshots at the start of a tick.
package entities

import (
	"fmt"
	"math"
	"time"
)

// ID identifies one of the two fixed entities.
type ID string

const (
	Sol  ID = "sol"
	Luna ID = "luna"
)

// IDs lists both entities in a stable order. Iteration over entities always
// follows this order so that seeded runs are reproducible.
var IDs = [2]ID{Sol, Luna}

// Companion returns the other entity of the pair.
func (id ID) Companion() ID {
	if id == Sol {
		return Luna
	}
	return Sol
}

// Valid reports whether id names one of the two fixed entities.
func (id ID) Valid() bool {
	return id == Sol || id == Luna
}

// ParseID validates an entity identifier supplied by a collaborator.
func ParseID(s string) (ID, error) {
	id := ID(s)
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntity, s)
	}
	return id, nil
}

// Position is a point in the collaborator's world coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both coordinates are finite.
func (p Position) Valid() bool {
	return Finite(p.X) && Finite(p.Y)
}

// Distance returns the euclidean distance between two positions.
func Distance(a, b Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Entity is the start-of-tick view of one companion. The engine never
// mutates an Entity in place; it emits updates that a store applies.
type Entity struct {
	ID       ID       `json:"id"`
	Position Position `json:"position"`
	Stats    Stats    `json:"stats"`
	Mood     Mood     `json:"mood"`
	Activity Activity `json:"activity"`
	State    State    `json:"state"`
	IsDead   bool     `json:"is_dead"`

	LastStateChange    time.Time `json:"last_state_change"`
	LastActivityChange time.Time `json:"last_activity_change"`

	// Presentation only.
	ColorHue   float64 `json:"color_hue"`
	PulsePhase float64 `json:"pulse_phase"`
}

// New returns a freshly spawned entity with default stats.
func New(id ID, pos Position, now time.Time) Entity {
	hue := 200.0
	if id == Luna {
		hue = 320
	}
	return Entity{
		ID:                 id,
		Position:           pos,
		Stats:              DefaultStats(),
		Mood:               MoodContent,
		Activity:           ActivityIdle,
		State:              StateIdle,
		LastStateChange:    now,
		LastActivityChange: now,
		ColorHue:           hue,
	}
}

// Alive reports whether the entity still takes part in the simulation.
func (e Entity) Alive() bool {
	return !e.IsDead && e.State != StateDead
}
