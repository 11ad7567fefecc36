// Package resonance evolves the bond value shared by the two entities.
package resonance

import (
	"math"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

// Max is the ceiling of the resonance scale.
const Max = 100.0

// Config holds the resonance knobs. Rates are per second of wall time.
type Config struct {
	BondDistance   float64 `yaml:"bond_distance"`
	DistanceScale  float64 `yaml:"distance_scale"`
	BaseGainRate   float64 `yaml:"base_gain_rate"`
	BonusUnit      float64 `yaml:"bonus_unit"`
	SeparationRate float64 `yaml:"separation_rate"`
	StressRate     float64 `yaml:"stress_rate"`
}

// DefaultConfig returns the stock resonance knobs.
func DefaultConfig() Config {
	return Config{
		BondDistance:   80,
		DistanceScale:  20,
		BaseGainRate:   0.6,
		BonusUnit:      0.25,
		SeparationRate: 0.25,
		StressRate:     0.4,
	}
}

// Participant is what the dynamics read from one entity.
type Participant struct {
	Position entities.Position
	Stats    entities.Stats
	Mood     entities.Mood
	Activity entities.Activity
	Zone     *entities.Zone // nil when outside every zone
}

// FromEntity builds a Participant for e standing in zone.
func FromEntity(e *entities.Entity, zone *entities.Zone) Participant {
	return Participant{Position: e.Position, Stats: e.Stats, Mood: e.Mood, Activity: e.Activity, Zone: zone}
}

// Breakdown exposes the terms of one update.
type Breakdown struct {
	Closeness  float64 `json:"closeness"`
	MoodBonus  float64 `json:"mood_bonus"`
	Synergy    float64 `json:"synergy"`
	Gain       float64 `json:"gain"`
	Separation float64 `json:"separation"`
	Stress     float64 `json:"stress"`
}

// Dynamics applies the resonance update rule.
type Dynamics struct {
	cfg Config
}

// New returns dynamics for cfg.
func New(cfg Config) *Dynamics {
	return &Dynamics{cfg: cfg}
}

// Closeness is a sigmoid of (bondDistance - distance) / distanceScale: 1
// when close, 0 when far. A non-positive scale degenerates to a step at
// bondDistance.
func (d *Dynamics) Closeness(dist float64) float64 {
	if !entities.Finite(dist) {
		return 0
	}
	x := d.cfg.BondDistance - dist
	if d.cfg.DistanceScale <= 0 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return 0
		}
		return 0.5
	}
	return 1 / (1 + math.Exp(-x/d.cfg.DistanceScale))
}

// moodBonus ranges from 0.5 (both drained) to 1.5 (both thriving).
func moodBonus(a, b Participant) float64 {
	vigor := func(s entities.Stats) float64 {
		if !entities.Finite(s.Happiness) || !entities.Finite(s.Energy) {
			return 0.5
		}
		return entities.Clamp01((s.Happiness + s.Energy) / (2 * entities.StatMax))
	}
	return 0.5 + (vigor(a.Stats)+vigor(b.Stats))/2
}

// sharedZone reports whether both stand in the same social or comfort zone.
func sharedZone(a, b Participant) bool {
	if a.Zone == nil || b.Zone == nil || a.Zone.ID != b.Zone.ID {
		return false
	}
	return a.Zone.Type == entities.ZoneSocial || a.Zone.Type == entities.ZoneComfort
}

func (d *Dynamics) synergy(a, b Participant) float64 {
	n := 0.0
	if a.Activity == b.Activity {
		n++
	}
	if sharedZone(a, b) {
		n++
	}
	return 1 + d.cfg.BonusUnit*n
}

func critical(p Participant) float64 {
	if p.Stats.IsCritical() {
		return 1
	}
	return 0
}

// Step advances r by dt and returns the new value and its terms. The
// result is always within [0, Max]. Non-finite positions leave r as it is;
// a non-finite r restarts from 0.
func (d *Dynamics) Step(r float64, a, b Participant, dt time.Duration) (float64, Breakdown) {
	if !entities.Finite(r) {
		r = 0
	}
	r = entities.Clamp(r, 0, Max)
	if dt <= 0 || !a.Position.Valid() || !b.Position.Valid() {
		return r, Breakdown{}
	}

	var bd Breakdown
	bd.Closeness = d.Closeness(entities.Distance(a.Position, b.Position))
	bd.MoodBonus = moodBonus(a, b)
	bd.Synergy = d.synergy(a, b)

	level := r / Max
	bd.Gain = d.cfg.BaseGainRate * bd.Closeness * bd.MoodBonus * bd.Synergy * (1 - level)
	bd.Separation = d.cfg.SeparationRate * (1 - bd.Closeness) * level
	bd.Stress = d.cfg.StressRate * (critical(a) + critical(b)) * level

	next := r + dt.Seconds()*(bd.Gain-bd.Separation-bd.Stress)
	if !entities.Finite(next) {
		return r, bd
	}
	return entities.Clamp(next, 0, Max), bd
}
