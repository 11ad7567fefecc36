// Package needs applies the baseline homeostatic decay of an entity's
// needs. Rates come from real-world half-lives (an unfed body halves its
// reserves in about a month, wakefulness halves in about sixteen hours) and
// are scaled by the current activity and the global game speed.
package needs

import (
	"math"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

// HalfLives holds one half-life per stat. A zero entry disables decay for
// that stat (money and health by default).
type HalfLives [entities.NumStats]time.Duration

// DefaultHalfLives returns the real-world derived half-lives.
func DefaultHalfLives() HalfLives {
	var h HalfLives
	h[entities.StatHunger] = 30 * 24 * time.Hour
	h[entities.StatSleepiness] = 16 * time.Hour
	h[entities.StatLoneliness] = 3 * 24 * time.Hour
	h[entities.StatHappiness] = 2 * 24 * time.Hour
	h[entities.StatEnergy] = 12 * time.Hour
	h[entities.StatBoredom] = 6 * time.Hour
	return h
}

// Multipliers scales decay per activity. Restful activities sit near 0.4,
// costly ones near 1.3.
type Multipliers [entities.NumActivities]float64

// DefaultMultipliers returns the stock activity multipliers.
func DefaultMultipliers() Multipliers {
	var m Multipliers
	m[entities.ActivityIdle] = 1.0
	m[entities.ActivityWandering] = 1.1
	m[entities.ActivityEating] = 0.9
	m[entities.ActivityCooking] = 1.0
	m[entities.ActivityShopping] = 1.1
	m[entities.ActivitySleeping] = 0.4
	m[entities.ActivityResting] = 0.6
	m[entities.ActivityWorking] = 1.3
	m[entities.ActivityExercising] = 1.3
	m[entities.ActivityPlaying] = 1.2
	m[entities.ActivitySocializing] = 0.9
	m[entities.ActivityReading] = 0.8
	m[entities.ActivityMeditating] = 0.5
	return m
}

// Decayer is the stats decay engine. It holds no per-entity state and is
// safe to share.
type Decayer struct {
	rates       [entities.NumStats]float64 // per second
	multipliers Multipliers
}

// NewDecayer converts half-lives to per-second rates (ln2 / half-life).
func NewDecayer(h HalfLives, m Multipliers) *Decayer {
	d := &Decayer{multipliers: m}
	for k, hl := range h {
		if hl > 0 {
			d.rates[k] = math.Ln2 / hl.Seconds()
		}
	}
	return d
}

// Rate returns the base per-second rate of a stat.
func (d *Decayer) Rate(k entities.StatKind) float64 {
	return d.rates[k]
}

// Multiplier returns the decay multiplier of an activity.
func (d *Decayer) Multiplier(a entities.Activity) float64 {
	if !a.Valid() {
		return 1
	}
	return d.multipliers[a]
}

// Apply returns s decayed over elapsed time. The applied exponent for each
// stat is rate x activityMultiplier x speed x seconds, and the stat shrinks
// by exp(-exponent). Non-finite fields are left unchanged; the result is
// clamped. Zero or negative elapsed time, or a non-positive speed, is a
// no-op.
func (d *Decayer) Apply(s entities.Stats, a entities.Activity, elapsed time.Duration, speed float64) entities.Stats {
	secs := elapsed.Seconds()
	if secs <= 0 || !entities.Finite(speed) || speed <= 0 {
		return s.Clamp()
	}
	mult := d.Multiplier(a)
	for k := entities.StatKind(0); k < entities.NumStats; k++ {
		rate := d.rates[k]
		v := s.Get(k)
		if rate == 0 || !entities.Finite(v) {
			continue
		}
		s.Set(k, v*math.Exp(-rate*mult*speed*secs))
	}
	return s.Clamp()
}
