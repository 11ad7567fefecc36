// Package activity defines what each of the thirteen activities does to an
// entity's needs, and applies those effects tick by tick.
package activity

import (
	"math"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

// Curve returns an efficiency multiplier for the time already spent in an
// activity.
type Curve func(spent time.Duration) float64

// Flat is constant full efficiency.
func Flat() Curve {
	return func(time.Duration) float64 { return 1 }
}

// Ramp rises linearly from start to 1 over rampUp, then stays at 1.
func Ramp(rampUp time.Duration, start float64) Curve {
	return func(spent time.Duration) float64 {
		if rampUp <= 0 || spent >= rampUp {
			return 1
		}
		if spent <= 0 {
			return start
		}
		return start + (1-start)*float64(spent)/float64(rampUp)
	}
}

// PeakDecline ramps from 0.6 to 1 until peak, then falls linearly to floor
// over decline and stays there.
func PeakDecline(peak, decline time.Duration, floor float64) Curve {
	up := Ramp(peak, 0.6)
	return func(spent time.Duration) float64 {
		if spent <= peak {
			return up(spent)
		}
		if decline <= 0 {
			return floor
		}
		over := float64(spent-peak) / float64(decline)
		if over >= 1 {
			return floor
		}
		return 1 - (1-floor)*over
	}
}

// Definition describes one activity.
type Definition struct {
	Activity  entities.Activity
	Immediate entities.Stats // one-shot deltas, applied once per session
	PerMinute entities.Stats // continuous deltas per game minute
	// CostPerMinute is debited from money per game minute.
	CostPerMinute   float64
	MinDuration     time.Duration // hard floor before a change is allowed
	OptimalDuration time.Duration // planned duration of a new session
	Efficiency      Curve
	Zone            entities.ZoneType // preferred zone, ZoneNone if any
}

// EfficiencyAt evaluates the efficiency curve. A missing or misbehaving
// curve yields 1.
func (d *Definition) EfficiencyAt(spent time.Duration) float64 {
	if d.Efficiency == nil {
		return 1
	}
	v := d.Efficiency(spent)
	if !entities.Finite(v) || v < 0 {
		return 1
	}
	return v
}

// Affordable reports whether money covers at least one minimum-length
// session (or one minute, whichever is longer).
func (d *Definition) Affordable(money float64) bool {
	if d.CostPerMinute <= 0 {
		return true
	}
	minutes := math.Max(1, d.MinDuration.Minutes())
	return money >= d.CostPerMinute*minutes
}

// Catalog holds one definition per activity, indexed by entities.Activity.
type Catalog [entities.NumActivities]Definition

// Get returns the definition of a. Invalid activities get the IDLE entry.
func (c *Catalog) Get(a entities.Activity) *Definition {
	if !a.Valid() {
		return &c[entities.ActivityIdle]
	}
	return &c[a]
}

// DefaultCatalog returns the stock activity table. Durations are wall-clock;
// per-minute deltas are per game minute.
func DefaultCatalog() *Catalog {
	sec := time.Second
	c := &Catalog{}
	c[entities.ActivityIdle] = Definition{
		PerMinute:       entities.Stats{Boredom: -0.4, Happiness: -0.05},
		MinDuration:     3 * sec,
		OptimalDuration: 10 * sec,
		Efficiency:      Flat(),
	}
	c[entities.ActivityWandering] = Definition{
		PerMinute:       entities.Stats{Boredom: 1.2, Happiness: 0.2, Energy: -0.3},
		MinDuration:     5 * sec,
		OptimalDuration: 30 * sec,
		Efficiency:      PeakDecline(10*sec, 30*sec, 0.4),
	}
	c[entities.ActivityEating] = Definition{
		Immediate:       entities.Stats{Hunger: 5, Happiness: 1},
		PerMinute:       entities.Stats{Hunger: 4, Energy: 0.5},
		MinDuration:     5 * sec,
		OptimalDuration: 20 * sec,
		Efficiency:      PeakDecline(5*sec, 20*sec, 0.3),
		Zone:            entities.ZoneFood,
	}
	c[entities.ActivityCooking] = Definition{
		PerMinute:       entities.Stats{Hunger: 3, Happiness: 0.6, Boredom: 0.5},
		CostPerMinute:   0.5,
		MinDuration:     8 * sec,
		OptimalDuration: 30 * sec,
		Efficiency:      Ramp(10*sec, 0.5),
		Zone:            entities.ZoneFood,
	}
	c[entities.ActivityShopping] = Definition{
		Immediate:       entities.Stats{Happiness: 2},
		PerMinute:       entities.Stats{Hunger: 1.5, Happiness: 0.8, Boredom: 0.8, Energy: -0.2},
		CostPerMinute:   2,
		MinDuration:     5 * sec,
		OptimalDuration: 20 * sec,
		Efficiency:      PeakDecline(8*sec, 20*sec, 0.3),
		Zone:            entities.ZoneFood,
	}
	c[entities.ActivitySleeping] = Definition{
		PerMinute:       entities.Stats{Sleepiness: 1.2, Energy: 0.8, Hunger: -0.05},
		MinDuration:     60 * sec,
		OptimalDuration: 480 * sec,
		Efficiency:      Ramp(60*sec, 0.4),
		Zone:            entities.ZoneRest,
	}
	c[entities.ActivityResting] = Definition{
		PerMinute:       entities.Stats{Energy: 1.0, Sleepiness: 0.3, Boredom: -0.2},
		MinDuration:     10 * sec,
		OptimalDuration: 60 * sec,
		Efficiency:      Flat(),
		Zone:            entities.ZoneRest,
	}
	c[entities.ActivityWorking] = Definition{
		PerMinute:       entities.Stats{Money: 1.5, Energy: -0.6, Boredom: -0.3, Happiness: -0.1},
		MinDuration:     30 * sec,
		OptimalDuration: 240 * sec,
		Efficiency:      PeakDecline(60*sec, 180*sec, 0.5),
		Zone:            entities.ZoneWork,
	}
	c[entities.ActivityExercising] = Definition{
		PerMinute:       entities.Stats{Energy: -0.8, Happiness: 0.6, Boredom: 0.8, Hunger: -0.3},
		MinDuration:     10 * sec,
		OptimalDuration: 45 * sec,
		Efficiency:      PeakDecline(15*sec, 30*sec, 0.4),
		Zone:            entities.ZoneEnergy,
	}
	c[entities.ActivityPlaying] = Definition{
		PerMinute:       entities.Stats{Happiness: 1.2, Boredom: 1.5, Energy: -0.5, Loneliness: 0.2},
		MinDuration:     8 * sec,
		OptimalDuration: 40 * sec,
		Efficiency:      PeakDecline(12*sec, 40*sec, 0.3),
		Zone:            entities.ZonePlay,
	}
	c[entities.ActivitySocializing] = Definition{
		Immediate:       entities.Stats{Loneliness: 3},
		PerMinute:       entities.Stats{Loneliness: 2.5, Happiness: 0.8, Boredom: 0.6, Energy: -0.2},
		MinDuration:     10 * sec,
		OptimalDuration: 60 * sec,
		Efficiency:      Ramp(10*sec, 0.6),
		Zone:            entities.ZoneSocial,
	}
	c[entities.ActivityReading] = Definition{
		PerMinute:       entities.Stats{Boredom: 0.9, Happiness: 0.4, Energy: -0.1},
		MinDuration:     10 * sec,
		OptimalDuration: 60 * sec,
		Efficiency:      Ramp(15*sec, 0.5),
		Zone:            entities.ZoneComfort,
	}
	c[entities.ActivityMeditating] = Definition{
		PerMinute:       entities.Stats{Happiness: 0.5, Energy: 0.4, Sleepiness: 0.2},
		MinDuration:     10 * sec,
		OptimalDuration: 45 * sec,
		Efficiency:      Ramp(20*sec, 0.3),
		Zone:            entities.ZoneComfort,
	}
	for i := range c {
		c[i].Activity = entities.Activity(i)
	}
	return c
}
