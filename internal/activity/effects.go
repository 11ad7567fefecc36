package activity

import (
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

const (
	// ZoneBonus multiplies efficiency inside the preferred zone.
	ZoneBonus = 1.15
	// ZonePenalty multiplies efficiency outside it.
	ZonePenalty = 0.9

	satisfactionAlpha = 0.1
)

// Effects applies the immediate and continuous effects of the current
// activity. It holds no per-entity state.
type Effects struct {
	catalog *Catalog
}

// NewEffects returns an effects engine over catalog.
func NewEffects(catalog *Catalog) *Effects {
	return &Effects{catalog: catalog}
}

// Catalog exposes the definitions the engine uses.
func (e *Effects) Catalog() *Catalog {
	return e.catalog
}

// Result is the outcome of one Apply call.
type Result struct {
	Stats      entities.Stats
	Session    Session
	Efficiency float64
}

// ZoneFactor returns the zone multiplier for an activity given the zone the
// entity stands in (nil if none). Activities without a preferred zone are
// unaffected.
func ZoneFactor(def *Definition, zone *entities.Zone) float64 {
	if def.Zone == entities.ZoneNone {
		return 1
	}
	if zone != nil && zone.Type == def.Zone {
		return ZoneBonus
	}
	return ZonePenalty
}

// Apply advances sess by elapsed at time now. Per-minute deltas are scaled
// by efficiency x (elapsed / 1 minute) x speed; costs debit money at the
// same pace. Immediate deltas land once per session. Zero elapsed time, or
// a non-positive speed, changes nothing.
func (e *Effects) Apply(sess Session, s entities.Stats, now time.Time, elapsed time.Duration, zone *entities.Zone, speed float64) Result {
	if elapsed <= 0 || !entities.Finite(speed) || speed <= 0 {
		return Result{Stats: s.Clamp(), Session: sess, Efficiency: sess.Effectiveness}
	}
	def := e.catalog.Get(sess.Activity)

	if !sess.ImmediateApplied {
		s = s.AddScaled(def.Immediate, 1)
		sess.ImmediateApplied = true
	}

	eff := def.EfficiencyAt(sess.Elapsed(now)) * ZoneFactor(def, zone)
	minutes := elapsed.Minutes() * speed

	s = s.AddScaled(def.PerMinute, eff*minutes)
	if def.CostPerMinute > 0 && entities.Finite(s.Money) {
		s.Money -= def.CostPerMinute * minutes
	}
	s = s.Clamp()

	sess.Effectiveness = entities.Clamp01(eff)
	sess.SatisfactionLevel = entities.Clamp01(sess.SatisfactionLevel*(1-satisfactionAlpha) + sess.Effectiveness*satisfactionAlpha)

	return Result{Stats: s, Session: sess, Efficiency: eff}
}
