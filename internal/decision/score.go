package decision

import (
	"math"
	"time"

	"github.com/talgya/twinsim/internal/activity"
	"github.com/talgya/twinsim/internal/entities"
)

// Urgency is the concave need weight 1 - (v/100)^alpha. It is near 1 for
// an exhausted need and 0 for a full one. Non-finite values weigh 0.
func Urgency(v, alpha float64) float64 {
	if !entities.Finite(v) {
		return 0
	}
	return 1 - math.Pow(entities.Clamp(v, 0, entities.StatMax)/entities.StatMax, alpha)
}

const noNeed = entities.StatKind(entities.NumStats)

// primaryNeed is the stat an activity mainly restores.
var primaryNeed = [entities.NumActivities]entities.StatKind{
	entities.ActivityIdle:        noNeed,
	entities.ActivityWandering:   entities.StatBoredom,
	entities.ActivityEating:      entities.StatHunger,
	entities.ActivityCooking:     entities.StatHunger,
	entities.ActivityShopping:    entities.StatHunger,
	entities.ActivitySleeping:    entities.StatSleepiness,
	entities.ActivityResting:     entities.StatEnergy,
	entities.ActivityWorking:     entities.StatMoney,
	entities.ActivityExercising:  entities.StatBoredom,
	entities.ActivityPlaying:     entities.StatBoredom,
	entities.ActivitySocializing: entities.StatLoneliness,
	entities.ActivityReading:     entities.StatBoredom,
	entities.ActivityMeditating:  entities.StatHappiness,
}

// NeedUrgency returns the 0..100 urgency of the need a addresses.
func NeedUrgency(a entities.Activity, s entities.Stats, alpha float64) float64 {
	if !a.Valid() {
		return 0
	}
	k := primaryNeed[a]
	if k == noNeed {
		return 0
	}
	return 100 * Urgency(s.Get(k), alpha)
}

// baseScore is the need-driven priority of a before any modifiers.
func baseScore(a entities.Activity, s entities.Stats, alpha float64) float64 {
	w := func(v float64) float64 { return Urgency(v, alpha) }
	hunger := w(s.Hunger)
	bored := w(s.Boredom)
	glum := w(s.Happiness)
	// stamina is near 1 with full energy and falls toward 0 as it drains.
	stamina := w(100 - s.Energy)
	if !entities.Finite(s.Energy) {
		stamina = 0.5
	}

	switch a {
	case entities.ActivityIdle:
		return 8
	case entities.ActivityWandering:
		return 30*bored + 10*glum
	case entities.ActivityEating:
		return 100 * hunger
	case entities.ActivityCooking:
		return 80*hunger + 10*bored
	case entities.ActivityShopping:
		return 60*hunger + 25*glum
	case entities.ActivitySleeping:
		return 100 * w(s.Sleepiness)
	case entities.ActivityResting:
		return 70 * w(s.Energy)
	case entities.ActivityWorking:
		return 90 * w(s.Money) * (0.4 + 0.6*stamina)
	case entities.ActivityExercising:
		return 40*bored*stamina + 10*glum
	case entities.ActivityPlaying:
		return (50*bored + 30*glum) * (0.5 + 0.5*stamina)
	case entities.ActivitySocializing:
		return 90*w(s.Loneliness) + 20*glum
	case entities.ActivityReading:
		return 40*bored + 10*glum
	case entities.ActivityMeditating:
		return 30*glum + 20*w(s.Energy)
	}
	return 0
}

// personalityBonus is the additive trait bonus for a, before influence
// scaling.
func personalityBonus(a entities.Activity, p entities.Personality) float64 {
	switch {
	case a.IsSocial():
		return 20 * (p.SocialPreference - 0.5)
	case a.IsRestful():
		return 15 * (1 - p.EnergyEfficiency)
	case a.IsRisky():
		return 10 * (p.RiskTolerance - 0.5)
	}
	return 0
}

// Scores holds one priority per activity. Excluded activities are marked
// in Candidate and never selected.
type Scores struct {
	Value     [entities.NumActivities]float64
	Candidate [entities.NumActivities]bool
}

// Best returns the highest scoring candidate. Ties go to the lower enum.
func (sc *Scores) Best() entities.Activity {
	best, bestV := entities.ActivityIdle, math.Inf(-1)
	for i, ok := range sc.Candidate {
		if ok && sc.Value[i] > bestV {
			best, bestV = entities.Activity(i), sc.Value[i]
		}
	}
	return best
}

// score runs steps 1 to 5 of the policy: need urgency with affordability
// gates, mood, personality, the current-activity efficiency and overstay
// adjustments, then habit bias.
func (e *Engine) score(ent *entities.Entity, companionAlive bool, sess *activity.Session, habits *HabitMemory, now time.Time) Scores {
	var sc Scores
	mod := ModifierFor(ent.Mood)
	pers := entities.PersonalityOf(ent.ID)

	for i := 0; i < entities.NumActivities; i++ {
		a := entities.Activity(i)
		def := e.catalog.Get(a)

		if a.IsSocial() && !companionAlive {
			continue
		}
		if !def.Affordable(ent.Stats.Money) {
			continue
		}

		v := baseScore(a, ent.Stats, e.cfg.Alpha)
		v = mod.Apply(a, v)
		v += personalityBonus(a, pers) * e.cfg.PersonalityInfluence

		if sess != nil && sess.Activity == a {
			spent := sess.Elapsed(now)
			v *= def.EfficiencyAt(spent)
			if def.OptimalDuration > 0 && spent > def.OptimalDuration*3/2 {
				v *= 0.5
			}
		}

		v += habits[a] * e.cfg.HabitBias
		if !entities.Finite(v) || v < 0 {
			v = 0
		}
		sc.Value[a] = v
		sc.Candidate[a] = true
	}
	// IDLE is always available.
	sc.Candidate[entities.ActivityIdle] = true
	return sc
}
