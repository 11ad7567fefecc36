// Package decision picks each entity's activity: needs are scored, biased
// by mood, personality and habit, sampled with softmax, then gated by
// session inertia.
package decision

import (
	"log/slog"
	"time"

	"github.com/talgya/twinsim/internal/activity"
	"github.com/talgya/twinsim/internal/entities"
	"github.com/talgya/twinsim/internal/entropy"
)

// Config holds the decision knobs.
type Config struct {
	Alpha                float64 `yaml:"alpha"`                 // need-urgency exponent
	Temperature          float64 `yaml:"temperature"`           // softmax tau
	PersonalityInfluence float64 `yaml:"personality_influence"` // 0..1
	UrgencyThreshold     float64 `yaml:"urgency_threshold"`     // need urgency that overrides gating
	HabitDecay           float64 `yaml:"habit_decay"`
	HabitReward          float64 `yaml:"habit_reward"`
	HabitBias            float64 `yaml:"habit_bias"`
}

// DefaultConfig returns the stock decision knobs.
func DefaultConfig() Config {
	return Config{
		Alpha:                1.6,
		Temperature:          10,
		PersonalityInfluence: 0.5,
		UrgencyThreshold:     90,
		HabitDecay:           0.95,
		HabitReward:          0.1,
		HabitBias:            5,
	}
}

// Decision is the outcome of one Decide call.
type Decision struct {
	From     entities.Activity
	Activity entities.Activity
	Changed  bool
	Forced   bool // urgency override, gating skipped
}

// Engine owns the per-entity sessions, habits and history. Not safe for
// concurrent use; the simulation loop is its only caller.
type Engine struct {
	cfg     Config
	catalog *activity.Catalog
	rng     entropy.Source
	log     *slog.Logger

	sessions map[entities.ID]*activity.Session
	habits   map[entities.ID]*HabitMemory
	history  map[entities.ID][]activity.Record
	// pending is the last rejected alternative per entity.
	pending map[entities.ID]entities.Activity
}

// NewEngine creates a decision engine. A nil logger uses slog.Default.
func NewEngine(cfg Config, catalog *activity.Catalog, rng entropy.Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = entropy.Crypto()
	}
	return &Engine{
		cfg:      cfg,
		catalog:  catalog,
		rng:      rng,
		log:      logger,
		sessions: make(map[entities.ID]*activity.Session),
		habits:   make(map[entities.ID]*HabitMemory),
		history:  make(map[entities.ID][]activity.Record),
		pending:  make(map[entities.ID]entities.Activity),
	}
}

// SetTemperature changes the softmax temperature.
func (e *Engine) SetTemperature(tau float64) {
	e.cfg.Temperature = tau
}

// Ensure returns the live session of ent, starting one when ent has none
// or its activity was changed from outside.
func (e *Engine) Ensure(ent *entities.Entity, now time.Time) activity.Session {
	return *e.ensure(ent, now)
}

func (e *Engine) ensure(ent *entities.Entity, now time.Time) *activity.Session {
	if s, ok := e.sessions[ent.ID]; ok && s.Activity == ent.Activity {
		return s
	}
	start := ent.LastActivityChange
	if start.IsZero() || start.After(now) {
		start = now
	}
	s := activity.NewSession(ent.Activity, start, e.catalog.Get(ent.Activity).OptimalDuration)
	e.sessions[ent.ID] = &s
	return &s
}

// Store replaces the session of id, typically with the bookkeeping returned
// by the effects engine.
func (e *Engine) Store(id entities.ID, s activity.Session) {
	e.sessions[id] = &s
}

// Session returns the live session of id.
func (e *Engine) Session(id entities.ID) (activity.Session, bool) {
	s, ok := e.sessions[id]
	if !ok {
		return activity.Session{}, false
	}
	return *s, true
}

// Habits returns a copy of id's habit memory.
func (e *Engine) Habits(id entities.ID) HabitMemory {
	if h, ok := e.habits[id]; ok {
		return *h
	}
	return HabitMemory{}
}

// History returns the closed sessions of id, oldest first.
func (e *Engine) History(id entities.ID) []activity.Record {
	return append([]activity.Record(nil), e.history[id]...)
}

// Forget drops the live state of id. History is kept.
func (e *Engine) Forget(id entities.ID) {
	delete(e.sessions, id)
	delete(e.habits, id)
	delete(e.pending, id)
}

func (e *Engine) habitsFor(id entities.ID) *HabitMemory {
	h, ok := e.habits[id]
	if !ok {
		h = &HabitMemory{}
		e.habits[id] = h
	}
	return h
}

// Scores exposes the priority of every activity for ent at now.
func (e *Engine) Scores(ent entities.Entity, companion *entities.Entity, now time.Time) Scores {
	return e.score(&ent, companion != nil && companion.Alive(), e.ensure(&ent, now), e.habitsFor(ent.ID), now)
}

// Decide returns the activity ent should be doing at now. A dead entity
// keeps its activity.
func (e *Engine) Decide(ent entities.Entity, companion *entities.Entity, now time.Time) Decision {
	d := Decision{From: ent.Activity, Activity: ent.Activity}
	if !ent.Alive() {
		return d
	}

	sess := e.ensure(&ent, now)
	habits := e.habitsFor(ent.ID)
	sc := e.score(&ent, companion != nil && companion.Alive(), sess, habits, now)
	cur := sess.Activity

	// A need strictly above the threshold beats every gate, unless the
	// current activity is itself answering one.
	best := sc.Best()
	if best != cur &&
		NeedUrgency(best, ent.Stats, e.cfg.Alpha) > e.cfg.UrgencyThreshold &&
		NeedUrgency(cur, ent.Stats, e.cfg.Alpha) <= e.cfg.UrgencyThreshold {
		e.commit(ent.ID, sess, best, now)
		d.Activity, d.Changed, d.Forced = best, true, true
		e.log.Debug("activity override", "entity", ent.ID, "from", cur, "to", best,
			"urgency", NeedUrgency(best, ent.Stats, e.cfg.Alpha))
		return d
	}

	choice := Softmax(&sc, e.cfg.Temperature, e.rng)
	if choice == cur {
		return d
	}

	if sess.Elapsed(now) < e.catalog.Get(cur).MinDuration {
		e.interrupt(ent.ID, sess, choice)
		return d
	}

	p := entities.Clamp01(ModifierFor(ent.Mood).ActivityChange * (1 - e.inertia(ent.ID, sess, now)))
	if e.rng.Float64() >= p {
		e.interrupt(ent.ID, sess, choice)
		return d
	}

	e.commit(ent.ID, sess, choice, now)
	d.Activity, d.Changed = choice, true
	e.log.Debug("activity change", "entity", ent.ID, "from", cur, "to", choice, "p", p)
	return d
}

// inertia is the resistance of the current session to change, in [0, 1].
func (e *Engine) inertia(id entities.ID, sess *activity.Session, now time.Time) float64 {
	in := entities.PersonalityOf(id).ActivityPersistence * 0.6
	if sess.Effectiveness > 0.7 {
		in += 0.2
	}
	if sess.Interruptions > 2 {
		in -= 0.2
	}
	if p := sess.Progress(now); p < 0.1 || p > 0.9 {
		in *= 0.5
	}
	return entities.Clamp01(in)
}

// interrupt counts a rejected alternative once per distinct urge.
func (e *Engine) interrupt(id entities.ID, sess *activity.Session, choice entities.Activity) {
	if prev, ok := e.pending[id]; ok && prev == choice {
		return
	}
	e.pending[id] = choice
	sess.Interruptions++
}

func (e *Engine) commit(id entities.ID, old *activity.Session, next entities.Activity, now time.Time) {
	old.Interruptions++
	e.history[id] = activity.PushHistory(e.history[id], old.Close(now))

	s := activity.NewSession(next, now, e.catalog.Get(next).OptimalDuration)
	e.sessions[id] = &s
	e.habitsFor(id).Reinforce(next, e.cfg.HabitDecay, e.cfg.HabitReward)
	delete(e.pending, id)
}
