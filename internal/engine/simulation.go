package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/twinsim/internal/activity"
	"github.com/talgya/twinsim/internal/config"
	"github.com/talgya/twinsim/internal/decision"
	"github.com/talgya/twinsim/internal/entities"
	"github.com/talgya/twinsim/internal/entropy"
	"github.com/talgya/twinsim/internal/health"
	"github.com/talgya/twinsim/internal/needs"
	"github.com/talgya/twinsim/internal/resonance"
)

// MaxStep caps the simulated time of a single tick, so a stalled or paused
// loop resumes smoothly instead of jumping.
const MaxStep = time.Second

const epsilon = 1e-9

// World supplies the entities and zones the simulation reads each tick.
type World interface {
	Entities() []entities.Entity
	Zones() []entities.Zone
}

// Report is a point-in-time view of the simulation for readers outside
// the loop.
type Report struct {
	RunID       string                               `json:"run_id"`
	Tick        uint64                               `json:"tick"`
	Clock       time.Time                            `json:"clock"`
	GameElapsed time.Duration                        `json:"game_elapsed"`
	GameTime    string                               `json:"game_time"`
	Resonance   float64                              `json:"resonance"`
	Sessions    map[entities.ID]activity.Session     `json:"sessions"`
	History     map[entities.ID][]activity.Record    `json:"history"`
	Health      map[entities.ID]health.Status        `json:"health"`
	Habits      map[entities.ID]decision.HabitMemory `json:"habits"`
	Breakdown   resonance.Breakdown                  `json:"breakdown"`
	Counters    Counters                             `json:"counters"`
}

// Counters are cumulative totals of a run.
type Counters struct {
	Batches         uint64 `json:"batches"`
	Updates         uint64 `json:"updates"`
	SinkErrors      uint64 `json:"sink_errors"`
	ActivityChanges uint64 `json:"activity_changes"`
	Deaths          uint64 `json:"deaths"`
}

type intervention struct {
	entity entities.ID
	stat   entities.StatKind
	amount float64
}

// Simulation owns the core state of a run and advances it one tick at a
// time: decay, activity effects, decision and mood for each living entity,
// then resonance and health on their cadences. Every mutation leaves as an
// Update through the batcher; supplied entities are never modified.
type Simulation struct {
	cfg   config.Tuning
	world World
	log   *slog.Logger
	runID string

	decay   *needs.Decayer
	effects *activity.Effects
	decide  *decision.Engine
	dyn     *resonance.Dynamics
	health  *health.Machine
	batch   *Batcher

	// Working copies. Stats, mood, activity and state are owned here;
	// positions come from the world every tick.
	ents     map[entities.ID]*entities.Entity
	lastGood map[entities.ID]entities.Stats

	tick        uint64
	lastWall    time.Time
	clock       time.Time
	gameElapsed time.Duration
	resonance   float64
	breakdown   resonance.Breakdown
	lastRes     time.Time
	lastHealth  time.Time
	counters    Counters

	pendingMu sync.Mutex
	pending   []intervention

	reportMu sync.RWMutex
	report   Report
}

// NewSimulation wires the systems for cfg. Flushed batches go to sink.
func NewSimulation(cfg config.Tuning, world World, sink Sink, rng entropy.Source, logger *slog.Logger) *Simulation {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With("run", runID[:8])
	catalog := activity.DefaultCatalog()

	return &Simulation{
		cfg:       cfg,
		world:     world,
		log:       logger,
		runID:     runID,
		decay:     needs.NewDecayer(cfg.DecayHalfLives(), cfg.DecayMultipliers()),
		effects:   activity.NewEffects(catalog),
		decide:    decision.NewEngine(cfg.Decision, catalog, rng, logger),
		dyn:       resonance.New(cfg.Resonance),
		health:    health.New(cfg.Health),
		batch:     NewBatcher(sink, runID, cfg.Batch.MaxSize, cfg.Batch.MaxAge, logger),
		ents:      make(map[entities.ID]*entities.Entity),
		lastGood:  make(map[entities.ID]entities.Stats),
		resonance: entities.Clamp(cfg.InitialResonance, 0, resonance.Max),
	}
}

// RunID identifies this run in journals and streams.
func (s *Simulation) RunID() string { return s.runID }

// SetResonance seeds the bond value, e.g. from a persisted run. It must be
// called before the first Step.
func (s *Simulation) SetResonance(r float64) {
	if entities.Finite(r) {
		s.resonance = entities.Clamp(r, 0, resonance.Max)
	}
}

// Resonance returns the current bond value. Loop goroutine only.
func (s *Simulation) Resonance() float64 { return s.resonance }

// Report returns the latest published report.
func (s *Simulation) Report() Report {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.report
}

// Intervene queues an external stat change for id, applied at the start of
// the next tick. Safe to call from any goroutine.
func (s *Simulation) Intervene(id, stat string, amount float64) (string, error) {
	eid, err := entities.ParseID(id)
	if err != nil {
		return "", err
	}
	k, err := entities.ParseStatKind(stat)
	if err != nil {
		return "", err
	}
	if !entities.Finite(amount) {
		return "", fmt.Errorf("amount must be finite, got %v", amount)
	}

	s.pendingMu.Lock()
	s.pending = append(s.pending, intervention{entity: eid, stat: k, amount: amount})
	s.pendingMu.Unlock()

	desc := fmt.Sprintf("%s receives %+.1f %s", eid, amount, k)
	s.log.Info("intervention queued", "entity", eid, "stat", k, "amount", amount)
	return desc, nil
}

// Step runs one tick at wall time now with the given game speed. Errors
// come only from sinks; the simulation state is advanced regardless.
func (s *Simulation) Step(ctx context.Context, now time.Time, speed float64) error {
	s.tick++
	var dt time.Duration
	if s.lastWall.IsZero() {
		s.clock = now
	} else {
		dt = now.Sub(s.lastWall)
		if dt < 0 {
			dt = 0
		}
		if dt > MaxStep {
			dt = MaxStep
		}
		s.clock = s.clock.Add(dt)
	}
	s.lastWall = now
	if !entities.Finite(speed) || speed < 0 {
		speed = 0
	}
	s.gameElapsed += time.Duration(float64(dt) * speed)
	clock := s.clock

	var errs []error
	if err := s.batch.FlushIfStale(ctx, now); err != nil {
		errs = append(errs, err)
	}

	ids := s.sync(clock)
	start := make(map[entities.ID]entities.Entity, len(ids))
	for _, id := range ids {
		start[id] = *s.ents[id]
	}
	s.applyInterventions()

	zones := s.world.Zones()
	for _, id := range ids {
		e := s.ents[id]
		if !e.Alive() {
			continue
		}
		var companion *entities.Entity
		if c, ok := start[id.Companion()]; ok {
			companion = &c
		}
		s.advance(e, companion, zones, clock, dt, speed)
	}

	if s.cfg.Cadence.Resonance > 0 && s.tick%uint64(s.cfg.Cadence.Resonance) == 0 {
		if err := s.updateResonance(ctx, ids, zones, clock, now); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cfg.Cadence.Health > 0 && s.tick%uint64(s.cfg.Cadence.Health) == 0 {
		s.checkHealth(ids, clock)
	}

	for _, id := range ids {
		if err := s.emit(ctx, start[id], s.ents[id], now); err != nil {
			errs = append(errs, err)
		}
	}

	s.publish()
	return errors.Join(errs...)
}

// FlushStale flushes the pending batch once its oldest update is older than
// the configured age bound. Call it from the loop goroutine between ticks.
func (s *Simulation) FlushStale(ctx context.Context, now time.Time) error {
	return s.batch.FlushIfStale(ctx, now)
}

// Pending returns the number of queued updates. Loop goroutine only.
func (s *Simulation) Pending() int { return s.batch.Len() }

// Close flushes pending updates. The simulation must not be stepped
// afterwards.
func (s *Simulation) Close(ctx context.Context) error {
	err := s.batch.Flush(ctx, time.Now(), FlushForced)
	batches, updates, _ := s.batch.Counters()
	s.log.Info("simulation closed", "tick", s.tick, "batches", batches, "updates", updates)
	return err
}

// sync merges the world's entities into the working copies and returns
// the known ids in a stable order.
func (s *Simulation) sync(clock time.Time) []entities.ID {
	for _, we := range s.world.Entities() {
		if !we.ID.Valid() {
			continue
		}
		if e, ok := s.ents[we.ID]; ok {
			if we.Position.Valid() {
				e.Position = we.Position
			}
			e.ColorHue, e.PulsePhase = we.ColorHue, we.PulsePhase
			continue
		}
		e := we
		e.Stats = e.Stats.Sanitize(entities.DefaultStats())
		if !e.Mood.Valid() {
			e.Mood = entities.MoodContent
		}
		if !e.Activity.Valid() {
			e.Activity = entities.ActivityIdle
		}
		if !e.State.Valid() {
			e.State = entities.StateIdle
		}
		s.ents[e.ID] = &e
		s.lastGood[e.ID] = e.Stats
		s.health.Track(&e, clock)
		s.log.Debug("entity tracked", "entity", e.ID, "activity", e.Activity, "state", e.State)
	}

	ids := make([]entities.ID, 0, len(s.ents))
	for id := range s.ents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Simulation) applyInterventions() {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	for _, iv := range pending {
		e, ok := s.ents[iv.entity]
		if !ok || !e.Alive() {
			continue
		}
		e.Stats.Set(iv.stat, e.Stats.Get(iv.stat)+iv.amount)
		e.Stats = e.Stats.Clamp()
		s.lastGood[e.ID] = e.Stats
	}
}

// advance runs decay, activity effects, decision and mood for one entity.
func (s *Simulation) advance(e, companion *entities.Entity, zones []entities.Zone, clock time.Time, dt time.Duration, speed float64) {
	st := e.Stats.Sanitize(s.lastGood[e.ID])
	st = s.decay.Apply(st, e.Activity, dt, speed)

	sess := s.decide.Ensure(e, clock)
	res := s.effects.Apply(sess, st, clock, dt, entities.ZoneAt(zones, e.Position), speed)
	s.decide.Store(e.ID, res.Session)
	e.Stats = res.Stats.Sanitize(st)
	s.lastGood[e.ID] = e.Stats

	d := s.decide.Decide(*e, companion, clock)
	if d.Changed {
		e.Activity = d.Activity
		e.LastActivityChange = clock
		s.counters.ActivityChanges++
	}

	e.Mood = decision.EvaluateMood(e.Stats)

	if hs, ok := s.health.Status(e.ID); ok && hs.Phase == health.PhaseNormal {
		if bs := entities.BehaviourState(e.Activity); bs != e.State {
			e.State = bs
			e.LastStateChange = clock
		}
	}
}

func (s *Simulation) updateResonance(ctx context.Context, ids []entities.ID, zones []entities.Zone, clock, now time.Time) error {
	dt := clock.Sub(s.lastRes)
	if s.lastRes.IsZero() {
		dt = 0
	}
	s.lastRes = clock

	// The bond needs both partners alive; otherwise it holds still.
	if len(ids) != 2 {
		return nil
	}
	a, b := s.ents[ids[0]], s.ents[ids[1]]
	if !a.Alive() || !b.Alive() {
		return nil
	}

	prev := s.resonance
	s.resonance, s.breakdown = s.dyn.Step(prev,
		resonance.FromEntity(a, entities.ZoneAt(zones, a.Position)),
		resonance.FromEntity(b, entities.ZoneAt(zones, b.Position)),
		dt)

	if math.Abs(s.resonance-prev) <= epsilon {
		return nil
	}
	u := ResonanceUpdate(s.resonance)
	u.Tick = s.tick
	return s.batch.Add(ctx, u, now)
}

func (s *Simulation) checkHealth(ids []entities.ID, clock time.Time) {
	dt := clock.Sub(s.lastHealth)
	if s.lastHealth.IsZero() {
		dt = 0
	}
	s.lastHealth = clock

	for _, id := range ids {
		e := s.ents[id]
		if !e.Alive() {
			continue
		}
		res := s.health.Check(id, s.resonance, e.Stats, clock, dt)
		e.Stats.Health = res.Health
		s.lastGood[id] = e.Stats
		if !res.Changed {
			continue
		}

		e.State = res.To.State(e.Activity)
		e.LastStateChange = clock
		s.log.Info("health transition", "entity", id, "from", res.From, "to", res.To,
			"resonance", fmt.Sprintf("%.2f", s.resonance), "health", fmt.Sprintf("%.2f", res.Health))

		if res.Killed {
			e.IsDead = true
			s.counters.Deaths++
			s.decide.Forget(id)
			s.log.Warn("entity died", "entity", id, "tick", s.tick)
		}
	}
}

// emit queues the updates describing how e changed since was.
func (s *Simulation) emit(ctx context.Context, was entities.Entity, e *entities.Entity, now time.Time) error {
	if was.IsDead {
		return nil
	}
	var ups []Update

	if delta := e.Stats.Sub(was.Stats); !statsUnchanged(delta) {
		ups = append(ups, StatsUpdate(e.ID, e.Stats, delta))
	}
	if e.Mood != was.Mood {
		ups = append(ups, MoodUpdate(e.ID, e.Mood))
	}
	if e.Activity != was.Activity {
		ups = append(ups, ActivityUpdate(e.ID, e.Activity))
	}
	if e.State != was.State {
		ups = append(ups, StateUpdate(e.ID, e.State))
	}
	if e.IsDead {
		ups = append(ups, KillUpdate(e.ID))
	}

	var first error
	for _, u := range ups {
		u.Tick = s.tick
		if err := s.batch.Add(ctx, u, now); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func statsUnchanged(d entities.Stats) bool {
	for k := entities.StatKind(0); k < entities.NumStats; k++ {
		if v := d.Get(k); math.IsNaN(v) || math.Abs(v) > epsilon {
			return false
		}
	}
	return true
}

func (s *Simulation) publish() {
	batches, updates, errs := s.batch.Counters()
	s.counters.Batches, s.counters.Updates, s.counters.SinkErrors = batches, updates, errs

	r := Report{
		RunID:       s.runID,
		Tick:        s.tick,
		Clock:       s.clock,
		GameElapsed: s.gameElapsed,
		GameTime:    GameTime(s.gameElapsed),
		Resonance:   s.resonance,
		Sessions:    make(map[entities.ID]activity.Session, len(s.ents)),
		History:     make(map[entities.ID][]activity.Record, len(s.ents)),
		Health:      make(map[entities.ID]health.Status, len(s.ents)),
		Habits:      make(map[entities.ID]decision.HabitMemory, len(s.ents)),
		Breakdown:   s.breakdown,
		Counters:    s.counters,
	}
	for id := range s.ents {
		if sess, ok := s.decide.Session(id); ok {
			r.Sessions[id] = sess
		}
		r.History[id] = s.decide.History(id)
		if st, ok := s.health.Status(id); ok {
			r.Health[id] = st
		}
		r.Habits[id] = s.decide.Habits(id)
	}

	s.reportMu.Lock()
	s.report = r
	s.reportMu.Unlock()
}
