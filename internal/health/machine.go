// Package health tracks each entity's life cycle (normal, low resonance,
// fading, dead) and its health value.
package health

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

// Config holds the health knobs. Rates are per second of wall time.
type Config struct {
	CriticalResonance float64       `yaml:"critical_resonance"`
	FadingRecovery    float64       `yaml:"fading_recovery"`
	FadingTimeout     time.Duration `yaml:"fading_timeout"`
	RecoveryRate      float64       `yaml:"recovery_rate"`
	DecayPerCritical  float64       `yaml:"decay_per_critical"`
	GraceThreshold    float64       `yaml:"grace_threshold"`
	GraceMultiplier   float64       `yaml:"grace_multiplier"`
}

// DefaultConfig returns the stock health knobs.
func DefaultConfig() Config {
	return Config{
		CriticalResonance: 20,
		FadingRecovery:    10,
		FadingTimeout:     30 * time.Second,
		RecoveryRate:      0.05,
		DecayPerCritical:  0.25,
		GraceThreshold:    20,
		GraceMultiplier:   0.3,
	}
}

// Phase is the life-cycle position of an entity.
type Phase uint8

const (
	PhaseNormal Phase = iota
	PhaseLowResonance
	PhaseFading
	PhaseDead
	numPhases
)

var phaseNames = [numPhases]string{"normal", "low_resonance", "fading", "dead"}

func (p Phase) String() string {
	if p < numPhases {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// State maps the phase onto the entity state enum. Normal entities take
// their behavioural state from the activity they are doing.
func (p Phase) State(a entities.Activity) entities.State {
	switch p {
	case PhaseLowResonance:
		return entities.StateLowResonance
	case PhaseFading:
		return entities.StateFading
	case PhaseDead:
		return entities.StateDead
	}
	return entities.BehaviourState(a)
}

// PhaseOf recovers the phase from a persisted entity.
func PhaseOf(e *entities.Entity) Phase {
	if e.IsDead {
		return PhaseDead
	}
	switch e.State {
	case entities.StateLowResonance:
		return PhaseLowResonance
	case entities.StateFading:
		return PhaseFading
	case entities.StateDead:
		return PhaseDead
	}
	return PhaseNormal
}

// transitions lists every legal phase change. Anything absent is illegal,
// DEAD has no way out and nothing reaches it except FADING.
var transitions = [numPhases][numPhases]bool{
	PhaseNormal:       {PhaseLowResonance: true, PhaseFading: true},
	PhaseLowResonance: {PhaseNormal: true, PhaseFading: true},
	PhaseFading:       {PhaseNormal: true, PhaseDead: true},
	PhaseDead:         {},
}

// Allowed reports whether from -> to is a legal transition.
func Allowed(from, to Phase) bool {
	if from >= numPhases || to >= numPhases {
		return false
	}
	return transitions[from][to]
}

// zeroResonance is the level below which resonance counts as zero.
const zeroResonance = 1e-6

// Status is the machine's bookkeeping for one entity.
type Status struct {
	Phase Phase     `json:"phase"`
	Since time.Time `json:"since"` // last phase change
	// ZeroSince is when resonance last dropped to zero; zero while positive.
	ZeroSince time.Time `json:"zero_since"`
	// Terminal marks a fade caused by health reaching zero. It cannot
	// recover.
	Terminal bool `json:"terminal"`
}

// Result is the outcome of one Check.
type Result struct {
	From, To Phase
	Changed  bool
	Killed   bool
	Health   float64
}

// Machine evaluates health transitions. Not safe for concurrent use.
type Machine struct {
	cfg    Config
	status map[entities.ID]*Status
}

// New returns a machine for cfg.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg, status: make(map[entities.ID]*Status)}
}

// Track registers e, adopting its persisted phase. Already tracked
// entities are left alone.
func (m *Machine) Track(e *entities.Entity, now time.Time) {
	if _, ok := m.status[e.ID]; ok {
		return
	}
	since := e.LastStateChange
	if since.IsZero() {
		since = now
	}
	m.status[e.ID] = &Status{Phase: PhaseOf(e), Since: since}
}

// Status returns the bookkeeping of id.
func (m *Machine) Status(id entities.ID) (Status, bool) {
	s, ok := m.status[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// HealthDelta is the change of health over dt. With no critical needs
// health recovers at recoveryRate + (resonance-50)/1000 per second;
// otherwise it decays by critical x decayPerCritical per second, dampened
// by the grace multiplier once health is below the grace threshold.
func (m *Machine) HealthDelta(health, resonance float64, critical int, dt time.Duration) float64 {
	secs := dt.Seconds()
	if secs <= 0 {
		return 0
	}
	if critical == 0 {
		return secs * (m.cfg.RecoveryRate + (resonance-50)/1000)
	}
	decay := float64(critical) * m.cfg.DecayPerCritical * secs
	if health < m.cfg.GraceThreshold {
		decay *= m.cfg.GraceMultiplier
	}
	return -decay
}

// Check runs one health pass for id. stats are the entity's needs after
// this tick's effects; dt is the wall time since the previous pass.
// A non-finite resonance skips the pass.
func (m *Machine) Check(id entities.ID, resonance float64, stats entities.Stats, now time.Time, dt time.Duration) Result {
	st, ok := m.status[id]
	if !ok {
		st = &Status{Since: now}
		m.status[id] = st
	}
	health := stats.Health
	if !entities.Finite(health) {
		health = entities.StatMax
	}
	res := Result{From: st.Phase, To: st.Phase, Health: health}
	if st.Phase == PhaseDead || !entities.Finite(resonance) {
		return res
	}

	if resonance < zeroResonance {
		resonance = 0
	}
	health = entities.Clamp(health+m.HealthDelta(health, resonance, stats.CriticalCount(), dt), 0, entities.StatMax)
	res.Health = health

	if resonance <= 0 {
		if st.ZeroSince.IsZero() {
			st.ZeroSince = now
		}
	} else {
		st.ZeroSince = time.Time{}
	}

	next := m.next(st, resonance, health, now)
	if next != st.Phase {
		if !Allowed(st.Phase, next) {
			slog.Error("health: illegal transition, phase kept", "entity", id, "from", st.Phase, "to", next)
			return res
		}
		st.Phase, st.Since = next, now
		res.To, res.Changed = next, true
		res.Killed = next == PhaseDead
	}
	return res
}

func (m *Machine) next(st *Status, resonance, health float64, now time.Time) Phase {
	timedOut := now.Sub(st.Since) > m.cfg.FadingTimeout

	if health <= 0 && !st.Terminal {
		st.Terminal = true
		if st.Phase != PhaseFading {
			return PhaseFading
		}
		// Already fading: restart the clock so death still waits a full
		// timeout.
		st.Since = now
		return PhaseFading
	}

	switch st.Phase {
	case PhaseFading:
		if st.Terminal {
			if timedOut {
				return PhaseDead
			}
			return PhaseFading
		}
		if resonance > m.cfg.FadingRecovery {
			return PhaseNormal
		}
		if resonance <= 0 && timedOut && now.Sub(st.ZeroSince) > m.cfg.FadingTimeout {
			return PhaseDead
		}
		return PhaseFading
	case PhaseNormal, PhaseLowResonance:
		if resonance <= 0 {
			return PhaseFading
		}
		if resonance < m.cfg.CriticalResonance {
			return PhaseLowResonance
		}
		return PhaseNormal
	}
	return st.Phase
}
