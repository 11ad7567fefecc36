// Package config loads the simulation tuning from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/twinsim/internal/decision"
	"github.com/talgya/twinsim/internal/entities"
	"github.com/talgya/twinsim/internal/health"
	"github.com/talgya/twinsim/internal/needs"
	"github.com/talgya/twinsim/internal/resonance"
	"github.com/talgya/twinsim/internal/wander"
)

// Tuning is every knob of a run.
type Tuning struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	GameSpeed        float64       `yaml:"game_speed"` // game minutes per wall minute
	InitialResonance float64       `yaml:"initial_resonance"`

	Decision  decision.Config  `yaml:"decision"`
	Resonance resonance.Config `yaml:"resonance"`
	Health    health.Config    `yaml:"health"`
	Wander    wander.Config    `yaml:"wander"`

	// HalfLives overrides decay half-lives by stat name ("hunger": 720h).
	HalfLives map[string]time.Duration `yaml:"half_lives"`
	// ActivityMultipliers overrides decay multipliers by activity name.
	ActivityMultipliers map[string]float64 `yaml:"activity_multipliers"`

	Batch   Batch        `yaml:"batch"`
	Cadence Cadence      `yaml:"cadence"`
	Zones   []Zone       `yaml:"zones"`
	Spawn   []SpawnPoint `yaml:"spawn"`
}

// Batch bounds the update batcher.
type Batch struct {
	MaxSize int           `yaml:"max_size"`
	MaxAge  time.Duration `yaml:"max_age"`
}

// Cadence sets how often the throttled subsystems run, in ticks.
type Cadence struct {
	Resonance int `yaml:"resonance"`
	Health    int `yaml:"health"`
}

// Zone is a zone as written in YAML.
type Zone struct {
	ID     string  `yaml:"id"`
	Type   string  `yaml:"type"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// SpawnPoint places an entity at startup.
type SpawnPoint struct {
	ID string  `yaml:"id"`
	X  float64 `yaml:"x"`
	Y  float64 `yaml:"y"`
}

// Default returns the stock tuning: a 50ms tick, one game minute per wall
// second, and a small house of zones.
func Default() Tuning {
	return Tuning{
		TickInterval:     50 * time.Millisecond,
		GameSpeed:        60,
		InitialResonance: 60,
		Decision:         decision.DefaultConfig(),
		Resonance:        resonance.DefaultConfig(),
		Health:           health.DefaultConfig(),
		Wander:           wander.DefaultConfig(),
		Batch:            Batch{MaxSize: 32, MaxAge: 16 * time.Millisecond},
		Cadence:          Cadence{Resonance: 2, Health: 5},
		Zones: []Zone{
			{ID: "kitchen", Type: "food", X: 0, Y: 0, Width: 120, Height: 100},
			{ID: "bedroom", Type: "rest", X: 140, Y: 0, Width: 120, Height: 100},
			{ID: "garden", Type: "play", X: 0, Y: 120, Width: 160, Height: 120},
			{ID: "lounge", Type: "social", X: 180, Y: 120, Width: 120, Height: 120},
			{ID: "library", Type: "comfort", X: 320, Y: 0, Width: 100, Height: 100},
			{ID: "gym", Type: "energy", X: 320, Y: 120, Width: 100, Height: 80},
			{ID: "office", Type: "work", X: 440, Y: 0, Width: 100, Height: 100},
		},
		Spawn: []SpawnPoint{
			{ID: string(entities.Sol), X: 200, Y: 150},
			{ID: string(entities.Luna), X: 260, Y: 170},
		},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func finite(v float64) bool { return entities.Finite(v) }

// Validate reports every bad knob at once.
func (t *Tuning) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if t.TickInterval <= 0 {
		bad("tick_interval must be positive, got %v", t.TickInterval)
	}
	if !finite(t.GameSpeed) || t.GameSpeed < 0 {
		bad("game_speed must be >= 0, got %v", t.GameSpeed)
	}
	if !finite(t.InitialResonance) || t.InitialResonance < 0 || t.InitialResonance > resonance.Max {
		bad("initial_resonance must be in [0, 100], got %v", t.InitialResonance)
	}

	d := t.Decision
	if !finite(d.Temperature) || d.Temperature < 0 {
		bad("decision.temperature must be >= 0, got %v", d.Temperature)
	}
	if !finite(d.PersonalityInfluence) || d.PersonalityInfluence < 0 || d.PersonalityInfluence > 1 {
		bad("decision.personality_influence must be in [0, 1], got %v", d.PersonalityInfluence)
	}
	if !finite(d.Alpha) || d.Alpha <= 0 {
		bad("decision.alpha must be positive, got %v", d.Alpha)
	}
	if !finite(d.HabitDecay) || d.HabitDecay < 0 || d.HabitDecay > 1 {
		bad("decision.habit_decay must be in [0, 1], got %v", d.HabitDecay)
	}

	r := t.Resonance
	if !finite(r.BondDistance) || r.BondDistance < 0 {
		bad("resonance.bond_distance must be >= 0, got %v", r.BondDistance)
	}
	for name, v := range map[string]float64{
		"base_gain_rate": r.BaseGainRate, "separation_rate": r.SeparationRate,
		"stress_rate": r.StressRate, "bonus_unit": r.BonusUnit, "distance_scale": r.DistanceScale,
	} {
		if !finite(v) || v < 0 {
			bad("resonance.%s must be >= 0, got %v", name, v)
		}
	}

	h := t.Health
	if h.FadingTimeout <= 0 {
		bad("health.fading_timeout must be positive, got %v", h.FadingTimeout)
	}
	if h.FadingRecovery < 0 || h.CriticalResonance < h.FadingRecovery {
		bad("health thresholds need 0 <= fading_recovery <= critical_resonance, got %v and %v",
			h.FadingRecovery, h.CriticalResonance)
	}
	if !finite(h.GraceMultiplier) || h.GraceMultiplier < 0 || h.GraceMultiplier > 1 {
		bad("health.grace_multiplier must be in [0, 1], got %v", h.GraceMultiplier)
	}

	for name, hl := range t.HalfLives {
		if _, err := entities.ParseStatKind(name); err != nil {
			bad("half_lives: %w", err)
		}
		if hl < 0 {
			bad("half_lives.%s must be >= 0, got %v", name, hl)
		}
	}
	for name, m := range t.ActivityMultipliers {
		if _, err := entities.ParseActivity(name); err != nil {
			bad("activity_multipliers: %w", err)
		}
		if !finite(m) || m < 0 {
			bad("activity_multipliers.%s must be >= 0, got %v", name, m)
		}
	}

	if !finite(t.Wander.Speed) || t.Wander.Speed < 0 || !finite(t.Wander.Drift) || t.Wander.Drift < 0 {
		bad("wander speed and drift must be >= 0, got speed=%v drift=%v", t.Wander.Speed, t.Wander.Drift)
	}

	if t.Batch.MaxSize < 1 {
		bad("batch.max_size must be >= 1, got %d", t.Batch.MaxSize)
	}
	if t.Batch.MaxAge <= 0 {
		bad("batch.max_age must be positive, got %v", t.Batch.MaxAge)
	}
	if t.Cadence.Resonance < 1 || t.Cadence.Health < 1 {
		bad("cadence values must be >= 1, got resonance=%d health=%d", t.Cadence.Resonance, t.Cadence.Health)
	}

	seen := make(map[string]bool, len(t.Zones))
	for i, z := range t.Zones {
		if z.ID == "" {
			bad("zones[%d]: missing id", i)
		} else if seen[z.ID] {
			bad("zones[%d]: duplicate id %q", i, z.ID)
		}
		seen[z.ID] = true
		if _, err := entities.ParseZoneType(z.Type); err != nil {
			bad("zones[%d]: %w", i, err)
		}
		if z.Width <= 0 || z.Height <= 0 {
			bad("zones[%d]: width and height must be positive", i)
		}
	}
	for i, s := range t.Spawn {
		if _, err := entities.ParseID(s.ID); err != nil {
			bad("spawn[%d]: %w", i, err)
		}
	}

	return errors.Join(errs...)
}

// DecayHalfLives merges the overrides into the default half-lives.
func (t *Tuning) DecayHalfLives() needs.HalfLives {
	h := needs.DefaultHalfLives()
	for name, hl := range t.HalfLives {
		if k, err := entities.ParseStatKind(name); err == nil {
			h[k] = hl
		}
	}
	return h
}

// DecayMultipliers merges the overrides into the default multipliers.
func (t *Tuning) DecayMultipliers() needs.Multipliers {
	m := needs.DefaultMultipliers()
	for name, v := range t.ActivityMultipliers {
		if a, err := entities.ParseActivity(name); err == nil {
			m[a] = v
		}
	}
	return m
}

// ZoneList converts the configured zones. Invalid entries are skipped;
// Validate reports them.
func (t *Tuning) ZoneList() []entities.Zone {
	out := make([]entities.Zone, 0, len(t.Zones))
	for _, z := range t.Zones {
		zt, err := entities.ParseZoneType(z.Type)
		if err != nil {
			continue
		}
		out = append(out, entities.Zone{
			ID:     z.ID,
			Type:   zt,
			Bounds: entities.Bounds{X: z.X, Y: z.Y, Width: z.Width, Height: z.Height},
		})
	}
	return out
}

// SpawnPosition returns where id starts. Entities without a spawn point
// start at the origin.
func (t *Tuning) SpawnPosition(id entities.ID) entities.Position {
	for _, s := range t.Spawn {
		if entities.ID(s.ID) == id {
			return entities.Position{X: s.X, Y: s.Y}
		}
	}
	return entities.Position{}
}
