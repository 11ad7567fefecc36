package health

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

var t0 = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestTransitionTable(t *testing.T) {
	for from := Phase(0); from < numPhases; from++ {
		if Allowed(from, PhaseDead) != (from == PhaseFading) {
			t.Errorf("%v -> dead allowed = %v", from, Allowed(from, PhaseDead))
		}
		if Allowed(PhaseDead, from) {
			t.Errorf("dead -> %v allowed", from)
		}
		if Allowed(from, from) {
			t.Errorf("self transition %v listed", from)
		}
	}
	if Allowed(Phase(9), PhaseNormal) {
		t.Error("unknown phase allowed")
	}
}

func TestIllegalTransitionKeepsPhase(t *testing.T) {
	saved := transitions
	t.Cleanup(func() { transitions = saved })
	transitions[PhaseNormal][PhaseFading] = false

	m := New(DefaultConfig())
	r := m.Check(entities.Sol, 0, entities.DefaultStats(), t0, time.Second)
	if r.Changed || r.To != PhaseNormal {
		t.Fatalf("result = %+v, want phase kept", r)
	}
	if st, _ := m.Status(entities.Sol); st.Phase != PhaseNormal {
		t.Errorf("phase = %v, want normal", st.Phase)
	}

	transitions = saved
	if r := m.Check(entities.Sol, 0, entities.DefaultStats(), t0.Add(time.Second), time.Second); r.To != PhaseFading {
		t.Errorf("legal move refused: %+v", r)
	}
}

func TestZeroResonanceKillsOnceAfterTimeout(t *testing.T) {
	m := New(DefaultConfig())
	stats := entities.DefaultStats()
	step := 100 * time.Millisecond

	kills := 0
	var killedAt time.Duration
	for el := time.Duration(0); el <= 45*time.Second; el += step {
		r := m.Check(entities.Sol, 0, stats, t0.Add(el), step)
		if el == 0 && r.To != PhaseFading {
			t.Fatalf("first check: %v, want fading", r.To)
		}
		if r.Killed {
			kills++
			killedAt = el
			if r.From != PhaseFading {
				t.Fatalf("killed from %v", r.From)
			}
		}
		if kills > 0 && el > killedAt && r.Changed {
			t.Fatalf("transition after death: %+v", r)
		}
	}
	if kills != 1 {
		t.Fatalf("kills = %d, want 1", kills)
	}
	if killedAt <= DefaultConfig().FadingTimeout {
		t.Errorf("killed at %v, before timeout", killedAt)
	}
	if st, _ := m.Status(entities.Sol); st.Phase != PhaseDead {
		t.Errorf("phase = %v, want dead", st.Phase)
	}
}

func TestFadingRecovers(t *testing.T) {
	m := New(DefaultConfig())
	stats := entities.DefaultStats()
	m.Check(entities.Luna, 0, stats, t0, time.Second)
	r := m.Check(entities.Luna, 15, stats, t0.Add(10*time.Second), time.Second)
	if r.To != PhaseNormal || !r.Changed {
		t.Fatalf("result = %+v, want recovery to normal", r)
	}
}

func TestLowResonanceHysteresis(t *testing.T) {
	m := New(DefaultConfig())
	stats := entities.DefaultStats()
	if r := m.Check(entities.Sol, 15, stats, t0, time.Second); r.To != PhaseLowResonance {
		t.Fatalf("r=15: %v, want low_resonance", r.To)
	}
	if r := m.Check(entities.Sol, 19.9, stats, t0.Add(time.Second), time.Second); r.Changed {
		t.Fatalf("r=19.9: changed to %v", r.To)
	}
	if r := m.Check(entities.Sol, 20, stats, t0.Add(2*time.Second), time.Second); r.To != PhaseNormal {
		t.Fatalf("r=20: %v, want normal", r.To)
	}
}

func TestFadingNeedsContinuousZero(t *testing.T) {
	m := New(DefaultConfig())
	stats := entities.DefaultStats()
	m.Check(entities.Sol, 0, stats, t0, time.Second)
	// A blip above zero that is still below the recovery threshold.
	m.Check(entities.Sol, 5, stats, t0.Add(20*time.Second), time.Second)
	r := m.Check(entities.Sol, 0, stats, t0.Add(35*time.Second), time.Second)
	if r.Killed {
		t.Fatal("killed although resonance was not continuously zero")
	}
	r = m.Check(entities.Sol, 0, stats, t0.Add(66*time.Second), time.Second)
	if !r.Killed {
		t.Fatalf("result = %+v, want kill after a continuous timeout", r)
	}
}

func TestGraceDampensDecay(t *testing.T) {
	m := New(DefaultConfig())
	low := m.HealthDelta(5, 50, 1, time.Second)
	high := m.HealthDelta(50, 50, 1, time.Second)
	if !(low < 0 && high < 0) {
		t.Fatalf("deltas low=%v high=%v, want decay", low, high)
	}
	if !(math.Abs(low) < math.Abs(high)) {
		t.Errorf("grace decay %v not smaller than %v", low, high)
	}
}

func TestHealthRecovery(t *testing.T) {
	m := New(DefaultConfig())
	if d := m.HealthDelta(50, 100, 0, time.Second); math.Abs(d-0.1) > 1e-12 {
		t.Errorf("recovery at full resonance = %v, want 0.1", d)
	}
	if d := m.HealthDelta(50, 100, 0, 0); d != 0 {
		t.Errorf("zero dt delta = %v", d)
	}
}

func TestHealthZeroIsFatalThroughFading(t *testing.T) {
	m := New(DefaultConfig())
	stats := entities.DefaultStats()
	stats.Health = 0
	stats.Hunger = 0

	r := m.Check(entities.Luna, 100, stats, t0, time.Second)
	if r.To != PhaseFading {
		t.Fatalf("health zero: %v, want fading", r.To)
	}
	r = m.Check(entities.Luna, 100, stats, t0.Add(10*time.Second), time.Second)
	if r.Changed {
		t.Fatalf("terminal fade recovered: %+v", r)
	}
	r = m.Check(entities.Luna, 100, stats, t0.Add(31*time.Second), time.Second)
	if !r.Killed {
		t.Fatalf("result = %+v, want kill", r)
	}
}

func TestNeverSkipsFading(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := New(DefaultConfig())
	now := t0
	for i := 0; i < 20000; i++ {
		stats := entities.DefaultStats()
		if rng.Intn(10) == 0 {
			stats.Hunger = 0
			stats.Health = rng.Float64() * 5
		}
		res := rng.Float64()*30 - 5
		if rng.Intn(4) == 0 {
			res = 0
		}
		dt := time.Duration(rng.Intn(3000)) * time.Millisecond
		now = now.Add(dt)
		r := m.Check(entities.Sol, res, stats, now, dt)
		if r.Killed && r.From != PhaseFading {
			t.Fatalf("iteration %d: died from %v", i, r.From)
		}
		if r.Changed && !Allowed(r.From, r.To) {
			t.Fatalf("iteration %d: illegal %v -> %v", i, r.From, r.To)
		}
		if r.Health < 0 || r.Health > 100 {
			t.Fatalf("iteration %d: health %v", i, r.Health)
		}
	}
}

func TestTrackAdoptsPersistedPhase(t *testing.T) {
	m := New(DefaultConfig())
	e := entities.New(entities.Sol, entities.Position{}, t0)
	e.State = entities.StateFading
	m.Track(&e, t0)
	if st, _ := m.Status(entities.Sol); st.Phase != PhaseFading {
		t.Errorf("phase = %v, want fading", st.Phase)
	}
	if PhaseNormal.State(entities.ActivitySleeping) != entities.StateSleeping {
		t.Error("normal phase should follow the activity")
	}
}

func TestNonFiniteResonanceSkipsPass(t *testing.T) {
	m := New(DefaultConfig())
	r := m.Check(entities.Sol, math.NaN(), entities.DefaultStats(), t0, time.Second)
	if r.Changed || r.Health != 100 {
		t.Errorf("result = %+v, want untouched", r)
	}
}
