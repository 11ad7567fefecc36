package resonance

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

func happySocial(pos entities.Position) Participant {
	return Participant{
		Position: pos,
		Stats:    entities.DefaultStats(),
		Mood:     entities.MoodHappy,
		Activity: entities.ActivitySocializing,
	}
}

func TestCloseBondGrows(t *testing.T) {
	d := New(DefaultConfig())
	a := happySocial(entities.Position{X: 0, Y: 0})
	b := happySocial(entities.Position{X: 10, Y: 0})

	for _, r := range []float64{0, 25, 50, 99} {
		next, bd := d.Step(r, a, b, time.Second)
		if !(next > r) {
			t.Errorf("r=%v: next = %v (%+v), want strict increase", r, next, bd)
		}
	}
}

func TestSeparationErodes(t *testing.T) {
	d := New(DefaultConfig())
	a := happySocial(entities.Position{X: 0, Y: 0})
	b := happySocial(entities.Position{X: 1000, Y: 0})
	b.Activity = entities.ActivityReading

	next, _ := d.Step(60, a, b, time.Second)
	if !(next < 60) {
		t.Errorf("far apart: next = %v, want below 60", next)
	}
	if next, _ := d.Step(0, a, b, time.Second); next < 0 {
		t.Errorf("resonance went negative: %v", next)
	}
}

func TestStressFromCriticalNeeds(t *testing.T) {
	d := New(DefaultConfig())
	a := happySocial(entities.Position{})
	b := happySocial(entities.Position{X: 5})
	calm, _ := d.Step(70, a, b, time.Second)

	a.Stats.Hunger = 1
	b.Stats.Energy = 1
	stressed, bd := d.Step(70, a, b, time.Second)
	if !(stressed < calm) {
		t.Errorf("stressed %v not below calm %v", stressed, calm)
	}
	if math.Abs(bd.Stress-2*0.4*0.7) > 1e-9 {
		t.Errorf("stress term = %v, want 0.56", bd.Stress)
	}
}

func TestZeroDtIsNoop(t *testing.T) {
	d := New(DefaultConfig())
	a := happySocial(entities.Position{})
	if got, _ := d.Step(42, a, a, 0); got != 42 {
		t.Errorf("zero dt: %v, want 42", got)
	}
}

func TestCoincidentEntities(t *testing.T) {
	d := New(DefaultConfig())
	a := happySocial(entities.Position{X: 3, Y: 3})
	got, bd := d.Step(10, a, a, time.Second)
	if !entities.Finite(got) || got <= 10 {
		t.Errorf("zero distance: %v (%+v)", got, bd)
	}
}

func TestNonFinitePositionIsNoop(t *testing.T) {
	d := New(DefaultConfig())
	a := happySocial(entities.Position{X: math.NaN()})
	b := happySocial(entities.Position{})
	if got, _ := d.Step(30, a, b, time.Second); got != 30 {
		t.Errorf("NaN position: %v, want 30", got)
	}
	if got, _ := d.Step(math.Inf(1), b, b, 0); got != 0 {
		t.Errorf("infinite resonance: %v, want reset to 0", got)
	}
}

func TestClosenessShape(t *testing.T) {
	d := New(DefaultConfig())
	if c := d.Closeness(80); math.Abs(c-0.5) > 1e-12 {
		t.Errorf("closeness at bond distance = %v, want 0.5", c)
	}
	if d.Closeness(0) < 0.98 || d.Closeness(300) > 0.01 {
		t.Error("closeness not saturating")
	}
	step := New(Config{BondDistance: 80})
	if step.Closeness(10) != 1 || step.Closeness(100) != 0 {
		t.Error("zero scale should behave as a step")
	}
}

func TestSharedZoneSynergy(t *testing.T) {
	d := New(DefaultConfig())
	lounge := &entities.Zone{ID: "lounge", Type: entities.ZoneSocial}
	kitchen := &entities.Zone{ID: "kitchen", Type: entities.ZoneFood}

	a := happySocial(entities.Position{})
	b := happySocial(entities.Position{X: 5})
	a.Zone, b.Zone = lounge, lounge
	_, shared := d.Step(10, a, b, time.Second)
	a.Zone, b.Zone = kitchen, kitchen
	_, food := d.Step(10, a, b, time.Second)

	if shared.Synergy != 1.5 || food.Synergy != 1.25 {
		t.Errorf("synergy shared=%v food=%v, want 1.5 and 1.25", shared.Synergy, food.Synergy)
	}
}

func TestBoundedProperty(t *testing.T) {
	d := New(DefaultConfig())
	rng := rand.New(rand.NewSource(42))
	randStats := func() entities.Stats {
		return entities.Stats{
			Hunger: rng.Float64() * 100, Sleepiness: rng.Float64() * 100,
			Loneliness: rng.Float64() * 100, Happiness: rng.Float64() * 100,
			Energy: rng.Float64() * 100, Boredom: rng.Float64() * 100,
			Money: rng.Float64() * 100, Health: rng.Float64() * 100,
		}
	}
	randP := func() Participant {
		return Participant{
			Position: entities.Position{X: rng.NormFloat64() * 200, Y: rng.NormFloat64() * 200},
			Stats:    randStats(),
			Mood:     entities.Mood(rng.Intn(entities.NumMoods)),
			Activity: entities.Activity(rng.Intn(entities.NumActivities)),
		}
	}

	r := 50.0
	for i := 0; i < 5000; i++ {
		dt := time.Duration(rng.Int63n(int64(10 * time.Minute)))
		r, _ = d.Step(r, randP(), randP(), dt)
		if r < 0 || r > Max || math.IsNaN(r) {
			t.Fatalf("iteration %d: resonance %v out of range", i, r)
		}
	}
}
