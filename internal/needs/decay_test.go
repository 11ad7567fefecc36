package needs

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

func newTestDecayer() *Decayer {
	return NewDecayer(DefaultHalfLives(), DefaultMultipliers())
}

func TestApplyZeroElapsedIsNoop(t *testing.T) {
	d := newTestDecayer()
	s := entities.DefaultStats()
	for a := entities.Activity(0); a < entities.NumActivities; a++ {
		if got := d.Apply(s, a, 0, 60); got != s {
			t.Errorf("%s: zero elapsed changed stats: %+v", a, got)
		}
	}
}

func TestApplyHalvesAtHalfLife(t *testing.T) {
	d := newTestDecayer()
	s := entities.Stats{Sleepiness: 80, Money: 10, Health: 100}
	got := d.Apply(s, entities.ActivityIdle, 16*time.Hour, 1)
	if math.Abs(got.Sleepiness-40) > 1e-6 {
		t.Errorf("sleepiness after one half-life: got %v want 40", got.Sleepiness)
	}
	if got.Money != 10 || got.Health != 100 {
		t.Errorf("money and health must not decay: %+v", got)
	}
}

func TestRestfulDecaysSlower(t *testing.T) {
	d := newTestDecayer()
	s := entities.DefaultStats()
	sleeping := d.Apply(s, entities.ActivitySleeping, time.Hour, 10)
	working := d.Apply(s, entities.ActivityWorking, time.Hour, 10)
	if sleeping.Energy <= working.Energy {
		t.Errorf("sleeping should preserve more energy than working: %v vs %v", sleeping.Energy, working.Energy)
	}
}

func TestSpeedMultiplierScalesDecay(t *testing.T) {
	d := newTestDecayer()
	s := entities.DefaultStats()
	slow := d.Apply(s, entities.ActivityIdle, time.Minute, 1)
	fast := d.Apply(s, entities.ActivityIdle, time.Minute, 100)
	if fast.Boredom >= slow.Boredom {
		t.Errorf("faster game speed should decay more: %v vs %v", fast.Boredom, slow.Boredom)
	}
}

func TestApplyOutputAlwaysBounded(t *testing.T) {
	d := newTestDecayer()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		s := entities.Stats{
			Hunger:     rng.Float64() * 100,
			Sleepiness: rng.Float64() * 100,
			Loneliness: rng.Float64() * 100,
			Happiness:  rng.Float64() * 100,
			Energy:     rng.Float64() * 100,
			Boredom:    rng.Float64() * 100,
			Money:      rng.Float64() * 1000,
			Health:     rng.Float64() * 100,
		}
		a := entities.Activity(rng.Intn(entities.NumActivities))
		elapsed := time.Duration(rng.Int63n(int64(48 * time.Hour)))
		got := d.Apply(s, a, elapsed, rng.Float64()*500)
		if !got.Valid() {
			t.Fatalf("iteration %d: out of range %+v", i, got)
		}
	}
}

func TestApplyNonFiniteFieldIsNoop(t *testing.T) {
	d := newTestDecayer()
	s := entities.DefaultStats()
	s.Hunger = math.NaN()
	got := d.Apply(s, entities.ActivityIdle, time.Hour, 1)
	if !math.IsNaN(got.Hunger) {
		t.Errorf("NaN field should be left for the caller to sanitize, got %v", got.Hunger)
	}
	if got.Energy >= s.Energy {
		t.Errorf("finite fields should still decay")
	}
}
