package activity

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCurves(t *testing.T) {
	r := Ramp(10*time.Second, 0.5)
	if got := r(0); got != 0.5 {
		t.Errorf("ramp(0) = %v, want 0.5", got)
	}
	if got := r(5 * time.Second); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("ramp(5s) = %v, want 0.75", got)
	}
	if got := r(time.Minute); got != 1 {
		t.Errorf("ramp(1m) = %v, want 1", got)
	}

	p := PeakDecline(10*time.Second, 10*time.Second, 0.3)
	if got := p(10 * time.Second); got != 1 {
		t.Errorf("peak = %v, want 1", got)
	}
	if got := p(15 * time.Second); math.Abs(got-0.65) > 1e-9 {
		t.Errorf("mid decline = %v, want 0.65", got)
	}
	if got := p(time.Hour); got != 0.3 {
		t.Errorf("floor = %v, want 0.3", got)
	}
}

func TestCatalogComplete(t *testing.T) {
	c := DefaultCatalog()
	for i := 0; i < entities.NumActivities; i++ {
		d := c.Get(entities.Activity(i))
		if d.Activity != entities.Activity(i) {
			t.Errorf("entry %d tagged %v", i, d.Activity)
		}
		if d.MinDuration <= 0 || d.OptimalDuration < d.MinDuration {
			t.Errorf("%v: min %v optimal %v", d.Activity, d.MinDuration, d.OptimalDuration)
		}
		if d.Efficiency == nil {
			t.Errorf("%v: missing efficiency curve", d.Activity)
		}
	}
	if c.Get(entities.Activity(200)).Activity != entities.ActivityIdle {
		t.Error("invalid activity should fall back to IDLE")
	}
}

func TestAffordable(t *testing.T) {
	c := DefaultCatalog()
	shop := c.Get(entities.ActivityShopping)
	if shop.Affordable(0.5) {
		t.Error("shopping should not be affordable with 0.5 money")
	}
	if !shop.Affordable(100) {
		t.Error("shopping should be affordable with 100 money")
	}
	if !c.Get(entities.ActivityEating).Affordable(0) {
		t.Error("free activity must always be affordable")
	}
}

func TestSessionProgressZeroPlanned(t *testing.T) {
	s := NewSession(entities.ActivityIdle, t0, 0)
	if got := s.Progress(t0.Add(time.Second)); got != 1 {
		t.Errorf("progress with zero plan = %v, want 1", got)
	}
	if got := s.Elapsed(t0.Add(-time.Second)); got != 0 {
		t.Errorf("elapsed before start = %v, want 0", got)
	}
}

func TestPushHistoryBounded(t *testing.T) {
	var h []Record
	for i := 0; i < MaxHistory+5; i++ {
		h = PushHistory(h, Record{Interruptions: i})
	}
	if len(h) != MaxHistory {
		t.Fatalf("len = %d, want %d", len(h), MaxHistory)
	}
	if h[0].Interruptions != 5 {
		t.Errorf("oldest kept = %d, want 5", h[0].Interruptions)
	}
}

func TestApplyZeroElapsedIsNoop(t *testing.T) {
	e := NewEffects(DefaultCatalog())
	sess := NewSession(entities.ActivityEating, t0, 20*time.Second)
	s := entities.DefaultStats()
	res := e.Apply(sess, s, t0, 0, nil, 60)
	if res.Stats != s {
		t.Errorf("stats changed: %+v -> %+v", s, res.Stats)
	}
	if res.Session.ImmediateApplied {
		t.Error("immediate effects applied on zero elapsed")
	}
}

func TestApplyImmediateOnce(t *testing.T) {
	e := NewEffects(DefaultCatalog())
	sess := NewSession(entities.ActivitySocializing, t0, time.Minute)
	s := entities.DefaultStats()
	s.Loneliness = 10

	res := e.Apply(sess, s, t0.Add(time.Millisecond), time.Millisecond, nil, 1)
	first := res.Stats.Loneliness - 10
	if first < 3 {
		t.Fatalf("immediate loneliness gain = %v, want >= 3", first)
	}
	res2 := e.Apply(res.Session, res.Stats, t0.Add(2*time.Millisecond), time.Millisecond, nil, 1)
	if second := res2.Stats.Loneliness - res.Stats.Loneliness; second >= 1 {
		t.Errorf("second tick gain = %v, immediate applied twice", second)
	}
}

func TestApplyZoneBonus(t *testing.T) {
	e := NewEffects(DefaultCatalog())
	sess := NewSession(entities.ActivityResting, t0, time.Minute)
	sess.ImmediateApplied = true
	s := entities.DefaultStats()
	s.Energy = 10

	rest := &entities.Zone{ID: "bed", Type: entities.ZoneRest}
	play := &entities.Zone{ID: "park", Type: entities.ZonePlay}
	now := t0.Add(time.Second)

	in := e.Apply(sess, s, now, time.Second, rest, 60)
	out := e.Apply(sess, s, now, time.Second, play, 60)
	none := e.Apply(sess, s, now, time.Second, nil, 60)

	if !(in.Stats.Energy > out.Stats.Energy) {
		t.Errorf("in-zone energy %v not above out-of-zone %v", in.Stats.Energy, out.Stats.Energy)
	}
	if math.Abs(in.Efficiency-ZoneBonus) > 1e-9 || math.Abs(out.Efficiency-ZonePenalty) > 1e-9 {
		t.Errorf("efficiency in=%v out=%v", in.Efficiency, out.Efficiency)
	}
	if none.Stats.Energy != out.Stats.Energy {
		t.Error("no zone should be penalised like a wrong zone")
	}
	if in.Session.Effectiveness != 1 {
		t.Errorf("effectiveness = %v, want clamped to 1", in.Session.Effectiveness)
	}
}

func TestApplyCostDebitsMoney(t *testing.T) {
	e := NewEffects(DefaultCatalog())
	sess := NewSession(entities.ActivityShopping, t0, time.Minute)
	s := entities.DefaultStats()
	s.Money = 1

	res := e.Apply(sess, s, t0.Add(time.Minute), time.Minute, nil, 1)
	if res.Stats.Money != 0 {
		t.Errorf("money = %v, want clamped to 0", res.Stats.Money)
	}
}

func TestApplyBoundedProperty(t *testing.T) {
	e := NewEffects(DefaultCatalog())
	rng := rand.New(rand.NewSource(42))
	zones := []*entities.Zone{nil, {Type: entities.ZoneFood}, {Type: entities.ZoneRest}, {Type: entities.ZoneWork}}

	for i := 0; i < 2000; i++ {
		a := entities.Activity(rng.Intn(entities.NumActivities))
		sess := NewSession(a, t0, time.Duration(rng.Intn(600))*time.Second)
		s := entities.Stats{
			Hunger: rng.Float64() * 100, Sleepiness: rng.Float64() * 100,
			Loneliness: rng.Float64() * 100, Happiness: rng.Float64() * 100,
			Energy: rng.Float64() * 100, Boredom: rng.Float64() * 100,
			Money: rng.Float64() * 500, Health: rng.Float64() * 100,
		}
		elapsed := time.Duration(rng.Int63n(int64(10 * time.Minute)))
		res := e.Apply(sess, s, t0.Add(elapsed), elapsed, zones[rng.Intn(len(zones))], rng.Float64()*120)
		if !res.Stats.Valid() {
			t.Fatalf("iteration %d: out of bounds %+v", i, res.Stats)
		}
		if res.Session.Effectiveness < 0 || res.Session.Effectiveness > 1 ||
			res.Session.SatisfactionLevel < 0 || res.Session.SatisfactionLevel > 1 {
			t.Fatalf("iteration %d: session out of bounds %+v", i, res.Session)
		}
	}
}
