package wander

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/talgya/twinsim/internal/activity"
	"github.com/talgya/twinsim/internal/entities"
)

var t0 = time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

type fakeWorld struct {
	ents  map[entities.ID]entities.Entity
	zones []entities.Zone
	fail  error
}

func (w *fakeWorld) Entities() []entities.Entity {
	out := make([]entities.Entity, 0, len(w.ents))
	for _, id := range entities.IDs {
		if e, ok := w.ents[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (w *fakeWorld) Zones() []entities.Zone { return w.zones }

func (w *fakeWorld) SetPosition(id entities.ID, p entities.Position) error {
	if w.fail != nil {
		return w.fail
	}
	e := w.ents[id]
	e.Position = p
	w.ents[id] = e
	return nil
}

func house() []entities.Zone {
	return []entities.Zone{
		{ID: "kitchen", Type: entities.ZoneFood, Bounds: entities.Bounds{X: 0, Y: 0, Width: 100, Height: 100}},
		{ID: "pantry", Type: entities.ZoneFood, Bounds: entities.Bounds{X: 400, Y: 0, Width: 100, Height: 100}},
		{ID: "bedroom", Type: entities.ZoneRest, Bounds: entities.Bounds{X: 200, Y: 200, Width: 100, Height: 100}},
	}
}

func newWorld(sol, luna entities.Entity) *fakeWorld {
	return &fakeWorld{
		ents:  map[entities.ID]entities.Entity{entities.Sol: sol, entities.Luna: luna},
		zones: house(),
	}
}

func TestTargetNearestPreferredZone(t *testing.T) {
	w := New(DefaultConfig(), activity.DefaultCatalog(), 1)
	e := entities.New(entities.Sol, entities.Position{X: 380, Y: 60}, t0)
	e.Activity = entities.ActivityEating

	got, ok := w.Target(e, nil, house())
	if !ok {
		t.Fatal("eating should have a target")
	}
	if got != (entities.Position{X: 450, Y: 50}) {
		t.Errorf("target = %+v, want pantry centre", got)
	}

	e.Activity = entities.ActivityIdle
	if _, ok := w.Target(e, nil, house()); ok {
		t.Error("idle should have no target")
	}

	e.Activity = entities.ActivityWorking
	if _, ok := w.Target(e, nil, house()); ok {
		t.Error("no work zone exists, so working has no target")
	}
}

func TestTargetCompanionWhenSocializing(t *testing.T) {
	w := New(DefaultConfig(), activity.DefaultCatalog(), 1)
	e := entities.New(entities.Sol, entities.Position{X: 10, Y: 10}, t0)
	e.Activity = entities.ActivitySocializing
	c := entities.New(entities.Luna, entities.Position{X: 300, Y: 40}, t0)

	got, ok := w.Target(e, &c, house())
	if !ok || got != c.Position {
		t.Errorf("target = %+v %v, want companion", got, ok)
	}

	c.IsDead = true
	if got, ok := w.Target(e, &c, house()); ok && got == c.Position {
		t.Error("a dead companion is not a target")
	}
}

func TestStepMovesTowardTarget(t *testing.T) {
	cfg := DefaultConfig()
	w := New(cfg, activity.DefaultCatalog(), 1)
	sol := entities.New(entities.Sol, entities.Position{X: 250, Y: 50}, t0)
	sol.Activity = entities.ActivitySleeping
	luna := entities.New(entities.Luna, entities.Position{X: 50, Y: 50}, t0)
	world := newWorld(sol, luna)

	bed := entities.Position{X: 250, Y: 250}
	before := entities.Distance(sol.Position, bed)
	if err := w.Step(world, time.Second); err != nil {
		t.Fatal(err)
	}
	after := entities.Distance(world.ents[entities.Sol].Position, bed)

	if math.Abs((before-after)-cfg.Speed) > 1e-9 {
		t.Errorf("moved %v, want %v", before-after, cfg.Speed)
	}
}

func TestStepStopsAtPersonalSpace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Drift = 0
	w := New(cfg, activity.DefaultCatalog(), 1)
	sol := entities.New(entities.Sol, entities.Position{X: 100, Y: 150}, t0)
	sol.Activity = entities.ActivitySocializing
	luna := entities.New(entities.Luna, entities.Position{X: 160, Y: 150}, t0)
	luna.IsDead = true
	luna.State = entities.StateDead
	world := newWorld(sol, luna)

	// A dead companion is no target and stays where it fell.
	if err := w.Step(world, time.Second); err != nil {
		t.Fatal(err)
	}
	if world.ents[entities.Luna].Position != luna.Position {
		t.Error("dead entity moved")
	}
	if world.ents[entities.Sol].Position != sol.Position {
		t.Error("sol moved without a target")
	}

	luna.IsDead, luna.State = false, entities.StateIdle
	world.ents[entities.Luna] = luna
	for i := 0; i < 20; i++ {
		if err := w.Step(world, 100*time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	d := entities.Distance(world.ents[entities.Sol].Position, world.ents[entities.Luna].Position)
	if math.Abs(d-cfg.Personal) > 1e-9 {
		t.Errorf("distance = %v, want %v", d, cfg.Personal)
	}
}

func TestStepStaysInsideHouse(t *testing.T) {
	w := New(Config{Speed: 0, Drift: 500}, activity.DefaultCatalog(), 3)
	sol := entities.New(entities.Sol, entities.Position{X: 1, Y: 1}, t0)
	luna := entities.New(entities.Luna, entities.Position{X: 499, Y: 299}, t0)
	world := newWorld(sol, luna)

	for i := 0; i < 200; i++ {
		if err := w.Step(world, 100*time.Millisecond); err != nil {
			t.Fatal(err)
		}
		for _, e := range world.Entities() {
			p := e.Position
			if p.X < 0 || p.X > 500 || p.Y < 0 || p.Y > 300 {
				t.Fatalf("step %d: %s left the house at %+v", i, e.ID, p)
			}
		}
	}
}

func TestStepZeroDurationNoop(t *testing.T) {
	w := New(DefaultConfig(), activity.DefaultCatalog(), 1)
	sol := entities.New(entities.Sol, entities.Position{X: 10, Y: 10}, t0)
	sol.Activity = entities.ActivitySleeping
	world := newWorld(sol, entities.New(entities.Luna, entities.Position{X: 20, Y: 20}, t0))

	if err := w.Step(world, 0); err != nil {
		t.Fatal(err)
	}
	if world.ents[entities.Sol].Position != sol.Position {
		t.Error("zero dt moved an entity")
	}
}

func TestStepSkipsInvalidPositions(t *testing.T) {
	w := New(DefaultConfig(), activity.DefaultCatalog(), 1)
	sol := entities.New(entities.Sol, entities.Position{X: math.NaN(), Y: 0}, t0)
	world := newWorld(sol, entities.New(entities.Luna, entities.Position{X: 20, Y: 20}, t0))

	if err := w.Step(world, time.Second); err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(world.ents[entities.Sol].Position.X) {
		t.Error("invalid position should be left for the owner to fix")
	}
}

func TestStepPropagatesWriteError(t *testing.T) {
	w := New(DefaultConfig(), activity.DefaultCatalog(), 1)
	world := newWorld(
		entities.New(entities.Sol, entities.Position{X: 10, Y: 10}, t0),
		entities.New(entities.Luna, entities.Position{X: 20, Y: 20}, t0),
	)
	world.fail = errors.New("read only")
	if err := w.Step(world, time.Second); !errors.Is(err, world.fail) {
		t.Errorf("err = %v, want write error", err)
	}
}
