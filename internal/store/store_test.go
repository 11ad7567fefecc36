package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/talgya/twinsim/internal/engine"
	"github.com/talgya/twinsim/internal/entities"
)

var t0 = time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New([]entities.Zone{{ID: "den", Type: entities.ZoneRest, Bounds: entities.Bounds{Width: 10, Height: 10}}}, 50)
	for _, id := range entities.IDs {
		if err := s.Put(entities.New(id, entities.Position{}, t0)); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestApplyBatch(t *testing.T) {
	s := newStore(t)
	st := entities.DefaultStats()
	st.Hunger = 12

	at := t0.Add(time.Second)
	b := engine.Batch{Seq: 3, Updates: []engine.Update{
		engine.StatsUpdate(entities.Sol, st, entities.Stats{Hunger: -68}),
		engine.MoodUpdate(entities.Sol, entities.MoodAnxious),
		engine.ActivityUpdate(entities.Sol, entities.ActivityEating),
		engine.StateUpdate(entities.Sol, entities.StateEating),
		engine.ResonanceUpdate(61.5),
	}}
	for i := range b.Updates {
		b.Updates[i].At = at
	}
	if err := s.Apply(context.Background(), b); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	e, _ := s.Entity(entities.Sol)
	if e.Stats.Hunger != 12 || e.Mood != entities.MoodAnxious || e.Activity != entities.ActivityEating {
		t.Errorf("entity = %+v", e)
	}
	if e.State != entities.StateEating || !e.LastStateChange.Equal(at) || !e.LastActivityChange.Equal(at) {
		t.Errorf("state bookkeeping = %v %v %v", e.State, e.LastStateChange, e.LastActivityChange)
	}
	if s.Resonance() != 61.5 {
		t.Errorf("resonance = %v", s.Resonance())
	}
	if seq, n := s.Applied(); seq != 3 || n != 5 {
		t.Errorf("applied = %d/%d", seq, n)
	}
}

func TestKillIsFinal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.Apply(ctx, engine.Batch{Updates: []engine.Update{engine.KillUpdate(entities.Luna)}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(ctx, engine.Batch{Updates: []engine.Update{engine.MoodUpdate(entities.Luna, entities.MoodHappy)}}); err != nil {
		t.Fatal(err)
	}
	e, _ := s.Entity(entities.Luna)
	if !e.IsDead || e.State != entities.StateDead || e.Mood == entities.MoodHappy {
		t.Errorf("dead entity = %+v", e)
	}
}

func TestUnknownEntity(t *testing.T) {
	s := newStore(t)
	err := s.Apply(context.Background(), engine.Batch{Updates: []engine.Update{
		engine.MoodUpdate("nova", entities.MoodSad),
		engine.MoodUpdate(entities.Sol, entities.MoodSad),
	}})
	if !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("err = %v, want ErrUnknownEntity", err)
	}
	if e, _ := s.Entity(entities.Sol); e.Mood != entities.MoodSad {
		t.Error("valid update after a bad one was dropped")
	}
}

func TestStatsSanitized(t *testing.T) {
	s := newStore(t)
	bad := entities.DefaultStats()
	bad.Energy = math.NaN()
	bad.Hunger = 500
	if err := s.Apply(context.Background(), engine.Batch{Updates: []engine.Update{
		engine.StatsUpdate(entities.Sol, bad, entities.Stats{}),
	}}); err != nil {
		t.Fatal(err)
	}
	e, _ := s.Entity(entities.Sol)
	if e.Stats.Energy != entities.DefaultStats().Energy || e.Stats.Hunger != 100 {
		t.Errorf("stats = %+v", e.Stats)
	}
}

func TestSetPosition(t *testing.T) {
	s := newStore(t)
	if err := s.SetPosition(entities.Sol, entities.Position{X: 4, Y: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPosition(entities.Sol, entities.Position{X: math.Inf(1)}); err == nil {
		t.Error("infinite position accepted")
	}
	if err := s.SetPosition("nova", entities.Position{}); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("err = %v", err)
	}
	if e, _ := s.Entity(entities.Sol); e.Position.X != 4 {
		t.Errorf("position = %+v", e.Position)
	}
	if err := s.Put(entities.Entity{ID: "nova"}); !errors.Is(err, entities.ErrInvalidEntity) {
		t.Errorf("put invalid: %v", err)
	}
}
