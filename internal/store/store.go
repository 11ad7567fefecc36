// Package store is the in-memory entity table the simulation reads from
// and its flushed update batches are applied to.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/talgya/twinsim/internal/engine"
	"github.com/talgya/twinsim/internal/entities"
)

// ErrUnknownEntity is returned for updates addressed to an entity the
// store does not hold.
var ErrUnknownEntity = errors.New("unknown entity")

// Store holds entities, zones and the resonance value. Safe for
// concurrent use.
type Store struct {
	mu        sync.RWMutex
	ents      map[entities.ID]entities.Entity
	zones     []entities.Zone
	resonance float64
	lastSeq   uint64
	applied   uint64
}

// New returns a store with the given zones and starting resonance.
func New(zones []entities.Zone, resonance float64) *Store {
	return &Store{
		ents:      make(map[entities.ID]entities.Entity),
		zones:     append([]entities.Zone(nil), zones...),
		resonance: resonance,
	}
}

// Put inserts or replaces an entity.
func (s *Store) Put(e entities.Entity) error {
	if !e.ID.Valid() {
		return fmt.Errorf("put %q: %w", e.ID, entities.ErrInvalidEntity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ents[e.ID] = e
	return nil
}

// Entities returns a copy of every entity ordered by id.
func (s *Store) Entities() []entities.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.Entity, 0, len(s.ents))
	for _, e := range s.ents {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entity returns one entity.
func (s *Store) Entity(id entities.ID) (entities.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ents[id]
	return e, ok
}

// Zones returns a copy of the zones.
func (s *Store) Zones() []entities.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.Zone(nil), s.zones...)
}

// Resonance returns the last applied resonance value.
func (s *Store) Resonance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resonance
}

// Applied returns the last batch sequence and the number of updates applied.
func (s *Store) Applied() (seq, updates uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq, s.applied
}

// SetPosition moves an entity. Positions are the one field the outside
// world owns; the simulation picks them up on its next tick.
func (s *Store) SetPosition(id entities.ID, p entities.Position) error {
	if !p.Valid() {
		return fmt.Errorf("position %+v: not finite", p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ents[id]
	if !ok {
		return fmt.Errorf("move %q: %w", id, ErrUnknownEntity)
	}
	e.Position = p
	s.ents[id] = e
	return nil
}

// Apply applies a flushed batch in order. Updates for unknown entities are
// skipped and reported together.
func (s *Store) Apply(_ context.Context, b engine.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, u := range b.Updates {
		if err := s.apply(u); err != nil {
			errs = append(errs, err)
			continue
		}
		s.applied++
	}
	s.lastSeq = b.Seq
	return errors.Join(errs...)
}

func (s *Store) apply(u engine.Update) error {
	if u.Kind == engine.KindResonance {
		if u.Resonance != nil && entities.Finite(*u.Resonance) {
			s.resonance = entities.Clamp(*u.Resonance, 0, 100)
		}
		return nil
	}

	e, ok := s.ents[u.Entity]
	if !ok {
		return fmt.Errorf("%s update for %q: %w", u.Kind, u.Entity, ErrUnknownEntity)
	}
	if e.IsDead {
		// Nothing changes a dead entity.
		return nil
	}

	switch u.Kind {
	case engine.KindStats:
		if u.Stats != nil {
			e.Stats = u.Stats.Sanitize(e.Stats)
		}
	case engine.KindMood:
		if u.Mood != nil && u.Mood.Valid() {
			e.Mood = *u.Mood
		}
	case engine.KindActivity:
		if u.Activity != nil && u.Activity.Valid() {
			e.Activity = *u.Activity
			e.LastActivityChange = u.At
		}
	case engine.KindState:
		if u.State != nil && u.State.Valid() {
			e.State = *u.State
			e.LastStateChange = u.At
		}
	case engine.KindKill:
		e.IsDead = true
		e.State = entities.StateDead
		e.LastStateChange = u.At
	default:
		return fmt.Errorf("update kind %v: %w", u.Kind, engine.ErrInvalidKind)
	}
	s.ents[u.Entity] = e
	return nil
}
