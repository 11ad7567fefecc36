// Package wander moves the two entities around the world between ticks.
// It plays the part of the outside world: the simulation only reads
// positions, so something has to walk the entities to the zones their
// activities want and back to each other when they socialize.
package wander

import (
	"math"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/twinsim/internal/activity"
	"github.com/talgya/twinsim/internal/entities"
)

// World is the position store the walker reads and writes.
type World interface {
	Entities() []entities.Entity
	Zones() []entities.Zone
	SetPosition(id entities.ID, p entities.Position) error
}

// Config tunes movement. Speeds are world units per wall second.
type Config struct {
	Speed float64 `yaml:"speed"`
	// Drift is the amplitude of idle noise wandering.
	Drift float64 `yaml:"drift"`
	// Arrive is how close counts as "there".
	Arrive float64 `yaml:"arrive"`
	// Personal keeps socializing entities this far apart.
	Personal float64 `yaml:"personal"`
}

// DefaultConfig returns the movement defaults.
func DefaultConfig() Config {
	return Config{Speed: 40, Drift: 12, Arrive: 4, Personal: 18}
}

// Walker steers each living entity toward the zone its activity prefers.
type Walker struct {
	cfg     Config
	catalog *activity.Catalog
	noise   opensimplex.Noise
	t       float64
}

// New returns a walker whose idle drift is seeded by seed.
func New(cfg Config, catalog *activity.Catalog, seed int64) *Walker {
	return &Walker{cfg: cfg, catalog: catalog, noise: opensimplex.New(seed)}
}

// Target picks where e wants to be. ok is false when e has no goal and
// just drifts.
func (w *Walker) Target(e entities.Entity, companion *entities.Entity, zones []entities.Zone) (entities.Position, bool) {
	if e.Activity == entities.ActivitySocializing && companion != nil && companion.Alive() && companion.Position.Valid() {
		return companion.Position, true
	}
	want := w.catalog.Get(e.Activity).Zone
	if want == entities.ZoneNone {
		return entities.Position{}, false
	}

	best, bestDist := entities.Position{}, math.Inf(1)
	for _, z := range zones {
		if z.Type != want {
			continue
		}
		c := z.Bounds.Center()
		if d := entities.Distance(e.Position, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// Step moves every living entity by dt of wall time. Dead entities stay
// where they fell.
func (w *Walker) Step(world World, dt time.Duration) error {
	if dt <= 0 {
		return nil
	}
	secs := dt.Seconds()
	w.t += secs

	ents := world.Entities()
	zones := world.Zones()
	byID := make(map[entities.ID]*entities.Entity, len(ents))
	for i := range ents {
		byID[ents[i].ID] = &ents[i]
	}
	lo, hi := extent(zones)

	for _, e := range ents {
		if !e.Alive() || !e.Position.Valid() {
			continue
		}
		next := w.move(e, byID[e.ID.Companion()], zones, secs)
		next.X = entities.Clamp(next.X, lo.X, hi.X)
		next.Y = entities.Clamp(next.Y, lo.Y, hi.Y)
		if err := world.SetPosition(e.ID, next); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) move(e entities.Entity, companion *entities.Entity, zones []entities.Zone, secs float64) entities.Position {
	p := e.Position
	target, ok := w.Target(e, companion, zones)
	if ok {
		stop := w.cfg.Arrive
		if e.Activity == entities.ActivitySocializing && companion != nil {
			stop = w.cfg.Personal
		}
		dx, dy := target.X-p.X, target.Y-p.Y
		dist := math.Hypot(dx, dy)
		if dist > stop {
			step := math.Min(w.cfg.Speed*secs, dist-stop)
			return entities.Position{X: p.X + dx/dist*step, Y: p.Y + dy/dist*step}
		}
	}

	// Arrived or aimless: drift on a noise field so the two never move in
	// lockstep.
	seed := 0.0
	if e.ID == entities.Luna {
		seed = 100
	}
	dx := octaveNoise(w.noise, seed+w.t*0.3, p.Y*0.01, 3, 1, 0.5)
	dy := octaveNoise(w.noise, p.X*0.01, seed+w.t*0.3, 3, 1, 0.5)
	return entities.Position{X: p.X + dx*w.cfg.Drift*secs, Y: p.Y + dy*w.cfg.Drift*secs}
}

// extent returns the bounding box of all zones. Without zones movement is
// unbounded.
func extent(zones []entities.Zone) (lo, hi entities.Position) {
	if len(zones) == 0 {
		inf := math.MaxFloat64
		return entities.Position{X: -inf, Y: -inf}, entities.Position{X: inf, Y: inf}
	}
	lo = entities.Position{X: math.Inf(1), Y: math.Inf(1)}
	hi = entities.Position{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, z := range zones {
		lo.X = math.Min(lo.X, z.Bounds.X)
		lo.Y = math.Min(lo.Y, z.Bounds.Y)
		hi.X = math.Max(hi.X, z.Bounds.X+z.Bounds.Width)
		hi.Y = math.Max(hi.Y, z.Bounds.Y+z.Bounds.Height)
	}
	return lo, hi
}

// octaveNoise layers frequencies of noise into a value in [-1, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
