package entities

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// StatMax is the ceiling of every bounded need.
const StatMax = 100.0

// CriticalThreshold is the level below which a core need counts as critical.
const CriticalThreshold = 15.0

// Stats holds the eight needs of an entity. Higher is better for every
// field: Hunger 100 means fully fed, Sleepiness 100 means fully rested.
// Money is unbounded above; all other fields live in [0, 100].
type Stats struct {
	Hunger     float64 `json:"hunger" yaml:"hunger"`
	Sleepiness float64 `json:"sleepiness" yaml:"sleepiness"`
	Loneliness float64 `json:"loneliness" yaml:"loneliness"`
	Happiness  float64 `json:"happiness" yaml:"happiness"`
	Energy     float64 `json:"energy" yaml:"energy"`
	Boredom    float64 `json:"boredom" yaml:"boredom"`
	Money      float64 `json:"money" yaml:"money"`
	Health     float64 `json:"health" yaml:"health"`
}

// StatKind indexes a single field of Stats.
type StatKind uint8

const (
	StatHunger StatKind = iota
	StatSleepiness
	StatLoneliness
	StatHappiness
	StatEnergy
	StatBoredom
	StatMoney
	StatHealth
)

// NumStats is the number of StatKind values.
const NumStats = 8

var statNames = [NumStats]string{
	"hunger", "sleepiness", "loneliness", "happiness", "energy", "boredom", "money", "health",
}

func (k StatKind) String() string {
	if int(k) < NumStats {
		return statNames[k]
	}
	return "unknown"
}

// ParseStatKind parses a lower-case stat name.
func ParseStatKind(s string) (StatKind, error) {
	for i, n := range statNames {
		if n == s {
			return StatKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStat, s)
}

// DefaultStats is the spawn state of a new entity.
func DefaultStats() Stats {
	return Stats{
		Hunger:     80,
		Sleepiness: 80,
		Loneliness: 70,
		Happiness:  70,
		Energy:     80,
		Boredom:    70,
		Money:      50,
		Health:     100,
	}
}

// Get returns the value of one field.
func (s *Stats) Get(k StatKind) float64 {
	return *s.ptr(k)
}

// Set assigns one field.
func (s *Stats) Set(k StatKind, v float64) {
	*s.ptr(k) = v
}

func (s *Stats) ptr(k StatKind) *float64 {
	switch k {
	case StatHunger:
		return &s.Hunger
	case StatSleepiness:
		return &s.Sleepiness
	case StatLoneliness:
		return &s.Loneliness
	case StatHappiness:
		return &s.Happiness
	case StatEnergy:
		return &s.Energy
	case StatBoredom:
		return &s.Boredom
	case StatMoney:
		return &s.Money
	default:
		return &s.Health
	}
}

// Clamp bounds every finite field: money to >= 0, everything else to
// [0, 100]. Non-finite fields are left untouched; see Sanitize.
func (s Stats) Clamp() Stats {
	for k := StatKind(0); k < NumStats; k++ {
		v := s.Get(k)
		if !Finite(v) {
			continue
		}
		if k == StatMoney {
			s.Set(k, math.Max(0, v))
			continue
		}
		s.Set(k, Clamp(v, 0, StatMax))
	}
	return s
}

// Sanitize replaces every non-finite field with the matching field of
// fallback, or of DefaultStats when fallback is non-finite too, then clamps.
func (s Stats) Sanitize(fallback Stats) Stats {
	def := DefaultStats()
	for k := StatKind(0); k < NumStats; k++ {
		if Finite(s.Get(k)) {
			continue
		}
		if v := fallback.Get(k); Finite(v) {
			s.Set(k, v)
		} else {
			s.Set(k, def.Get(k))
		}
	}
	return s.Clamp()
}

// Valid reports whether every field is finite and within its bounds.
func (s Stats) Valid() bool {
	for k := StatKind(0); k < NumStats; k++ {
		v := s.Get(k)
		if !Finite(v) || v < 0 {
			return false
		}
		if k != StatMoney && v > StatMax {
			return false
		}
	}
	return true
}

// AddScaled returns s + d*scale. A field of s that is non-finite stays as
// it is; a non-finite delta is ignored.
func (s Stats) AddScaled(d Stats, scale float64) Stats {
	if !Finite(scale) {
		return s
	}
	for k := StatKind(0); k < NumStats; k++ {
		v, dv := s.Get(k), d.Get(k)
		if !Finite(v) || !Finite(dv) || dv == 0 {
			continue
		}
		s.Set(k, v+dv*scale)
	}
	return s
}

// Sub returns the field-wise difference s - o.
func (s Stats) Sub(o Stats) Stats {
	for k := StatKind(0); k < NumStats; k++ {
		s.Set(k, s.Get(k)-o.Get(k))
	}
	return s
}

// IsZero reports whether every field is exactly zero.
func (s Stats) IsZero() bool {
	return s == Stats{}
}

// CriticalCount counts the core needs (hunger, sleepiness, loneliness,
// energy) below CriticalThreshold.
func (s Stats) CriticalCount() int {
	n := 0
	for _, v := range [4]float64{s.Hunger, s.Sleepiness, s.Loneliness, s.Energy} {
		if Finite(v) && v < CriticalThreshold {
			n++
		}
	}
	return n
}

// IsCritical reports whether any core need is critical.
func (s Stats) IsCritical() bool {
	return s.CriticalCount() > 0
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to [0, 1].
func Clamp01[T constraints.Float](v T) T {
	return Clamp(v, 0, 1)
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
