package entities

import "fmt"

// ZoneType is the kind of need a zone serves. ZoneNone marks activities
// without a preferred zone.
type ZoneType uint8

const (
	ZoneNone ZoneType = iota
	ZoneFood
	ZoneRest
	ZonePlay
	ZoneSocial
	ZoneComfort
	ZoneEnergy
	ZoneWork
)

var zoneNames = [...]string{"none", "food", "rest", "play", "social", "comfort", "energy", "work"}

func (z ZoneType) String() string {
	if int(z) < len(zoneNames) {
		return zoneNames[z]
	}
	return fmt.Sprintf("ZoneType(%d)", uint8(z))
}

// ParseZoneType converts a lower-case zone type name.
func ParseZoneType(s string) (ZoneType, error) {
	for i, n := range zoneNames {
		if n == s && i != int(ZoneNone) {
			return ZoneType(i), nil
		}
	}
	return ZoneNone, fmt.Errorf("%w: %q", ErrInvalidZoneType, s)
}

func (z ZoneType) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

func (z *ZoneType) UnmarshalText(b []byte) error {
	v, err := ParseZoneType(string(b))
	if err != nil {
		return err
	}
	*z = v
	return nil
}

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Contains reports whether p lies inside b (edges inclusive).
func (b Bounds) Contains(p Position) bool {
	if !p.Valid() {
		return false
	}
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}

// Center returns the midpoint of b.
func (b Bounds) Center() Position {
	return Position{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Zone is a read-only region supplied by the world collaborator.
type Zone struct {
	ID     string   `json:"id" yaml:"id"`
	Bounds Bounds   `json:"bounds" yaml:"bounds"`
	Type   ZoneType `json:"type" yaml:"type"`
}

// ZoneAt returns the first zone containing p, or nil.
func ZoneAt(zones []Zone, p Position) *Zone {
	for i := range zones {
		if zones[i].Bounds.Contains(p) {
			return &zones[i]
		}
	}
	return nil
}
