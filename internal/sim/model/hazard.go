package model

import (
	"fmt"

	"swarmsim.ai/internal/sim/geo"
)

// HazardType values double as keys of the hazard heat structure.
type HazardType int

const (
	// HazardNone marks exploration trail hits rather than a real hazard.
	HazardNone   HazardType = -1
	HazardFire   HazardType = 0
	HazardDebris HazardType = 1
)

func (h HazardType) String() string {
	switch h {
	case HazardNone:
		return "none"
	case HazardFire:
		return "fire"
	case HazardDebris:
		return "debris"
	default:
		return fmt.Sprintf("hazard_type(%d)", int(h))
	}
}

func (h HazardType) Valid() bool { return h >= HazardNone && h <= HazardDebris }

type Hazard struct {
	id string

	Type       HazardType
	Coordinate geo.Coordinate
	// Size is the affected radius in meters.
	Size float64
}

func NewHazard(id string, typ HazardType, c geo.Coordinate, size float64) *Hazard {
	return &Hazard{id: id, Type: typ, Coordinate: c, Size: size}
}

func (h *Hazard) ID() string { return h.id }
func (h *Hazard) Kind() Kind { return KindHazard }

// Contains reports whether c lies within the hazard radius.
func (h *Hazard) Contains(c geo.Coordinate) bool {
	return h.Coordinate.Distance(c) <= h.Size
}
