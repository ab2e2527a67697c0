package model

import "swarmsim.ai/internal/sim/geo"

type TargetType int

const (
	TargetHuman TargetType = iota
	TargetAdjustable
)

type Target struct {
	id string

	Type       TargetType
	Coordinate geo.Coordinate
	Visible    bool

	// Classification is operator metadata; the core only reads Visible.
	Classification string
	LowResImage    string
	HighResImage   string
}

// NewTarget returns a hidden target. Targets are revealed by agent sensors.
func NewTarget(id string, typ TargetType, c geo.Coordinate) *Target {
	return &Target{id: id, Type: typ, Coordinate: c}
}

func (t *Target) ID() string { return t.id }
func (t *Target) Kind() Kind { return KindTarget }

// Reveal makes the target visible and reports whether it was hidden before.
func (t *Target) Reveal() bool {
	if t.Visible {
		return false
	}
	t.Visible = true
	return true
}
