package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// CellPrecision is the grid used to coalesce nearby samples (1e-4 degrees, roughly 11 m).
const CellPrecision = 10000.0

// Coordinate is an immutable latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

func New(lat, lng float64) Coordinate { return Coordinate{Lat: lat, Lng: lng} }

func (c Coordinate) Point() orb.Point { return orb.Point{c.Lng, c.Lat} }

func FromPoint(p orb.Point) Coordinate { return Coordinate{Lat: p.Lat(), Lng: p.Lon()} }

// Distance returns the haversine distance in meters.
func (c Coordinate) Distance(o Coordinate) float64 {
	return orbgeo.DistanceHaversine(c.Point(), o.Point())
}

// Bearing returns the initial bearing towards o in degrees, [-180, 180].
func (c Coordinate) Bearing(o Coordinate) float64 {
	return orbgeo.Bearing(c.Point(), o.Point())
}

// Towards moves at most meters along the great circle to o. It never overshoots.
func (c Coordinate) Towards(o Coordinate, meters float64) Coordinate {
	if meters <= 0 {
		return c
	}
	if c.Distance(o) <= meters {
		return o
	}
	return FromPoint(orbgeo.PointAtBearingAndDistance(c.Point(), c.Bearing(o), meters))
}

// Offset moves the coordinate by a local east/north displacement in meters.
func (c Coordinate) Offset(east, north float64) Coordinate {
	d := math.Hypot(east, north)
	if d == 0 {
		return c
	}
	bearing := math.Atan2(east, north) * 180 / math.Pi
	return FromPoint(orbgeo.PointAtBearingAndDistance(c.Point(), bearing, d))
}

// Cell rounds both components to CellPrecision. Two coordinates with equal
// cells share a hazard-hit slot.
func (c Coordinate) Cell() Coordinate {
	return Coordinate{
		Lat: math.Round(c.Lat*CellPrecision) / CellPrecision,
		Lng: math.Round(c.Lng*CellPrecision) / CellPrecision,
	}
}

func (c Coordinate) IsZero() bool { return c.Lat == 0 && c.Lng == 0 }

func (c Coordinate) String() string { return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng) }
