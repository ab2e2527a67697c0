// Package hazard holds the decaying heat map built from agent sensor samples.
package hazard

import (
	"fmt"
	"sort"
	"sync"

	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
)

// DefaultDecayRates are used when a collection is built without explicit rates.
// Exploration trail hits fade slowly; real hazards are permanent.
var DefaultDecayRates = map[model.HazardType]float64{
	model.HazardNone:   0.001,
	model.HazardFire:   0,
	model.HazardDebris: 0,
}

// Weights at or below this are spent; repeated subtraction leaves rounding
// residue where 1/rate is a whole number.
const weightEpsilon = 1e-9

type Hit struct {
	Coordinate geo.Coordinate `json:"location"`
	Weight     float64        `json:"weight"`
	DecayRate  float64        `json:"-"`
}

// Collection maps hazard type -> rounded cell -> hit. At most one live hit
// exists per cell and type; a repeated add refreshes it.
type Collection struct {
	mu    sync.RWMutex
	rates map[model.HazardType]float64
	hits  map[model.HazardType]map[geo.Coordinate]*Hit
}

func NewCollection(rates map[model.HazardType]float64) *Collection {
	if len(rates) == 0 {
		rates = DefaultDecayRates
	}
	c := &Collection{
		rates: make(map[model.HazardType]float64, len(rates)),
		hits:  make(map[model.HazardType]map[geo.Coordinate]*Hit, len(rates)),
	}
	for typ, r := range rates {
		c.rates[typ] = r
		c.hits[typ] = map[geo.Coordinate]*Hit{}
	}
	return c
}

// Add inserts or refreshes the hit in c's cell. Unregistered types are a caller error.
func (c *Collection) Add(typ model.HazardType, at geo.Coordinate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cells, ok := c.hits[typ]
	if !ok {
		return fmt.Errorf("hazard hit: unregistered type %d", int(typ))
	}
	cells[at.Cell()] = &Hit{Coordinate: at, Weight: 1.0, DecayRate: c.rates[typ]}
	return nil
}

// DecayAll subtracts each hit's decay rate and drops hits whose weight went negative.
func (c *Collection) DecayAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cells := range c.hits {
		for k, h := range cells {
			if h.DecayRate == 0 {
				continue
			}
			h.Weight -= h.DecayRate
			if h.Weight < weightEpsilon {
				delete(cells, k)
			}
		}
	}
}

func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for typ := range c.hits {
		c.hits[typ] = map[geo.Coordinate]*Hit{}
	}
}

// SetDecayRate changes the rate applied to hits added from now on.
func (c *Collection) SetDecayRate(typ model.HazardType, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[typ] = rate
	if _, ok := c.hits[typ]; !ok {
		c.hits[typ] = map[geo.Coordinate]*Hit{}
	}
}

// Get returns the hit stored in the cell containing at.
func (c *Collection) Get(typ model.HazardType, at geo.Coordinate) (Hit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.hits[typ][at.Cell()]
	if !ok {
		return Hit{}, false
	}
	return *h, true
}

func (c *Collection) Len(typ model.HazardType) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hits[typ])
}

// Snapshot copies every live hit, grouped by type and ordered by cell.
func (c *Collection) Snapshot() map[model.HazardType][]Hit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[model.HazardType][]Hit, len(c.hits))
	for typ, cells := range c.hits {
		keys := make([]geo.Coordinate, 0, len(cells))
		for k := range cells {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Lat != keys[j].Lat {
				return keys[i].Lat < keys[j].Lat
			}
			return keys[i].Lng < keys[j].Lng
		})
		list := make([]Hit, 0, len(keys))
		for _, k := range keys {
			list = append(list, *cells[k])
		}
		out[typ] = list
	}
	return out
}
