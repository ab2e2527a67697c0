package world

import (
	"fmt"

	"swarmsim.ai/internal/sim/model"
)

// collection keeps entities in insertion order. Ids are unique within it.
type collection[T model.Entity] struct {
	kind  model.Kind
	items []T
}

func (c *collection[T]) add(x T) error {
	_, ok, err := c.get(x.ID())
	if err != nil {
		return err
	}
	if ok {
		return &model.DuplicateIDError{Kind: c.kind, ID: x.ID()}
	}
	c.items = append(c.items, x)
	return nil
}

// get returns the single entity with id. More than one match means the
// collection was corrupted and is reported as such.
func (c *collection[T]) get(id string) (T, bool, error) {
	var (
		found T
		n     int
	)
	for _, x := range c.items {
		if x.ID() == id {
			found = x
			n++
		}
	}
	switch n {
	case 0:
		var zero T
		return zero, false, nil
	case 1:
		return found, true, nil
	default:
		var zero T
		return zero, false, &model.CorruptStateError{Kind: c.kind, ID: id, Count: n}
	}
}

func (c *collection[T]) remove(id string) bool {
	for i, x := range c.items {
		if x.ID() == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *collection[T]) len() int { return len(c.items) }

func (c *collection[T]) clear() { c.items = nil }

// Add stores e in the collection for its kind.
func (s *State) Add(e model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(e)
}

func (s *State) addLocked(e model.Entity) error {
	switch v := e.(type) {
	case *model.Agent:
		return s.agents.add(v)
	case *model.Task:
		return s.tasks.add(v)
	case *model.Hazard:
		return s.hazards.add(v)
	case *model.Target:
		return s.targets.add(v)
	default:
		return fmt.Errorf("add %T: unsupported entity", e)
	}
}

// Remove deletes the entity with e's id from its collection and reports whether
// anything was removed.
func (s *State) Remove(e model.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(e.Kind(), e.ID())
}

func (s *State) RemoveByID(kind model.Kind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(kind, id)
}

func (s *State) removeLocked(kind model.Kind, id string) bool {
	switch kind {
	case model.KindAgent:
		return s.agents.remove(id)
	case model.KindTask:
		return s.tasks.remove(id)
	case model.KindHazard:
		return s.hazards.remove(id)
	case model.KindTarget:
		return s.targets.remove(id)
	default:
		return false
	}
}

// GetByID returns the unique entity of kind with id. A missing id is not an
// error; duplicate matches fail with a CorruptStateError.
func (s *State) GetByID(kind model.Kind, id string) (model.Entity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(kind, id)
}

func (s *State) getLocked(kind model.Kind, id string) (model.Entity, bool, error) {
	switch kind {
	case model.KindAgent:
		a, ok, err := s.agents.get(id)
		return entityOrNil(a, ok, err)
	case model.KindTask:
		t, ok, err := s.tasks.get(id)
		return entityOrNil(t, ok, err)
	case model.KindHazard:
		h, ok, err := s.hazards.get(id)
		return entityOrNil(h, ok, err)
	case model.KindTarget:
		t, ok, err := s.targets.get(id)
		return entityOrNil(t, ok, err)
	default:
		return nil, false, fmt.Errorf("get %s %q: unsupported kind", kind, id)
	}
}

func entityOrNil[T model.Entity](v T, ok bool, err error) (model.Entity, bool, error) {
	if !ok || err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// agentLocked resolves an agent or fails with NotFoundError.
func (s *State) agentLocked(id string) (*model.Agent, error) {
	a, ok, err := s.agents.get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.NotFoundError{Kind: model.KindAgent, ID: id}
	}
	return a, nil
}

func (s *State) taskLocked(id string) (*model.Task, error) {
	t, ok, err := s.tasks.get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.NotFoundError{Kind: model.KindTask, ID: id}
	}
	return t, nil
}

var idPrefix = map[model.Kind]string{
	model.KindAgent:  "UAV",
	model.KindTask:   "TASK",
	model.KindHazard: "HAZ",
	model.KindTarget: "TGT",
}

// NextID allocates the next unused id for kind, e.g. "UAV-3". Counters restart on reset.
func (s *State) NextID(kind model.Kind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked(kind)
}

func (s *State) nextIDLocked(kind model.Kind) string {
	for {
		s.counters[kind]++
		id := fmt.Sprintf("%s-%d", idPrefix[kind], s.counters[kind])
		if _, ok, _ := s.getLocked(kind, id); !ok {
			return id
		}
	}
}
