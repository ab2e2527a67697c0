package world

import (
	"fmt"
	"math/rand"
	"sort"

	"swarmsim.ai/internal/sim/alloc"
	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
)

// Allocator owns the agent to task assignment held in State. All of its work
// happens under the state lock, so reassignments never overlap.
type Allocator struct {
	s        *State
	rng      *rand.Rand
	approach float64
	metrics  Metrics
}

func NewAllocator(s *State, rng *rand.Rand, approachRadius float64, m Metrics) *Allocator {
	if m == nil {
		m = noopMetrics{}
	}
	return &Allocator{s: s, rng: rng, approach: approachRadius, metrics: m}
}

func (a *Allocator) routeEnvLocked() model.RouteEnv {
	return model.RouteEnv{Hub: a.s.hub, ApproachRadius: a.approach}
}

// authoritativeLocked is the map that dispatch writes to in the current mode.
func (a *Allocator) authoritativeLocked() alloc.Assignment {
	if a.s.editMode == ModeEdit {
		return a.s.tempAllocation
	}
	return a.s.allocation
}

func (a *Allocator) assignableLocked(ag *model.Agent) bool {
	return !ag.Hub && !ag.TimedOut
}

// DynamicReassign solves only for agents without work and tasks with free
// slots; existing assignments are left alone. It returns how many agents got work.
func (a *Allocator) DynamicReassign() int {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.dynamicReassignLocked()
}

func (a *Allocator) dynamicReassignLocked() int {
	s := a.s
	edit := s.editMode == ModeEdit
	target := a.authoritativeLocked()

	var agents []alloc.Agent
	for _, ag := range s.agents.items {
		if !a.assignableLocked(ag) {
			continue
		}
		if _, busy := target[ag.ID()]; busy {
			continue
		}
		if !edit && ag.Working {
			continue
		}
		agents = append(agents, alloc.Agent{ID: ag.ID(), Coordinate: ag.Coordinate})
	}
	tasks := a.openTasksLocked(target)

	n := 0
	if len(agents) > 0 && len(tasks) > 0 {
		res := alloc.Solve(agents, tasks, alloc.Options{
			Method:          s.allocationMethod,
			Rand:            a.rng,
			IgnoredTaskProb: s.ignoredTaskProb,
		})
		if edit {
			m := s.tempAllocation.Clone()
			for agentID, taskID := range res {
				m[agentID] = taskID
			}
			// System proposals are not operator edits and stay out of undo history.
			if err := a.validateLocked(m); err == nil {
				s.tempAllocation = m
				a.refreshTempRoutesLocked()
				n = len(res)
			}
		} else {
			for _, agentID := range sortedKeys(res) {
				if err := a.assignLocked(agentID, res[agentID]); err == nil {
					n++
				}
			}
		}
	}
	a.absorbDroppedLocked()
	if n > 0 {
		s.recordLocked(EventReassign, Event{Data: map[string]any{"assigned": n, "edit": edit}})
	}
	a.metrics.Reassigned(n)
	return n
}

// openTasksLocked lists incomplete tasks with free slots relative to m.
func (a *Allocator) openTasksLocked(m alloc.Assignment) []alloc.Task {
	counts := m.Counts()
	var out []alloc.Task
	for _, t := range a.s.tasks.items {
		if t.IsComplete() {
			continue
		}
		slots := t.EffectiveCapacity() - counts[t.ID()]
		if slots <= 0 {
			continue
		}
		out = append(out, alloc.Task{ID: t.ID(), Coordinate: t.Coordinate, Slots: slots})
	}
	return out
}

// absorbDroppedLocked forgets dropped assignments whose task is gone or has
// been picked up again.
func (a *Allocator) absorbDroppedLocked() {
	s := a.s
	counts := a.authoritativeLocked().Counts()
	for agentID, taskID := range s.droppedAllocation {
		t, ok, _ := s.tasks.get(taskID)
		if !ok || t.IsComplete() || counts[taskID] > 0 {
			delete(s.droppedAllocation, agentID)
		}
	}
}

func (a *Allocator) assignLocked(agentID, taskID string) error {
	ag, err := a.s.agentLocked(agentID)
	if err != nil {
		return err
	}
	t, err := a.s.taskLocked(taskID)
	if err != nil {
		return err
	}
	if cur, ok := a.s.allocation[agentID]; ok && cur == taskID {
		return nil
	}
	if t.Remaining() == 0 {
		return &model.CapacityError{TaskID: taskID, Capacity: t.EffectiveCapacity(), Requested: len(t.Agents) + 1}
	}
	a.unassignLocked(agentID)
	ag.Assign(taskID, t.AddAgent(ag, a.routeEnvLocked()))
	a.s.allocation[agentID] = taskID
	return nil
}

// unassignLocked drops agentID from the confirmed allocation and frees the agent.
func (a *Allocator) unassignLocked(agentID string) {
	taskID, ok := a.s.allocation[agentID]
	if !ok {
		return
	}
	delete(a.s.allocation, agentID)
	if t, found, _ := a.s.tasks.get(taskID); found {
		t.RemoveAgent(agentID)
	}
	if ag, found, _ := a.s.agents.get(agentID); found {
		ag.Release()
	}
}

// agentLostLocked moves a lost agent's assignment into the dropped map so the
// task can be picked up by someone else.
func (a *Allocator) agentLostLocked(agentID string) bool {
	s := a.s
	delete(s.tempAllocation, agentID)
	taskID, ok := s.allocation[agentID]
	if !ok {
		return false
	}
	s.droppedAllocation[agentID] = taskID
	a.unassignLocked(agentID)
	return true
}

// taskCompletedLocked frees the released agents and every proposal for the task.
func (a *Allocator) taskCompletedLocked(t *model.Task, released []string) {
	s := a.s
	for _, id := range released {
		if s.allocation[id] == t.ID() {
			delete(s.allocation, id)
		}
		if ag, ok, _ := s.agents.get(id); ok {
			ag.Release()
		}
	}
	for agentID, taskID := range s.allocation {
		if taskID == t.ID() {
			delete(s.allocation, agentID)
		}
	}
	for agentID, taskID := range s.tempAllocation {
		if taskID == t.ID() {
			delete(s.tempAllocation, agentID)
			if ag, ok, _ := s.agents.get(agentID); ok {
				ag.SetTempRoute(nil)
			}
		}
	}
}

// ChangeView switches between monitor, edit and images modes.
func (a *Allocator) ChangeView(mode EditMode) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.changeViewLocked(mode)
}

func (a *Allocator) changeViewLocked(mode EditMode) error {
	s := a.s
	if !mode.Valid() {
		return fmt.Errorf("change view: unknown mode %d", int(mode))
	}
	switch mode {
	case ModeEdit:
		if s.editMode != ModeEdit {
			for _, ag := range s.agents.items {
				ag.Stop()
				ag.SetTempRoute(ag.Route)
			}
			s.tempAllocation = s.allocation.Clone()
			s.undo, s.redo = nil, nil
		}
	case ModeMonitor:
		a.discardTempLocked()
		for _, ag := range s.agents.items {
			ag.Resume()
		}
	case ModeImages:
		for _, ag := range s.agents.items {
			ag.Resume()
		}
	}
	s.editMode = mode
	s.recordLocked(EventViewChange, Event{Data: map[string]any{"mode": int(mode)}})
	return nil
}

func (a *Allocator) discardTempLocked() {
	s := a.s
	s.tempAllocation = alloc.Assignment{}
	s.undo, s.redo = nil, nil
	for _, ag := range s.agents.items {
		ag.SetTempRoute(nil)
	}
}

// ConfirmAllocation commits the temp allocation, resumes agents and returns
// to monitor mode. Outside edit mode there is nothing pending and it is a no-op.
func (a *Allocator) ConfirmAllocation() error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	s := a.s
	if s.editMode != ModeEdit {
		return nil
	}
	temp := s.tempAllocation.Clone()
	if err := a.validateLocked(temp); err != nil {
		return fmt.Errorf("confirm allocation: %w", err)
	}
	if err := a.checkConfirmLocked(temp); err != nil {
		return fmt.Errorf("confirm allocation: %w", err)
	}
	for _, agentID := range sortedKeys(s.allocation) {
		if temp[agentID] != s.allocation[agentID] {
			a.unassignLocked(agentID)
		}
	}
	for _, agentID := range sortedKeys(temp) {
		if err := a.assignLocked(agentID, temp[agentID]); err != nil {
			return fmt.Errorf("confirm allocation: %w", err)
		}
	}
	a.discardTempLocked()
	for _, ag := range s.agents.items {
		ag.Resume()
	}
	s.editMode = ModeMonitor
	s.recordLocked(EventAllocConfirmed, Event{Data: map[string]any{"assigned": len(temp)}})
	return nil
}

// checkConfirmLocked verifies that committing m fits every task once the
// agents leaving it are released. Nothing is changed.
func (a *Allocator) checkConfirmLocked(m alloc.Assignment) error {
	s := a.s
	counts := m.Counts()
	for _, taskID := range sortedKeys(counts) {
		want := counts[taskID]
		t, err := s.taskLocked(taskID)
		if err != nil {
			return err
		}
		if t.IsComplete() {
			return &model.CapacityError{TaskID: taskID, Capacity: 0, Requested: want}
		}
		holders := len(t.Agents)
		for _, id := range t.Agents {
			if s.allocation[id] == taskID && m[id] != taskID {
				holders--
			}
		}
		for agentID, tid := range m {
			if tid == taskID && s.allocation[agentID] != taskID {
				holders++
			}
		}
		if holders > t.EffectiveCapacity() {
			return &model.CapacityError{TaskID: taskID, Capacity: t.EffectiveCapacity(), Requested: holders}
		}
	}
	return nil
}

// validateLocked checks that every id in m exists, every agent can take work
// and no task is over capacity.
func (a *Allocator) validateLocked(m alloc.Assignment) error {
	s := a.s
	for _, agentID := range sortedKeys(m) {
		ag, err := s.agentLocked(agentID)
		if err != nil {
			return err
		}
		if ag.Hub {
			return fmt.Errorf("agent %q is the hub and cannot take tasks", agentID)
		}
		if ag.TimedOut {
			return fmt.Errorf("agent %q has lost connection and cannot take tasks", agentID)
		}
		if _, err := s.taskLocked(m[agentID]); err != nil {
			return err
		}
	}
	counts := m.Counts()
	for _, taskID := range sortedKeys(counts) {
		t, _ := s.taskLocked(taskID)
		if counts[taskID] > t.EffectiveCapacity() {
			return &model.CapacityError{TaskID: taskID, Capacity: t.EffectiveCapacity(), Requested: counts[taskID]}
		}
	}
	return nil
}

// SetTempAllocation replaces the proposed allocation. The previous proposal is
// kept for Undo.
func (a *Allocator) SetTempAllocation(m map[string]string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.setTempLocked(alloc.Assignment(m).Clone())
}

func (a *Allocator) setTempLocked(m alloc.Assignment) error {
	if err := a.validateLocked(m); err != nil {
		return err
	}
	s := a.s
	s.undo = append(s.undo, s.tempAllocation.Clone())
	s.redo = nil
	s.tempAllocation = m
	a.refreshTempRoutesLocked()
	return nil
}

func (a *Allocator) putTempLocked(agentID, taskID string) error {
	m := a.s.tempAllocation.Clone()
	m[agentID] = taskID
	return a.setTempLocked(m)
}

func (a *Allocator) PutInTempAllocation(agentID, taskID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.putTempLocked(agentID, taskID)
}

func (a *Allocator) RemoveFromTempAllocation(agentID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, err := a.s.agentLocked(agentID); err != nil {
		return err
	}
	m := a.s.tempAllocation.Clone()
	delete(m, agentID)
	return a.setTempLocked(m)
}

func (a *Allocator) refreshTempRoutesLocked() {
	s := a.s
	env := a.routeEnvLocked()
	for _, ag := range s.agents.items {
		taskID, ok := s.tempAllocation[ag.ID()]
		if !ok {
			ag.SetTempRoute(nil)
			continue
		}
		if t, found, _ := s.tasks.get(taskID); found {
			ag.SetTempRoute(t.Route(ag, env))
		}
	}
}

// AutoAllocate re-solves from scratch over every assignable agent and task. In
// edit mode the result becomes the temp allocation; otherwise it is applied.
func (a *Allocator) AutoAllocate() (alloc.Assignment, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.autoAllocateLocked()
}

func (a *Allocator) autoAllocateLocked() (alloc.Assignment, error) {
	s := a.s

	var agents []alloc.Agent
	for _, ag := range s.agents.items {
		if a.assignableLocked(ag) {
			agents = append(agents, alloc.Agent{ID: ag.ID(), Coordinate: ag.Coordinate})
		}
	}
	res := alloc.Solve(agents, a.openTasksLocked(nil), alloc.Options{
		Method:          s.allocationMethod,
		Rand:            a.rng,
		IgnoredTaskProb: s.ignoredTaskProb,
	})
	if s.editMode == ModeEdit {
		if err := a.setTempLocked(res); err != nil {
			return nil, err
		}
		return res.Clone(), nil
	}
	for _, agentID := range sortedKeys(s.allocation) {
		a.unassignLocked(agentID)
	}
	for _, agentID := range sortedKeys(res) {
		if err := a.assignLocked(agentID, res[agentID]); err != nil {
			return nil, err
		}
	}
	a.absorbDroppedLocked()
	return res.Clone(), nil
}

// Undo restores the previous temp allocation and reports whether there was one.
func (a *Allocator) Undo() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	s := a.s
	if len(s.undo) == 0 {
		return false
	}
	s.redo = append(s.redo, s.tempAllocation)
	s.tempAllocation = s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	a.refreshTempRoutesLocked()
	return true
}

func (a *Allocator) Redo() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	s := a.s
	if len(s.redo) == 0 {
		return false
	}
	s.undo = append(s.undo, s.tempAllocation)
	s.tempAllocation = s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	a.refreshTempRoutesLocked()
	return true
}

func (a *Allocator) ClearAllocationHistory() {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.undo, a.s.redo = nil, nil
}

// RemoveAgent takes the agent out of every allocation map and the registry.
func (a *Allocator) RemoveAgent(agentID string) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	s := a.s
	if _, err := s.agentLocked(agentID); err != nil {
		return false, err
	}
	held := s.allocation[agentID] != ""
	a.unassignLocked(agentID)
	delete(s.tempAllocation, agentID)
	delete(s.droppedAllocation, agentID)
	removed := s.agents.remove(agentID)
	if held {
		a.dynamicReassignLocked()
	}
	return removed, nil
}

// RemoveTask deletes a pending task and puts its agents back to work elsewhere.
func (a *Allocator) RemoveTask(taskID string) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	s := a.s
	t, err := s.taskLocked(taskID)
	if err != nil {
		return false, err
	}
	released := append([]string(nil), t.Agents...)
	a.taskCompletedLocked(t, released)
	for agentID, id := range s.droppedAllocation {
		if id == taskID {
			delete(s.droppedAllocation, agentID)
		}
	}
	removed := s.tasks.remove(taskID)
	if len(released) > 0 {
		a.dynamicReassignLocked()
	}
	return removed, nil
}

// SetAgentRoute overrides an agent's confirmed route.
func (a *Allocator) SetAgentRoute(agentID string, route []geo.Coordinate) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	ag, err := a.s.agentLocked(agentID)
	if err != nil {
		return err
	}
	ag.SetRoute(route)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
