package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"swarmsim.ai/internal/protocol"
	"swarmsim.ai/internal/sim/geo"
	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/world"
)

var errBadArgs = errors.New("bad args")

type handler func(sim *world.Simulator, sess *session, args json.RawMessage) (any, error)

var handlers = map[string]handler{
	protocol.CmdHeartbeat:            heartbeat,
	protocol.CmdAddAgent:             addAgent,
	protocol.CmdAddTask:              addTask,
	protocol.CmdAddHazard:            addHazard,
	protocol.CmdAddTarget:            addTarget,
	protocol.CmdRemoveAgent:          removeAgent,
	protocol.CmdRemoveTask:           removeTask,
	protocol.CmdSetAgentRoute:        setAgentRoute,
	protocol.CmdChangeView:           changeView,
	protocol.CmdConfirmAllocation:    confirmAllocation,
	protocol.CmdSetTempAllocation:    setTempAllocation,
	protocol.CmdPutInTempAllocation:  putInTempAllocation,
	protocol.CmdRemoveFromTempAlloc:  removeFromTempAllocation,
	protocol.CmdAutoAllocate:         autoAllocate,
	protocol.CmdUndo:                 undo,
	protocol.CmdRedo:                 redo,
	protocol.CmdClearAllocationUndos: clearAllocationHistory,
	protocol.CmdReset:                reset,
	protocol.CmdRecordImage:          recordImage,
	protocol.CmdExtendTimeLimit:      extendTimeLimit,
}

func knownCommand(name string) bool {
	_, ok := handlers[name]
	return ok
}

func dispatch(sim *world.Simulator, sess *session, cmd protocol.CmdMsg) (any, error) {
	h, ok := handlers[cmd.Cmd]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", cmd.Cmd)
	}
	return h(sim, sess, cmd.Args)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadArgs, err)
	}
	return nil
}

func coord(p protocol.LatLng) geo.Coordinate { return geo.New(p.Lat, p.Lng) }

func heartbeat(sim *world.Simulator, sess *session, raw json.RawMessage) (any, error) {
	var args protocol.AgentRef
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	id := args.AgentID
	if id == "" {
		id = sess.agentID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: agent_id required", errBadArgs)
	}
	return nil, sim.Heartbeat(id)
}

func addAgent(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.AddAgentArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	a, err := sim.AddAgent(args.ID, coord(args.LatLng), args.Simulated)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": a.ID()}, nil
}

func addTask(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.AddTaskArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	typ := model.TaskType(args.TaskType)
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: task_type %d", errBadArgs, args.TaskType)
	}
	if args.Capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity", errBadArgs)
	}
	t, err := sim.AddTask(args.ID, typ, coord(args.LatLng), args.Capacity)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": t.ID()}, nil
}

func addHazard(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.AddHazardArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	typ := model.HazardType(args.HazardType)
	if !typ.Valid() || typ == model.HazardNone {
		return nil, fmt.Errorf("%w: hazard_type %d", errBadArgs, args.HazardType)
	}
	h, err := sim.AddHazard(args.ID, typ, coord(args.LatLng), args.Size)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": h.ID()}, nil
}

func addTarget(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.AddTargetArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	typ := model.TargetType(args.TargetType)
	if typ != model.TargetHuman && typ != model.TargetAdjustable {
		return nil, fmt.Errorf("%w: target_type %d", errBadArgs, args.TargetType)
	}
	t, err := sim.AddTarget(args.ID, typ, coord(args.LatLng), args.Visible)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": t.ID()}, nil
}

func removeAgent(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.AgentRef
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	ok, err := sim.RemoveAgent(args.AgentID)
	return map[string]bool{"removed": ok}, err
}

func removeTask(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.TaskRef
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	ok, err := sim.RemoveTask(args.TaskID)
	return map[string]bool{"removed": ok}, err
}

func setAgentRoute(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.SetAgentRouteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	route := make([]geo.Coordinate, 0, len(args.Route))
	for _, p := range args.Route {
		route = append(route, coord(p))
	}
	return nil, sim.Allocator().SetAgentRoute(args.AgentID, route)
}

func changeView(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.ChangeViewArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return nil, sim.ChangeView(world.EditMode(args.Mode))
}

func confirmAllocation(sim *world.Simulator, _ *session, _ json.RawMessage) (any, error) {
	return nil, sim.ConfirmAllocation()
}

func setTempAllocation(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.SetTempAllocationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return nil, sim.Allocator().SetTempAllocation(args.Allocation)
}

func putInTempAllocation(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.PutInTempAllocationArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return nil, sim.Allocator().PutInTempAllocation(args.AgentID, args.TaskID)
}

func removeFromTempAllocation(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.AgentRef
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return nil, sim.Allocator().RemoveFromTempAllocation(args.AgentID)
}

func autoAllocate(sim *world.Simulator, _ *session, _ json.RawMessage) (any, error) {
	a, err := sim.Allocator().AutoAllocate()
	if err != nil {
		return nil, err
	}
	return map[string]map[string]string{"allocation": a}, nil
}

func undo(sim *world.Simulator, _ *session, _ json.RawMessage) (any, error) {
	return map[string]bool{"applied": sim.Allocator().Undo()}, nil
}

func redo(sim *world.Simulator, _ *session, _ json.RawMessage) (any, error) {
	return map[string]bool{"applied": sim.Allocator().Redo()}, nil
}

func clearAllocationHistory(sim *world.Simulator, _ *session, _ json.RawMessage) (any, error) {
	sim.Allocator().ClearAllocationHistory()
	return nil, nil
}

func reset(sim *world.Simulator, _ *session, _ json.RawMessage) (any, error) {
	sim.Reset()
	return nil, nil
}

func recordImage(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.RecordImageArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.ID == "" || args.Filename == "" {
		return nil, fmt.Errorf("%w: id and filename required", errBadArgs)
	}
	sim.State().RecordImage(args.ID, args.Filename, args.Deep)
	return nil, nil
}

func extendTimeLimit(sim *world.Simulator, _ *session, raw json.RawMessage) (any, error) {
	var args protocol.ExtendTimeLimitArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Seconds <= 0 {
		return nil, fmt.Errorf("%w: seconds must be positive", errBadArgs)
	}
	sim.State().ExtendTimeLimit(args.Seconds)
	return nil, nil
}
