package protocol

// Command names carried in CmdMsg.Cmd.
const (
	CmdHeartbeat            = "heartbeat"
	CmdAddAgent             = "addAgent"
	CmdAddTask              = "addTask"
	CmdAddHazard            = "addHazard"
	CmdAddTarget            = "addTarget"
	CmdRemoveAgent          = "removeAgent"
	CmdRemoveTask           = "removeTask"
	CmdSetAgentRoute        = "setAgentRoute"
	CmdChangeView           = "changeView"
	CmdConfirmAllocation    = "confirmAllocation"
	CmdSetTempAllocation    = "setTempAllocation"
	CmdPutInTempAllocation  = "putInTempAllocation"
	CmdRemoveFromTempAlloc  = "removeFromTempAllocation"
	CmdAutoAllocate         = "autoAllocate"
	CmdUndo                 = "undo"
	CmdRedo                 = "redo"
	CmdReset                = "reset"
	CmdRecordImage          = "recordImage"
	CmdExtendTimeLimit      = "extendTimeLimit"
	CmdClearAllocationUndos = "clearAllocationHistory"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type AgentRef struct {
	AgentID string `json:"agent_id"`
}

type TaskRef struct {
	TaskID string `json:"task_id"`
}

type AddAgentArgs struct {
	ID        string `json:"id,omitempty"`
	LatLng    LatLng `json:"position"`
	Simulated bool   `json:"simulated"`
}

type AddTaskArgs struct {
	ID       string `json:"id,omitempty"`
	TaskType int    `json:"task_type"`
	LatLng   LatLng `json:"position"`
	Capacity int    `json:"capacity,omitempty"`
}

type AddHazardArgs struct {
	ID         string  `json:"id,omitempty"`
	HazardType int     `json:"hazard_type"`
	LatLng     LatLng  `json:"position"`
	Size       float64 `json:"size,omitempty"`
}

type AddTargetArgs struct {
	ID         string `json:"id,omitempty"`
	TargetType int    `json:"target_type"`
	LatLng     LatLng `json:"position"`
	Visible    bool   `json:"visible,omitempty"`
}

type SetAgentRouteArgs struct {
	AgentID string   `json:"agent_id"`
	Route   []LatLng `json:"route"`
}

type ChangeViewArgs struct {
	Mode int `json:"mode"`
}

type SetTempAllocationArgs struct {
	Allocation map[string]string `json:"allocation"`
}

type PutInTempAllocationArgs struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

type RecordImageArgs struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Deep     bool   `json:"deep,omitempty"`
}

type ExtendTimeLimitArgs struct {
	Seconds float64 `json:"seconds"`
}
