package model

// Kind is the closed set of entity collections held by the world state.
type Kind uint8

const (
	KindAgent Kind = iota + 1
	KindTask
	KindHazard
	KindTarget
)

func (k Kind) String() string {
	switch k {
	case KindAgent:
		return "agent"
	case KindTask:
		return "task"
	case KindHazard:
		return "hazard"
	case KindTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Entity is anything with a scenario-scoped id stored in one of the state collections.
type Entity interface {
	ID() string
	Kind() Kind
}
