package protocol

import (
	"errors"

	"swarmsim.ai/internal/sim/model"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrUnknownCommand  = "E_UNKNOWN_COMMAND"

	// Simulation layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrNotFound    = "E_NOT_FOUND"
	ErrDuplicateID = "E_DUPLICATE_ID"
	ErrCapacity    = "E_CAPACITY"
	ErrConflict    = "E_CONFLICT"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnknownCommand:  {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrDuplicateID:     {},
	ErrCapacity:        {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps a simulation error onto a wire code. Errors outside the model
// taxonomy are treated as bad requests; corrupt state is internal.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrCorruptState):
		return ErrInternal
	case errors.Is(err, model.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, model.ErrDuplicateID):
		return ErrDuplicateID
	case errors.Is(err, model.ErrCapacity):
		return ErrCapacity
	case errors.Is(err, model.ErrTaskClosed):
		return ErrConflict
	default:
		return ErrBadRequest
	}
}
