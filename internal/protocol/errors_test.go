package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"swarmsim.ai/internal/sim/model"
)

func TestIsKnownCode(t *testing.T) {
	for _, c := range []string{"", ErrProtoBadRequest, ErrUnknownCommand, ErrBadRequest, ErrNotFound, ErrDuplicateID, ErrCapacity, ErrConflict, ErrInternal} {
		assert.True(t, IsKnownCode(c), c)
	}
	assert.False(t, IsKnownCode("E_NOT_DEFINED"))
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&model.NotFoundError{Kind: model.KindAgent, ID: "UAV-9"}, ErrNotFound},
		{fmt.Errorf("add: %w", &model.DuplicateIDError{Kind: model.KindTask, ID: "TASK-1"}), ErrDuplicateID},
		{&model.CapacityError{TaskID: "TASK-1", Capacity: 1, Requested: 2}, ErrCapacity},
		{&model.CorruptStateError{Kind: model.KindAgent, ID: "UAV-1", Count: 2}, ErrInternal},
		{fmt.Errorf("complete: %w", model.ErrTaskClosed), ErrConflict},
		{errors.New("invalid edit mode 7"), ErrBadRequest},
	}
	for _, c := range cases {
		got := CodeFor(c.err)
		assert.Equal(t, c.want, got, "%v", c.err)
		assert.True(t, IsKnownCode(got))
	}
}
