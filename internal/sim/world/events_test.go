package world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEvents struct{}

func (failingEvents) WriteEvent(Event) error { return errors.New("disk full") }

func TestEventLoggers_FanOut(t *testing.T) {
	a, b := &recordingEvents{}, &recordingEvents{}
	ls := EventLoggers{a, nil, failingEvents{}, b}

	err := ls.WriteEvent(Event{Code: EventReset})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{EventReset}, a.Codes())
	assert.Equal(t, []string{EventReset}, b.Codes())
}
