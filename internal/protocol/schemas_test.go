package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(TypeHello, []byte(`{"type":"HELLO","protocol_version":"1.0","client_name":"ops-console"}`)))
	assert.Error(t, Validate(TypeHello, []byte(`{"type":"HELLO","protocol_version":"1.0"}`)))

	assert.NoError(t, Validate(TypeCmd, []byte(`{"type":"CMD","req_id":"r1","cmd":"putInTempAllocation","args":{"agent_id":"UAV-1","task_id":"TASK-1"}}`)))
	assert.NoError(t, Validate(TypeCmd, []byte(`{"type":"CMD","req_id":"r2","cmd":"undo"}`)))
	assert.Error(t, Validate(TypeCmd, []byte(`{"type":"CMD","req_id":"r3","cmd":"selfDestruct"}`)))
	assert.Error(t, Validate(TypeCmd, []byte(`{"type":"CMD","cmd":"undo"}`)))
	assert.Error(t, Validate(TypeCmd, []byte(`{"type":"CMD","req_id":"r4","cmd":"undo","args":[1]}`)))

	// No schema for server-originated types.
	assert.NoError(t, Validate(TypeState, []byte(`{}`)))
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"CMD","protocol_version":"1.0","cmd":"undo"}`))
	assert.NoError(t, err)
	assert.Equal(t, TypeCmd, m.Type)
	assert.Equal(t, Version, m.ProtocolVersion)
}
