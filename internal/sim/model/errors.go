package model

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateID  = errors.New("duplicate id")
	ErrCorruptState = errors.New("corrupt state")
	ErrNotFound     = errors.New("not found")
	ErrCapacity     = errors.New("task capacity exceeded")
)

// DuplicateIDError is returned when adding an entity whose id is already
// present in the target collection. The collection is left unchanged.
type DuplicateIDError struct {
	Kind Kind
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, ErrDuplicateID)
}

func (e *DuplicateIDError) Is(target error) bool { return target == ErrDuplicateID }

// CorruptStateError reports a broken uniqueness invariant. It indicates a bug
// elsewhere in the process, never bad input.
type CorruptStateError struct {
	Kind  Kind
	ID    string
	Count int
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("%s %q found %d times: %v", e.Kind, e.ID, e.Count, ErrCorruptState)
}

func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CapacityError is returned when an allocation would put more agents on a
// task than it accepts.
type CapacityError struct {
	TaskID    string
	Capacity  int
	Requested int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("task %q: %d agents requested, capacity %d: %v", e.TaskID, e.Requested, e.Capacity, ErrCapacity)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }
