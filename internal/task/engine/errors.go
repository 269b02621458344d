package engine

import "errors"

var (
	// ErrEmptyInputSet is returned when a run has no inputs to pick from.
	ErrEmptyInputSet = errors.New("input set is empty")
	ErrBusy          = errors.New("runner is already running a batch")
)
