package tracker

import "errors"

var (
	// ErrAlreadyAttached is returned when a model is attached twice to the
	// same entity.
	ErrAlreadyAttached = errors.New("model already attached")
	// ErrTrackerDestroyed is returned by every operation on a destroyed
	// tracker.
	ErrTrackerDestroyed = errors.New("tracker destroyed")
	// ErrSchedulerDisabled is returned when simulation-thread work was
	// dropped because the host is not enabled.
	ErrSchedulerDisabled = errors.New("scheduler disabled")
	// ErrInvalidTarget is returned when the entity or model cannot be
	// resolved, or the entity is no longer valid.
	ErrInvalidTarget = errors.New("invalid target")
	ErrInvalidAction = errors.New("invalid update action")
)
