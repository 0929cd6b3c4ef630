package scheduler

import "context"

// Func is a unit of scheduled work. Simulation-thread tasks receive a context
// for which IsSimulation reports true.
type Func func(ctx context.Context)

// Task is a handle to scheduled work.
type Task interface {
	// Cancel prevents the task from running (or from running again, for
	// periodic tasks). Cancelling a fired or cancelled task does nothing.
	Cancel()
	// IsCancelled reports whether Cancel took effect.
	IsCancelled() bool
}

// Scheduler abstracts the host's task execution.
//
// Simulation-thread submissions (Task, TaskLater) are gated by the enabled
// lifecycle state: while disabled they return nil and the work is dropped.
// Callers must treat a nil Task as "did not run, do not await".
// Asynchronous submissions are never gated and always return a handle.
//
// Delays and periods are expressed in simulation ticks.
type Scheduler interface {
	Task(fn Func) Task
	TaskLater(delay int64, fn Func) Task

	AsyncTask(fn Func) Task
	AsyncTaskLater(delay int64, fn Func) Task
	AsyncTaskTimer(delay, period int64, fn Func) Task

	IsEnabled() bool
}

type simulationKey struct{}

// WithSimulation marks ctx as running on the simulation thread.
func WithSimulation(ctx context.Context) context.Context {
	return context.WithValue(ctx, simulationKey{}, true)
}

// IsSimulation reports whether ctx was produced by the simulation tick loop.
func IsSimulation(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(simulationKey{}).(bool)
	return v
}
