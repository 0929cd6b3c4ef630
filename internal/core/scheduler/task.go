package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	taskPending int32 = iota
	taskFired
	taskCancelled
)

var _ Task = (*task)(nil)

type task struct {
	id     uint64
	fn     Func
	due    int64
	period int64
	state  atomic.Int32

	mu      sync.Mutex
	timer   *time.Timer
	release func()
}

func (t *task) Cancel() {
	if !t.state.CompareAndSwap(taskPending, taskCancelled) {
		return
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	release := t.release
	t.release = nil
	t.mu.Unlock()

	if release != nil {
		release()
	}
}

func (t *task) IsCancelled() bool {
	return t.state.Load() == taskCancelled
}

// fire claims a one-shot task for execution.
func (t *task) fire() bool {
	return t.state.CompareAndSwap(taskPending, taskFired)
}

func (t *task) pending() bool {
	return t.state.Load() == taskPending
}

func (t *task) setRelease(release func()) {
	t.mu.Lock()
	t.release = release
	t.mu.Unlock()
}

func (t *task) setTimer(timer *time.Timer) {
	t.mu.Lock()
	t.timer = timer
	t.mu.Unlock()
}

// taskLess orders by due tick, then by submission.
func taskLess(a, b *task) bool {
	if a.due != b.due {
		return a.due < b.due
	}
	return a.id < b.id
}
