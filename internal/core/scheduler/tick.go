package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/pkg/sequence"
	"golang.org/x/sync/errgroup"
)

var ErrSchedulerClosed = errors.New("scheduler is closed")

var _ Scheduler = (*TickScheduler)(nil)

// Options configures a TickScheduler.
type Options struct {
	// TickInterval is the wall-clock length of one simulation tick. It also
	// converts asynchronous delays from ticks into durations.
	TickInterval time.Duration
	// Workers is the size of the asynchronous worker pool.
	Workers int
	Logger  log.Log
}

// DefaultOptions returns a 20 TPS scheduler with one worker per CPU.
func DefaultOptions() Options {
	return Options{
		TickInterval: 50 * time.Millisecond,
		Workers:      runtime.NumCPU(),
	}
}

// TickScheduler is a two-queue executor. Simulation-thread work is held in a
// due-tick ordered heap and drained once per Tick by the single tick caller;
// asynchronous work goes through an unbounded queue consumed by a fixed
// worker pool.
type TickScheduler struct {
	opts   Options
	logger log.Log

	enabled atomic.Bool
	closed  atomic.Bool
	seq     atomic.Uint64

	mu      sync.Mutex
	tick    int64
	pending *sequence.PriorityQueue[*task]

	async   *asyncQueue
	workers errgroup.Group
	cancel  context.CancelFunc
}

// New creates an enabled scheduler and starts its worker pool.
func New(opts Options) *TickScheduler {
	defaults := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaults.TickInterval
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Provide()
	}

	s := &TickScheduler{
		opts:    opts,
		logger:  logger.With(log.String("component", "scheduler")),
		pending: sequence.NewPriorityQueue(taskLess),
		async:   newAsyncQueue(),
	}
	s.enabled.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for i := 0; i < opts.Workers; i++ {
		s.workers.Go(func() error {
			s.work(ctx)
			return nil
		})
	}

	return s
}

// Enable allows simulation-thread submissions again.
func (s *TickScheduler) Enable() {
	if s.enabled.CompareAndSwap(false, true) {
		s.logger.Info("scheduler enabled")
	}
}

// Disable stops accepting simulation-thread work and cancels everything that
// is still queued for the simulation thread.
func (s *TickScheduler) Disable() {
	if !s.enabled.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	drained := s.pending.Drain()
	s.mu.Unlock()

	for _, t := range drained {
		t.Cancel()
	}
	s.logger.Info("scheduler disabled", log.Int("drained", len(drained)))
}

func (s *TickScheduler) IsEnabled() bool {
	return s.enabled.Load() && !s.closed.Load()
}

// CurrentTick returns the number of ticks processed so far.
func (s *TickScheduler) CurrentTick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Pending returns the number of simulation-thread tasks waiting to run.
// Cancelled tasks leave the queue immediately.
func (s *TickScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func (s *TickScheduler) Task(fn Func) Task {
	return s.TaskLater(0, fn)
}

func (s *TickScheduler) TaskLater(delay int64, fn Func) Task {
	if !s.IsEnabled() {
		return nil
	}
	if delay < 1 {
		delay = 1
	}

	t := &task{id: s.seq.Add(1), fn: fn}

	s.mu.Lock()
	if !s.IsEnabled() {
		s.mu.Unlock()
		return nil
	}
	t.due = s.tick + delay
	item := s.pending.Enqueue(t)
	s.mu.Unlock()

	t.setRelease(func() {
		s.mu.Lock()
		s.pending.Remove(item)
		s.mu.Unlock()
	})
	return t
}

func (s *TickScheduler) AsyncTask(fn Func) Task {
	t := &task{id: s.seq.Add(1), fn: fn}
	s.submit(t)
	return t
}

func (s *TickScheduler) AsyncTaskLater(delay int64, fn Func) Task {
	t := &task{id: s.seq.Add(1), fn: fn}
	s.arm(t, delay)
	return t
}

func (s *TickScheduler) AsyncTaskTimer(delay, period int64, fn Func) Task {
	if period <= 0 {
		period = 1
	}
	t := &task{id: s.seq.Add(1), fn: fn, period: period}
	s.arm(t, delay)
	return t
}

// Tick advances the simulation clock by one tick and runs every
// simulation-thread task that became due, ordered by due tick and then by
// submission. Task work runs on the tick after submission and TaskLater work
// delay ticks after submission. Work submitted while
// the tick is running waits for the next tick. A disabled scheduler only
// advances the clock. Tick must only be called from the simulation goroutine.
func (s *TickScheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	s.tick++
	now := s.tick
	var due []*task
	for s.IsEnabled() {
		head, ok := s.pending.Peek()
		if !ok || head.due > now {
			break
		}
		s.pending.Dequeue()
		due = append(due, head)
	}
	s.mu.Unlock()

	simCtx := WithSimulation(ctx)
	ran := 0
	for _, t := range due {
		if !t.fire() {
			continue
		}
		s.invoke(simCtx, t)
		ran++
	}
	return ran
}

// Run drives Tick at the configured interval until ctx is done.
func (s *TickScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	s.logger.Info("simulation loop started", log.Duration("interval", s.opts.TickInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Close disables the scheduler, stops the worker pool and waits for running
// asynchronous work to return.
func (s *TickScheduler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrSchedulerClosed
	}
	s.Disable()
	for _, t := range s.async.close() {
		t.Cancel()
	}
	s.cancel()
	return s.workers.Wait()
}

func (s *TickScheduler) ticksToDuration(ticks int64) time.Duration {
	if ticks <= 0 {
		return 0
	}
	return time.Duration(ticks) * s.opts.TickInterval
}

func (s *TickScheduler) arm(t *task, delay int64) {
	if delay <= 0 {
		s.submit(t)
		return
	}
	t.setTimer(time.AfterFunc(s.ticksToDuration(delay), func() { s.submit(t) }))
}

func (s *TickScheduler) submit(t *task) {
	if !t.pending() {
		return
	}
	if !s.async.push(t) {
		t.Cancel()
		s.logger.Debug("async task dropped after close", log.Uint64("task", t.id))
	}
}

func (s *TickScheduler) work(ctx context.Context) {
	for {
		t, ok := s.async.pop()
		if !ok {
			return
		}
		if t.period > 0 {
			if !t.pending() {
				continue
			}
			s.invoke(ctx, t)
			if t.pending() && !s.closed.Load() {
				s.arm(t, t.period)
			}
			continue
		}
		if t.fire() {
			s.invoke(ctx, t)
		}
	}
}

func (s *TickScheduler) invoke(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				log.Uint64("task", t.id),
				log.Bool("simulation", IsSimulation(ctx)),
				log.Error(fmt.Errorf("%v", r)),
			)
		}
	}()
	t.fn(ctx)
}

// asyncQueue is an unbounded FIFO so that submitting never blocks the
// simulation thread.
type asyncQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*task
	closed bool
}

func newAsyncQueue() *asyncQueue {
	q := &asyncQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *asyncQueue) push(t *task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, t)
	q.cond.Signal()
	return true
}

func (q *asyncQueue) pop() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

// close wakes every worker and returns work that never started.
func (q *asyncQueue) close() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	left := q.items
	q.items = nil
	q.cond.Broadcast()
	return left
}
