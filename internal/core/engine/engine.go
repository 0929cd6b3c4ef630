package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zeusync/modelsync/internal/core/bone"
	"github.com/zeusync/modelsync/internal/core/events"
	"github.com/zeusync/modelsync/internal/core/model"
	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
	"github.com/zeusync/modelsync/internal/core/tracker"
)

var ErrClosed = errors.New("engine closed")

// Result is the outcome reported to trigger call sites.
type Result int

const (
	Success Result = iota
	ConditionFailed
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "condition_failed"
}

// Scheduler is a model scheduler whose lifecycle the engine drives.
type Scheduler interface {
	scheduler.Scheduler
	Enable()
	Disable()
}

type Options struct {
	DamageTintColor uint32
	DamageTintTicks int64
	// SweepPeriod is the interval, in ticks, between sweeps of invalid
	// entities. Zero disables sweeping.
	SweepPeriod int64
}

// Engine is the entry point used by trigger call sites. It resolves
// (entity, model) pairs to trackers and reports plain Success or
// ConditionFailed results.
//
// Update and apply calls that arrive while no tracker is attached for the
// pair, including while an attach or detach is in flight, are rejected with
// ConditionFailed.
type Engine struct {
	catalog  *model.Catalog
	registry *tracker.Registry
	sched    Scheduler
	bus      events.Bus
	logger   log.Log
	trackers tracker.Config

	mu     sync.Mutex
	subs   []events.Subscription
	sweep  scheduler.Task
	closed atomic.Bool
}

func New(
	opts Options,
	catalog *model.Catalog,
	registry *tracker.Registry,
	sched Scheduler,
	scripts tracker.ScriptSource,
	bus events.Bus,
	logger log.Log,
) (*Engine, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Engine{
		catalog:  catalog,
		registry: registry,
		sched:    sched,
		bus:      bus,
		logger:   logger.With(log.String("component", "engine")),
		trackers: tracker.Config{
			Scheduler:       sched,
			Logger:          logger,
			Scripts:         scripts,
			DamageTintColor: opts.DamageTintColor,
			DamageTintTicks: opts.DamageTintTicks,
		},
	}

	if bus != nil {
		if err := e.subscribe(); err != nil {
			e.unsubscribe()
			return nil, err
		}
	}
	if opts.SweepPeriod > 0 {
		e.sweep = sched.AsyncTaskTimer(opts.SweepPeriod, opts.SweepPeriod, func(context.Context) {
			e.registry.Sweep()
			e.registry.Cleanup()
		})
	}
	return e, nil
}

func (e *Engine) subscribe() error {
	handlers := map[events.Type]events.Handler{
		events.EntityRemoved: func(ev events.Event) error {
			e.RemoveEntity(ev.EntityID)
			return nil
		},
		events.PluginEnabled: func(events.Event) error {
			e.Enable()
			return nil
		},
		events.PluginDisabled: func(events.Event) error {
			e.Disable()
			return nil
		},
	}
	for typ, h := range handlers {
		sub, err := e.bus.Subscribe(typ, h)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", typ, err)
		}
		e.subs = append(e.subs, sub)
	}
	return nil
}

func (e *Engine) unsubscribe() {
	for _, sub := range e.subs {
		_ = sub.Cancel()
	}
	e.subs = nil
}

// Attach instantiates modelID on entity. A nil scale factory keeps the
// entity's own scale.
func (e *Engine) Attach(entity tracker.Entity, modelID string, modifier tracker.Modifier, scale tracker.ScaleFactory) (*tracker.EntityTracker, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	bp, err := e.catalog.Lookup(modelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tracker.ErrInvalidTarget, err)
	}
	entry, err := e.registry.RegisterOrGet(entity)
	if err != nil {
		return nil, err
	}
	if _, exists := entry.Tracker(modelID); exists {
		return nil, fmt.Errorf("%w: %s on entity %s", tracker.ErrAlreadyAttached, modelID, entity.UUID())
	}

	t, err := tracker.NewEntityTracker(entity, bp, modifier, e.trackers)
	if err != nil {
		return nil, err
	}
	if scale != nil {
		t.SetScaler(scale(entity))
	}
	if _, err = e.registry.Attach(entity, modelID, t); err != nil {
		t.Destroy()
		return nil, err
	}

	e.logger.Debug("Model attached",
		log.String("model", modelID),
		log.Stringer("entity", entity.UUID()),
		log.Stringer("tracker", t.ID()),
	)
	return t, nil
}

// Detach destroys the tracker of modelID on the entity. It reports whether
// one was attached.
func (e *Engine) Detach(id tracker.EntityID, modelID string) bool {
	entry, ok := e.registry.Lookup(id)
	if !ok {
		return false
	}
	return entry.Remove(modelID)
}

// RemoveEntity handles entity invalidation.
func (e *Engine) RemoveEntity(id tracker.EntityID) int {
	n := e.registry.RemoveEntity(id)
	if n > 0 {
		e.logger.Debug("Entity removed", log.Stringer("entity", id), log.Int("trackers", n))
	}
	return n
}

func (e *Engine) Tracker(id tracker.EntityID, modelID string) (*tracker.EntityTracker, bool) {
	return e.registry.Tracker(id, modelID)
}

// Apply runs action on the bones of the resolved tracker selected by pred.
func (e *Engine) Apply(ctx context.Context, id tracker.EntityID, modelID string, action tracker.UpdateAction, pred bone.Predicate) Result {
	t, ok := e.resolve(id, modelID)
	if !ok {
		return ConditionFailed
	}
	return e.result(t.Update(ctx, action, pred), "apply", modelID)
}

// RunScript builds src and dispatches it against the resolved tracker.
func (e *Engine) RunScript(ctx context.Context, id tracker.EntityID, modelID, src string) Result {
	t, ok := e.resolve(id, modelID)
	if !ok {
		return ConditionFailed
	}
	if e.trackers.Scripts == nil {
		return ConditionFailed
	}
	s, err := e.trackers.Scripts.Build(src)
	if err != nil {
		e.logger.Warn("Bad script", log.String("model", modelID), log.Error(err))
		return ConditionFailed
	}
	return e.result(t.Dispatch(ctx, s), "script", modelID)
}

func (e *Engine) Animate(ctx context.Context, id tracker.EntityID, modelID, animation string) Result {
	t, ok := e.resolve(id, modelID)
	if !ok {
		return ConditionFailed
	}
	return e.result(t.Animate(ctx, animation), "animate", modelID)
}

// Damage plays the damage reaction of every tracker attached to the entity.
func (e *Engine) Damage(ctx context.Context, id tracker.EntityID) Result {
	entry, ok := e.registry.Lookup(id)
	if !ok || entry.Len() == 0 {
		return ConditionFailed
	}
	var errs []error
	for _, t := range entry.Trackers() {
		errs = append(errs, t.OnDamage(ctx))
	}
	return e.result(errors.Join(errs...), "damage", "")
}

// Snapshot returns the render state of every live tracker.
func (e *Engine) Snapshot() []tracker.RenderState {
	return e.registry.Snapshot()
}

func (e *Engine) Enable()         { e.sched.Enable() }
func (e *Engine) Disable()        { e.sched.Disable() }
func (e *Engine) IsEnabled() bool { return e.sched.IsEnabled() }

// Close stops sweeping, detaches from the bus and destroys every tracker.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	e.mu.Lock()
	if e.sweep != nil {
		e.sweep.Cancel()
	}
	e.unsubscribe()
	e.mu.Unlock()

	n := e.registry.Close()
	e.logger.Info("Engine closed", log.Int("trackers", n))
	return nil
}

func (e *Engine) resolve(id tracker.EntityID, modelID string) (*tracker.EntityTracker, bool) {
	if e.closed.Load() {
		return nil, false
	}
	t, ok := e.registry.Tracker(id, modelID)
	if !ok {
		e.logger.Debug("No tracker resolved", log.Stringer("entity", id), log.String("model", modelID))
	}
	return t, ok
}

// result maps tracker errors onto trigger results. Work dropped by a
// disabled scheduler is not a failure of the trigger.
func (e *Engine) result(err error, op, modelID string) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, tracker.ErrSchedulerDisabled):
		return Success
	default:
		e.logger.Debug("Trigger failed",
			log.String("op", op),
			log.String("model", modelID),
			log.Error(err),
		)
		return ConditionFailed
	}
}
