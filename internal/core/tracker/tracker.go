package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/modelsync/internal/core/bone"
	"github.com/zeusync/modelsync/internal/core/model"
	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
)

// State is the lifecycle state of a tracker.
type State int32

const (
	Active State = iota
	DamageTinted
	Destroyed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case DamageTinted:
		return "damage_tinted"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	DefaultDamageTintColor uint32 = 0xFF8080
	DefaultDamageTintTicks int64  = 10
)

// ScriptSource builds the script attached to an animation.
type ScriptSource interface {
	Build(script string) (AnimationScript, error)
}

// Config carries the collaborators shared by every tracker of an engine.
type Config struct {
	Scheduler scheduler.Scheduler
	Logger    log.Log
	Scripts   ScriptSource

	DamageTintColor uint32
	DamageTintTicks int64
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.DamageTintColor == 0 {
		c.DamageTintColor = DefaultDamageTintColor
	}
	if c.DamageTintTicks <= 0 {
		c.DamageTintTicks = DefaultDamageTintTicks
	}
	return c
}

// RenderState is a consistent copy of a tracker's visual state.
type RenderState struct {
	TrackerID uuid.UUID   `json:"tracker"`
	EntityID  uuid.UUID   `json:"entity"`
	ModelID   string      `json:"model"`
	State     State       `json:"state"`
	Scale     float64     `json:"scale"`
	Animation string      `json:"animation,omitempty"`
	Bones     []bone.View `json:"bones"`
}

// Tracker is one live instance of a model blueprint.
//
// Every visual mutation happens on the simulation thread. Mutating calls made
// with a simulation context (see scheduler.IsSimulation) apply immediately;
// calls from any other goroutine are marshalled onto the next tick and return
// ErrSchedulerDisabled when the host drops the work. Reads are safe from any
// goroutine.
type Tracker struct {
	id         uuid.UUID
	blueprint  *model.Blueprint
	modifier   Modifier
	source     Source
	cfg        Config
	dispatcher *Dispatcher
	logger     log.Log

	mu         sync.RWMutex
	state      State
	bones      *bone.Hierarchy
	scaler     Scaler
	damageTint uint32
	damageEnd  *pending
	animation  string
	animEnd    *pending
	tasks      map[*pending]struct{}
	onDestroy  []func(*Tracker)
}

// NewTracker creates a tracker that is not bound to an entity.
func NewTracker(bp *model.Blueprint, modifier Modifier, cfg Config) *Tracker {
	return newTracker(bp, modifier, StaticSource(1), cfg)
}

func newTracker(bp *model.Blueprint, modifier Modifier, source Source, cfg Config) *Tracker {
	cfg = cfg.withDefaults()
	t := &Tracker{
		id:        uuid.New(),
		blueprint: bp,
		modifier:  modifier,
		source:    source,
		cfg:       cfg,
		state:     Active,
		bones:     bp.NewHierarchy(),
		scaler:    EntityScale(),
		tasks:     make(map[*pending]struct{}),
	}
	t.logger = cfg.Logger.With(
		log.String("component", "tracker"),
		log.String("model", bp.ID),
		log.Stringer("tracker", t.id),
	)
	t.dispatcher = NewDispatcher(cfg.Scheduler, t.logger)
	return t
}

func (t *Tracker) ID() uuid.UUID               { return t.id }
func (t *Tracker) ModelID() string             { return t.blueprint.ID }
func (t *Tracker) Blueprint() *model.Blueprint { return t.blueprint }
func (t *Tracker) Modifier() Modifier          { return t.modifier }

func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) Destroyed() bool {
	return t.State() == Destroyed
}

// Animation returns the name of the playing animation, if any.
func (t *Tracker) Animation() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.animation
}

// PendingTasks counts tasks scheduled on behalf of the
// tracker that have neither run nor been cancelled.
func (t *Tracker) PendingTasks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tasks)
}

// DamageTintTask returns the handle of the pending damage tint expiry.
func (t *Tracker) DamageTintTask() (scheduler.Task, bool) {
	t.mu.RLock()
	p := t.damageEnd
	t.mu.RUnlock()
	if p == nil {
		return nil, false
	}
	return p.handle(), true
}

// SetScaler replaces the scaler. A nil scaler restores EntityScale.
func (t *Tracker) SetScaler(s Scaler) {
	if s == nil {
		s = EntityScale()
	}
	t.mu.Lock()
	t.scaler = s
	t.mu.Unlock()
}

func (t *Tracker) Scaler() Scaler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scaler
}

// Scale is the effective render scale.
func (t *Tracker) Scale() float64 {
	return t.Scaler().Scale(t.source)
}

// Update applies action to every bone selected by pred. A nil predicate
// selects every bone.
func (t *Tracker) Update(ctx context.Context, action UpdateAction, pred bone.Predicate) error {
	if action == nil {
		return ErrInvalidAction
	}
	return t.onSimulation(ctx, func(context.Context) error {
		return t.apply(action, pred)
	})
}

func (t *Tracker) apply(action UpdateAction, pred bone.Predicate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Destroyed {
		return ErrTrackerDestroyed
	}
	for _, b := range t.bones.Select(pred) {
		applyAction(b, action)
	}
	return nil
}

// DamageTintValue tints every bone with color until the damage tint
// expires. A second call replaces the color and restarts the expiry, so only
// one expiry is ever pending. If the host refuses the expiry task the tint is
// not applied at all.
func (t *Tracker) DamageTintValue(ctx context.Context, color uint32) error {
	color &= 0xFFFFFF
	return t.onSimulation(ctx, func(context.Context) error {
		return t.damage(color)
	})
}

func (t *Tracker) damage(color uint32) error {
	var expiry *pending
	expiry, err := t.schedule(t.cfg.DamageTintTicks, func(context.Context) {
		t.expireDamageTint(expiry)
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.state == Destroyed {
		t.mu.Unlock()
		expiry.cancel()
		return ErrTrackerDestroyed
	}
	previous := t.swapDamageEnd(expiry)
	t.damageTint = color
	t.state = DamageTinted
	t.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}
	return nil
}

func (t *Tracker) expireDamageTint(p *pending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.damageEnd != p {
		return
	}
	t.damageEnd = nil
	if t.state == DamageTinted {
		t.state = Active
	}
}

// CancelDamageTint reverts the damage tint immediately and cancels its
// expiry. It does nothing when no damage tint is showing.
func (t *Tracker) CancelDamageTint(ctx context.Context) error {
	return t.onSimulation(ctx, func(context.Context) error {
		t.mu.Lock()
		if t.state == Destroyed {
			t.mu.Unlock()
			return ErrTrackerDestroyed
		}
		previous := t.swapDamageEnd(nil)
		if t.state == DamageTinted {
			t.state = Active
		}
		t.mu.Unlock()

		if previous != nil {
			previous.cancel()
		}
		return nil
	})
}

// swapDamageEnd must be called with mu held.
func (t *Tracker) swapDamageEnd(p *pending) *pending {
	previous := t.damageEnd
	if previous != nil {
		delete(t.tasks, previous)
	}
	t.damageEnd = p
	return previous
}

// Animate starts the named animation and dispatches its script.
func (t *Tracker) Animate(ctx context.Context, name string) error {
	anim, ok := t.blueprint.Animation(name)
	if !ok {
		return fmt.Errorf("%w: %s on model %s", model.ErrUnknownAnimation, name, t.blueprint.ID)
	}
	return t.onSimulation(ctx, func(ctx context.Context) error {
		return t.play(ctx, anim)
	})
}

func (t *Tracker) play(ctx context.Context, anim model.Animation) error {
	var script AnimationScript
	if anim.Script != "" && t.cfg.Scripts != nil {
		s, err := t.cfg.Scripts.Build(anim.Script)
		if err != nil {
			return fmt.Errorf("animation %s: %w", anim.Name, err)
		}
		script = s
	}

	var end *pending
	if !anim.Loop && anim.Length > 0 {
		var err error
		end, err = t.schedule(anim.Length, func(context.Context) {
			t.stopAnimation(end)
		})
		if err != nil {
			return err
		}
	}

	t.mu.Lock()
	if t.state == Destroyed {
		t.mu.Unlock()
		if end != nil {
			end.cancel()
		}
		return ErrTrackerDestroyed
	}
	previous := t.animEnd
	if previous != nil {
		delete(t.tasks, previous)
	}
	t.animEnd = end
	t.animation = anim.Name
	t.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}

	t.logger.Debug("Animation started", log.String("animation", anim.Name))
	if script == nil {
		return nil
	}
	return t.dispatcher.Dispatch(ctx, t, script)
}

func (t *Tracker) stopAnimation(p *pending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.animEnd != p {
		return
	}
	t.animEnd = nil
	t.animation = ""
}

// Dispatch routes scripts to the execution context each one requires.
func (t *Tracker) Dispatch(ctx context.Context, scripts ...AnimationScript) error {
	return t.dispatcher.Dispatch(ctx, t, scripts...)
}

// Snapshot copies the visible state. While the damage tint is showing every
// bone reports the damage color; the underlying tint is kept and comes back
// once the tint expires or is cancelled.
func (t *Tracker) Snapshot() RenderState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rs := RenderState{
		TrackerID: t.id,
		ModelID:   t.blueprint.ID,
		State:     t.state,
		Scale:     t.scaler.Scale(t.source),
		Animation: t.animation,
		Bones:     t.bones.Views(),
	}
	if e, ok := t.source.(Entity); ok {
		rs.EntityID = e.UUID()
	}
	if t.state == DamageTinted {
		for i := range rs.Bones {
			rs.Bones[i].State.Tint = t.damageTint
		}
	}
	return rs
}

// Bone returns the visible state of one bone.
func (t *Tracker) Bone(name string) (bone.State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bones.Bone(name)
	if !ok {
		return bone.State{}, false
	}
	s := b.State()
	if t.state == DamageTinted {
		s.Tint = t.damageTint
	}
	return s, true
}

// Destroy tears the tracker down. Every pending task is cancelled before it
// returns and the bone tree is released. Destroy reports whether this call
// performed the teardown.
func (t *Tracker) Destroy() bool {
	t.mu.Lock()
	if t.state == Destroyed {
		t.mu.Unlock()
		return false
	}
	t.state = Destroyed
	tasks := t.tasks
	t.tasks = make(map[*pending]struct{})
	t.damageEnd = nil
	t.animEnd = nil
	t.animation = ""
	t.bones.Release()
	hooks := t.onDestroy
	t.onDestroy = nil
	t.mu.Unlock()

	for p := range tasks {
		p.cancel()
	}
	for _, fn := range hooks {
		fn(t)
	}
	t.logger.Debug("Tracker destroyed", log.Int("cancelledTasks", len(tasks)))
	return true
}

// OnDestroy registers fn to run after the tracker is destroyed. It runs
// immediately when the tracker is already gone.
func (t *Tracker) OnDestroy(fn func(*Tracker)) {
	t.mu.Lock()
	if t.state != Destroyed {
		t.onDestroy = append(t.onDestroy, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn(t)
}

// onSimulation runs fn now when ctx belongs to the simulation thread and
// marshals it onto the next tick otherwise.
func (t *Tracker) onSimulation(ctx context.Context, fn func(context.Context) error) error {
	if t.Destroyed() {
		return ErrTrackerDestroyed
	}
	if !t.source.Valid() {
		return ErrInvalidTarget
	}
	if scheduler.IsSimulation(ctx) {
		return fn(ctx)
	}
	_, err := t.schedule(0, func(ctx context.Context) {
		if err := fn(ctx); err != nil && !errors.Is(err, ErrTrackerDestroyed) {
			t.logger.Warn("Deferred tracker update failed", log.Error(err))
		}
	})
	return err
}

// schedule submits fn to the simulation thread and tracks the task until it
// runs, so Destroy can cancel it.
func (t *Tracker) schedule(delay int64, fn scheduler.Func) (*pending, error) {
	if t.cfg.Scheduler == nil {
		return nil, ErrSchedulerDisabled
	}
	return t.track(func(run scheduler.Func) scheduler.Task {
		return t.cfg.Scheduler.TaskLater(delay, run)
	}, fn)
}

// scheduleAsync hands fn to the worker pool of sched. The task is tracked
// like simulation work until it starts.
func (t *Tracker) scheduleAsync(sched scheduler.Scheduler, fn scheduler.Func) (*pending, error) {
	if sched == nil {
		return nil, ErrSchedulerDisabled
	}
	return t.track(sched.AsyncTask, fn)
}

func (t *Tracker) track(submit func(scheduler.Func) scheduler.Task, fn scheduler.Func) (*pending, error) {
	p := &pending{}
	t.mu.Lock()
	if t.state == Destroyed {
		t.mu.Unlock()
		return nil, ErrTrackerDestroyed
	}
	t.tasks[p] = struct{}{}
	t.mu.Unlock()

	task := submit(func(ctx context.Context) {
		t.mu.Lock()
		_, live := t.tasks[p]
		delete(t.tasks, p)
		t.mu.Unlock()
		if live {
			fn(ctx)
		}
	})
	if task == nil {
		t.mu.Lock()
		delete(t.tasks, p)
		t.mu.Unlock()
		return nil, ErrSchedulerDisabled
	}
	p.bind(task)
	return p, nil
}

// pending links a tracker to a scheduled task whose handle may not be known
// yet when it has to be cancelled.
type pending struct {
	mu        sync.Mutex
	task      scheduler.Task
	cancelled bool
}

func (p *pending) bind(task scheduler.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.task = task
	if p.cancelled {
		task.Cancel()
	}
}

func (p *pending) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	if p.task != nil {
		p.task.Cancel()
	}
}

func (p *pending) handle() scheduler.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task
}
