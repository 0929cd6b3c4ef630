package tracker

import (
	"context"
	"errors"

	"github.com/zeusync/modelsync/internal/core/bone"
	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
)

// AnimationScript is a unit of behavior applied to a tracker, typically when
// an animation starts. IsSync reports whether Accept has to run on the
// simulation thread.
type AnimationScript interface {
	Accept(ctx context.Context, t *Tracker) error
	IsSync() bool
}

// TintScript tints the selected bones, or flashes the damage tint when
// DamageTint is set. It may run off the simulation thread.
type TintScript struct {
	Predicate  bone.Predicate
	Color      uint32
	DamageTint bool
}

func (s TintScript) Accept(ctx context.Context, t *Tracker) error {
	if s.DamageTint {
		return t.DamageTintValue(ctx, s.Color)
	}
	if err := t.CancelDamageTint(ctx); err != nil {
		return err
	}
	return t.Update(ctx, TintAction(s.Color), s.Predicate)
}

func (TintScript) IsSync() bool { return false }

// BrightnessScript overrides the light of the selected bones.
type BrightnessScript struct {
	Predicate bone.Predicate
	Block     int
	Sky       int
}

func (s BrightnessScript) Accept(ctx context.Context, t *Tracker) error {
	return t.Update(ctx, BrightnessAction(s.Block, s.Sky), s.Predicate)
}

func (BrightnessScript) IsSync() bool { return true }

// AnimateScript chains into another animation of the same model.
type AnimateScript struct {
	Animation string
}

func (s AnimateScript) Accept(ctx context.Context, t *Tracker) error {
	return t.Animate(ctx, s.Animation)
}

func (AnimateScript) IsSync() bool { return true }

// Sequence runs its scripts in order. It is synchronous if any part is.
type Sequence []AnimationScript

func (s Sequence) Accept(ctx context.Context, t *Tracker) error {
	for _, script := range s {
		if err := script.Accept(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s Sequence) IsSync() bool {
	for _, script := range s {
		if script.IsSync() {
			return true
		}
	}
	return false
}

// Dispatcher routes scripts to the simulation thread or the async pool.
type Dispatcher struct {
	sched  scheduler.Scheduler
	logger log.Log
}

func NewDispatcher(sched scheduler.Scheduler, logger log.Log) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{sched: sched, logger: logger}
}

// Dispatch submits each script in order. Synchronous scripts run inline when
// ctx already belongs to the simulation thread and are otherwise queued as
// tracker tasks. Asynchronous scripts always go to the worker pool. Both kinds
// are tracked, so destroying the tracker cancels them. Submission errors are
// joined.
func (d *Dispatcher) Dispatch(ctx context.Context, t *Tracker, scripts ...AnimationScript) error {
	var errs []error
	for _, s := range scripts {
		if s == nil {
			continue
		}
		if t.Destroyed() {
			return ErrTrackerDestroyed
		}

		if !s.IsSync() {
			if _, err := t.scheduleAsync(d.sched, func(ctx context.Context) { d.run(ctx, t, s) }); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if scheduler.IsSimulation(ctx) {
			if err := s.Accept(ctx, t); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if _, err := t.schedule(0, func(ctx context.Context) { d.run(ctx, t, s) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) run(ctx context.Context, t *Tracker, s AnimationScript) {
	err := s.Accept(ctx, t)
	switch {
	case err == nil, errors.Is(err, ErrTrackerDestroyed):
	case errors.Is(err, ErrSchedulerDisabled):
		d.logger.Debug("Script work dropped by disabled scheduler")
	default:
		d.logger.Warn("Animation script failed", log.Error(err))
	}
}
