package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeusync/modelsync/internal/core/model"
)

// EntityTracker is a tracker bound to a host entity.
type EntityTracker struct {
	*Tracker
	entity Entity
}

// NewEntityTracker binds a new tracker of bp to entity.
func NewEntityTracker(entity Entity, bp *model.Blueprint, modifier Modifier, cfg Config) (*EntityTracker, error) {
	if entity == nil || !entity.Valid() {
		return nil, ErrInvalidTarget
	}
	if bp == nil {
		return nil, fmt.Errorf("%w: nil blueprint", ErrInvalidTarget)
	}
	return &EntityTracker{
		Tracker: newTracker(bp, modifier, entity, cfg),
		entity:  entity,
	}, nil
}

func (e *EntityTracker) Entity() Entity     { return e.entity }
func (e *EntityTracker) EntityID() EntityID { return e.entity.UUID() }

// OnDamage plays the damage reaction selected by the modifier.
func (e *EntityTracker) OnDamage(ctx context.Context) error {
	var errs []error
	if e.modifier.DamageTint {
		if err := e.DamageTintValue(ctx, e.cfg.DamageTintColor); err != nil {
			errs = append(errs, err)
		}
	}
	if e.modifier.DamageAnimation {
		if _, ok := e.blueprint.Animation(model.DamageAnimation); ok {
			if err := e.Animate(ctx, model.DamageAnimation); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// VisibleTo reports whether viewer should see the model. Without sight
// tracing, or without a tracer, the model is always visible while alive.
func (e *EntityTracker) VisibleTo(viewer EntityID, tracer SightTracer) bool {
	if e.Destroyed() || !e.entity.Valid() {
		return false
	}
	if !e.modifier.SightTrace || tracer == nil || viewer == e.EntityID() {
		return true
	}
	return tracer.LineOfSight(viewer, e.EntityID())
}
