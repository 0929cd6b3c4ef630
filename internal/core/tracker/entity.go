package tracker

import "github.com/google/uuid"

// EntityID is the host world's stable identity of a live entity.
type EntityID = uuid.UUID

// Entity adapts a host world entity. Implementations must be safe to call
// from any goroutine; they are only read.
type Entity interface {
	Source
	UUID() EntityID
}

// SightTracer answers line-of-sight queries against the host world.
type SightTracer interface {
	LineOfSight(viewer, target EntityID) bool
}
