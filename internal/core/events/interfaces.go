package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the routing key of an Event.
type Type string

const (
	// EntityRemoved is published by the host when an entity leaves the world
	// or becomes invalid.
	EntityRemoved Type = "entity.removed"
	// PluginEnabled and PluginDisabled drive the scheduling lifecycle.
	PluginEnabled  Type = "plugin.enabled"
	PluginDisabled Type = "plugin.disabled"
	// TrackerAttached and TrackerDetached are published by the registry.
	TrackerAttached Type = "tracker.attached"
	TrackerDetached Type = "tracker.detached"
)

// Event is an immutable lifecycle notification. Fields that do not apply to
// a type are left zero.
type Event struct {
	Type      Type      `json:"type"`
	Source    string    `json:"source,omitempty"`
	EntityID  uuid.UUID `json:"entity,omitempty"`
	ModelID   string    `json:"model,omitempty"`
	TrackerID uuid.UUID `json:"tracker,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// New creates an Event stamped with the current time.
func New(typ Type, source string) Event {
	return Event{Type: typ, Source: source, Timestamp: time.Now()}
}

func (e Event) WithEntity(id uuid.UUID) Event {
	e.EntityID = id
	return e
}

func (e Event) WithTracker(modelID string, trackerID uuid.UUID) Event {
	e.ModelID = modelID
	e.TrackerID = trackerID
	return e
}

// Handler is invoked per delivered event. Returned errors are joined and
// handed back to the publisher.
type Handler func(event Event) error

// Bus is a thread-safe, in-process pub/sub bus for lifecycle signals.
//
// Delivery is synchronous in the publisher's goroutine; handlers should
// return quickly or hand work to the scheduler.
type Bus interface {
	Publish(event Event) error
	// PublishAsync publishes in a separate goroutine; the channel receives the
	// joined handler error (or nil) and is then closed.
	PublishAsync(event Event) <-chan error
	Subscribe(typ Type, handler Handler) (Subscription, error)
	// Unsubscribe cancels sub. Nil is accepted and ignored.
	Unsubscribe(sub Subscription) error
	Metrics() Metrics
}

// Subscription is a registered handler. Cancel is idempotent.
type Subscription interface {
	ID() string
	Type() Type
	IsActive() bool
	Cancel() error
}

// Metrics is a snapshot of bus counters.
type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	Subscribers       uint64
}
