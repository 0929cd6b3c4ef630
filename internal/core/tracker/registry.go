package tracker

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/modelsync/internal/core/events"
	"github.com/zeusync/modelsync/internal/core/observability/log"
)

const DefaultShards = 32

// errEntryRetired is returned by Entry.Attach when Cleanup dropped the entry
// between lookup and attach. Registry.Attach retries on a fresh entry.
var errEntryRetired = fmt.Errorf("%w: registry entry retired", ErrInvalidTarget)

type RegistryOptions struct {
	Shards int
	// Bus receives tracker.attached and tracker.detached events. Optional.
	Bus    events.Bus
	Logger log.Log
}

// Registry maps live entities to the trackers attached to them. It is safe
// for concurrent use; entities are spread over shards keyed by a hash of
// their id.
type Registry struct {
	shards []registryShard
	bus    events.Bus
	logger log.Log
	closed atomic.Bool
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[EntityID]*Entry
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Shards <= 0 {
		opts.Shards = DefaultShards
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	r := &Registry{
		shards: make([]registryShard, opts.Shards),
		bus:    opts.Bus,
		logger: opts.Logger.With(log.String("component", "tracker_registry")),
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[EntityID]*Entry)
	}
	return r
}

func (r *Registry) shard(id EntityID) *registryShard {
	return &r.shards[xxhash.Sum64(id[:])%uint64(len(r.shards))]
}

// Lookup returns the registry entry of an entity, if one exists.
func (r *Registry) Lookup(id EntityID) (*Entry, bool) {
	s := r.shard(id)
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

// RegisterOrGet returns the entry of entity, creating it on first use. It
// fails with ErrInvalidTarget for nil or invalid entities and after Close.
func (r *Registry) RegisterOrGet(entity Entity) (*Entry, error) {
	if entity == nil || !entity.Valid() {
		return nil, ErrInvalidTarget
	}
	if r.closed.Load() {
		return nil, fmt.Errorf("%w: registry closed", ErrInvalidTarget)
	}

	id := entity.UUID()
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	e := newEntry(r, entity)
	s.entries[id] = e
	return e, nil
}

// Tracker resolves the tracker of modelID attached to entity id.
func (r *Registry) Tracker(id EntityID, modelID string) (*EntityTracker, bool) {
	e, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return e.Tracker(modelID)
}

// Attach binds t to entity under modelID, registering the entity on first
// use. An entry retired by a concurrent Cleanup is replaced.
func (r *Registry) Attach(entity Entity, modelID string, t *EntityTracker) (*EntityTracker, error) {
	for {
		e, err := r.RegisterOrGet(entity)
		if err != nil {
			return nil, err
		}
		attached, err := e.Attach(modelID, t)
		if errors.Is(err, errEntryRetired) {
			continue
		}
		return attached, err
	}
}

// RemoveEntity destroys every tracker of the entity and forgets it. It
// returns the number of trackers destroyed.
func (r *Registry) RemoveEntity(id EntityID) int {
	s := r.shard(id)
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return e.close()
}

func (r *Registry) removeEntry(e *Entry) int {
	s := r.shard(e.ID())
	s.mu.Lock()
	current, ok := s.entries[e.ID()]
	if ok && current == e {
		delete(s.entries, e.ID())
	}
	s.mu.Unlock()
	if !ok || current != e {
		return 0
	}
	return e.close()
}

// Sweep removes the entries of entities that are no longer valid in the
// host world and returns how many trackers were destroyed.
func (r *Registry) Sweep() int {
	var stale []*Entry
	r.each(func(e *Entry) {
		if !e.entity.Valid() {
			stale = append(stale, e)
		}
	})

	removed := 0
	for _, e := range stale {
		removed += r.removeEntry(e)
	}
	if len(stale) > 0 {
		r.logger.Debug("Swept invalid entities",
			log.Int("entities", len(stale)),
			log.Int("trackers", removed),
		)
	}
	return removed
}

// Cleanup forgets entries that hold no trackers and returns how many were
// dropped.
func (r *Registry) Cleanup() int {
	dropped := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id, e := range s.entries {
			if e.retireIfEmpty() {
				delete(s.entries, id)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}

// Close destroys every tracker and refuses new registrations.
func (r *Registry) Close() int {
	r.closed.Store(true)
	var all []*Entry
	r.each(func(e *Entry) { all = append(all, e) })

	removed := 0
	for _, e := range all {
		removed += r.removeEntry(e)
	}
	return removed
}

// Len counts registered entities.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Trackers returns every live tracker.
func (r *Registry) Trackers() []*EntityTracker {
	var out []*EntityTracker
	r.each(func(e *Entry) { out = append(out, e.Trackers()...) })
	return out
}

// Snapshot copies the render state of every live tracker.
func (r *Registry) Snapshot() []RenderState {
	trackers := r.Trackers()
	out := make([]RenderState, 0, len(trackers))
	for _, t := range trackers {
		if t.Destroyed() {
			continue
		}
		out = append(out, t.Snapshot())
	}
	return out
}

func (r *Registry) each(fn func(*Entry)) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		entries := slices.Collect(maps.Values(s.entries))
		s.mu.RUnlock()
		for _, e := range entries {
			fn(e)
		}
	}
}

func (r *Registry) publish(typ events.Type, t *EntityTracker) {
	if r.bus == nil {
		return
	}
	ev := events.New(typ, "tracker_registry").
		WithEntity(t.EntityID()).
		WithTracker(t.ModelID(), t.ID())
	if err := r.bus.Publish(ev); err != nil {
		r.logger.Warn("Event handler failed", log.String("event", string(typ)), log.Error(err))
	}
}

// Entry holds the trackers of one entity, keyed by model id. Reads are
// lock-free against a copy-on-write map; writers serialize on the entry.
type Entry struct {
	registry *Registry
	entity   Entity

	mu       sync.Mutex
	closed   bool
	retired  bool
	trackers atomic.Pointer[map[string]*EntityTracker]
}

func newEntry(r *Registry, entity Entity) *Entry {
	e := &Entry{registry: r, entity: entity}
	empty := make(map[string]*EntityTracker)
	e.trackers.Store(&empty)
	return e
}

func (e *Entry) ID() EntityID   { return e.entity.UUID() }
func (e *Entry) Entity() Entity { return e.entity }

func (e *Entry) Tracker(modelID string) (*EntityTracker, bool) {
	t, ok := (*e.trackers.Load())[modelID]
	return t, ok
}

// Trackers returns the attached trackers ordered by model id.
func (e *Entry) Trackers() []*EntityTracker {
	m := *e.trackers.Load()
	out := make([]*EntityTracker, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[id])
	}
	return out
}

func (e *Entry) Len() int {
	return len(*e.trackers.Load())
}

// Attach binds t under modelID. Attaching a model that is already attached
// fails with ErrAlreadyAttached and leaves the existing tracker untouched.
func (e *Entry) Attach(modelID string, t *EntityTracker) (*EntityTracker, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tracker for model %s", ErrInvalidTarget, modelID)
	}

	e.mu.Lock()
	switch {
	case e.retired:
		e.mu.Unlock()
		return nil, errEntryRetired
	case e.closed:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: entity %s was removed", ErrInvalidTarget, e.ID())
	case t.Destroyed():
		e.mu.Unlock()
		return nil, ErrTrackerDestroyed
	}
	current := *e.trackers.Load()
	if _, exists := current[modelID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s on entity %s", ErrAlreadyAttached, modelID, e.ID())
	}
	next := maps.Clone(current)
	next[modelID] = t
	e.trackers.Store(&next)
	e.mu.Unlock()

	t.OnDestroy(func(*Tracker) { e.forget(modelID, t) })
	e.registry.publish(events.TrackerAttached, t)
	return t, nil
}

// Remove destroys and detaches the tracker of modelID. It reports whether a
// tracker was attached.
func (e *Entry) Remove(modelID string) bool {
	e.mu.Lock()
	current := *e.trackers.Load()
	t, ok := current[modelID]
	if ok {
		next := maps.Clone(current)
		delete(next, modelID)
		e.trackers.Store(&next)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}

	t.Destroy()
	e.registry.publish(events.TrackerDetached, t)
	return true
}

// forget drops t if it is still the tracker of modelID. It runs when a
// tracker is destroyed without going through the registry.
func (e *Entry) forget(modelID string, t *EntityTracker) {
	e.mu.Lock()
	current := *e.trackers.Load()
	if current[modelID] != t {
		e.mu.Unlock()
		return
	}
	next := maps.Clone(current)
	delete(next, modelID)
	e.trackers.Store(&next)
	e.mu.Unlock()

	e.registry.publish(events.TrackerDetached, t)
}

// close marks the entry removed and destroys all of its trackers.
func (e *Entry) close() int {
	e.mu.Lock()
	e.closed = true
	current := *e.trackers.Load()
	empty := make(map[string]*EntityTracker)
	e.trackers.Store(&empty)
	e.mu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(current)) {
		t := current[id]
		t.Destroy()
		e.registry.publish(events.TrackerDetached, t)
	}
	return len(current)
}

func (e *Entry) retireIfEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(*e.trackers.Load()) > 0 {
		return false
	}
	e.retired = true
	return true
}
