package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/modelsync/internal/core/events"
	"github.com/zeusync/modelsync/internal/core/scheduler"
)

type registryFixture struct {
	registry *Registry
	sched    *scheduler.TickScheduler
	bus      events.Bus
	detached []string
	mu       sync.Mutex
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		sched: newTestScheduler(t),
		bus:   events.NewBus(),
	}
	f.registry = NewRegistry(RegistryOptions{Shards: 4, Bus: f.bus})
	_, err := f.bus.Subscribe(events.TrackerDetached, func(ev events.Event) error {
		f.mu.Lock()
		f.detached = append(f.detached, ev.ModelID)
		f.mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return f
}

func (f *registryFixture) attach(t *testing.T, e Entity, modelID string) (*EntityTracker, error) {
	t.Helper()
	entry, err := f.registry.RegisterOrGet(e)
	require.NoError(t, err)
	bp := testBlueprint()
	bp.ID = modelID
	tr, err := NewEntityTracker(e, bp, DefaultModifier, testConfig(f.sched))
	require.NoError(t, err)
	return entry.Attach(modelID, tr)
}

func (f *registryFixture) detachedModels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.detached...)
}

func TestRegistry_RegisterOrGet(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()

	first, err := f.registry.RegisterOrGet(e)
	require.NoError(t, err)
	second, err := f.registry.RegisterOrGet(e)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.registry.Len())

	got, ok := f.registry.Lookup(e.id)
	require.True(t, ok)
	assert.Same(t, first, got)

	_, err = f.registry.RegisterOrGet(nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	gone := newTestEntity()
	gone.remove()
	_, err = f.registry.RegisterOrGet(gone)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestEntry_AttachTwiceFails(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()

	first, err := f.attach(t, e, "zombie_elite")
	require.NoError(t, err)

	_, err = f.attach(t, e, "zombie_elite")
	require.ErrorIs(t, err, ErrAlreadyAttached)

	got, ok := f.registry.Tracker(e.id, "zombie_elite")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.False(t, first.Destroyed())
}

func TestEntry_AttachRemoveAttach(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()

	first, err := f.attach(t, e, "zombie_elite")
	require.NoError(t, err)

	entry, _ := f.registry.Lookup(e.id)
	require.True(t, entry.Remove("zombie_elite"))
	assert.True(t, first.Destroyed())
	assert.False(t, entry.Remove("zombie_elite"))

	second, err := f.attach(t, e, "zombie_elite")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"zombie_elite"}, f.detachedModels())
}

func TestEntry_AttachDestroyedTracker(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()
	entry, err := f.registry.RegisterOrGet(e)
	require.NoError(t, err)

	tr, err := NewEntityTracker(e, testBlueprint(), DefaultModifier, testConfig(f.sched))
	require.NoError(t, err)
	tr.Destroy()

	_, err = entry.Attach("zombie_elite", tr)
	require.ErrorIs(t, err, ErrTrackerDestroyed)
	_, err = entry.Attach("zombie_elite", nil)
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestEntry_DirectDestroyDetaches(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()

	tr, err := f.attach(t, e, "zombie_elite")
	require.NoError(t, err)
	tr.Destroy()

	_, ok := f.registry.Tracker(e.id, "zombie_elite")
	assert.False(t, ok)
	assert.Equal(t, []string{"zombie_elite"}, f.detachedModels())
}

func TestRegistry_RemoveEntityDestroysAll(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()

	a, err := f.attach(t, e, "b_model")
	require.NoError(t, err)
	b, err := f.attach(t, e, "a_model")
	require.NoError(t, err)
	require.NoError(t, a.DamageTintValue(sim(), 0xFF0000))
	expiry, _ := a.DamageTintTask()

	assert.Equal(t, 2, f.registry.RemoveEntity(e.id))
	assert.True(t, a.Destroyed())
	assert.True(t, b.Destroyed())
	assert.True(t, expiry.IsCancelled())
	assert.Zero(t, f.sched.Pending())
	assert.Equal(t, []string{"a_model", "b_model"}, f.detachedModels())

	_, ok := f.registry.Lookup(e.id)
	assert.False(t, ok)
	assert.Zero(t, f.registry.RemoveEntity(e.id))
}

func TestRegistry_RemovedEntryRefusesAttach(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()
	entry, err := f.registry.RegisterOrGet(e)
	require.NoError(t, err)

	f.registry.RemoveEntity(e.id)
	tr, err := NewEntityTracker(e, testBlueprint(), DefaultModifier, testConfig(f.sched))
	require.NoError(t, err)
	_, err = entry.Attach("zombie_elite", tr)
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestRegistry_Sweep(t *testing.T) {
	f := newRegistryFixture(t)
	alive, dead := newTestEntity(), newTestEntity()

	_, err := f.attach(t, alive, "zombie_elite")
	require.NoError(t, err)
	gone, err := f.attach(t, dead, "zombie_elite")
	require.NoError(t, err)

	dead.remove()
	assert.Equal(t, 1, f.registry.Sweep())
	assert.True(t, gone.Destroyed())
	assert.Equal(t, 1, f.registry.Len())
	assert.Zero(t, f.registry.Sweep())
}

func TestRegistry_Cleanup(t *testing.T) {
	f := newRegistryFixture(t)
	empty, busy := newTestEntity(), newTestEntity()

	_, err := f.registry.RegisterOrGet(empty)
	require.NoError(t, err)
	_, err = f.attach(t, busy, "zombie_elite")
	require.NoError(t, err)

	assert.Equal(t, 1, f.registry.Cleanup())
	assert.Equal(t, 1, f.registry.Len())
	_, ok := f.registry.Lookup(empty.id)
	assert.False(t, ok)
}

func TestRegistry_CleanupAfterDetach(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()
	_, err := f.attach(t, e, "zombie_elite")
	require.NoError(t, err)

	entry, ok := f.registry.Lookup(e.id)
	require.True(t, ok)
	require.True(t, entry.Remove("zombie_elite"))

	assert.Zero(t, f.registry.Sweep())
	assert.Equal(t, 1, f.registry.Cleanup())
	assert.Zero(t, f.registry.Len())
}

func TestRegistry_AttachReplacesRetiredEntry(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()
	stale, err := f.registry.RegisterOrGet(e)
	require.NoError(t, err)
	require.Equal(t, 1, f.registry.Cleanup())

	tr, err := NewEntityTracker(e, testBlueprint(), DefaultModifier, testConfig(f.sched))
	require.NoError(t, err)

	_, err = stale.Attach("zombie_elite", tr)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.False(t, tr.Destroyed())

	got, err := f.registry.Attach(e, "zombie_elite", tr)
	require.NoError(t, err)
	assert.Same(t, tr, got)
	assert.Equal(t, 1, f.registry.Len())

	fresh, ok := f.registry.Lookup(e.id)
	require.True(t, ok)
	assert.NotSame(t, stale, fresh)
	attached, ok := fresh.Tracker("zombie_elite")
	require.True(t, ok)
	assert.Same(t, tr, attached)
}

func TestRegistry_AttachRacesCleanup(t *testing.T) {
	f := newRegistryFixture(t)
	entities := make([]*testEntity, 64)
	for i := range entities {
		entities[i] = newTestEntity()
	}

	stop := make(chan struct{})
	var cleaner sync.WaitGroup
	cleaner.Add(1)
	go func() {
		defer cleaner.Done()
		for {
			select {
			case <-stop:
				return
			default:
				f.registry.Cleanup()
			}
		}
	}()

	for _, e := range entities {
		tr, err := NewEntityTracker(e, testBlueprint(), DefaultModifier, testConfig(f.sched))
		require.NoError(t, err)
		_, err = f.registry.Attach(e, "zombie_elite", tr)
		require.NoError(t, err)
	}
	close(stop)
	cleaner.Wait()

	for _, e := range entities {
		_, ok := f.registry.Tracker(e.id, "zombie_elite")
		assert.True(t, ok)
	}
}

func TestRegistry_SnapshotAndClose(t *testing.T) {
	f := newRegistryFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.attach(t, newTestEntity(), "zombie_elite")
		require.NoError(t, err)
	}

	snapshot := f.registry.Snapshot()
	require.Len(t, snapshot, 3)
	for _, rs := range snapshot {
		assert.Equal(t, "zombie_elite", rs.ModelID)
		assert.NotEqual(t, EntityID{}, rs.EntityID)
	}

	assert.Equal(t, 3, f.registry.Close())
	assert.Zero(t, f.registry.Len())
	_, err := f.registry.RegisterOrGet(newTestEntity())
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestRegistry_ConcurrentAttachSameModel(t *testing.T) {
	f := newRegistryFixture(t)
	e := newTestEntity()
	entry, err := f.registry.RegisterOrGet(e)
	require.NoError(t, err)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		attached int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := NewEntityTracker(e, testBlueprint(), DefaultModifier, testConfig(f.sched))
			if err != nil {
				return
			}
			_, err = entry.Attach("zombie_elite", tr)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				attached++
			} else if assert.ErrorIs(t, err, ErrAlreadyAttached) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, attached)
	assert.Equal(t, workers-1, rejected)
	assert.Equal(t, 1, entry.Len())
}
