package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/modelsync/internal/core/bone"
	"github.com/zeusync/modelsync/internal/core/events"
	"github.com/zeusync/modelsync/internal/core/model"
	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
	"github.com/zeusync/modelsync/internal/core/script"
	"github.com/zeusync/modelsync/internal/core/tracker"
)

type mob struct {
	id    uuid.UUID
	scale float64
	dead  atomic.Bool
}

func newMob() *mob { return &mob{id: uuid.New(), scale: 1} }

func (m *mob) UUID() tracker.EntityID { return m.id }
func (m *mob) Scale() float64         { return m.scale }
func (m *mob) Valid() bool            { return !m.dead.Load() }

type fixture struct {
	engine   *Engine
	registry *tracker.Registry
	sched    *scheduler.TickScheduler
	bus      events.Bus
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	catalog := model.NewCatalog()
	require.NoError(t, catalog.Register(&model.Blueprint{
		ID: "zombie_elite",
		Bones: []bone.Definition{
			{Name: "body", Children: []bone.Definition{
				{Name: "h_head"},
				{Name: "arm_left"},
				{Name: "arm_right"},
			}},
		},
		Animations: []model.Animation{
			{Name: "roar", Length: 4, Script: "brightness{block=15;sky=15;bones=head}"},
			{Name: model.DamageAnimation, Length: 2},
		},
	}))

	sched := scheduler.New(scheduler.Options{TickInterval: time.Millisecond, Workers: 2, Logger: log.NewNop()})
	t.Cleanup(func() { _ = sched.Close() })
	bus := events.NewBus()
	registry := tracker.NewRegistry(tracker.RegistryOptions{Bus: bus})

	e, err := New(opts, catalog, registry, sched, script.NewManager(), bus, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return &fixture{engine: e, registry: registry, sched: sched, bus: bus}
}

func (f *fixture) tick(n int) {
	for i := 0; i < n; i++ {
		f.sched.Tick(context.Background())
	}
}

func TestEngine_ZombieEliteBrightness(t *testing.T) {
	f := newFixture(t, Options{})
	u := newMob()

	tr, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, func(tracker.Entity) tracker.Scaler {
		return tracker.Multiply(tracker.EntityScale(), 1.0)
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, tr.Scale())

	res := f.engine.Apply(context.Background(), u.id, "zombie_elite", tracker.BrightnessAction(5, -1), bone.All())
	require.Equal(t, Success, res)
	f.tick(1)

	for _, b := range tr.Snapshot().Bones {
		assert.Equal(t, 5, b.State.Brightness.Block, b.Name)
		assert.Equal(t, -1, b.State.Brightness.Sky, b.Name)
	}
}

func TestEngine_ApplyWithoutTrackerFails(t *testing.T) {
	f := newFixture(t, Options{})
	u := newMob()

	assert.Equal(t, ConditionFailed, f.engine.Apply(context.Background(), u.id, "zombie_elite", tracker.TintAction(0), nil))

	_, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	assert.Equal(t, ConditionFailed, f.engine.Apply(context.Background(), u.id, "other_model", tracker.TintAction(0), nil))
	assert.Equal(t, ConditionFailed, f.engine.Apply(context.Background(), u.id, "zombie_elite", nil, nil))
}

func TestEngine_AttachDetachAttach(t *testing.T) {
	f := newFixture(t, Options{})
	u := newMob()

	first, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	_, err = f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.ErrorIs(t, err, tracker.ErrAlreadyAttached)

	require.True(t, f.engine.Detach(u.id, "zombie_elite"))
	assert.True(t, first.Destroyed())
	assert.False(t, f.engine.Detach(u.id, "zombie_elite"))

	second, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestEngine_AttachUnknownModel(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.engine.Attach(newMob(), "skeleton", tracker.DefaultModifier, nil)
	require.ErrorIs(t, err, tracker.ErrInvalidTarget)
	require.ErrorIs(t, err, model.ErrUnknownModel)

	dead := newMob()
	dead.dead.Store(true)
	_, err = f.engine.Attach(dead, "zombie_elite", tracker.DefaultModifier, nil)
	require.ErrorIs(t, err, tracker.ErrInvalidTarget)
}

func TestEngine_DisabledSchedulerIsSilentDrop(t *testing.T) {
	f := newFixture(t, Options{})
	u := newMob()
	tr, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(events.New(events.PluginDisabled, "host")))
	assert.False(t, f.engine.IsEnabled())

	assert.Equal(t, Success, f.engine.Apply(context.Background(), u.id, "zombie_elite", tracker.TintAction(0), nil))
	assert.Equal(t, Success, f.engine.Damage(context.Background(), u.id))
	assert.Equal(t, tracker.Active, tr.State())
	assert.Zero(t, tr.PendingTasks())

	require.NoError(t, f.bus.Publish(events.New(events.PluginEnabled, "host")))
	assert.True(t, f.engine.IsEnabled())
	assert.Equal(t, Success, f.engine.Damage(context.Background(), u.id))
	f.tick(1)
	assert.Equal(t, tracker.DamageTinted, tr.State())
}

func TestEngine_EntityRemovedEvent(t *testing.T) {
	f := newFixture(t, Options{})
	u := newMob()
	tr, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	require.Equal(t, Success, f.engine.Damage(scheduler.WithSimulation(context.Background()), u.id))
	expiry, ok := tr.DamageTintTask()
	require.True(t, ok)

	require.NoError(t, f.bus.Publish(events.New(events.EntityRemoved, "host").WithEntity(u.id)))
	assert.True(t, tr.Destroyed())
	assert.True(t, expiry.IsCancelled())
	_, ok = f.engine.Tracker(u.id, "zombie_elite")
	assert.False(t, ok)
	assert.Equal(t, ConditionFailed, f.engine.Damage(context.Background(), u.id))
}

func TestEngine_SweepRemovesInvalidEntities(t *testing.T) {
	f := newFixture(t, Options{SweepPeriod: 1})
	u := newMob()
	tr, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)

	u.dead.Store(true)
	require.Eventually(t, tr.Destroyed, time.Second, time.Millisecond)
}

func TestEngine_SweepDropsDetachedEntries(t *testing.T) {
	f := newFixture(t, Options{SweepPeriod: 1})
	u := newMob()
	_, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	require.True(t, f.engine.Detach(u.id, "zombie_elite"))

	require.Eventually(t, func() bool { return f.registry.Len() == 0 }, time.Second, time.Millisecond)

	_, err = f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	_, ok := f.engine.Tracker(u.id, "zombie_elite")
	assert.True(t, ok)
}

func TestEngine_AnimateAndScripts(t *testing.T) {
	f := newFixture(t, Options{})
	u := newMob()
	tr, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	ctx := scheduler.WithSimulation(context.Background())

	require.Equal(t, Success, f.engine.Animate(ctx, u.id, "zombie_elite", "roar"))
	assert.Equal(t, "roar", tr.Animation())
	head, _ := tr.Bone("head")
	assert.Equal(t, bone.Brightness{Block: 15, Sky: 15}, head.Brightness)
	assert.Equal(t, ConditionFailed, f.engine.Animate(ctx, u.id, "zombie_elite", "fly"))

	require.Equal(t, Success, f.engine.RunScript(ctx, u.id, "zombie_elite", "brightness{block=3;bones=arm_left}"))
	arm, _ := tr.Bone("arm_left")
	assert.Equal(t, bone.Brightness{Block: 3, Sky: -1}, arm.Brightness)
	assert.Equal(t, ConditionFailed, f.engine.RunScript(ctx, u.id, "zombie_elite", "explode"))
	assert.Equal(t, ConditionFailed, f.engine.RunScript(ctx, newMob().id, "zombie_elite", "tint"))
}

func TestEngine_DamageUsesModifier(t *testing.T) {
	f := newFixture(t, Options{DamageTintColor: 0x00FF00, DamageTintTicks: 3})
	u := newMob()
	tr, err := f.engine.Attach(u, "zombie_elite", tracker.Modifier{DamageTint: true, DamageAnimation: true}, nil)
	require.NoError(t, err)

	require.Equal(t, Success, f.engine.Damage(scheduler.WithSimulation(context.Background()), u.id))
	body, _ := tr.Bone("body")
	assert.Equal(t, uint32(0x00FF00), body.Tint)
	assert.Equal(t, model.DamageAnimation, tr.Animation())

	f.tick(3)
	assert.Equal(t, tracker.Active, tr.State())
	assert.Empty(t, tr.Animation())
}

func TestEngine_Close(t *testing.T) {
	f := newFixture(t, Options{SweepPeriod: 5})
	u := newMob()
	tr, err := f.engine.Attach(u, "zombie_elite", tracker.DefaultModifier, nil)
	require.NoError(t, err)
	require.Len(t, f.engine.Snapshot(), 1)

	require.NoError(t, f.engine.Close())
	assert.True(t, tr.Destroyed())
	assert.Empty(t, f.engine.Snapshot())
	assert.ErrorIs(t, f.engine.Close(), ErrClosed)

	_, err = f.engine.Attach(newMob(), "zombie_elite", tracker.DefaultModifier, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, ConditionFailed, f.engine.Apply(context.Background(), u.id, "zombie_elite", tracker.TintAction(0), nil))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "condition_failed", ConditionFailed.String())
}
