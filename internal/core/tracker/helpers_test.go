package tracker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/modelsync/internal/core/bone"
	"github.com/zeusync/modelsync/internal/core/model"
	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
)

type testEntity struct {
	id    uuid.UUID
	scale float64
	gone  atomic.Bool
}

func newTestEntity() *testEntity {
	return &testEntity{id: uuid.New(), scale: 1}
}

func (e *testEntity) UUID() EntityID { return e.id }
func (e *testEntity) Scale() float64 { return e.scale }
func (e *testEntity) Valid() bool    { return !e.gone.Load() }
func (e *testEntity) remove()        { e.gone.Store(true) }

func testBlueprint() *model.Blueprint {
	return &model.Blueprint{
		ID: "zombie_elite",
		Bones: []bone.Definition{
			{Name: "body", Children: []bone.Definition{
				{Name: "h_head", Children: []bone.Definition{{Name: "hat"}}},
				{Name: "arm_left"},
				{Name: "arm_right"},
			}},
		},
		Animations: []model.Animation{
			{Name: "walk", Length: 20, Loop: true},
			{Name: model.DamageAnimation, Length: 5},
		},
	}
}

func newTestScheduler(t *testing.T) *scheduler.TickScheduler {
	t.Helper()
	s := scheduler.New(scheduler.Options{TickInterval: time.Millisecond, Workers: 2, Logger: log.NewNop()})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testConfig(s scheduler.Scheduler) Config {
	return Config{Scheduler: s, Logger: log.NewNop(), DamageTintTicks: 10}
}

// sim returns a context that is treated as the simulation thread.
func sim() context.Context {
	return scheduler.WithSimulation(context.Background())
}

func ticks(s *scheduler.TickScheduler, n int) {
	for i := 0; i < n; i++ {
		s.Tick(context.Background())
	}
}

type schedulerHandle struct {
	*scheduler.TickScheduler
}

func (h *schedulerHandle) tick(n int) {
	ticks(h.TickScheduler, n)
}
