package injector

import (
	"context"
	"errors"
	"time"

	"github.com/zeusync/modelsync/internal/config"
	"github.com/zeusync/modelsync/internal/core/engine"
	"github.com/zeusync/modelsync/internal/core/events"
	"github.com/zeusync/modelsync/internal/core/model"
	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
	"github.com/zeusync/modelsync/internal/feed"
)

// App is the wired daemon.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Scheduler *scheduler.TickScheduler
	Catalog   *model.Catalog
	Bus       events.Bus
	Engine    *engine.Engine
	Feed      *feed.Server
}

// Run drives the simulation loop until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.Config.Feed.Enabled {
		if err := a.Feed.Start(ctx, a.Scheduler); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.Feed.Stop(stopCtx); err != nil {
				a.Logger.Warn("Feed shutdown failed", log.Error(err))
			}
		}()
	}

	if err := a.Bus.Publish(events.New(events.PluginEnabled, "modeld")); err != nil {
		a.Logger.Warn("Enable handlers failed", log.Error(err))
	}
	err := a.Scheduler.Run(ctx)
	if pubErr := a.Bus.Publish(events.New(events.PluginDisabled, "modeld")); pubErr != nil {
		a.Logger.Warn("Disable handlers failed", log.Error(pubErr))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
