package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/modelsync/internal/config"
	"github.com/zeusync/modelsync/internal/core/engine"
	"github.com/zeusync/modelsync/internal/core/events"
	"github.com/zeusync/modelsync/internal/core/model"
	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
	"github.com/zeusync/modelsync/internal/core/script"
	"github.com/zeusync/modelsync/internal/core/tracker"
	"github.com/zeusync/modelsync/internal/feed"
)

var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideScheduler,
	ProvideCatalog,
	events.NewBus,
	ProvideRegistry,
	script.NewManager,
	ProvideEngineOptions,
	ProvideEngine,
	ProvideFeed,
)

func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	opts, err := cfg.LogOptions()
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(opts), nil
}

func ProvideScheduler(cfg *config.Config, logger *log.Logger) (*scheduler.TickScheduler, func()) {
	s := scheduler.New(scheduler.Options{
		TickInterval: cfg.Scheduler.TickInterval,
		Workers:      cfg.Scheduler.Workers,
		Logger:       logger,
	})
	return s, func() { _ = s.Close() }
}

// ProvideCatalog loads the configured catalog and optionally keeps it in
// sync with the file. An empty path yields an empty catalog.
func ProvideCatalog(cfg *config.Config, logger *log.Logger) (*model.Catalog, func(), error) {
	c := model.NewCatalog()
	if cfg.Models.Catalog == "" {
		return c, func() {}, nil
	}
	n, err := c.LoadFile(cfg.Models.Catalog)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Model catalog loaded", log.String("path", cfg.Models.Catalog), log.Int("models", n))

	if !cfg.Models.Watch {
		return c, func() {}, nil
	}
	w, err := c.Watch(cfg.Models.Catalog, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = w.Close() }, nil
}

func ProvideRegistry(cfg *config.Config, bus events.Bus, logger *log.Logger) *tracker.Registry {
	return tracker.NewRegistry(tracker.RegistryOptions{
		Shards: cfg.Tracker.Shards,
		Bus:    bus,
		Logger: logger,
	})
}

func ProvideEngineOptions(cfg *config.Config) (engine.Options, error) {
	color, err := cfg.DamageTintColor()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		DamageTintColor: color,
		DamageTintTicks: cfg.Tracker.DamageTintTicks,
		SweepPeriod:     cfg.Tracker.SweepPeriod,
	}, nil
}

func ProvideEngine(
	opts engine.Options,
	catalog *model.Catalog,
	registry *tracker.Registry,
	sched *scheduler.TickScheduler,
	scripts *script.Manager,
	bus events.Bus,
	logger *log.Logger,
) (*engine.Engine, func(), error) {
	e, err := engine.New(opts, catalog, registry, sched, scripts, bus, logger)
	if err != nil {
		return nil, nil, err
	}
	return e, func() { _ = e.Close() }, nil
}

func ProvideFeed(cfg *config.Config, e *engine.Engine, logger *log.Logger) *feed.Server {
	return feed.NewServer(e, feed.Options{
		Addr:   cfg.Feed.Addr,
		Path:   cfg.Feed.Path,
		Period: cfg.Feed.Period,
	}, logger)
}
