package daemon

import (
	"context"
	"os"

	"github.com/perkshq/perks/internal/account"
	"github.com/perkshq/perks/internal/api"
	"github.com/perkshq/perks/internal/bus"
	"github.com/perkshq/perks/internal/cache"
	"github.com/perkshq/perks/internal/cache/prefcache"
	"github.com/perkshq/perks/internal/cache/sqlcache"
	"github.com/perkshq/perks/internal/cleanup"
	"github.com/perkshq/perks/internal/config"
	"github.com/perkshq/perks/internal/lock"
	"github.com/perkshq/perks/internal/logging"
	"github.com/perkshq/perks/internal/netmon"
	"github.com/perkshq/perks/internal/platform"
	"github.com/perkshq/perks/internal/queue"
	"github.com/perkshq/perks/internal/remote"
	"github.com/perkshq/perks/internal/status"
	intsync "github.com/perkshq/perks/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	Account    string
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideCapabilities,
			provideStateMachine,
			provideLock,
			provideBackend,
			provideStore,
			provideRemote,
			provideMonitor,
			provideQueue,
			provideRefresher,
			provideCleanup,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(account.LogPath(p.Account), p.Account)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(account.ConfigPath())
	if os.IsNotExist(err) {
		logger.Info("no config file, using defaults")
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := account.EnsureDir(p.Account); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.Account))
	l, err := lock.Acquire(account.Dir(p.Account))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideCapabilities(cfg *config.Config) platform.Capabilities {
	return platform.Detect(cfg.Platform).Capabilities()
}

// provideBackend picks the cache backend for the detected platform:
// sqlite where structured storage is available, JSON preference
// documents otherwise.
func provideBackend(p Params, cfg *config.Config, caps platform.Capabilities, logger *zap.Logger) (cache.Backend, error) {
	profile := platform.Detect(cfg.Platform)

	if !caps.StructuredStorage {
		store, err := prefcache.Open(account.PrefsDir(p.Account))
		if err != nil {
			return nil, err
		}
		logger.Info("cache backend initialized",
			zap.String("platform", string(profile)),
			zap.String("backend", "prefs"))
		return store, nil
	}

	dbPath := account.CacheDBPath(p.Account)
	db, err := sqlcache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache backend initialized",
		zap.String("platform", string(profile)),
		zap.String("backend", "sqlite"),
		zap.String("path", dbPath))
	return db, nil
}

func provideStore(backend cache.Backend, cfg *config.Config, logger *zap.Logger) *cache.Store {
	return cache.New(backend, cache.Limits{
		MaxConversations:           cfg.Cache.MaxConversations,
		MaxMessagesPerConversation: cfg.Cache.MaxMessagesPerConversation,
		MaxBusinesses:              cfg.Cache.MaxBusinesses,
	}, logger)
}

func provideRemote(cfg *config.Config) *remote.Client {
	return remote.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token)
}

func provideMonitor(b *bus.Bus, logger *zap.Logger) *netmon.Monitor {
	return netmon.New(b, logger)
}

func provideQueue(store *cache.Store, client *remote.Client, mon *netmon.Monitor, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *queue.Queue {
	return queue.New(store, client, mon, b, queue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase(),
		BackoffCap:  cfg.Queue.BackoffCap(),
	}, logger)
}

func provideRefresher(store *cache.Store, client *remote.Client, b *bus.Bus, logger *zap.Logger) *intsync.Refresher {
	return intsync.NewRefresher(store, client, b, logger)
}

func provideCleanup(p Params, logger *zap.Logger) *cleanup.Service {
	return cleanup.New(account.PrefsDir(p.Account), account.MediaDir(p.Account), logger)
}

func provideHandlers(store *cache.Store, q *queue.Queue, r *intsync.Refresher, m *status.Machine, mon *netmon.Monitor, logger *zap.Logger) *api.Handlers {
	return api.NewHandlers(store, q, r, m, mon, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, store *cache.Store, q *queue.Queue, refresher *intsync.Refresher, sweeper *cleanup.Service, caps platform.Capabilities, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	coordCtx, coordCancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Storage cleanup runs once per daemon start, off the
			// critical path. Skipped on profiles without a durable
			// filesystem; there is nothing to reclaim.
			if caps.PersistentFS {
				go sweeper.Run()
			}

			// Entries stuck mid-send from a crashed run go back to
			// pending before anything drains.
			q.Recover()

			go runCoordinator(coordCtx, b, machine, q)

			// Queue and refresher come up before the socket starts
			// accepting, so every kicked drain runs under coordCtx.
			q.Start(coordCtx)
			refresher.Start(coordCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			// Offline until the platform says otherwise.
			_ = machine.Transition(status.Offline)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			coordCancel()
			q.Stop()
			refresher.Stop()
			srv.Stop(ctx)
			if err := store.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// runCoordinator drives the state machine from bus events.
func runCoordinator(ctx context.Context, b *bus.Bus, machine *status.Machine, q *queue.Queue) {
	ch, unsub := b.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case bus.KindNetOffline:
				_ = machine.Transition(status.Offline)
			case bus.KindNetOnline:
				_ = machine.Transition(status.Syncing)
			case bus.KindQueueFailed, bus.KindSyncFailed:
				_ = machine.Transition(status.Degraded)
			case bus.KindQueueDrained, bus.KindSyncFinished:
				if q.FailedCount() > 0 {
					_ = machine.Transition(status.Degraded)
				} else {
					_ = machine.Transition(status.Ready)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
