package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/momento/internal/actions"
	"github.com/matheus3301/momento/internal/api"
	"github.com/matheus3301/momento/internal/auth"
	"github.com/matheus3301/momento/internal/bus"
	"github.com/matheus3301/momento/internal/channel"
	"github.com/matheus3301/momento/internal/config"
	"github.com/matheus3301/momento/internal/local"
	"github.com/matheus3301/momento/internal/lock"
	"github.com/matheus3301/momento/internal/logging"
	"github.com/matheus3301/momento/internal/media"
	"github.com/matheus3301/momento/internal/optimistic"
	"github.com/matheus3301/momento/internal/remote"
	"github.com/matheus3301/momento/internal/session"
	"github.com/matheus3301/momento/internal/store"
	intsync "github.com/matheus3301/momento/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideAuth,
			provideRemote,
			provideStores,
			provideMedia,
			provideCoordinator,
			provideChannel,
			provideActions,
			NewSignOut,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, cfg.Validate()
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAuth(p Params, cfg *config.Config, logger *zap.Logger) *auth.Source {
	return auth.NewSource(session.CredentialsPath(p.SessionName), cfg.ServerURL, nil, logger)
}

func provideRemote(cfg *config.Config, src *auth.Source, logger *zap.Logger) (*remote.Client, error) {
	return remote.NewClient(cfg.ServerURL, src, nil, logger)
}

func provideStores(db *store.DB, logger *zap.Logger) *local.Stores {
	return local.NewStores(db, logger)
}

func provideMedia(p Params, db *store.DB, logger *zap.Logger) *media.Cache {
	return media.NewCache(session.MediaDir(p.SessionName), nil, db, logger)
}

func provideCoordinator(cfg *config.Config, stores *local.Stores, client *remote.Client, cache *media.Cache, b *bus.Bus, logger *zap.Logger) *intsync.Coordinator {
	return intsync.New(intsync.Options{
		Stores:     stores,
		Remote:     client,
		Media:      cache,
		Bus:        b,
		Logger:     logger,
		CacheWeeks: cfg.CacheWeeks,
		Interval:   cfg.SyncInterval,
	})
}

func provideChannel(cfg *config.Config, client *remote.Client, stores *local.Stores, src *auth.Source, b *bus.Bus, logger *zap.Logger) *channel.Channel {
	handler := channel.NewChatHandler(stores, client, src.CurrentUserID, b, logger)
	return channel.New(channel.Options{
		URL:     client.WebSocketURL(cfg.ChatWSPath),
		Auth:    client,
		Dial:    channel.WebSocketDialer(nil),
		Policy:  channel.PolicyFromConfig(cfg),
		Handler: handler.Handle,
		Bus:     b,
		Logger:  logger,
	})
}

func provideActions(stores *local.Stores, client *remote.Client, src *auth.Source, b *bus.Bus, logger *zap.Logger) *actions.Actions {
	mgr := optimistic.NewManager(optimistic.BusAlerter{Bus: b}, logger)
	return actions.New(stores, client, mgr, src.CurrentUserID, logger)
}

func provideService(p Params, stores *local.Stores, coord *intsync.Coordinator, act *actions.Actions, ch *channel.Channel, so *SignOut, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(api.Options{
		Session: p.SessionName,
		Stores:  stores,
		Syncer:  coord,
		Mutator: act,
		Channel: ch,
		SignOut: so.Run,
		Bus:     b,
		Logger:  logger,
	})
}

type lifecycleDeps struct {
	fx.In

	Server      *Server
	Lock        *lock.Lock
	DB          *store.DB
	Stores      *local.Stores
	Coordinator *intsync.Coordinator
	Channel     *channel.Channel
	Remote      *remote.Client
	Auth        *auth.Source
	SignOut     *SignOut
	Bus         *bus.Bus
	Logger      *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	logger := d.Logger
	var unbridge func()
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			unbridge = bridgeStoreEvents(d.Stores, d.Bus)

			// A store that fails to load starts empty and bootstraps.
			_ = d.Stores.Load(ctx)
			d.Stores.Start(context.Background())

			d.Remote.OnAuthFailure = d.SignOut.Trigger

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if d.Auth.CurrentUserID() == "" {
				logger.Info("no credentials found, sign in required")
				return nil
			}
			d.Coordinator.Start(context.Background())
			go func() {
				if err := d.Channel.Connect(context.Background(), false); err != nil {
					logger.Warn("chat channel connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = d.Channel.Close()
			d.Coordinator.Stop()
			d.Stores.Stop()
			if unbridge != nil {
				unbridge()
			}
			d.Server.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
