// Package app assembles a client session: store, network services, control
// API and the runtime handed to the terminal UI.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/matheus3301/pchat/internal/api"
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/lock"
	"github.com/matheus3301/pchat/internal/logging"
	"github.com/matheus3301/pchat/internal/media"
	"github.com/matheus3301/pchat/internal/metrics"
	"github.com/matheus3301/pchat/internal/outbox"
	"github.com/matheus3301/pchat/internal/relay"
	"github.com/matheus3301/pchat/internal/session"
	"github.com/matheus3301/pchat/internal/status"
	"github.com/matheus3301/pchat/internal/store"
	intsync "github.com/matheus3301/pchat/internal/sync"
	"github.com/matheus3301/pchat/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	Console     bool   // mirror logs to stderr; off while the TUI owns the terminal
	Debug       bool
}

// Origin identifies this process on the shared topic and relay channels.
type Origin string

// Module returns the fx module for a session, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("pchat",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideConfig,
			provideLock,
			provideStore,
			provideOrigin,
			provideBlobs,
			provideMedia,
			provideProducer,
			provideConsumer,
			provideRedis,
			provideSyncEngine,
			provideSender,
			provideRuntime,
			provideControlService,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.Options{Console: p.Console, Debug: p.Debug})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Session, error) {
	path := session.SessionConfigPath(p.SessionName)
	cfg, err := config.LoadSession(path)
	if err != nil {
		return nil, err
	}
	logger.Info("session config loaded", zap.String("path", path), zap.Bool("signed_in", cfg.UserID != ""))
	return cfg, nil
}

func provideLock(p Params, cfg *config.Session, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), cfg.UserID)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath, b)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideOrigin returns the persisted device id, generating it on first run.
// It names the device's consumer group, so it must survive restarts.
func provideOrigin(p Params, cfg *config.Session, logger *zap.Logger) (Origin, error) {
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := config.SaveSession(session.SessionConfigPath(p.SessionName), cfg); err != nil {
			return "", fmt.Errorf("save device id: %w", err)
		}
		logger.Info("device registered", zap.String("device_id", cfg.DeviceID))
	}
	return Origin(cfg.DeviceID), nil
}

func provideBlobs(p Params, cfg *config.Session, logger *zap.Logger) (media.Blobs, error) {
	blobs, err := media.NewBlobs(context.Background(), cfg.Media, filepath.Join(session.MediaDir(p.SessionName), "blobs"))
	if err != nil {
		return nil, err
	}
	if cfg.Media.Bucket != "" {
		logger.Info("blob store: s3", zap.String("bucket", cfg.Media.Bucket))
	}
	return blobs, nil
}

func provideMedia(p Params, cfg *config.Session, blobs media.Blobs, logger *zap.Logger) *Media {
	cacheDir := cfg.Media.CacheDir
	if cacheDir == "" {
		cacheDir = session.MediaDir(p.SessionName)
	}
	exportDir := cfg.Media.ExportDir
	if exportDir == "" {
		exportDir = session.ExportDir(p.SessionName)
	}
	return &Media{
		Loaders:  media.Loaders(blobs, cacheDir, cfg.Media.AutoDownload, logger),
		Avatars:  media.NewAvatars(blobs, session.AvatarDir(p.SessionName), logger),
		Exporter: media.NewExporter(exportDir),
		Player:   media.NewPlayer(cfg.Audio.Player, cfg.Audio.Args, logger),
	}
}

// provideProducer returns nil when no brokers are configured; the session
// then runs offline and outgoing messages stay queued.
func provideProducer(cfg *config.Session, origin Origin, logger *zap.Logger) (*transport.Producer, error) {
	p, err := transport.NewProducer(cfg.Kafka, string(origin), logger)
	if errors.Is(err, transport.ErrNotConfigured) {
		logger.Info("kafka not configured, running offline")
		return nil, nil
	}
	return p, err
}

func provideConsumer(cfg *config.Session, origin Origin, engine *intsync.Engine, logger *zap.Logger) (*transport.Consumer, error) {
	kc := cfg.Kafka
	kc.Group = cfg.ConsumerGroup()
	c, err := transport.NewConsumer(kc, string(origin), engine, logger)
	if errors.Is(err, transport.ErrNotConfigured) {
		return nil, nil
	}
	return c, err
}

// provideRedis returns nil when the relay is disabled or unreachable.
// Neither stops the session: typing and read positions stay local.
func provideRedis(cfg *config.Session, logger *zap.Logger) *redis.Client {
	client, err := relay.Connect(cfg.Redis)
	switch {
	case errors.Is(err, relay.ErrNotConfigured):
		logger.Info("redis not configured, relay disabled")
		return nil
	case err != nil:
		logger.Warn("redis unavailable, relay disabled", zap.Error(err))
		return nil
	}
	return client
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideSender(db *store.DB, blobs media.Blobs, producer *transport.Producer, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	if producer == nil {
		return nil
	}
	return outbox.NewSender(db, blobs, producer, b, logger)
}

type runtimeParams struct {
	fx.In

	Params   Params
	Config   *config.Session
	DB       *store.DB
	Bus      *bus.Bus
	Machine  *status.Machine
	Lock     *lock.Lock
	Media    *Media
	Origin   Origin
	Producer *transport.Producer
	Consumer *transport.Consumer
	Sender   *outbox.Sender
	Redis    *redis.Client
	Logger   *zap.Logger
}

func provideRuntime(rp runtimeParams) *Runtime {
	return &Runtime{
		Session:  rp.Params.SessionName,
		Config:   rp.Config,
		DB:       rp.DB,
		Bus:      rp.Bus,
		Machine:  rp.Machine,
		Media:    rp.Media,
		Logger:   rp.Logger,
		lock:     rp.Lock,
		origin:   string(rp.Origin),
		producer: rp.Producer,
		consumer: rp.Consumer,
		sender:   rp.Sender,
		redis:    rp.Redis,
	}
}

func provideControlService(p Params, machine *status.Machine, db *store.DB, engine *intsync.Engine, rt *Runtime, b *bus.Bus) *api.ControlService {
	return api.NewControlService(p.SessionName, machine, db, engine, rt, b)
}

func provideServer(p Params, svc *api.ControlService, logger *zap.Logger) (*api.Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}
	return api.NewServer(socketPath, svc, logger)
}

type lifecycleParams struct {
	fx.In

	LC       fx.Lifecycle
	Runtime  *Runtime
	Server   *api.Server
	Engine   *intsync.Engine
	Consumer *transport.Consumer
	Logger   *zap.Logger
}

func registerLifecycle(lp lifecycleParams) {
	rt, srv, logger := lp.Runtime, lp.Server, lp.Logger
	ctx, cancel := context.WithCancel(context.Background())

	lp.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start sync engine (subscribes to net.* bus events). The
			// consumer starts on sign-in, see Runtime.activate.
			lp.Engine.Identify(rt.UserID)
			lp.Engine.Start(ctx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			go func() {
				if err := metrics.Serve(ctx, rt.Config.Metrics.Listen, logger); err != nil {
					logger.Error("metrics server error", zap.Error(err))
				}
			}()

			rt.start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			rt.stop()
			lp.Engine.Stop()
			if lp.Consumer != nil {
				if err := lp.Consumer.Close(); err != nil {
					logger.Warn("error closing consumer", zap.Error(err))
				}
			}
			srv.Stop(stopCtx)
			if err := rt.close(); err != nil {
				logger.Warn("error closing session", zap.Error(err))
			}
			logger.Info("session stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
