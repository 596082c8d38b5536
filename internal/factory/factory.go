package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/wordgroups/internal/api"
	"github.com/mcoot/wordgroups/internal/api/events"
	"github.com/mcoot/wordgroups/internal/config"
	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/dependencies/random"
	"github.com/mcoot/wordgroups/internal/notify"
	"github.com/mcoot/wordgroups/internal/router"
	"github.com/mcoot/wordgroups/internal/server"
	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/services/persistence"
	"github.com/mcoot/wordgroups/internal/services/puzzle"
	"github.com/mcoot/wordgroups/internal/services/scheduler"
	"github.com/mcoot/wordgroups/internal/services/scoring"
	"github.com/mcoot/wordgroups/internal/storage"
	filestorage "github.com/mcoot/wordgroups/internal/storage/file"
	"github.com/mcoot/wordgroups/internal/storage/memory"
	redisstorage "github.com/mcoot/wordgroups/internal/storage/redis"
)

// App contains all wired application components
type App struct {
	Config config.Config
	Logger *slog.Logger

	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	ScoringService  *scoring.Service
	AccountsService *accounts.Service
	PuzzleService   *puzzle.Service
	Registry        *match.Registry
	Scheduler       *scheduler.Service
	Flusher         *persistence.Flusher

	// Transport
	FanOut     *notify.FanOut
	Notifier   notify.Multi
	Router     *router.Router
	TCPServer  *server.Server
	HTTPServer *api.Server // nil when the status API is disabled
	EventHub   *events.Hub // nil when the status API is disabled

	udpConn  net.PacketConn
	natsConn *nats.Conn
}

// Config holds configuration for the application factory
type Config struct {
	// App is the loaded server configuration
	App config.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
}

// dependencies are the externally created resources an App is built on
type dependencies struct {
	store     storage.Storage
	clock     clock.Clock
	random    random.Random
	udpConn   net.PacketConn
	publisher notify.Publisher // nil disables the NATS bridge
	accounts  accounts.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	appCfg := cfg.App

	store, err := newStorage(appCfg.Storage)
	if err != nil {
		return nil, err
	}

	udpAddr := net.JoinHostPort(appCfg.UDP.Host, strconv.Itoa(appCfg.UDP.Port))
	udpConn, err := net.ListenPacket("udp", udpAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen udp %s: %w", udpAddr, err)
	}

	deps := dependencies{
		store:    store,
		clock:    clock.New(),
		random:   random.New(),
		udpConn:  udpConn,
		accounts: accounts.DefaultConfig(),
	}

	var nc *nats.Conn
	if appCfg.NATS.URL != "" {
		nc, err = notify.ConnectNATS(appCfg.NATS.URL, "wordgroups-server")
		if err != nil {
			_ = udpConn.Close()
			_ = store.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		deps.publisher = nc
	}

	app := newWithDependencies(appCfg, deps, logger)
	app.natsConn = nc
	return app, nil
}

func newStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "", config.StorageMemory:
		return memory.New(), nil
	case config.StorageFile:
		return filestorage.New(cfg.Dir)
	case config.StorageRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("redis_url required when storage type is redis")
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		return redisstorage.New(redisCfg)
	default:
		return nil, fmt.Errorf("invalid storage type %q: must be memory, file or redis", cfg.Type)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(cfg config.Config, deps dependencies, logger *slog.Logger) *App {
	scoringCfg := scoring.DefaultConfig()
	scoringCfg.MaxErrors = cfg.Rounds.MaxErrors
	scoringService := scoring.New(scoringCfg)

	accountsService := accounts.New(deps.clock, scoringService, logger, deps.accounts)
	puzzleService := puzzle.New()

	registryCfg := match.DefaultConfig()
	registryCfg.MaxErrors = cfg.Rounds.MaxErrors
	registry := match.NewRegistry(deps.clock, deps.random, accountsService, logger, registryCfg)

	fanOut := notify.NewFanOut(deps.udpConn, logger)
	rtr := router.New(accountsService, registry, fanOut, deps.clock, logger, router.Config{
		AdminPassword: cfg.Admin.Password,
	})

	serverCfg := server.DefaultConfig()
	serverCfg.Host = cfg.TCP.Host
	serverCfg.Port = cfg.TCP.Port
	serverCfg.MaxConnections = cfg.TCP.MaxConnections
	if cfg.TCP.Workers > 0 {
		serverCfg.Workers = cfg.TCP.Workers
	}
	if cfg.TCP.MaxMessageSize > 0 {
		serverCfg.MaxMessageSize = cfg.TCP.MaxMessageSize
	}
	tcpServer := server.New(rtr, deps.clock, logger, serverCfg)

	notifier := notify.Multi{fanOut, tcpServer}
	var eventHub *events.Hub
	if cfg.HTTP.Enabled {
		eventHub = events.NewHub(logger)
		notifier = append(notifier, eventHub)
	}
	if deps.publisher != nil {
		notifier = append(notifier, notify.NewNATSBridge(deps.publisher, cfg.NATS.Prefix, logger))
	}

	sched := scheduler.New(puzzleService, registry, notifier, deps.clock, logger, scheduler.Config{
		RoundDuration: cfg.Rounds.Duration,
		RetryBackoff:  cfg.Rounds.RetryBackoff,
	})
	flusher := persistence.New(deps.store, accountsService, registry, logger, persistence.Config{
		Interval: cfg.Storage.FlushInterval,
	})

	app := &App{
		Config:          cfg,
		Logger:          logger,
		Storage:         deps.store,
		Clock:           deps.clock,
		Random:          deps.random,
		ScoringService:  scoringService,
		AccountsService: accountsService,
		PuzzleService:   puzzleService,
		Registry:        registry,
		Scheduler:       sched,
		Flusher:         flusher,
		FanOut:          fanOut,
		Notifier:        notifier,
		Router:          rtr,
		TCPServer:       tcpServer,
		udpConn:         deps.udpConn,
	}

	if cfg.HTTP.Enabled {
		httpCfg := api.DefaultServerConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port
		handler := api.NewRouter(api.RouterConfig{
			Logger:      logger,
			Clock:       deps.clock,
			Accounts:    accountsService,
			Registry:    registry,
			Connections: tcpServer.ActiveConnections,
			Subscribers: fanOut.Subscribers,
			Events:      eventHub,
		})
		app.HTTPServer = api.NewServer(handler, httpCfg, logger)
		app.EventHub = eventHub
	}

	return app
}

// Run restores persisted state and serves until ctx is cancelled.
// Rounds must already be loaded into PuzzleService.
func (a *App) Run(ctx context.Context) error {
	if err := a.Flusher.Restore(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	if a.TCPServer.Addr() == nil {
		if err := a.TCPServer.Listen(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// The flusher outlives the scheduler so the match finalized at shutdown is saved
	flushCtx, stopFlusher := context.WithCancel(context.WithoutCancel(ctx))
	defer stopFlusher()

	g.Go(func() error {
		return a.TCPServer.Serve(gctx)
	})
	g.Go(func() error {
		defer stopFlusher()
		return a.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.Flusher.Run(flushCtx)
	})
	if a.HTTPServer != nil {
		g.Go(func() error {
			return a.EventHub.Run(gctx)
		})
		g.Go(func() error {
			return a.HTTPServer.Run(gctx)
		})
	}

	return g.Wait()
}

// Close releases sockets and the storage backend
func (a *App) Close() error {
	var errs []error
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if a.udpConn != nil {
		if err := a.udpConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close udp: %w", err))
		}
	}
	if err := a.Storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
