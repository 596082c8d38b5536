package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/storage"
)

// Config holds configuration for the flusher
type Config struct {
	Interval        time.Duration
	ShutdownTimeout time.Duration // Bound on the final flush
}

// DefaultConfig returns the default flusher configuration
func DefaultConfig() Config {
	return Config{
		Interval:        30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Flusher copies accounts and match history between the services and a storage backend
type Flusher struct {
	store    storage.Storage
	accounts *accounts.Service
	registry *match.Registry
	logger   *slog.Logger
	cfg      Config

	mu              sync.Mutex
	accountsVersion uint64
	historyVersion  uint64
}

// New creates a Flusher
func New(store storage.Storage, accounts *accounts.Service, registry *match.Registry, logger *slog.Logger, cfg Config) *Flusher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Flusher{
		store:    store,
		accounts: accounts,
		registry: registry,
		logger:   logger.With(slog.String("component", "persistence")),
		cfg:      cfg,
	}
}

// Restore loads the persisted state into the services
func (f *Flusher) Restore(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	history, err := f.store.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	f.accounts.Restore(users)
	f.registry.Restore(history)
	f.accountsVersion = f.accounts.Version()
	f.historyVersion = f.registry.Version()

	f.logger.Info("state restored",
		slog.Int("accounts", len(users)),
		slog.Int("matches", len(history)),
	)
	return nil
}

// Flush saves whatever changed since the last successful flush
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v := f.accounts.Version(); v != f.accountsVersion {
		users := f.accounts.Snapshot()
		if err := f.store.SaveAccounts(ctx, users); err != nil {
			return fmt.Errorf("save accounts: %w", err)
		}
		f.accountsVersion = v
		f.logger.Debug("accounts flushed", slog.Int("accounts", len(users)))
	}

	if v := f.registry.Version(); v != f.historyVersion {
		history := f.registry.History()
		if err := f.store.SaveHistory(ctx, history); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
		f.historyVersion = v
		f.logger.Debug("history flushed", slog.Int("matches", len(history)))
	}
	return nil
}

// Run flushes on a fixed interval until ctx is cancelled, then flushes once more.
// Failed flushes are logged and retried on the next tick.
func (f *Flusher) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(f.cfg.Interval),
		gocron.NewTask(func() {
			if err := f.Flush(ctx); err != nil {
				f.logger.Error("flush failed", slog.String("error", err.Error()))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("flush-state"),
	)
	if err != nil {
		return fmt.Errorf("schedule flush job: %w", err)
	}

	sched.Start()
	f.logger.Info("flusher started", slog.Duration("interval", f.cfg.Interval))

	<-ctx.Done()

	if err := sched.Shutdown(); err != nil {
		f.logger.Warn("scheduler shutdown failed", slog.String("error", err.Error()))
	}

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.ShutdownTimeout)
	defer cancel()
	if err := f.Flush(finalCtx); err != nil {
		f.logger.Error("final flush failed", slog.String("error", err.Error()))
		return err
	}
	f.logger.Info("flusher stopped")
	return nil
}
