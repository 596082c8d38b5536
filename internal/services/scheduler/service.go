package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/notify"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/services/puzzle"
)

// Config holds configuration for the round scheduler
type Config struct {
	RoundDuration time.Duration
	RetryBackoff  time.Duration // Wait before asking the source again after a failure
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		RoundDuration: 5 * time.Minute,
		RetryBackoff:  5 * time.Second,
	}
}

// Service plays rounds back to back: install, announce, wait, finalize, announce
type Service struct {
	source   puzzle.Source
	registry *match.Registry
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config

	wait func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler; notifier may be nil
func New(
	source puzzle.Source,
	registry *match.Registry,
	notifier notify.Notifier,
	clock clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if notifier == nil {
		notifier = notify.Multi{}
	}
	return &Service{
		source:   source,
		registry: registry,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(slog.String("component", "scheduler")),
		cfg:      cfg,
		wait:     sleep,
	}
}

// Run schedules rounds until ctx is cancelled.
// The match running at cancellation is finalized before returning.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Duration("round_duration", s.cfg.RoundDuration))
	defer s.logger.Info("scheduler stopped")

	for {
		def, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("failed to fetch next round",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", s.cfg.RetryBackoff),
			)
			if err := s.wait(ctx, s.cfg.RetryBackoff); err != nil {
				return nil
			}
			continue
		}

		if stopped := s.play(ctx, def); stopped {
			return nil
		}
	}
}

// play runs one round and reports whether ctx ended it early
func (s *Service) play(ctx context.Context, def model.RoundDefinition) bool {
	m := s.registry.Install(def, s.cfg.RoundDuration)
	s.notifier.Notify(ctx, model.Event{
		Type:      model.EventRoundStarted,
		Timestamp: m.StartedAt(),
		RoundID:   m.ID(),
		Run:       m.Run(),
		Duration:  m.Duration(),
	})

	interrupted := s.wait(ctx, m.TimeLeft(s.clock.Now())) != nil

	rec := s.registry.Finalize(m)
	s.notifier.Notify(context.WithoutCancel(ctx), model.Event{
		Type:      model.EventRoundEnded,
		Timestamp: rec.FinishedAt,
		RoundID:   rec.ID(),
		Run:       rec.Run,
		Solution:  rec.Round.Groups,
	})
	return interrupted
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
