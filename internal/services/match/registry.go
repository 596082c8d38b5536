package match

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/dependencies/random"
	"github.com/mcoot/wordgroups/internal/model"
)

// Config holds configuration for the match registry
type Config struct {
	MaxErrors    int
	HistoryLimit int // Archived runs kept in memory; 0 keeps all
}

// DefaultConfig returns default registry configuration
func DefaultConfig() Config {
	return Config{
		MaxErrors:    4,
		HistoryLimit: 0,
	}
}

// Registry owns the current match and the archive of finished ones
type Registry struct {
	clock    clock.Clock
	random   random.Random
	recorder OutcomeRecorder
	logger   *slog.Logger
	cfg      Config

	mu      sync.RWMutex
	current *Match
	run     int64
	archive map[model.RoundID]*model.MatchRecord // latest run per round id
	history []*model.MatchRecord                 // ordered by run

	version atomic.Uint64
}

// NewRegistry creates an empty Registry
func NewRegistry(clock clock.Clock, random random.Random, recorder OutcomeRecorder, logger *slog.Logger, cfg Config) *Registry {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultConfig().MaxErrors
	}
	return &Registry{
		clock:    clock,
		random:   random,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "match_registry")),
		cfg:      cfg,
		archive:  make(map[model.RoundID]*model.MatchRecord),
	}
}

// Install finalizes the current match, if any, and makes a new match of def current
func (r *Registry) Install(def model.RoundDefinition, duration time.Duration) *Match {
	if prev, ok := r.Current(); ok {
		r.Finalize(prev)
	}

	now := r.clock.Now()
	grid := random.Shuffle(r.random, def.Words())

	r.mu.Lock()
	r.run++
	m := newMatch(def, r.run, now, duration, grid, r.cfg.MaxErrors, r.recorder)
	r.current = m
	r.mu.Unlock()
	r.version.Add(1)

	r.logger.Info("match installed",
		slog.Int("round_id", int(def.ID)),
		slog.Int64("run", m.Run()),
		slog.Duration("duration", duration),
	)
	return m
}

// Finalize ends m, crediting timeouts, and archives it.
// Calling it again returns the same record and has no further effect.
func (r *Registry) Finalize(m *Match) model.MatchRecord {
	rec, first := m.finalize(r.clock.Now())
	if !first {
		return rec
	}

	r.mu.Lock()
	r.archiveLocked(&rec)
	r.mu.Unlock()
	r.version.Add(1)

	r.logger.Info("match finalized",
		slog.Int("round_id", int(rec.ID())),
		slog.Int64("run", rec.Run),
		slog.Int("participants", len(rec.Players)),
	)
	return rec
}

func (r *Registry) archiveLocked(rec *model.MatchRecord) {
	if existing, ok := r.archive[rec.ID()]; !ok || existing.Run <= rec.Run {
		r.archive[rec.ID()] = rec
	}

	idx := sort.Search(len(r.history), func(i int) bool { return r.history[i].Run >= rec.Run })
	if idx < len(r.history) && r.history[idx].Run == rec.Run {
		r.history[idx] = rec
	} else {
		r.history = append(r.history, nil)
		copy(r.history[idx+1:], r.history[idx:])
		r.history[idx] = rec
	}

	if r.cfg.HistoryLimit > 0 && len(r.history) > r.cfg.HistoryLimit {
		dropped := r.history[:len(r.history)-r.cfg.HistoryLimit]
		r.history = r.history[len(r.history)-r.cfg.HistoryLimit:]
		for _, d := range dropped {
			if r.archive[d.ID()] == d {
				delete(r.archive, d.ID())
			}
		}
	}
}

// Current returns the current match, which may already be finished
func (r *Registry) Current() (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.current != nil
}

// Live returns the current match only while it is running
func (r *Registry) Live() (*Match, error) {
	m, ok := r.Current()
	if !ok {
		return nil, model.ErrNoActiveRound
	}
	if m.State() == model.MatchStateFinished {
		return nil, model.ErrRoundExpired
	}
	return m, nil
}

// Lookup resolves a round id to the current match or, failing that, its archived record
func (r *Registry) Lookup(id model.RoundID) (*Match, *model.MatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.current != nil && r.current.ID() == id {
		return r.current, nil, nil
	}
	if rec, ok := r.archive[id]; ok {
		return nil, rec, nil
	}
	return nil, nil, model.ErrRoundNotFound
}

// RenamePlayer moves a player's progress in the current match to a new username
func (r *Registry) RenamePlayer(oldName, newName string) {
	if m, ok := r.Current(); ok && m.State() == model.MatchStateRunning {
		m.Rename(oldName, newName)
		r.version.Add(1)
	}
}

// History returns every archived record ordered by run
func (r *Registry) History() []model.MatchRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.MatchRecord, len(r.history))
	for i, rec := range r.history {
		out[i] = *rec
	}
	return out
}

// Restore loads archived records, typically from persisted state at boot.
// The run counter continues after the highest restored run.
func (r *Registry) Restore(records []model.MatchRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range records {
		rec := records[i]
		r.archiveLocked(&rec)
		if rec.Run > r.run {
			r.run = rec.Run
		}
	}
	r.version.Add(1)
}

// Version changes every time the archive or current match changes
func (r *Registry) Version() uint64 {
	return r.version.Load()
}

// MaxErrors returns the per-player error budget
func (r *Registry) MaxErrors() int {
	return r.cfg.MaxErrors
}
