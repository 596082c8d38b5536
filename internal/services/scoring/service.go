package scoring

import (
	"sort"

	"github.com/mcoot/wordgroups/internal/model"
)

// Config holds the ranking formula and the error budget
type Config struct {
	GroupPoints  int
	ErrorPenalty int
	MaxErrors    int
}

// DefaultConfig returns the standard ranking formula: 6 per group, -4 per error
func DefaultConfig() Config {
	return Config{
		GroupPoints:  6,
		ErrorPenalty: 4,
		MaxErrors:    4,
	}
}

// Standing is one ranked player
type Standing struct {
	Position int
	Username string
	Score    int
}

// Service provides ranking and statistics arithmetic
type Service struct {
	cfg Config
}

// New creates a new scoring Service
func New(cfg Config) *Service {
	def := DefaultConfig()
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = def.MaxErrors
	}
	if cfg.GroupPoints == 0 && cfg.ErrorPenalty == 0 {
		cfg.GroupPoints = def.GroupPoints
		cfg.ErrorPenalty = def.ErrorPenalty
	}
	return &Service{cfg: cfg}
}

// MaxErrors returns the error budget per match
func (s *Service) MaxErrors() int {
	return s.cfg.MaxErrors
}

// RankScore returns the ranking points earned by one match result
func (s *Service) RankScore(p model.PlayerProgress) int {
	return s.cfg.GroupPoints*p.Score() - s.cfg.ErrorPenalty*p.Errors
}

// ApplyOutcome folds a terminal match result into cumulative stats.
// Non-terminal progress leaves stats untouched.
func (s *Service) ApplyOutcome(stats *model.Stats, p model.PlayerProgress) {
	if !p.Outcome.IsTerminal() {
		return
	}

	if len(stats.MistakeHistogram) < s.cfg.MaxErrors {
		hist := make([]int, s.cfg.MaxErrors)
		copy(hist, stats.MistakeHistogram)
		stats.MistakeHistogram = hist
	}

	stats.Played++
	stats.RankScore += s.RankScore(p)

	switch p.Outcome {
	case model.OutcomeWon:
		stats.Won++
		stats.CurrentStreak++
		if stats.CurrentStreak > stats.MaxStreak {
			stats.MaxStreak = stats.CurrentStreak
		}
		if p.Errors >= 0 && p.Errors < len(stats.MistakeHistogram) {
			stats.MistakeHistogram[p.Errors]++
		}
	case model.OutcomeLost, model.OutcomeTimeout:
		stats.CurrentStreak = 0
	}
}

// Rank orders accounts by rank score descending then username ascending.
// Equal scores share a position (1, 1, 3).
func (s *Service) Rank(accounts []model.UserAccount) []Standing {
	standings := make([]Standing, 0, len(accounts))
	for _, a := range accounts {
		standings = append(standings, Standing{Username: a.Username, Score: a.Stats.RankScore})
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].Username < standings[j].Username
	})

	for i := range standings {
		if i > 0 && standings[i].Score == standings[i-1].Score {
			standings[i].Position = standings[i-1].Position
		} else {
			standings[i].Position = i + 1
		}
	}
	return standings
}

// Interface for dependency injection
type ServiceInterface interface {
	MaxErrors() int
	RankScore(p model.PlayerProgress) int
	ApplyOutcome(stats *model.Stats, p model.PlayerProgress)
	Rank(accounts []model.UserAccount) []Standing
}

var _ ServiceInterface = (*Service)(nil)
