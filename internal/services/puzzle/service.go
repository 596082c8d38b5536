package puzzle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/wordgroups/internal/model"
)

// Source yields the next round definition to play
type Source interface {
	Next(ctx context.Context) (model.RoundDefinition, error)
}

// Service holds the loaded puzzle content and serves it in a cycle
type Service struct {
	mu     sync.Mutex
	rounds []model.RoundDefinition
	next   int
}

// New creates an empty puzzle Service
func New() *Service {
	return &Service{}
}

// Ensure Service is a Source
var _ Source = (*Service)(nil)

// LoadFromFile loads rounds from a JSON or YAML document holding a list of definitions
func (s *Service) LoadFromFile(ctx context.Context, path string) error {
	rounds, err := ReadFile(path)
	if err != nil {
		return err
	}
	return s.LoadRounds(rounds)
}

// ReadFile parses and validates a rounds document without loading it
func ReadFile(path string) ([]model.RoundDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rounds []model.RoundDefinition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rounds)
	default:
		err = json.Unmarshal(data, &rounds)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidRound, path, err)
	}

	if err := Validate(rounds); err != nil {
		return nil, err
	}
	return rounds, nil
}

// Validate checks every definition and that round ids are unique
func Validate(rounds []model.RoundDefinition) error {
	if len(rounds) == 0 {
		return model.ErrNoRounds
	}
	seen := make(map[model.RoundID]struct{}, len(rounds))
	for i := range rounds {
		if err := rounds[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[rounds[i].ID]; dup {
			return fmt.Errorf("%w: round id %d appears twice", model.ErrInvalidRound, rounds[i].ID)
		}
		seen[rounds[i].ID] = struct{}{}
	}
	return nil
}

// LoadRounds directly loads definitions (useful for testing)
func (s *Service) LoadRounds(rounds []model.RoundDefinition) error {
	if err := Validate(rounds); err != nil {
		return err
	}

	normalized := make([]model.RoundDefinition, len(rounds))
	for i, r := range rounds {
		normalized[i] = normalize(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = normalized
	s.next = 0
	return nil
}

// Next returns the next definition, restarting from the first once exhausted
func (s *Service) Next(ctx context.Context) (model.RoundDefinition, error) {
	if err := ctx.Err(); err != nil {
		return model.RoundDefinition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rounds) == 0 {
		return model.RoundDefinition{}, model.ErrNoRounds
	}
	r := s.rounds[s.next]
	s.next = (s.next + 1) % len(s.rounds)
	return r, nil
}

// Get returns the definition with the given id
func (s *Service) Get(id model.RoundID) (model.RoundDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if r.ID == id {
			return r, nil
		}
	}
	return model.RoundDefinition{}, model.ErrRoundNotFound
}

// IsLoaded returns true if rounds have been loaded
func (s *Service) IsLoaded() bool {
	return s.Count() > 0
}

// Count returns the number of loaded rounds
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rounds)
}

// normalize copies a definition with canonical word spelling
func normalize(r model.RoundDefinition) model.RoundDefinition {
	groups := make([]model.Group, len(r.Groups))
	for i, g := range r.Groups {
		words := make([]string, len(g.Words))
		for j, w := range g.Words {
			words[j] = model.NormalizeWord(w)
		}
		groups[i] = model.Group{Theme: strings.TrimSpace(g.Theme), Words: words}
	}
	return model.RoundDefinition{ID: r.ID, Groups: groups}
}
