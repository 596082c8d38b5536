package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	accounts map[string]model.UserAccount
	history  map[int64]model.MatchRecord
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accounts: make(map[string]model.UserAccount),
		history:  make(map[int64]model.MatchRecord),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) SaveAccounts(ctx context.Context, accounts []model.UserAccount) error {
	next := make(map[string]model.UserAccount, len(accounts))
	for _, a := range accounts {
		next[a.Username] = a.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = next
	return nil
}

func (s *Storage) LoadAccounts(ctx context.Context) ([]model.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.UserAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
	return accounts, nil
}

// Match history operations

func (s *Storage) SaveHistory(ctx context.Context, matches []model.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range matches {
		s.history[m.Run] = m
	}
	return nil
}

func (s *Storage) LoadHistory(ctx context.Context) ([]model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]model.MatchRecord, 0, len(s.history))
	for _, m := range s.history {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Run < matches[j].Run
	})
	return matches, nil
}

func (s *Storage) Close() error {
	return nil
}
