package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/storage"
)

const (
	accountsFile = "users.json"
	historyFile  = "matches.json"
)

// Storage keeps each collection as a JSON document inside a directory
type Storage struct {
	dir string
	mu  sync.Mutex
}

// New creates a file storage rooted at dir, creating the directory if needed
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) SaveAccounts(ctx context.Context, accounts []model.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(accountsFile, accounts)
}

func (s *Storage) LoadAccounts(ctx context.Context) ([]model.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := []model.UserAccount{}
	if err := s.read(accountsFile, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Storage) SaveHistory(ctx context.Context, matches []model.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := []model.MatchRecord{}
	if err := s.read(historyFile, &existing); err != nil {
		return err
	}

	byRun := make(map[int64]model.MatchRecord, len(existing)+len(matches))
	for _, m := range existing {
		byRun[m.Run] = m
	}
	for _, m := range matches {
		byRun[m.Run] = m
	}

	merged := make([]model.MatchRecord, 0, len(byRun))
	for _, m := range byRun {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Run < merged[j].Run
	})
	return s.write(historyFile, merged)
}

func (s *Storage) LoadHistory(ctx context.Context) ([]model.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []model.MatchRecord{}
	if err := s.read(historyFile, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *Storage) Close() error {
	return nil
}

// read decodes a document; a missing file leaves v untouched
func (s *Storage) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// write replaces a document atomically via a temp file and rename
func (s *Storage) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}
