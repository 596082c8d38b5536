package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/services/scoring"
)

// Config holds configuration for the accounts service
type Config struct {
	BcryptCost int
}

// DefaultConfig returns default accounts configuration
func DefaultConfig() Config {
	return Config{
		BcryptCost: bcrypt.DefaultCost,
	}
}

// entry guards one account; stats updates serialize on mu
type entry struct {
	mu      sync.Mutex
	account model.UserAccount
}

// Service is the registry of user accounts and of who is currently online
type Service struct {
	clock   clock.Clock
	scoring scoring.ServiceInterface
	logger  *slog.Logger
	cost    int

	mu       sync.RWMutex
	accounts map[string]*entry
	renamed  map[string]string // former username -> the name it was changed to

	onlineMu sync.Mutex
	online   map[string]string // username -> session id

	version atomic.Uint64
}

// New creates a new accounts Service
func New(clock clock.Clock, scoring scoring.ServiceInterface, logger *slog.Logger, cfg Config) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultConfig().BcryptCost
	}
	return &Service{
		clock:    clock,
		scoring:  scoring,
		logger:   logger.With(slog.String("component", "accounts")),
		cost:     cfg.BcryptCost,
		accounts: make(map[string]*entry),
		renamed:  make(map[string]string),
		online:   make(map[string]string),
	}
}

// Register creates a new account
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: name and password are required", model.ErrBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[username]; exists {
		return model.ErrUsernameExists
	}
	s.accounts[username] = &entry{account: model.UserAccount{
		Username:     username,
		PasswordHash: string(hash),
		Stats:        model.Stats{MistakeHistogram: make([]int, s.scoring.MaxErrors())},
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
	s.version.Add(1)

	s.logger.Info("account registered", slog.String("username", username))
	return nil
}

// Authenticate checks a username and password pair
func (s *Service) Authenticate(username, password string) error {
	e, ok := s.get(username)
	if !ok {
		return model.ErrInvalidCredentials
	}

	e.mu.Lock()
	hash := e.account.PasswordHash
	e.mu.Unlock()

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return model.ErrInvalidCredentials
	}
	return nil
}

// UpdateCredentials changes the name and/or password of an account.
// Empty new values leave the field unchanged. Returns the resulting username.
func (s *Service) UpdateCredentials(oldName, oldPassword, newName, newPassword string) (string, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" && newPassword == "" {
		return "", fmt.Errorf("%w: nothing to update", model.ErrBadRequest)
	}
	if err := s.Authenticate(oldName, oldPassword); err != nil {
		return "", fmt.Errorf("%w: old credentials do not match", model.ErrForbidden)
	}

	var hash []byte
	if newPassword != "" {
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(newPassword), s.cost); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.accounts[oldName]
	if !ok {
		return "", model.ErrUserNotFound
	}
	if newName != "" && newName != oldName {
		if _, taken := s.accounts[newName]; taken {
			return "", model.ErrUsernameExists
		}
	}

	e.mu.Lock()
	if hash != nil {
		e.account.PasswordHash = string(hash)
	}
	if newName != "" && newName != oldName {
		e.account.Username = newName
		delete(s.accounts, oldName)
		s.accounts[newName] = e
		s.renamed[oldName] = newName
		delete(s.renamed, newName)
	}
	e.account.UpdatedAt = s.clock.Now()
	finalName := e.account.Username
	e.mu.Unlock()

	if finalName != oldName {
		s.renameOnline(oldName, finalName)
	}
	s.version.Add(1)

	s.logger.Info("credentials updated",
		slog.String("username", oldName),
		slog.String("new_username", finalName),
		slog.Bool("password_changed", hash != nil),
	)
	return finalName, nil
}

// RecordOutcome credits a terminal match result to the account's stats.
// An outcome reported under a former name is credited to the renamed account.
func (s *Service) RecordOutcome(username string, p model.PlayerProgress) {
	e, ok := s.resolve(username)
	if !ok {
		s.logger.Warn("outcome for unknown account dropped",
			slog.String("username", username),
			slog.String("outcome", string(p.Outcome)),
		)
		return
	}

	e.mu.Lock()
	s.scoring.ApplyOutcome(&e.account.Stats, p)
	e.account.UpdatedAt = s.clock.Now()
	e.mu.Unlock()
	s.version.Add(1)

	s.logger.Debug("outcome recorded",
		slog.String("username", username),
		slog.String("outcome", string(p.Outcome)),
		slog.Int("errors", p.Errors),
	)
}

// Stats returns a copy of the account's cumulative stats
func (s *Service) Stats(username string) (model.Stats, error) {
	e, ok := s.get(username)
	if !ok {
		return model.Stats{}, model.ErrUserNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account.Clone().Stats, nil
}

// Leaderboard returns the top n standings; n <= 0 returns everyone
func (s *Service) Leaderboard(n int) []scoring.Standing {
	standings := s.scoring.Rank(s.Snapshot())
	if n > 0 && n < len(standings) {
		standings = standings[:n]
	}
	return standings
}

// StandingOf returns a single player's leaderboard row
func (s *Service) StandingOf(username string) (scoring.Standing, error) {
	for _, st := range s.scoring.Rank(s.Snapshot()) {
		if st.Username == username {
			return st, nil
		}
	}
	return scoring.Standing{}, model.ErrUserNotFound
}

// MarkOnline records that username is logged in on sessionID
func (s *Service) MarkOnline(username, sessionID string) error {
	s.onlineMu.Lock()
	defer s.onlineMu.Unlock()
	if current, ok := s.online[username]; ok && current != sessionID {
		return model.ErrAlreadyOnline
	}
	s.online[username] = sessionID
	return nil
}

// MarkOffline clears the online marker if it still belongs to sessionID
func (s *Service) MarkOffline(username, sessionID string) {
	s.onlineMu.Lock()
	defer s.onlineMu.Unlock()
	if s.online[username] == sessionID {
		delete(s.online, username)
	}
}

// IsOnline reports whether username is logged in anywhere
func (s *Service) IsOnline(username string) bool {
	s.onlineMu.Lock()
	defer s.onlineMu.Unlock()
	_, ok := s.online[username]
	return ok
}

func (s *Service) renameOnline(oldName, newName string) {
	s.onlineMu.Lock()
	defer s.onlineMu.Unlock()
	if id, ok := s.online[oldName]; ok {
		delete(s.online, oldName)
		s.online[newName] = id
	}
}

// Exists reports whether an account is registered
func (s *Service) Exists(username string) bool {
	_, ok := s.get(username)
	return ok
}

// Snapshot returns copies of every account ordered by username
func (s *Service) Snapshot() []model.UserAccount {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]model.UserAccount, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.account.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}

// Restore replaces every account, typically from persisted state at boot
func (s *Service) Restore(accounts []model.UserAccount) {
	next := make(map[string]*entry, len(accounts))
	for _, a := range accounts {
		next[a.Username] = &entry{account: a.Clone()}
	}

	s.mu.Lock()
	s.accounts = next
	s.renamed = make(map[string]string)
	s.mu.Unlock()
	s.version.Add(1)
}

// Version changes every time any account changes
func (s *Service) Version() uint64 {
	return s.version.Load()
}

func (s *Service) get(username string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[username]
	return e, ok
}

// resolve looks username up, following renames when it no longer exists
func (s *Service) resolve(username string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name := username
	for range len(s.renamed) + 1 {
		if e, ok := s.accounts[name]; ok {
			return e, true
		}
		next, ok := s.renamed[name]
		if !ok {
			return nil, false
		}
		name = next
	}
	return nil, false
}
