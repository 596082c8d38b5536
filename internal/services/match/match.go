package match

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/wordgroups/internal/model"
)

// OutcomeRecorder is told about every terminal player outcome exactly once
type OutcomeRecorder interface {
	RecordOutcome(username string, p model.PlayerProgress)
}

// GuessResult is the outcome of a scored proposal
type GuessResult struct {
	Correct       bool
	Theme         string
	AutoCompleted string
	Progress      model.PlayerProgress
}

// player serializes every mutation of one participant's progress
type player struct {
	mu       sync.Mutex
	name     string
	progress model.PlayerProgress
}

// Match is one timed playthrough of a round definition
type Match struct {
	def       model.RoundDefinition
	run       int64
	startedAt time.Time
	duration  time.Duration
	grid      []string
	themes    map[string]string // normalized word -> theme
	maxErrors int
	recorder  OutcomeRecorder

	players sync.Map // username -> *player
	state   atomic.Value

	finalizeOnce sync.Once
	record       model.MatchRecord // written once by finalize
}

func newMatch(def model.RoundDefinition, run int64, startedAt time.Time, duration time.Duration, grid []string, maxErrors int, recorder OutcomeRecorder) *Match {
	themes := make(map[string]string, model.GroupCount*model.GroupSize)
	for _, g := range def.Groups {
		for _, w := range g.Words {
			themes[model.NormalizeWord(w)] = g.Theme
		}
	}
	m := &Match{
		def:       def,
		run:       run,
		startedAt: startedAt,
		duration:  duration,
		grid:      grid,
		themes:    themes,
		maxErrors: maxErrors,
		recorder:  recorder,
	}
	m.state.Store(model.MatchStateRunning)
	return m
}

// ID returns the round definition id
func (m *Match) ID() model.RoundID { return m.def.ID }

// Run returns the global run number of this playthrough
func (m *Match) Run() int64 { return m.run }

// StartedAt returns when the match was installed
func (m *Match) StartedAt() time.Time { return m.startedAt }

// Duration returns the configured round length
func (m *Match) Duration() time.Duration { return m.duration }

// Deadline returns when the round clock expires
func (m *Match) Deadline() time.Time { return m.startedAt.Add(m.duration) }

// MaxErrors returns the error budget of each player
func (m *Match) MaxErrors() int { return m.maxErrors }

// State returns the match lifecycle phase
func (m *Match) State() model.MatchState {
	return m.state.Load().(model.MatchState)
}

// Definition returns the round being played, solution included
func (m *Match) Definition() model.RoundDefinition {
	return m.def
}

// Grid returns a copy of the shuffled word grid
func (m *Match) Grid() []string {
	out := make([]string, len(m.grid))
	copy(out, m.grid)
	return out
}

// TimeLeft returns the remaining time on the clock, never negative
func (m *Match) TimeLeft(now time.Time) time.Duration {
	if m.State() == model.MatchStateFinished {
		return 0
	}
	left := m.Deadline().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Join returns the player's progress, creating it on first access
func (m *Match) Join(username string) model.PlayerProgress {
	p := m.entry(username)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress.Clone()
}

// Progress returns the player's progress if they have participated
func (m *Match) Progress(username string) (model.PlayerProgress, bool) {
	v, ok := m.players.Load(username)
	if !ok {
		return model.PlayerProgress{}, false
	}
	p := v.(*player)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress.Clone(), true
}

// Players returns a copy of every participant's progress
func (m *Match) Players() map[string]model.PlayerProgress {
	out := make(map[string]model.PlayerProgress)
	m.players.Range(func(_, v any) bool {
		p := v.(*player)
		p.mu.Lock()
		out[p.name] = p.progress.Clone()
		p.mu.Unlock()
		return true
	})
	return out
}

// Rename moves a participant's progress to a new username
func (m *Match) Rename(oldName, newName string) {
	v, ok := m.players.Load(oldName)
	if !ok {
		return
	}
	p := v.(*player)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = newName
	m.players.Delete(oldName)
	m.players.Store(newName, p)
}

// Submit scores a proposal of GroupSize words for username.
// A finished player or an expired round is reported before the words are looked at.
func (m *Match) Submit(username string, words []string, now time.Time) (GuessResult, error) {
	proposal, err := normalizeProposal(words)
	if err != nil {
		return GuessResult{}, err
	}

	expired := m.State() == model.MatchStateFinished || !now.Before(m.Deadline())
	if _, joined := m.players.Load(username); !joined && expired {
		return GuessResult{}, model.ErrRoundExpired
	}
	p := m.entry(username)
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.progress.Finished {
		if p.progress.Outcome == model.OutcomeTimeout {
			return GuessResult{}, model.ErrRoundExpired
		}
		return GuessResult{}, model.ErrAlreadyFinished
	}
	if expired || m.State() == model.MatchStateFinished {
		return GuessResult{}, model.ErrRoundExpired
	}

	var unknown []string
	for _, w := range proposal {
		if _, ok := m.themes[w]; !ok {
			unknown = append(unknown, w)
		}
	}
	if len(unknown) > 0 {
		return GuessResult{}, fmt.Errorf("%w: %s", model.ErrInvalidWords, strings.Join(unknown, ", "))
	}
	for _, w := range proposal {
		if theme := m.themes[w]; p.progress.HasGuessed(theme) {
			return GuessResult{}, fmt.Errorf("%w: %s belongs to %s", model.ErrDuplicateGuess, w, theme)
		}
	}

	result := GuessResult{}
	if theme, ok := m.match(proposal, p.progress); ok {
		result.Correct = true
		result.Theme = theme
		p.progress.GuessedThemes = append(p.progress.GuessedThemes, theme)

		// The last group is implied once all others are found
		if len(p.progress.GuessedThemes) == len(m.def.Groups)-1 {
			for _, g := range m.def.Groups {
				if !p.progress.HasGuessed(g.Theme) {
					result.AutoCompleted = g.Theme
					p.progress.GuessedThemes = append(p.progress.GuessedThemes, g.Theme)
					break
				}
			}
		}
		if len(p.progress.GuessedThemes) == len(m.def.Groups) {
			m.terminate(p, model.OutcomeWon)
		}
	} else {
		p.progress.Errors++
		if p.progress.Errors >= m.maxErrors {
			m.terminate(p, model.OutcomeLost)
		}
	}

	result.Progress = p.progress.Clone()
	return result, nil
}

// match returns the first unguessed group, in definition order, whose words equal the proposal
func (m *Match) match(proposal []string, progress model.PlayerProgress) (string, bool) {
	for _, g := range m.def.Groups {
		if progress.HasGuessed(g.Theme) {
			continue
		}
		if sameWords(proposal, g.Words) {
			return g.Theme, true
		}
	}
	return "", false
}

// terminate must be called with p.mu held
func (m *Match) terminate(p *player, outcome model.Outcome) {
	if p.progress.Finished {
		return
	}
	p.progress.Finished = true
	p.progress.Outcome = outcome
	if m.recorder != nil {
		m.recorder.RecordOutcome(p.name, p.progress.Clone())
	}
}

// finalize ends the match once, crediting unfinished participants with a timeout
func (m *Match) finalize(now time.Time) (model.MatchRecord, bool) {
	first := false
	m.finalizeOnce.Do(func() {
		first = true
		m.state.Store(model.MatchStateFinished)

		m.players.Range(func(_, v any) bool {
			p := v.(*player)
			p.mu.Lock()
			m.terminate(p, model.OutcomeTimeout)
			p.mu.Unlock()
			return true
		})

		m.record = m.snapshot(model.MatchStateFinished, now)
	})
	return m.record, first
}

// Snapshot returns the current state as a record; a finalized match returns its frozen record
func (m *Match) Snapshot() model.MatchRecord {
	if m.State() == model.MatchStateFinished {
		// Blocks until the running finalize has written the record
		rec, _ := m.finalize(time.Time{})
		return rec
	}
	return m.snapshot(model.MatchStateRunning, time.Time{})
}

func (m *Match) snapshot(state model.MatchState, finishedAt time.Time) model.MatchRecord {
	return model.MatchRecord{
		Round:      m.def,
		Run:        m.run,
		State:      state,
		Grid:       m.Grid(),
		StartedAt:  m.startedAt,
		Duration:   m.duration,
		FinishedAt: finishedAt,
		Players:    m.Players(),
	}
}

func (m *Match) entry(username string) *player {
	if v, ok := m.players.Load(username); ok {
		return v.(*player)
	}
	v, _ := m.players.LoadOrStore(username, &player{name: username, progress: model.NewPlayerProgress()})
	return v.(*player)
}

// normalizeProposal requires exactly GroupSize distinct non-empty words
func normalizeProposal(words []string) ([]string, error) {
	if len(words) != model.GroupSize {
		return nil, fmt.Errorf("%w: a proposal needs exactly %d words, got %d", model.ErrBadRequest, model.GroupSize, len(words))
	}
	out := make([]string, len(words))
	seen := make(map[string]struct{}, len(words))
	for i, w := range words {
		n := model.NormalizeWord(w)
		if n == "" {
			return nil, fmt.Errorf("%w: empty word in proposal", model.ErrBadRequest)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %s repeated in proposal", model.ErrBadRequest, n)
		}
		seen[n] = struct{}{}
		out[i] = n
	}
	return out, nil
}

// sameWords reports set equality; both sides hold distinct words
func sameWords(proposal, group []string) bool {
	if len(proposal) != len(group) {
		return false
	}
	set := make(map[string]struct{}, len(group))
	for _, w := range group {
		set[model.NormalizeWord(w)] = struct{}{}
	}
	for _, w := range proposal {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
