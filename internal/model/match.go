package model

import "time"

// MatchState represents the lifecycle phase of a match
type MatchState string

const (
	MatchStateRunning  MatchState = "running"
	MatchStateFinished MatchState = "finished"
)

// Outcome is a player's result within a match
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeWon        Outcome = "won"
	OutcomeLost       Outcome = "lost"
	OutcomeTimeout    Outcome = "timeout" // Round clock expired before the player finished
)

// IsTerminal returns true once the outcome can no longer change
func (o Outcome) IsTerminal() bool {
	return o == OutcomeWon || o == OutcomeLost || o == OutcomeTimeout
}

// PlayerProgress is one player's state within one match
type PlayerProgress struct {
	GuessedThemes []string `json:"guessed_themes"`
	Errors        int      `json:"errors"`
	Finished      bool     `json:"finished"`
	Outcome       Outcome  `json:"outcome"`
}

// NewPlayerProgress returns progress for a player who has not guessed yet
func NewPlayerProgress() PlayerProgress {
	return PlayerProgress{
		GuessedThemes: []string{},
		Outcome:       OutcomeInProgress,
	}
}

// Score is the number of themes guessed
func (p PlayerProgress) Score() int {
	return len(p.GuessedThemes)
}

// HasGuessed returns true if the theme has already been found
func (p PlayerProgress) HasGuessed(theme string) bool {
	for _, t := range p.GuessedThemes {
		if t == theme {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no memory with p
func (p PlayerProgress) Clone() PlayerProgress {
	themes := make([]string, len(p.GuessedThemes))
	copy(themes, p.GuessedThemes)
	p.GuessedThemes = themes
	return p
}

// MatchRecord is the frozen view of a match, used for archive lookups and persistence
type MatchRecord struct {
	Round      RoundDefinition           `json:"round"`
	Run        int64                     `json:"run"`
	State      MatchState                `json:"state"`
	Grid       []string                  `json:"grid"`
	StartedAt  time.Time                 `json:"started_at"`
	Duration   time.Duration             `json:"duration"`
	FinishedAt time.Time                 `json:"finished_at"`
	Players    map[string]PlayerProgress `json:"players"`
}

// ID returns the round identifier of the archived match
func (r MatchRecord) ID() RoundID {
	return r.Round.ID
}
