package testutil

import (
	"time"

	"github.com/mcoot/wordgroups/internal/model"
)

// SampleRound returns a valid round definition with the given id
func SampleRound(id model.RoundID) model.RoundDefinition {
	return model.RoundDefinition{
		ID: id,
		Groups: []model.Group{
			{Theme: "ANIMALS", Words: []string{"CANE", "GATTO", "LUPO", "ORSO"}},
			{Theme: "COLORS", Words: []string{"ROSSO", "VERDE", "BLU", "GIALLO"}},
			{Theme: "FRUIT", Words: []string{"MELA", "PERA", "UVA", "FICO"}},
			{Theme: "CITIES", Words: []string{"ROMA", "MILANO", "TORINO", "NAPOLI"}},
		},
	}
}

// SampleAccount returns an account with some recorded history
func SampleAccount(username string) model.UserAccount {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return model.UserAccount{
		Username:     username,
		PasswordHash: "hash-" + username,
		Stats: model.Stats{
			Played:           3,
			Won:              2,
			CurrentStreak:    1,
			MaxStreak:        1,
			MistakeHistogram: []int{1, 0, 1, 0},
			RankScore:        40,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SampleRecord returns a finished match record for the given round and run
func SampleRecord(id model.RoundID, run int64) model.MatchRecord {
	round := SampleRound(id)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return model.MatchRecord{
		Round:      round,
		Run:        run,
		State:      model.MatchStateFinished,
		Grid:       round.Words(),
		StartedAt:  start,
		Duration:   time.Minute,
		FinishedAt: start.Add(time.Minute),
		Players: map[string]model.PlayerProgress{
			"alice": {GuessedThemes: []string{"ANIMALS", "COLORS", "FRUIT", "CITIES"}, Errors: 1, Finished: true, Outcome: model.OutcomeWon},
		},
	}
}
