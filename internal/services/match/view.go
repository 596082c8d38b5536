package match

import "github.com/mcoot/wordgroups/internal/model"

// Summary aggregates every participant of a match
type Summary struct {
	Participants int
	Finished     int
	Won          int
	Lost         int
	TimedOut     int
	AverageScore float64
}

// Summarize counts outcomes across players
func Summarize(players map[string]model.PlayerProgress) Summary {
	var s Summary
	total := 0
	for _, p := range players {
		s.Participants++
		total += p.Score()
		if p.Finished {
			s.Finished++
		}
		switch p.Outcome {
		case model.OutcomeWon:
			s.Won++
		case model.OutcomeLost:
			s.Lost++
		case model.OutcomeTimeout:
			s.TimedOut++
		}
	}
	if s.Participants > 0 {
		s.AverageScore = float64(total) / float64(s.Participants)
	}
	return s
}

// Board splits a grid into the words still in play and the groups already found, in guess order
func Board(def model.RoundDefinition, grid []string, p model.PlayerProgress) ([]string, []model.Group) {
	guessed := make([]model.Group, 0, len(p.GuessedThemes))
	for _, theme := range p.GuessedThemes {
		if g, ok := def.Group(theme); ok {
			guessed = append(guessed, g)
		}
	}

	remaining := make([]string, 0, len(grid))
	for _, w := range grid {
		if !p.HasGuessed(def.ThemeOf(w)) {
			remaining = append(remaining, w)
		}
	}
	return remaining, guessed
}
