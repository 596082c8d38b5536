package model

import (
	"fmt"
	"strings"
)

// GroupSize is the number of words in each group
const GroupSize = 4

// GroupCount is the number of groups in a round
const GroupCount = 4

// RoundID identifies a puzzle definition
type RoundID int

// Group is a theme label and the words that belong to it
type Group struct {
	Theme string   `json:"theme"`
	Words []string `json:"words"`
}

// RoundDefinition is one immutable puzzle: four themed groups of four words
type RoundDefinition struct {
	ID     RoundID `json:"id"`
	Groups []Group `json:"groups"`
}

// NormalizeWord returns the canonical form used for all word comparisons
func NormalizeWord(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// Validate checks the group shape and that no word appears twice
func (d RoundDefinition) Validate() error {
	if len(d.Groups) != GroupCount {
		return fmt.Errorf("%w: round %d has %d groups, want %d", ErrInvalidRound, d.ID, len(d.Groups), GroupCount)
	}

	seen := make(map[string]struct{}, GroupCount*GroupSize)
	themes := make(map[string]struct{}, GroupCount)
	for _, g := range d.Groups {
		if strings.TrimSpace(g.Theme) == "" {
			return fmt.Errorf("%w: round %d has a group without a theme", ErrInvalidRound, d.ID)
		}
		if _, dup := themes[g.Theme]; dup {
			return fmt.Errorf("%w: round %d repeats theme %q", ErrInvalidRound, d.ID, g.Theme)
		}
		themes[g.Theme] = struct{}{}

		if len(g.Words) != GroupSize {
			return fmt.Errorf("%w: round %d theme %q has %d words, want %d", ErrInvalidRound, d.ID, g.Theme, len(g.Words), GroupSize)
		}
		for _, w := range g.Words {
			n := NormalizeWord(w)
			if n == "" {
				return fmt.Errorf("%w: round %d theme %q has an empty word", ErrInvalidRound, d.ID, g.Theme)
			}
			if _, dup := seen[n]; dup {
				return fmt.Errorf("%w: round %d repeats word %q", ErrInvalidRound, d.ID, n)
			}
			seen[n] = struct{}{}
		}
	}
	return nil
}

// Words returns every word of the round in definition order, normalized
func (d RoundDefinition) Words() []string {
	words := make([]string, 0, GroupCount*GroupSize)
	for _, g := range d.Groups {
		for _, w := range g.Words {
			words = append(words, NormalizeWord(w))
		}
	}
	return words
}

// ThemeOf returns the theme containing word, or "" if the word is not in the round
func (d RoundDefinition) ThemeOf(word string) string {
	n := NormalizeWord(word)
	for _, g := range d.Groups {
		for _, w := range g.Words {
			if NormalizeWord(w) == n {
				return g.Theme
			}
		}
	}
	return ""
}

// Group returns the group with the given theme
func (d RoundDefinition) Group(theme string) (Group, bool) {
	for _, g := range d.Groups {
		if g.Theme == theme {
			return g, true
		}
	}
	return Group{}, false
}
