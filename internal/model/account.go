package model

import "time"

// Stats are a player's cumulative results across matches
type Stats struct {
	Played           int   `json:"played"`
	Won              int   `json:"won"`
	CurrentStreak    int   `json:"current_streak"`
	MaxStreak        int   `json:"max_streak"`
	MistakeHistogram []int `json:"mistake_histogram"` // Index is the error count at the time of a win
	RankScore        int   `json:"rank_score"`
}

// WinRate returns the percentage of played matches that were won
func (s Stats) WinRate() float64 {
	if s.Played == 0 {
		return 0
	}
	return float64(s.Won) * 100 / float64(s.Played)
}

// UserAccount is a registered player
type UserAccount struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"` // bcrypt hash
	Stats        Stats     `json:"stats"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no memory with a
func (a UserAccount) Clone() UserAccount {
	hist := make([]int, len(a.Stats.MistakeHistogram))
	copy(hist, a.Stats.MistakeHistogram)
	a.Stats.MistakeHistogram = hist
	return a
}
