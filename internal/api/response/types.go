package response

import (
	"time"

	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/services/scoring"
)

// HealthResponse reports liveness and a few gauges
type HealthResponse struct {
	Status        string         `json:"status"`
	Connections   int            `json:"connections"`
	Subscribers   int            `json:"subscribers"`
	CurrentGameID *model.RoundID `json:"current_game_id,omitempty"`
}

// LeaderboardRow is one ranked player
type LeaderboardRow struct {
	Position int    `json:"position"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// LeaderboardResponse lists ranked players
type LeaderboardResponse struct {
	Rows []LeaderboardRow `json:"rows"`
}

// GameStats aggregates participant outcomes
type GameStats struct {
	Participants int     `json:"participants"`
	Finished     int     `json:"finished"`
	Won          int     `json:"won"`
	Lost         int     `json:"lost"`
	TimedOut     int     `json:"timed_out"`
	AverageScore float64 `json:"average_score"`
}

// GameResponse is the public view of a match. The solution is only present once it has ended.
type GameResponse struct {
	GameID     model.RoundID `json:"game_id"`
	Run        int64         `json:"run"`
	State      string        `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
	TimeLeftMs int64         `json:"time_left_ms"`
	Grid       []string      `json:"grid"`
	Solution   []model.Group `json:"solution,omitempty"`
	Stats      GameStats     `json:"stats"`
}

// LeaderboardFromStandings converts ranked standings
func LeaderboardFromStandings(standings []scoring.Standing) LeaderboardResponse {
	rows := make([]LeaderboardRow, len(standings))
	for i, st := range standings {
		rows[i] = LeaderboardRow{Position: st.Position, Username: st.Username, Score: st.Score}
	}
	return LeaderboardResponse{Rows: rows}
}

// GameFromMatch converts the current match
func GameFromMatch(m *match.Match, now time.Time) GameResponse {
	rec := m.Snapshot()
	resp := GameFromRecord(&rec)
	resp.TimeLeftMs = m.TimeLeft(now).Milliseconds()
	if rec.State != model.MatchStateFinished {
		resp.Solution = nil
	}
	return resp
}

// GameFromRecord converts an archived match
func GameFromRecord(rec *model.MatchRecord) GameResponse {
	return GameResponse{
		GameID:     rec.ID(),
		Run:        rec.Run,
		State:      string(rec.State),
		StartedAt:  rec.StartedAt,
		DurationMs: rec.Duration.Milliseconds(),
		Grid:       rec.Grid,
		Solution:   rec.Round.Groups,
		Stats:      statsFromSummary(match.Summarize(rec.Players)),
	}
}

func statsFromSummary(s match.Summary) GameStats {
	return GameStats{
		Participants: s.Participants,
		Finished:     s.Finished,
		Won:          s.Won,
		Lost:         s.Lost,
		TimedOut:     s.TimedOut,
		AverageScore: s.AverageScore,
	}
}
