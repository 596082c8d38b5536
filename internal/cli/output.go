package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mcoot/wordgroups/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.HealthResponse:
		o.printHealth(v)
	case response.LeaderboardResponse:
		o.printLeaderboard(v)
	case response.GameResponse:
		o.printGame(v)
	case RoundsReport:
		o.printRoundsReport(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// RoundsReport summarises a validated rounds file
type RoundsReport struct {
	File   string `json:"file"`
	Rounds int    `json:"rounds"`
	Valid  bool   `json:"valid"`
}

func (o *Output) printHealth(h response.HealthResponse) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Connections: %d\n", h.Connections)
	fmt.Fprintf(o.w, "UDP subscribers: %d\n", h.Subscribers)
	if h.CurrentGameID != nil {
		fmt.Fprintf(o.w, "Current game: %d\n", *h.CurrentGameID)
	} else {
		fmt.Fprintln(o.w, "Current game: none")
	}
}

func (o *Output) printLeaderboard(l response.LeaderboardResponse) {
	if len(l.Rows) == 0 {
		fmt.Fprintln(o.w, "No players yet")
		return
	}
	for _, row := range l.Rows {
		fmt.Fprintf(o.w, "%3d. %-20s %6d\n", row.Position, row.Username, row.Score)
	}
}

func (o *Output) printGame(g response.GameResponse) {
	fmt.Fprintf(o.w, "Game %d (run %d): %s\n", g.GameID, g.Run, g.State)
	if g.TimeLeftMs > 0 {
		fmt.Fprintf(o.w, "Time left: %ds\n", g.TimeLeftMs/1000)
	}
	fmt.Fprintf(o.w, "Grid: %s\n", strings.Join(g.Grid, " "))
	fmt.Fprintf(o.w, "Players: %d (won %d, lost %d, timed out %d)\n",
		g.Stats.Participants, g.Stats.Won, g.Stats.Lost, g.Stats.TimedOut)
	for _, group := range g.Solution {
		fmt.Fprintf(o.w, "  %s: %s\n", group.Theme, strings.Join(group.Words, ", "))
	}
}

func (o *Output) printRoundsReport(r RoundsReport) {
	fmt.Fprintf(o.w, "%s: %d rounds OK\n", r.File, r.Rounds)
}
