package model

import "time"

// EventType identifies the type of an asynchronous round event
type EventType string

const (
	EventRoundStarted EventType = "roundStarted"
	EventRoundEnded   EventType = "roundEnded"
)

// Event is pushed to players without them asking for it
type Event struct {
	Type      EventType
	Timestamp time.Time
	RoundID   RoundID
	Run       int64
	Duration  time.Duration // Set for round started events
	Solution  []Group       // Set for round ended events
}
