package clock

import "time"

// Clock is the time source for round timing and persisted timestamps
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC so stored records compare across restarts
type RealClock struct{}

func New() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}
