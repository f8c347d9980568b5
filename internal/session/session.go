// Package session classifies wall-clock time into equity trading
// sessions for the exchange timezone. The classification drives which
// enrichment source is tried first on a cold start.
package session

import (
	"fmt"
	"time"
)

// State is the current trading-hours classification.
type State string

const (
	// Regular is the core session, 09:30-16:00 exchange time.
	Regular State = "REGULAR"
	// Pre is before the open, within the extended window.
	Pre State = "PRE"
	// Post is after the close, within the extended window.
	Post State = "POST"
	// Closed is outside the extended window, or a weekend.
	Closed State = "CLOSED"
)

// Session windows in minutes from midnight, exchange time.
const (
	extendedOpenMin  = 4 * 60           // 04:00
	regularOpenMin   = 9*60 + 30        // 09:30
	regularCloseMin  = 16 * 60          // 16:00
	extendedCloseMin = 20 * 60          // 20:00
)

// DefaultTimezone is the exchange timezone used when none is configured.
const DefaultTimezone = "America/New_York"

// Clock classifies instants against a fixed exchange calendar.
// Weekends are closed; exchange holidays are not modeled.
type Clock struct {
	loc *time.Location
}

// NewClock loads the exchange timezone. An empty name selects
// DefaultTimezone.
func NewClock(timezone string) (*Clock, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone %q: %w", timezone, err)
	}
	return &Clock{loc: loc}, nil
}

// Classify returns the session state for the given instant.
func (c *Clock) Classify(t time.Time) State {
	local := t.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return Closed
	}

	minute := local.Hour()*60 + local.Minute()
	switch {
	case minute < extendedOpenMin || minute >= extendedCloseMin:
		return Closed
	case minute < regularOpenMin:
		return Pre
	case minute < regularCloseMin:
		return Regular
	default:
		return Post
	}
}

// Now classifies the current instant.
func (c *Clock) Now() State {
	return c.Classify(time.Now())
}
