package trader

import (
	"fmt"
	"time"

	"vwap-options-bot/internal/config"
)

// SessionState is the scheduler's view of where the current time falls in
// the trading window.
type SessionState int

const (
	// StateBeforeOpen: before session start, nothing runs.
	StateBeforeOpen SessionState = iota
	// StateActive: entries and exits both permitted.
	StateActive
	// StateCloseOnly: inside the close buffer, exits only.
	StateCloseOnly
	// StateClosed: past session close, any open position is force-expired.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateBeforeOpen:
		return "BEFORE_OPEN"
	case StateActive:
		return "ACTIVE"
	case StateCloseOnly:
		return "CLOSE_ONLY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessionClock maps wall-clock time onto the session state machine
// BeforeOpen -> Active -> CloseOnly -> Closed for a single daily window.
type SessionClock struct {
	openHour, openMin   int
	closeHour, closeMin int
	closeBuffer         time.Duration
	loc                 *time.Location
}

// NewSessionClock parses the configured window. Open/Close are "HH:MM".
func NewSessionClock(cfg config.Session) (*SessionClock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid session timezone %q: %w", cfg.Timezone, err)
	}

	oh, om, err := parseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("invalid session open %q: %w", cfg.Open, err)
	}
	ch, cm, err := parseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid session close %q: %w", cfg.Close, err)
	}

	return &SessionClock{
		openHour:    oh,
		openMin:     om,
		closeHour:   ch,
		closeMin:    cm,
		closeBuffer: time.Duration(cfg.CloseBufferMinutes) * time.Minute,
		loc:         loc,
	}, nil
}

func parseClock(s string) (hour, min int, err error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("out of range")
	}
	return h, m, nil
}

// OpenAt returns the session open instant for t's day.
func (c *SessionClock) OpenAt(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.openHour, c.openMin, 0, 0, c.loc)
}

// CloseAt returns the session close instant for t's day.
func (c *SessionClock) CloseAt(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.closeHour, c.closeMin, 0, 0, c.loc)
}

// StateAt returns the session state for an instant.
func (c *SessionClock) StateAt(t time.Time) SessionState {
	t = t.In(c.loc)
	switch {
	case t.Before(c.OpenAt(t)):
		return StateBeforeOpen
	case !t.Before(c.CloseAt(t)):
		return StateClosed
	case !t.Before(c.CloseAt(t).Add(-c.closeBuffer)):
		return StateCloseOnly
	default:
		return StateActive
	}
}
