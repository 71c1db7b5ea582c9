// internal/domain/mission/cycle.go
package mission

import "time"

// CycleStartHour is the wall-clock hour at which a recommendation cycle begins.
const CycleStartHour = 6

// Manual triggers are refused in [BlockedWindowStartHour, BlockedWindowEndHour)
// so they never race the scheduled batch around the cycle boundary.
const (
	BlockedWindowStartHour = 5
	BlockedWindowEndHour   = 7
)

// CycleLength is the span of one accounting cycle.
const CycleLength = 24 * time.Hour

// Clock supplies the current time for cycle math.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// CycleStart returns the start of the cycle containing now: 06:00 on now's
// calendar date, or 06:00 on the previous date when now is before 06:00.
// The result is in now's location.
func CycleStart(now time.Time) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), CycleStartHour, 0, 0, 0, now.Location())
	if now.Hour() < CycleStartHour {
		start = time.Date(now.Year(), now.Month(), now.Day()-1, CycleStartHour, 0, 0, 0, now.Location())
	}
	return start
}

// CycleEnd returns the exclusive upper bound of the cycle that starts at start.
func CycleEnd(start time.Time) time.Time {
	return time.Date(start.Year(), start.Month(), start.Day()+1, CycleStartHour, 0, 0, 0, start.Location())
}

// BlockedWindow is an hour range [StartHour, EndHour) in which manual triggers
// are refused. A zero-width window blocks nothing.
type BlockedWindow struct {
	StartHour int
	EndHour   int
}

// DefaultBlockedWindow is 05:00 to 07:00.
var DefaultBlockedWindow = BlockedWindow{StartHour: BlockedWindowStartHour, EndHour: BlockedWindowEndHour}

// Contains reports whether now's time-of-day falls inside the window.
func (w BlockedWindow) Contains(now time.Time) bool {
	h := now.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// InBlockedWindow reports whether now falls inside the default guard band.
func InBlockedWindow(now time.Time) bool {
	return DefaultBlockedWindow.Contains(now)
}
