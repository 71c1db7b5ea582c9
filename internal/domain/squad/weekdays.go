// internal/domain/squad/weekdays.go
package squad

import (
	"fmt"
	"strings"
	"time"
)

// Weekdays is a 7-bit set of active days. Bit n is time.Weekday(n), so
// Sunday is bit 0 and Wednesday is 0b0001000. The zero value is inactive.
type Weekdays uint8

const allWeekdays Weekdays = 0b1111111

// NewWeekdays builds a set from the given days.
func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	return w.With(days...)
}

// With returns the set OR-combined with days.
func (w Weekdays) With(days ...time.Weekday) Weekdays {
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w & allWeekdays
}

// Without returns the set with days removed.
func (w Weekdays) Without(days ...time.Weekday) Weekdays {
	for _, d := range days {
		w &^= 1 << uint(d)
	}
	return w
}

// Has reports whether day is active.
func (w Weekdays) Has(day time.Weekday) bool {
	return w&(1<<uint(day)) != 0
}

// IsEmpty reports whether no day is active; such a scope is never due.
func (w Weekdays) IsEmpty() bool {
	return w&allWeekdays == 0
}

func (w Weekdays) Monday() bool    { return w.Has(time.Monday) }
func (w Weekdays) Tuesday() bool   { return w.Has(time.Tuesday) }
func (w Weekdays) Wednesday() bool { return w.Has(time.Wednesday) }
func (w Weekdays) Thursday() bool  { return w.Has(time.Thursday) }
func (w Weekdays) Friday() bool    { return w.Has(time.Friday) }
func (w Weekdays) Saturday() bool  { return w.Has(time.Saturday) }
func (w Weekdays) Sunday() bool    { return w.Has(time.Sunday) }

// Days lists the active days, Monday first.
func (w Weekdays) Days() []time.Weekday {
	order := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
	days := make([]time.Weekday, 0, 7)
	for _, d := range order {
		if w.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (w Weekdays) String() string {
	days := w.Days()
	if len(days) == 0 {
		return "none"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ",")
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekdays builds a set from day names such as "Mon" or "wednesday".
func ParseWeekdays(names []string) (Weekdays, error) {
	var w Weekdays
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if len(key) < 3 {
			return 0, fmt.Errorf("unknown weekday %q", n)
		}
		d, ok := weekdayNames[key[:3]]
		if !ok || (len(key) > 3 && key != strings.ToLower(d.String())) {
			return 0, fmt.Errorf("unknown weekday %q", n)
		}
		w = w.With(d)
	}
	return w, nil
}
