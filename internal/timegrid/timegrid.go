// Package timegrid encodes the 30-minute slot discipline used by every
// calendar in the booking core. All arithmetic happens on integer minutes
// since midnight; HH:MM strings only exist at the edges.
package timegrid

import (
	"fmt"
	"time"
)

const (
	SlotMinutes   = 30
	MinutesPerDay = 24 * 60
	SlotsPerDay   = MinutesPerDay / SlotMinutes

	DateLayout = "2006-01-02"
)

// Minute is a minute-of-day offset.
type Minute int

// String formats the minute as HH:MM.
func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Aligned reports whether m sits on a slot boundary inside the day.
func (m Minute) Aligned() bool {
	return m >= 0 && m <= MinutesPerDay && int(m)%SlotMinutes == 0
}

// ErrorKind classifies why an interval failed validation.
type ErrorKind int

const (
	NoError ErrorKind = iota
	BadStartAlignment
	BadEndAlignment
	StartNotBeforeEnd
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "ok"
	case BadStartAlignment:
		return "start time must be HH:00 or HH:30"
	case BadEndAlignment:
		return "end time must be HH:00 or HH:30"
	case StartNotBeforeEnd:
		return "start time must be before end time"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Validation is the result of ValidateInterval. It is a value rather than an
// error so handlers can pick the user-facing message from Kind.
type Validation struct {
	Valid bool
	Kind  ErrorKind
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Kind: v.Kind}
}

// ValidationError carries the failing ErrorKind through error chains.
type ValidationError struct {
	Kind ErrorKind
}

func (e *ValidationError) Error() string {
	return "invalid interval: " + e.Kind.String()
}

// InvalidIntervalError is returned by EnumerateSlots when handed an interval
// that was never validated.
type InvalidIntervalError struct {
	Start, End Minute
	Kind       ErrorKind
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("cannot enumerate slots for [%d,%d): %s", e.Start, e.End, e.Kind)
}

// ParseClock parses a strict HH:MM string. It does not check alignment.
func ParseClock(s string) (Minute, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	h, ok1 := twoDigits(s[0], s[1])
	m, ok2 := twoDigits(s[3], s[4])
	if !ok1 || !ok2 || h > 23 || m > 59 {
		return 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	return Minute(h*60 + m), nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// IsAlignedTime reports whether s is HH:MM with HH in [0,23] and MM in {00,30}.
func IsAlignedTime(s string) bool {
	m, err := ParseClock(s)
	if err != nil {
		return false
	}
	return int(m)%SlotMinutes == 0
}

// ValidateInterval checks both endpoints and ordering, in that order.
func ValidateInterval(start, end string) Validation {
	if !IsAlignedTime(start) {
		return Validation{Kind: BadStartAlignment}
	}
	if !IsAlignedTime(end) {
		return Validation{Kind: BadEndAlignment}
	}
	s, _ := ParseClock(start)
	e, _ := ParseClock(end)
	return ValidateMinutes(s, e)
}

// ValidateMinutes applies the interval rules to already-parsed offsets.
func ValidateMinutes(start, end Minute) Validation {
	if !start.Aligned() || start == MinutesPerDay {
		return Validation{Kind: BadStartAlignment}
	}
	if !end.Aligned() {
		return Validation{Kind: BadEndAlignment}
	}
	if start >= end {
		return Validation{Kind: StartNotBeforeEnd}
	}
	return Validation{Valid: true}
}

// EnumerateSlots returns the ordered slot starts covering [start, end).
// Callers validate first; an invalid interval yields *InvalidIntervalError.
func EnumerateSlots(start, end Minute) ([]Minute, error) {
	if v := ValidateMinutes(start, end); !v.Valid {
		return nil, &InvalidIntervalError{Start: start, End: end, Kind: v.Kind}
	}
	slots := make([]Minute, 0, int(end-start)/SlotMinutes)
	for m := start; m < end; m += SlotMinutes {
		slots = append(slots, m)
	}
	return slots, nil
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 Minute) bool {
	return s1 < e2 && s2 < e1
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not YYYY-MM-DD", s)
	}
	return d, nil
}

// At returns the absolute instant of minute m on date in loc.
func At(date string, m Minute, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, int(m), 0, 0, loc), nil
}

// Slot is one bookable interval on a facility calendar.
type Slot struct {
	FacilityID string
	Date       string
	Start      Minute
	End        Minute
}

// Overlaps reports whether two slots collide on the same facility and date.
func (s Slot) Overlaps(o Slot) bool {
	return s.FacilityID == o.FacilityID && s.Date == o.Date && Overlaps(s.Start, s.End, o.Start, o.End)
}
