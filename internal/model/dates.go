package model

import (
	"errors"
	"time"
)

// DateLayout is the calendar-date format used at the API boundary and
// as the key of per-day inventory rows.
const DateLayout = "2006-01-02"

// ErrInvalidSpan is returned when a span ends before it starts.
var ErrInvalidSpan = errors.New("end date is before start date")

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// DateSpan is an inclusive range of calendar dates.
type DateSpan struct {
	Start time.Time
	End   time.Time
}

// NewDateSpan normalises both ends to dates and rejects spans whose end
// precedes their start.
func NewDateSpan(start, end time.Time) (DateSpan, error) {
	s, e := DateOf(start), DateOf(end)
	if e.Before(s) {
		return DateSpan{}, ErrInvalidSpan
	}
	return DateSpan{Start: s, End: e}, nil
}

// SingleDay returns the span covering only d.
func SingleDay(d time.Time) DateSpan {
	d = DateOf(d)
	return DateSpan{Start: d, End: d}
}

// Days counts the dates in the span, both ends included, never less than 1.
func (s DateSpan) Days() int {
	n := int(DateOf(s.End).Sub(DateOf(s.Start)).Hours()/24) + 1
	if n < 1 {
		return 1
	}
	return n
}

// Contains reports whether d falls inside the span.
func (s DateSpan) Contains(d time.Time) bool {
	d = DateOf(d)
	return !d.Before(DateOf(s.Start)) && !d.After(DateOf(s.End))
}

// Includes reports whether other lies entirely inside s.
func (s DateSpan) Includes(other DateSpan) bool {
	return s.Contains(other.Start) && s.Contains(other.End)
}

// Dates lists every date in the span in ascending order.
func (s DateSpan) Dates() []time.Time {
	out := make([]time.Time, 0, s.Days())
	for d := DateOf(s.Start); !d.After(DateOf(s.End)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Equal compares spans by calendar date.
func (s DateSpan) Equal(other DateSpan) bool {
	return DateOf(s.Start).Equal(DateOf(other.Start)) && DateOf(s.End).Equal(DateOf(other.End))
}

func (s DateSpan) String() string {
	return s.Start.Format(DateLayout) + ".." + s.End.Format(DateLayout)
}
