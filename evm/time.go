package evm

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day, the unit every stream is bucketed from
// =============================================================================

// DateLayout is the wire form of a TimePoint in CSV, JSON and SQL.
const DateLayout = "2006-01-02"

// TimePoint is a calendar day. The wrapped time is always midnight UTC, so two
// TimePoints for the same day compare equal with ==.
type TimePoint struct {
	Time time.Time
}

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Day truncates t to its calendar day, keeping the wall-clock date.
func Day(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseTimePoint accepts "2006-01-02" and tolerates a trailing time part
// ("2006-01-02 15:04:05" or RFC 3339), which is dropped.
func ParseTimePoint(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		if sep := s[len(DateLayout)]; sep == 'T' || sep == ' ' {
			s = s[:len(DateLayout)]
		}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Day(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }
func (tp TimePoint) String() string        { return tp.Time.Format(DateLayout) }

// WeekEnd returns the Sunday that closes the ISO week (Monday..Sunday)
// containing tp. A Sunday maps to itself.
func (tp TimePoint) WeekEnd() TimePoint {
	return tp.AddDays((7 - int(tp.Weekday())) % 7)
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + tp.String() + `"`), nil
}

func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseTimePoint(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// compareDays orders TimePoints chronologically for slices.SortFunc.
func compareDays(a, b TimePoint) int {
	return a.Time.Compare(b.Time)
}
