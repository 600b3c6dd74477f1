package timeseries

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the base step of a Frequency.
type Unit int

const (
	Invalid Unit = iota
	Second
	Minute
	Hour
	Day
	BusinessDay
	Week
	MonthStart
	MonthEnd
)

// Frequency describes the regular spacing of a date index.
//
// Multi-month frequencies carry an anchor month so that quarters and years
// line up with calendar boundaries (Q ends in Mar/Jun/Sep/Dec, Y in Dec).
// Weekly frequencies carry the weekday they fall on.
type Frequency struct {
	Unit    Unit
	N       int
	Weekday time.Weekday
	Month   time.Month
}

// Common frequencies.
var (
	Daily         = Frequency{Unit: Day, N: 1}
	BusinessDaily = Frequency{Unit: BusinessDay, N: 1}
	Weekly        = Frequency{Unit: Week, N: 1, Weekday: time.Sunday}
	Monthly       = Frequency{Unit: MonthEnd, N: 1, Month: time.December}
	Quarterly     = Frequency{Unit: MonthEnd, N: 3, Month: time.December}
	Yearly        = Frequency{Unit: MonthEnd, N: 12, Month: time.December}
)

var weekdayCodes = map[time.Weekday]string{
	time.Sunday:    "SUN",
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
}

// IsZero reports whether the frequency is unset.
func (f Frequency) IsZero() bool {
	return f.Unit == Invalid
}

func (f Frequency) multiple() int {
	if f.N <= 0 {
		return 1
	}
	return f.N
}

// String returns the pandas-style offset alias, e.g. "D", "3D", "W-SUN", "M", "Q", "Y".
func (f Frequency) String() string {
	n := f.multiple()
	prefix := ""
	if n > 1 {
		prefix = strconv.Itoa(n)
	}

	switch f.Unit {
	case Second:
		return prefix + "S"
	case Minute:
		return prefix + "T"
	case Hour:
		return prefix + "H"
	case Day:
		return prefix + "D"
	case BusinessDay:
		return prefix + "B"
	case Week:
		return prefix + "W-" + weekdayCodes[f.Weekday]
	case MonthEnd:
		switch n {
		case 3:
			return "Q"
		case 12:
			return "Y"
		}
		return prefix + "M"
	case MonthStart:
		switch n {
		case 3:
			return "QS"
		case 12:
			return "YS"
		}
		return prefix + "MS"
	default:
		return ""
	}
}

// Label returns the plural human name used in user-facing messages.
func (f Frequency) Label() string {
	switch f.Unit {
	case Second:
		return "Seconds"
	case Minute:
		return "Minutes"
	case Hour:
		return "Hours"
	case Day:
		return "Days"
	case BusinessDay:
		return "Business days"
	case Week:
		return "Weeks"
	case MonthStart, MonthEnd:
		switch f.multiple() {
		case 3:
			return "Quarters"
		case 12:
			return "Years"
		}
		return "Months"
	default:
		return "Periods"
	}
}

// SeasonalPeriod returns the number of observations in one seasonal cycle.
func (f Frequency) SeasonalPeriod() int {
	n := f.multiple()
	var base int
	switch f.Unit {
	case Second, Minute:
		base = 60
	case Hour:
		base = 24
	case Day:
		base = 7
	case BusinessDay:
		base = 5
	case Week:
		base = 52
	case MonthStart, MonthEnd:
		base = 12
	default:
		return 1
	}
	if n > 1 && base%n == 0 {
		return base / n
	}
	if n > 1 {
		return 1
	}
	return base
}

// ParseFrequency accepts the codes offered by the sample form (D, B, w, W, M,
// Q, Y) as well as the aliases produced by String.
func ParseFrequency(code string) (Frequency, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Frequency{}, fmt.Errorf("empty frequency")
	}

	i := 0
	for i < len(code) && code[i] >= '0' && code[i] <= '9' {
		i++
	}
	n := 1
	if i > 0 {
		v, err := strconv.Atoi(code[:i])
		if err != nil || v <= 0 {
			return Frequency{}, fmt.Errorf("invalid frequency multiple in %q", code)
		}
		n = v
	}
	alias, anchor, _ := strings.Cut(code[i:], "-")

	switch strings.ToUpper(alias) {
	case "S":
		return Frequency{Unit: Second, N: n}, nil
	case "T", "MIN":
		return Frequency{Unit: Minute, N: n}, nil
	case "H":
		return Frequency{Unit: Hour, N: n}, nil
	case "D":
		return Frequency{Unit: Day, N: n}, nil
	case "B":
		return Frequency{Unit: BusinessDay, N: n}, nil
	case "W":
		wd := time.Sunday
		if anchor != "" {
			found := false
			for day, c := range weekdayCodes {
				if strings.EqualFold(c, anchor) {
					wd, found = day, true
				}
			}
			if !found {
				return Frequency{}, fmt.Errorf("invalid weekly anchor %q", anchor)
			}
		}
		return Frequency{Unit: Week, N: n, Weekday: wd}, nil
	case "M", "ME":
		return Frequency{Unit: MonthEnd, N: n, Month: time.December}, nil
	case "MS":
		return Frequency{Unit: MonthStart, N: n, Month: time.January}, nil
	case "Q", "QE":
		return Frequency{Unit: MonthEnd, N: 3 * n, Month: time.December}, nil
	case "QS":
		return Frequency{Unit: MonthStart, N: 3 * n, Month: time.January}, nil
	case "Y", "A", "YE":
		return Frequency{Unit: MonthEnd, N: 12 * n, Month: time.December}, nil
	case "YS", "AS":
		return Frequency{Unit: MonthStart, N: 12 * n, Month: time.January}, nil
	default:
		return Frequency{}, fmt.Errorf("unknown frequency %q", code)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Frequency) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Frequency) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*f = Frequency{}
		return nil
	}
	parsed, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Add moves t forward by n periods.
func (f Frequency) Add(t time.Time, n int) time.Time {
	m := f.multiple()
	switch f.Unit {
	case Second:
		return t.Add(time.Duration(n*m) * time.Second)
	case Minute:
		return t.Add(time.Duration(n*m) * time.Minute)
	case Hour:
		return t.Add(time.Duration(n*m) * time.Hour)
	case Day:
		return t.AddDate(0, 0, n*m)
	case Week:
		return t.AddDate(0, 0, 7*n*m)
	case BusinessDay:
		steps := n * m
		for steps > 0 {
			t = t.AddDate(0, 0, 1)
			if isWeekday(t) {
				steps--
			}
		}
		return t
	case MonthEnd:
		y, mo, _ := t.Date()
		return monthEnd(y, mo+time.Month(n*m), t)
	case MonthStart:
		y, mo, _ := t.Date()
		return time.Date(y, mo+time.Month(n*m), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	default:
		return t
	}
}

// DateRange returns every on-frequency timestamp in [start, end]. The first
// timestamp is start rolled forward to the next date that matches the
// frequency anchor, the same way pandas.date_range behaves.
func DateRange(start, end time.Time, f Frequency) []time.Time {
	if f.IsZero() || end.Before(start) {
		return nil
	}

	var out []time.Time
	for t := rollForward(start, f); !t.After(end); t = f.Add(t, 1) {
		out = append(out, t)
	}
	return out
}

// RollForward returns the first on-frequency timestamp at or after t.
func (f Frequency) RollForward(t time.Time) time.Time {
	return rollForward(t, f)
}

func rollForward(t time.Time, f Frequency) time.Time {
	switch f.Unit {
	case BusinessDay:
		for !isWeekday(t) {
			t = t.AddDate(0, 0, 1)
		}
		return t
	case Week:
		for t.Weekday() != f.Weekday {
			t = t.AddDate(0, 0, 1)
		}
		return t
	case MonthEnd:
		y, mo, _ := t.Date()
		cand := monthEnd(y, mo, t)
		for cand.Before(t) || !onAnchor(cand.Month(), f) {
			y, mo, _ = cand.Date()
			cand = monthEnd(y, mo+1, t)
		}
		return cand
	case MonthStart:
		y, mo, d := t.Date()
		cand := time.Date(y, mo, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		if d > 1 {
			cand = cand.AddDate(0, 1, 0)
		}
		for !onAnchor(cand.Month(), f) {
			cand = cand.AddDate(0, 1, 0)
		}
		return cand
	default:
		return t
	}
}

// onAnchor reports whether month falls on the cycle of a multi-month frequency.
func onAnchor(month time.Month, f Frequency) bool {
	n := f.multiple()
	if n == 1 || f.Month == 0 {
		return true
	}
	return (int(month)-int(f.Month))%n == 0
}

func monthEnd(year int, month time.Month, clock time.Time) time.Time {
	first := time.Date(year, month, 1, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
	return first.AddDate(0, 1, -1)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func isMonthEnd(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}
