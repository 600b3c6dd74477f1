package timeseries

import "time"

// InferFrequency determines the uniform frequency of a date index.
//
// At least three strictly increasing timestamps are required. Fixed spacing
// (seconds through weeks) is checked first, then business days, then
// calendar month offsets anchored at month start or month end. The second
// return value is false when no uniform frequency exists.
func InferFrequency(ts []time.Time) (Frequency, bool) {
	if len(ts) < 3 {
		return Frequency{}, false
	}
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			return Frequency{}, false
		}
	}

	if f, ok := inferFixed(ts); ok {
		return f, true
	}
	if inferBusinessDays(ts) {
		return BusinessDaily, true
	}
	return inferMonthly(ts)
}

func inferFixed(ts []time.Time) (Frequency, bool) {
	delta := ts[1].Sub(ts[0])
	for i := 2; i < len(ts); i++ {
		if ts[i].Sub(ts[i-1]) != delta {
			return Frequency{}, false
		}
	}

	const day = 24 * time.Hour
	switch {
	case delta%(7*day) == 0:
		return Frequency{Unit: Week, N: int(delta / (7 * day)), Weekday: ts[0].Weekday()}, true
	case delta%day == 0:
		return Frequency{Unit: Day, N: int(delta / day)}, true
	case delta%time.Hour == 0:
		return Frequency{Unit: Hour, N: int(delta / time.Hour)}, true
	case delta%time.Minute == 0:
		return Frequency{Unit: Minute, N: int(delta / time.Minute)}, true
	case delta%time.Second == 0:
		return Frequency{Unit: Second, N: int(delta / time.Second)}, true
	default:
		return Frequency{}, false
	}
}

// inferBusinessDays accepts indexes that step one weekday at a time, i.e.
// one day apart except for Friday to Monday.
func inferBusinessDays(ts []time.Time) bool {
	for i, t := range ts {
		if !isWeekday(t) {
			return false
		}
		if i == 0 {
			continue
		}
		if !BusinessDaily.Add(ts[i-1], 1).Equal(t) {
			return false
		}
	}
	return true
}

func inferMonthly(ts []time.Time) (Frequency, bool) {
	allEnd, allStart := true, true
	for _, t := range ts {
		if !isMonthEnd(t) {
			allEnd = false
		}
		if t.Day() != 1 {
			allStart = false
		}
	}
	if !allEnd && !allStart {
		return Frequency{}, false
	}

	step := monthIndex(ts[1]) - monthIndex(ts[0])
	if step <= 0 {
		return Frequency{}, false
	}

	unit := MonthEnd
	if !allEnd {
		unit = MonthStart
	}
	f := Frequency{Unit: unit, N: step, Month: ts[0].Month()}
	for i := 1; i < len(ts); i++ {
		if !f.Add(ts[i-1], 1).Equal(ts[i]) {
			return Frequency{}, false
		}
	}
	return f, true
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}
