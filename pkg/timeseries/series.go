// Package timeseries holds the date-indexed series type shared by the
// validator, the sample generator, the models and the plot renderer.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Series is an ordered sequence of observations indexed by time.
//
// Timestamps are strictly increasing and Values are finite. A Series is
// treated as read-only once it has been validated or generated.
type Series struct {
	Name       string      `json:"name"`
	Timestamps []time.Time `json:"timestamps"`
	Values     []float64   `json:"values"`
	Freq       Frequency   `json:"freq"`
}

// New builds a series and checks its invariants.
func New(name string, timestamps []time.Time, values []float64, freq Frequency) (*Series, error) {
	s := &Series{
		Name:       name,
		Timestamps: timestamps,
		Values:     values,
		Freq:       freq,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks index ordering and value finiteness.
func (s *Series) Validate() error {
	if len(s.Timestamps) != len(s.Values) {
		return fmt.Errorf("timestamp count (%d) != value count (%d)", len(s.Timestamps), len(s.Values))
	}
	if len(s.Values) == 0 {
		return errors.New("series is empty")
	}
	for i := 1; i < len(s.Timestamps); i++ {
		if !s.Timestamps[i].After(s.Timestamps[i-1]) {
			return fmt.Errorf("timestamps not strictly increasing at position %d", i)
		}
	}
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value at position %d is not finite", i)
		}
	}
	return nil
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.Values)
}

// First returns the first timestamp.
func (s *Series) First() time.Time {
	return s.Timestamps[0]
}

// Last returns the last timestamp.
func (s *Series) Last() time.Time {
	return s.Timestamps[len(s.Timestamps)-1]
}

// At returns the timestamp for an index position. Positions past the end
// are extended with the series frequency, which is how out-of-sample
// forecasts get their dates.
func (s *Series) At(pos int) time.Time {
	if pos < len(s.Timestamps) {
		return s.Timestamps[pos]
	}
	return s.Freq.Add(s.Last(), pos-len(s.Timestamps)+1)
}

// Index returns timestamps for positions start..end inclusive.
func (s *Series) Index(start, end int) []time.Time {
	if end < start {
		return nil
	}
	out := make([]time.Time, 0, end-start+1)
	for pos := start; pos <= end; pos++ {
		out = append(out, s.At(pos))
	}
	return out
}

// Position returns the index position of t, or -1 if t is not in the series.
func (s *Series) Position(t time.Time) int {
	lo, hi := 0, len(s.Timestamps)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case s.Timestamps[mid].Equal(t):
			return mid
		case s.Timestamps[mid].Before(t):
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}
