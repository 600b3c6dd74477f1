package ingest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/HatiCode/tsdash/pkg/failure"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

// DefaultMinRows is the default minimum number of observations.
const DefaultMinRows = 30

// Validator checks a raw table against the structural rules of a series.
//
// Rules are applied in order and the first failing one is returned:
//  1. at least MinRows rows
//  2. first column parseable as dates
//  3. the dates have a uniform frequency
//  4. a value column exists and its values are numeric
//
// The rightmost column is the one extracted.
type Validator struct {
	minRows int
}

// NewValidator creates a validator. Panics if minRows < 3, the smallest
// length from which a frequency can be inferred.
func NewValidator(minRows int) *Validator {
	if minRows < 3 {
		panic("minRows must be >= 3")
	}
	return &Validator{minRows: minRows}
}

// MinRows returns the configured minimum.
func (v *Validator) MinRows() int {
	return v.minRows
}

// Validate implements Extractor.
func (v *Validator) Validate(ctx context.Context, t *Table) (*timeseries.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n := t.Rows(); n < v.minRows {
		return nil, &failure.Error{Kind: failure.TooFewValues, Count: n, Minimum: v.minRows}
	}

	timestamps, pos, err := ParseDates(t.Index)
	if err != nil {
		return nil, &failure.Error{Kind: failure.NotDates, Position: pos, Err: err}
	}

	freq, ok := timeseries.InferFrequency(timestamps)
	if !ok {
		return nil, &failure.Error{Kind: failure.IrregularFrequency}
	}

	if len(t.Columns) == 0 {
		return nil, &failure.Error{Kind: failure.NoValueColumn}
	}
	col := len(t.Columns) - 1
	values, pos, err := parseNumbers(t.Columns[col])
	if err != nil {
		return nil, &failure.Error{Kind: failure.NotNumeric, Position: pos, Err: err}
	}

	name := "value"
	if col+1 < len(t.Header) && strings.TrimSpace(t.Header[col+1]) != "" {
		name = strings.TrimSpace(t.Header[col+1])
	}

	return timeseries.New(name, timestamps, values, freq)
}

// parseNumbers converts a column to floats. Missing cells are rejected
// because none of the models accept gaps.
func parseNumbers(cells []string) ([]float64, int, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, i, fmt.Errorf("row %d: %w", i+1, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, i, fmt.Errorf("row %d: value %q is not finite", i+1, c)
		}
		out[i] = f
	}
	return out, -1, nil
}
