// Package analysis turns a validated series into the results shown to the
// user: the prediction table of every fitted model, the interactive ARIMA
// refit and the packaged result with its sample rows and totals.
package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// Column names of the prediction table.
const (
	ColumnActual      = "Actual Data"
	ColumnSmoothing   = "Exponential Smoothing"
	ColumnAR          = "AR"
	ColumnARMA        = "ARMA"
	DefaultSampleRows = 14
)

// Table is a set of equally long columns over a shared time index.
type Table struct {
	Index   []time.Time
	Columns []string
	Values  [][]float64 // Values[column][row]
}

// NewTable builds a table and drops every row holding a NaN in any column.
func NewTable(index []time.Time, columns []string, values [][]float64) (*Table, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%d column names for %d columns", len(columns), len(values))
	}
	for i, col := range values {
		if len(col) != len(index) {
			return nil, fmt.Errorf("column %q has %d rows, index has %d", columns[i], len(col), len(index))
		}
	}

	keep := make([]int, 0, len(index))
	for r := range index {
		complete := true
		for _, col := range values {
			if math.IsNaN(col[r]) || math.IsInf(col[r], 0) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, r)
		}
	}

	t := &Table{
		Index:   make([]time.Time, len(keep)),
		Columns: append([]string(nil), columns...),
		Values:  make([][]float64, len(values)),
	}
	for i, r := range keep {
		t.Index[i] = index[r]
	}
	for c, col := range values {
		t.Values[c] = make([]float64, len(keep))
		for i, r := range keep {
			t.Values[c][i] = col[r]
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Index)
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	for i, c := range t.Columns {
		if c == name {
			return t.Values[i], true
		}
	}
	return nil, false
}

// Tail returns the last n rows, or the whole table when it is shorter.
func (t *Table) Tail(n int) *Table {
	from := max(t.Len()-n, 0)
	out := &Table{
		Index:   t.Index[from:],
		Columns: t.Columns,
		Values:  make([][]float64, len(t.Values)),
	}
	for c, col := range t.Values {
		out.Values[c] = col[from:]
	}
	return out
}

// Totals returns the sum of every column rounded to two decimals, in column
// order.
func (t *Table) Totals() []float64 {
	out := make([]float64, len(t.Values))
	for c, col := range t.Values {
		var sum float64
		for _, v := range col {
			sum += v
		}
		out[c] = math.Round(sum*100) / 100
	}
	return out
}

// WriteCSV writes the table with a leading "date" column.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"date"}, t.Columns...)); err != nil {
		return err
	}

	layout := indexLayout(t.Index)
	record := make([]string, len(t.Columns)+1)
	for r, ts := range t.Index {
		record[0] = ts.Format(layout)
		for c, col := range t.Values {
			record[c+1] = strconv.FormatFloat(col[r], 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type tableJSON struct {
	Columns []string  `json:"columns"`
	Index   []string  `json:"index"`
	Data    [][]Float `json:"data"`
}

// MarshalJSON encodes the table row-wise: {"columns", "index", "data"}.
func (t *Table) MarshalJSON() ([]byte, error) {
	layout := indexLayout(t.Index)
	out := tableJSON{
		Columns: t.Columns,
		Index:   make([]string, len(t.Index)),
		Data:    make([][]Float, len(t.Index)),
	}
	for r, ts := range t.Index {
		out.Index[r] = ts.Format(layout)
		row := make([]Float, len(t.Values))
		for c, col := range t.Values {
			row[c] = Float(col[r])
		}
		out.Data[r] = row
	}
	return json.Marshal(out)
}

// indexLayout uses plain dates unless some timestamp carries a clock time.
func indexLayout(index []time.Time) string {
	for _, ts := range index {
		if ts.Hour() != 0 || ts.Minute() != 0 || ts.Second() != 0 || ts.Nanosecond() != 0 {
			return time.RFC3339
		}
	}
	return time.DateOnly
}

// Float is a float64 whose JSON form is null when it is not finite.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// Floats converts a slice for JSON encoding.
func Floats(values []float64) []Float {
	out := make([]Float, len(values))
	for i, v := range values {
		out[i] = Float(v)
	}
	return out
}
