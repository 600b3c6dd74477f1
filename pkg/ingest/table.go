// Package ingest turns uploaded files and collected rows into a raw table
// and validates that table into a timeseries.Series.
//
// Parsing and validation are separate steps: Parse only cares about the
// container format (CSV or spreadsheet), Validator only cares about the
// structural rules a series has to satisfy.
package ingest

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/HatiCode/tsdash/pkg/failure"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

// Table is tabular data as read from a file, before any type conversion.
// Index holds the first column, Columns the remaining ones (column-major).
type Table struct {
	Header  []string
	Index   []string
	Columns [][]string
}

// Rows returns the number of data rows.
func (t *Table) Rows() int {
	return len(t.Index)
}

// Extractor validates a table and extracts the series to analyze.
type Extractor interface {
	Validate(ctx context.Context, t *Table) (*timeseries.Series, error)
}

// Allowed upload extensions.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".xls":  true,
	".xlsx": true,
}

// Parse reads an uploaded file. The extension is checked before any bytes
// are read.
func Parse(filename string, r io.Reader) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, &failure.Error{Kind: failure.UnsupportedFile, Reason: filename}
	}

	if ext == ".csv" {
		return ParseCSV(r)
	}
	return ParseExcel(r)
}

// fromRecords builds a table from a header and data rows. Short rows are
// padded with empty cells.
func fromRecords(header []string, records [][]string) *Table {
	t := &Table{
		Header:  header,
		Index:   make([]string, 0, len(records)),
		Columns: make([][]string, max(len(header)-1, 0)),
	}
	for j := range t.Columns {
		t.Columns[j] = make([]string, 0, len(records))
	}

	for _, rec := range records {
		cell := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		t.Index = append(t.Index, cell(0))
		for j := range t.Columns {
			t.Columns[j] = append(t.Columns[j], cell(j+1))
		}
	}
	return t
}
