package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
)

// ParseExcel reads the first non-empty sheet of a spreadsheet. The first row
// is the header. Cells are read with their display formatting, so date cells
// arrive as formatted strings and go through the same date parsing as CSV.
//
// The container is detected from the content: Office Open XML workbooks go
// through excelize and legacy BIFF workbooks through xls, whatever the file
// extension says.
func ParseExcel(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, parseFailed("spreadsheet", err)
	}

	switch {
	case bytes.HasPrefix(data, ole2Magic):
		return parseBIFF(data)
	case bytes.HasPrefix(data, zipMagic):
		return parseOOXML(data)
	}
	return nil, parseFailed("spreadsheet", errors.New("not an Excel workbook"))
}

func parseOOXML(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, parseFailed("spreadsheet", err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, parseFailed("spreadsheet", fmt.Errorf("sheet %q: %w", name, err))
		}
		if len(rows) == 0 {
			continue
		}
		return fromRecords(rows[0], rows[1:]), nil
	}

	return nil, parseFailed("spreadsheet", errors.New("workbook has no rows"))
}

func parseBIFF(data []byte) (t *Table, err error) {
	// the BIFF decoder panics on some truncated records
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, parseFailed("spreadsheet", fmt.Errorf("corrupt workbook: %v", r))
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, parseFailed("spreadsheet", err)
	}
	if wb == nil {
		return nil, parseFailed("spreadsheet", errors.New("no workbook stream"))
	}

	for i := range wb.NumSheets() {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			rows = append(rows, biffRow(sheet, r))
		}
		rows = trimEmptyRows(rows)
		if len(rows) == 0 {
			continue
		}
		return fromRecords(rows[0], rows[1:]), nil
	}

	return nil, parseFailed("spreadsheet", errors.New("workbook has no rows"))
}

// biffRow returns the cells of row r, or nil for a row with no record.
func biffRow(sheet *xls.WorkSheet, r int) (rec []string) {
	// WorkSheet.Row dereferences missing rows
	defer func() {
		if recover() != nil {
			rec = nil
		}
	}()

	row := sheet.Row(r)
	rec = make([]string, row.LastCol())
	for c := row.FirstCol(); c < row.LastCol(); c++ {
		rec[c] = row.Col(c)
	}
	return rec
}

// trimEmptyRows drops blank rows at both ends of a sheet.
func trimEmptyRows(rows [][]string) [][]string {
	blank := func(rec []string) bool {
		for _, c := range rec {
			if c != "" {
				return false
			}
		}
		return true
	}
	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}
