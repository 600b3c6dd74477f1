package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/HatiCode/tsdash/pkg/failure"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads a comma-separated file with a header row. The content must
// be UTF-8 and every row must have as many fields as the header.
func ParseCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, parseFailed("CSV", errors.New("content is not valid UTF-8"))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, parseFailed("CSV", err)
	}
	if len(records) == 0 {
		return nil, parseFailed("CSV", errors.New("file is empty"))
	}

	return fromRecords(records[0], records[1:]), nil
}

func parseFailed(format string, err error) error {
	return &failure.Error{Kind: failure.ParseFailed, Format: format, Err: err}
}
