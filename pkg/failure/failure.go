// Package failure defines the typed failures returned by boundary-facing
// operations (upload parsing, validation, sample generation, session lookup)
// and the one place where they are turned into user-facing messages and HTTP
// status codes.
package failure

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	UnsupportedFile    Kind = "unsupported_file"
	MissingFile        Kind = "missing_file"
	TooLarge           Kind = "too_large"
	ParseFailed        Kind = "parse_failed"
	TooFewValues       Kind = "too_few_values"
	NotDates           Kind = "not_dates"
	IrregularFrequency Kind = "irregular_frequency"
	NoValueColumn      Kind = "no_value_column"
	NotNumeric         Kind = "not_numeric"
	SampleTooSmall     Kind = "sample_too_small"
	InvalidParameter   Kind = "invalid_parameter"
	SessionNotFound    Kind = "session_not_found"
	SourceUnavailable  Kind = "source_unavailable"
)

// Error is a failure the user can act on. Only the fields relevant to Kind
// are set.
type Error struct {
	Kind Kind

	Count    int
	Minimum  int
	Format   string
	Field    string
	Reason   string
	Period   string
	Start    string
	End      string
	Limit    int64
	Position int

	Err error
}

func (e *Error) Error() string {
	msg := e.Message()
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, failure.New(failure.NotDates)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns a failure of the given kind with no detail.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Message renders the user-facing text for the failure.
func (e *Error) Message() string {
	switch e.Kind {
	case UnsupportedFile:
		return "Please try again... invalid file name. Only .csv, .xls and .xlsx files are supported."
	case MissingFile:
		return "Please choose a file to upload."
	case TooLarge:
		return fmt.Sprintf("Please try again... the uploaded file is larger than %s.", formatBytes(e.Limit))
	case ParseFailed:
		format := e.Format
		if format == "" {
			format = "CSV"
		}
		return fmt.Sprintf("Please try again... the uploaded file could not be parsed as a %s file.", format)
	case TooFewValues:
		return fmt.Sprintf("Please try again... The uploaded file has only %d values, but the minimum is set at %d.", e.Count, e.Minimum)
	case NotDates:
		return "Please try again... it seems that the values in the 1st column could not be read as dates."
	case IrregularFrequency:
		return "Please try again... a uniform date frequency (which is needed in some of the time series functions used) could not be determined."
	case NoValueColumn:
		return "Please ensure that the data has a date column and at least one other column with numeric values."
	case NotNumeric:
		return "Please try again... it seems the values to be processed could not be converted to numbers."
	case SampleTooSmall:
		return fmt.Sprintf("Please try again... The generated sample has %d value(s) (%s) between %s and %s, but the minimum sample size is set at %d.",
			e.Count, e.Period, e.Start, e.End, e.Minimum)
	case InvalidParameter:
		return fmt.Sprintf("Please check the %s parameter: %s.", e.Field, strings.TrimSuffix(e.Reason, "."))
	case SessionNotFound:
		return "No data is loaded yet. Please upload a file or create a sample first."
	case SourceUnavailable:
		return fmt.Sprintf("The data source could not be reached: %s.", strings.TrimSuffix(e.Reason, "."))
	default:
		return "Something went wrong, please try again."
	}
}

// Status maps the failure kind to the HTTP status used when it is returned
// to a client. Input-shape problems keep 200 so the form can show the
// message in place.
func (e *Error) Status() int {
	switch e.Kind {
	case TooLarge:
		return http.StatusRequestEntityTooLarge
	case SessionNotFound:
		return http.StatusNotFound
	case SourceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Message returns the user-facing message for err, or "" when err is not a
// failure.
func Message(err error) string {
	if fe, ok := As(err); ok {
		return fe.Message()
	}
	return ""
}

// IsInput reports whether err is a user-facing failure rather than an
// internal error.
func IsInput(err error) bool {
	_, ok := As(err)
	return ok
}

func formatBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	if n >= mib {
		return fmt.Sprintf("%.1f MB", float64(n)/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
