package failure

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "too few values",
			err:  &Error{Kind: TooFewValues, Count: 12, Minimum: 30},
			want: "Please try again... The uploaded file has only 12 values, but the minimum is set at 30.",
		},
		{
			name: "sample too small",
			err:  &Error{Kind: SampleTooSmall, Count: 1, Period: "Months", Start: "2020-01-01", End: "2020-01-31", Minimum: 30},
			want: "Please try again... The generated sample has 1 value(s) (Months) between 2020-01-01 and 2020-01-31, but the minimum sample size is set at 30.",
		},
		{
			name: "parse defaults to csv",
			err:  &Error{Kind: ParseFailed},
			want: "Please try again... the uploaded file could not be parsed as a CSV file.",
		},
		{
			name: "too large",
			err:  &Error{Kind: TooLarge, Limit: 7 << 20},
			want: "Please try again... the uploaded file is larger than 7 MB.",
		},
		{
			name: "invalid parameter",
			err:  &Error{Kind: InvalidParameter, Field: "ar_order", Reason: "must be between 1 and 5"},
			want: "Please check the ar_order parameter: must be between 1 and 5.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Message())
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestMessage_WrappedAndPlain(t *testing.T) {
	wrapped := fmt.Errorf("validate: %w", &Error{Kind: NotDates})
	assert.Contains(t, Message(wrapped), "could not be read as dates")
	assert.True(t, IsInput(wrapped))

	plain := errors.New("boom")
	assert.Equal(t, "", Message(plain))
	assert.False(t, IsInput(plain))
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("upload: %w", &Error{Kind: NotNumeric, Position: 3})
	assert.ErrorIs(t, err, New(NotNumeric))
	assert.NotErrorIs(t, err, New(NotDates))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, New(TooFewValues).Status())
	assert.Equal(t, http.StatusRequestEntityTooLarge, New(TooLarge).Status())
	assert.Equal(t, http.StatusNotFound, New(SessionNotFound).Status())
	assert.Equal(t, http.StatusBadGateway, New(SourceUnavailable).Status())
}
