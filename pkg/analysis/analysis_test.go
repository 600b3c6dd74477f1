package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/tsdash/pkg/models"
	"github.com/HatiCode/tsdash/pkg/sample"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

var jan1 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func dailySeries(t *testing.T, n int) *timeseries.Series {
	t.Helper()
	s, err := sample.NewGenerator(30, sample.DefaultSeed).GenerateN(1, 1, n, jan1, timeseries.Daily)
	require.NoError(t, err)
	return s
}

func days(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = jan1.AddDate(0, 0, i)
	}
	return out
}

func TestNewTable_DropsIncompleteRows(t *testing.T) {
	nan := math.NaN()
	tbl, err := NewTable(days(4), []string{"a", "b"}, [][]float64{
		{1, 2, 3, 4},
		{nan, 5, nan, 6},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []time.Time{jan1.AddDate(0, 0, 1), jan1.AddDate(0, 0, 3)}, tbl.Index)
	b, ok := tbl.Column("b")
	require.True(t, ok)
	assert.Equal(t, []float64{5, 6}, b)

	_, ok = tbl.Column("missing")
	assert.False(t, ok)
}

func TestNewTable_LengthMismatch(t *testing.T) {
	_, err := NewTable(days(3), []string{"a"}, [][]float64{{1, 2}})
	assert.Error(t, err)

	_, err = NewTable(days(2), []string{"a", "b"}, [][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestTable_TailAndTotals(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(i) + 0.123
	}
	tbl, err := NewTable(days(30), []string{"x"}, [][]float64{values})
	require.NoError(t, err)

	tail := tbl.Tail(14)
	assert.Equal(t, 14, tail.Len())
	assert.Equal(t, jan1.AddDate(0, 0, 16), tail.Index[0])
	assert.Equal(t, tbl.Index[29], tail.Index[13])

	// 16..29 sum to 315, plus 14*0.123 = 1.722
	assert.Equal(t, []float64{316.72}, tail.Totals())

	assert.Equal(t, 30, tbl.Tail(100).Len())
}

func TestTable_WriteCSV(t *testing.T) {
	tbl, err := NewTable(days(2), []string{"Actual Data", "AR"}, [][]float64{{1.5, 2}, {1.25, 3}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))
	assert.Equal(t, "date,Actual Data,AR\n2020-01-01,1.5,1.25\n2020-01-02,2,3\n", buf.String())
}

func TestTable_MarshalJSON(t *testing.T) {
	tbl := &Table{
		Index:   []time.Time{jan1.Add(90 * time.Minute)},
		Columns: []string{"a", "b"},
		Values:  [][]float64{{1}, {math.Inf(1)}},
	}
	b, err := json.Marshal(tbl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["a","b"],"index":["2020-01-01T01:30:00Z"],"data":[[1,null]]}`, string(b))
}

func TestFitter_Fit(t *testing.T) {
	s := dailySeries(t, 50)

	fit, err := NewFitter(DefaultConfig()).Fit(context.Background(), s)
	require.NoError(t, err)

	tbl := fit.Table
	assert.Equal(t, []string{ColumnActual, ColumnSmoothing, ColumnAR, ColumnARMA}, tbl.Columns)
	assert.Equal(t, 30, tbl.Len())
	assert.Equal(t, time.Date(2020, 1, 21, 0, 0, 0, 0, time.UTC), tbl.Index[0])
	assert.Equal(t, time.Date(2020, 2, 19, 0, 0, 0, 0, time.UTC), tbl.Index[tbl.Len()-1])
	for c, col := range tbl.Values {
		for r, v := range col {
			assert.False(t, math.IsNaN(v), "column %s row %d", tbl.Columns[c], r)
		}
	}

	actual, _ := tbl.Column(ColumnActual)
	assert.Equal(t, s.Values[20:], actual)

	require.Len(t, fit.Models, 3)
	assert.Equal(t, "Exponential Smoothing", fit.Models[0].Name)
	assert.Equal(t, "AR", fit.Models[1].Name)
	assert.False(t, fit.ARMAOrder.Less(models.MinARMAOrder))
	assert.Equal(t, "ARIMA"+fit.ARMAOrder.String(), fit.Models[2].Name)
}

func TestFitter_FitARMAFallsBackToMinOrder(t *testing.T) {
	f := NewFitter(DefaultConfig())
	f.selectOrder = func(context.Context, []float64, int, int) (models.Order, error) {
		return models.Order{P: 3, Q: 2}, nil
	}
	var tried []models.Order
	f.fitOrder = func(ctx context.Context, values []float64, order models.Order) (*models.ARIMAModel, error) {
		tried = append(tried, order)
		if order != models.MinARMAOrder {
			return nil, fmt.Errorf("fit ARIMA%s: %w", order, models.ErrNotConverged)
		}
		return fitARMAOrder(ctx, values, order)
	}

	fit, err := f.Fit(context.Background(), dailySeries(t, 50))
	require.NoError(t, err)
	assert.Equal(t, models.MinARMAOrder, fit.ARMAOrder)
	assert.Equal(t, []models.Order{{P: 3, Q: 2}, models.MinARMAOrder}, tried)
	assert.Equal(t, "ARIMA(1, 0, 1)", fit.Models[2].Name)
	assert.Equal(t, 30, fit.Table.Len())
}

func TestFitter_FitARMAFallbackFails(t *testing.T) {
	f := NewFitter(DefaultConfig())
	f.selectOrder = func(context.Context, []float64, int, int) (models.Order, error) {
		return models.Order{P: 2, Q: 1}, nil
	}
	f.fitOrder = func(_ context.Context, _ []float64, order models.Order) (*models.ARIMAModel, error) {
		return nil, fmt.Errorf("fit ARIMA%s: %w", order, models.ErrNotConverged)
	}

	_, err := f.Fit(context.Background(), dailySeries(t, 50))
	assert.ErrorIs(t, err, models.ErrNotConverged)
	assert.Contains(t, err.Error(), "(1, 0, 1)")
}

func TestFitter_FitARMAOtherErrorsNotRetried(t *testing.T) {
	f := NewFitter(DefaultConfig())
	f.selectOrder = func(context.Context, []float64, int, int) (models.Order, error) {
		return models.Order{P: 2, Q: 1}, nil
	}
	calls := 0
	f.fitOrder = func(context.Context, []float64, models.Order) (*models.ARIMAModel, error) {
		calls++
		return nil, models.ErrInsufficientData
	}

	_, err := f.Fit(context.Background(), dailySeries(t, 50))
	assert.ErrorIs(t, err, models.ErrInsufficientData)
	assert.Equal(t, 1, calls)
}

func TestFitter_FitNoLongerThanSeries(t *testing.T) {
	for _, n := range []int{30, 37, 120} {
		s := dailySeries(t, n)
		fit, err := NewFitter(DefaultConfig()).Fit(context.Background(), s)
		require.NoError(t, err, "n=%d", n)
		assert.LessOrEqual(t, fit.Table.Len(), n)
		assert.Equal(t, n-windowStart(n, 0.6), fit.Table.Len(), "n=%d", n)
	}
}

func TestFitter_FitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFitter(DefaultConfig()).Fit(ctx, dailySeries(t, 50))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitter_Refit(t *testing.T) {
	s := dailySeries(t, 100)

	r, err := NewFitter(DefaultConfig()).Refit(context.Background(), s, models.Order{P: 1, D: 0, Q: 1})
	require.NoError(t, err)

	assert.Len(t, r.InSample, 31)
	assert.Len(t, r.InSampleIndex, 31)
	assert.Equal(t, s.Timestamps[70], r.InSampleIndex[0])
	assert.Equal(t, s.Last().AddDate(0, 0, 1), r.InSampleIndex[30])

	require.Len(t, r.Forecast, 15)
	require.Len(t, r.ForecastIndex, 15)
	assert.Equal(t, s.Last().AddDate(0, 0, 1), r.ForecastIndex[0])
	assert.Equal(t, s.Last().AddDate(0, 0, 15), r.ForecastIndex[14])
	assert.InDelta(t, r.InSample[30], r.Forecast[0], 1e-9)

	require.Len(t, r.Lower, 15)
	require.Len(t, r.Upper, 15)
	for i := range r.Forecast {
		assert.Less(t, r.Lower[i], r.Forecast[i])
		assert.Greater(t, r.Upper[i], r.Forecast[i])
	}
	assert.Greater(t, r.Upper[14]-r.Lower[14], r.Upper[0]-r.Lower[0])

	require.NotNil(t, r.Components)
	assert.Equal(t, 7, r.Components.Period)
	assert.Len(t, r.Components.Trend, 100)
	assert.Equal(t, "(1, 0, 1)", r.Info.Order)
}

func TestFitter_RefitDifferencedNoInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntervalLevel = 0
	s := dailySeries(t, 60)

	r, err := NewFitter(cfg).Refit(context.Background(), s, models.Order{P: 0, D: 1, Q: 1})
	require.NoError(t, err)
	assert.Len(t, r.InSample, 60-42+1)
	assert.Len(t, r.Forecast, 15)
	assert.Nil(t, r.Lower)
	assert.Nil(t, r.Upper)
}

func TestNewFitter_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Horizon = 0
	assert.Panics(t, func() { NewFitter(cfg) })

	cfg = DefaultConfig()
	cfg.Coverage = 1.5
	assert.Error(t, cfg.Validate())
}

func TestWindowStart(t *testing.T) {
	assert.Equal(t, 20, windowStart(50, 0.6))
	assert.Equal(t, 40, windowStart(100, 0.6))
	assert.Equal(t, 12, windowStart(30, 0.6))
	assert.Equal(t, 70, windowStart(100, 0.3))
	assert.Equal(t, 0, windowStart(10, 1))
}

func TestPackage(t *testing.T) {
	s := dailySeries(t, 50)
	fit, err := NewFitter(DefaultConfig()).Fit(context.Background(), s)
	require.NoError(t, err)

	res := Package(s.Name, fit.Table, fit.Models, nil)
	assert.Equal(t, "an ARMA(1, 1) sample", res.Label)
	assert.Equal(t, 14, res.Sample.Len())
	assert.Equal(t, fit.Table.Index[16:], res.Sample.Index)
	assert.Len(t, res.Totals, 4)
	assert.NotNil(t, res.Plots)

	var sum float64
	actual, _ := res.Sample.Column(ColumnActual)
	for _, v := range actual {
		sum += v
	}
	assert.InDelta(t, math.Round(sum*100)/100, float64(res.Totals[ColumnActual]), 1e-9)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sample":{"columns":["Actual Data","Exponential Smoothing","AR","ARMA"]`)
}
