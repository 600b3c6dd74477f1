package plotting

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/tsdash/pkg/analysis"
	"github.com/HatiCode/tsdash/pkg/models"
	"github.com/HatiCode/tsdash/pkg/sample"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

func fitted(t *testing.T, n int) (*timeseries.Series, *analysis.Fit) {
	t.Helper()
	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	s, err := sample.NewGenerator(30, sample.DefaultSeed).GenerateN(2, 1, n, start, timeseries.Daily)
	require.NoError(t, err)
	fit, err := analysis.NewFitter(analysis.DefaultConfig()).Fit(context.Background(), s)
	require.NoError(t, err)
	return s, fit
}

func TestRenderer_Render(t *testing.T) {
	s, fit := fitted(t, 60)
	dir := t.TempDir()
	r, err := NewRenderer(dir)
	require.NoError(t, err)
	r.now = func() time.Time { return time.Unix(0, 1700000000000000000) }

	plots, err := r.Render(context.Background(), s, fit.Table)
	require.NoError(t, err)

	require.Len(t, plots, 4)
	assert.Equal(t, "1700000000000000000_line_plot.svg", plots[LinePlot])
	assert.Equal(t, "1700000000000000000_acf_pacf.svg", plots[ACFPACF])
	assert.Equal(t, "1700000000000000000_model_fit.svg", plots[ModelFit])
	assert.Equal(t, "1700000000000000000_seasonal_decomposition.svg", plots[SeasonalDecomposition])

	for key, name := range plots {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, key)
		assert.True(t, strings.Contains(string(b), "<svg"), key)
	}
}

func TestRenderer_ReplacesPreviousBatch(t *testing.T) {
	s, fit := fitted(t, 40)
	dir := t.TempDir()
	r, err := NewRenderer(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.svg"), []byte("<svg/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	stamp := int64(1)
	r.now = func() time.Time { stamp++; return time.Unix(0, stamp) }

	_, err = r.Render(context.Background(), s, fit.Table)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), s, fit.Table)
	require.NoError(t, err)

	svgs, err := filepath.Glob(filepath.Join(dir, "*.svg"))
	require.NoError(t, err)
	assert.Len(t, svgs, 4)
	for _, p := range svgs {
		assert.True(t, strings.HasPrefix(filepath.Base(p), "3_"), p)
	}
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
	assert.FileExists(t, filepath.Join(dir, second[LinePlot]))
}

func TestRenderer_Canceled(t *testing.T) {
	s, fit := fitted(t, 40)
	r, err := NewRenderer(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Render(ctx, s, fit.Table)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderer_Path(t *testing.T) {
	r, err := NewRenderer(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name string
		ok   bool
	}{
		{"1_line_plot.svg", true},
		{"../secret.svg", false},
		{"sub/1_line_plot.svg", false},
		{"1_line_plot.png", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.Path(tt.name)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, filepath.Join(r.Dir(), tt.name), p)
			}
		})
	}
}

func TestNewRenderer_EmptyDir(t *testing.T) {
	_, err := NewRenderer("")
	assert.Error(t, err)
}

func TestForecastFigure(t *testing.T) {
	s, _ := fitted(t, 60)
	refit, err := analysis.NewFitter(analysis.DefaultConfig()).Refit(context.Background(), s, models.Order{P: 1, Q: 1})
	require.NoError(t, err)

	fig := ForecastFigure(refit, "sales.csv")
	assert.Equal(t, "An ARIMA(1, 0, 1) model fitted on sales.csv", fig.Title)
	require.Len(t, fig.Panels, 1)

	traces := fig.Panels[0].Traces
	require.Len(t, traces, 5)
	assert.Equal(t, "actual data", traces[0].Name)
	assert.Equal(t, "#8888ff", traces[0].Color)
	assert.Equal(t, "predictions", traces[1].Name)
	assert.Equal(t, "navy", traces[1].Color)
	assert.Equal(t, "forecast", traces[2].Name)
	assert.Equal(t, "lime", traces[2].Color)
	assert.Equal(t, "upper bound (p95)", traces[4].Name)
	assert.Equal(t, "tonexty", traces[4].Fill)
	assert.Len(t, traces[2].X, 15)
	assert.Equal(t, "2021-04-30", traces[2].X[0])

	_, err = json.Marshal(fig)
	require.NoError(t, err)
}

func TestForecastFigure_NoBand(t *testing.T) {
	cfg := analysis.DefaultConfig()
	cfg.IntervalLevel = 0
	s, _ := fitted(t, 40)
	refit, err := analysis.NewFitter(cfg).Refit(context.Background(), s, models.Order{P: 1, D: 1, Q: 0})
	require.NoError(t, err)

	fig := ForecastFigure(refit, "x")
	assert.Len(t, fig.Panels[0].Traces, 3)
}

func TestComponentsFigure_EncodesGapsAsNull(t *testing.T) {
	s, _ := fitted(t, 40)
	refit, err := analysis.NewFitter(analysis.DefaultConfig()).Refit(context.Background(), s, models.Order{P: 1, Q: 1})
	require.NoError(t, err)

	fig := ComponentsFigure(refit, "sample")
	assert.Equal(t, "Seasonal Decomposition for sample", fig.Title)
	require.Len(t, fig.Panels, 3)
	assert.Equal(t, []string{"Trend", "Seasonal", "Residuals"},
		[]string{fig.Panels[0].Title, fig.Panels[1].Title, fig.Panels[2].Title})

	// the centered moving average leaves the edges of the trend undefined
	b, err := json.Marshal(fig.Panels[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"y":[null`)
}

func TestLayoutFor(t *testing.T) {
	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.DateOnly, layoutFor([]time.Time{day, day.AddDate(0, 0, 1)}))
	assert.Equal(t, time.RFC3339, layoutFor([]time.Time{day, day.Add(time.Hour)}))
}
