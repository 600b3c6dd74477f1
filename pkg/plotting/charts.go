package plotting

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"

	"github.com/HatiCode/tsdash/pkg/analysis"
	"github.com/HatiCode/tsdash/pkg/stats"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

var (
	navy      = color.RGBA{R: 0x00, G: 0x00, B: 0x80, A: 0xff}
	aqua      = color.RGBA{R: 0x00, G: 0xff, B: 0xff, A: 0xff}
	seagreen  = color.RGBA{R: 0x2e, G: 0x8b, B: 0x57, A: 0xff}
	red       = color.RGBA{R: 0xff, G: 0x33, B: 0x22, A: 0xff}
	lightBlue = color.RGBA{R: 0x88, G: 0x88, B: 0xff, A: 0x60}
)

const width = 8 * vg.Inch

func saveLinePlot(path string, s *timeseries.Series) error {
	p := newTimePlot("A line-plot of the data", s.Timestamps)
	line, err := timeLine(s.Timestamps, s.Values, navy)
	if err != nil {
		return err
	}
	p.Add(line)
	return p.Save(width, 4*vg.Inch, path)
}

func saveACFPACF(path string, s *timeseries.Series) error {
	n := s.Len()
	bound := stats.ConfidenceBound(n)

	acfPlot, err := correlogram("Autocorrelation", stats.ACF(s.Values, stats.DefaultLags(n)), bound)
	if err != nil {
		return err
	}
	pacfPlot, err := correlogram("Partial Autocorrelation", stats.PACF(s.Values, stats.PACFLags(n)), bound)
	if err != nil {
		return err
	}
	return saveGrid(path, [][]*plot.Plot{{acfPlot}, {pacfPlot}}, 6*vg.Inch)
}

func saveModelFit(path string, s *timeseries.Series, table *analysis.Table) error {
	var grid [][]*plot.Plot
	for c, name := range table.Columns {
		if name == analysis.ColumnActual {
			continue
		}
		p := newTimePlot(name+" Model Fit", s.Timestamps)

		original, err := timeLine(s.Timestamps, s.Values, navy)
		if err != nil {
			return err
		}
		modelled, err := timeLine(table.Index, table.Values[c], aqua)
		if err != nil {
			return err
		}
		p.Add(original, modelled)
		p.Legend.Add("Original", original)
		p.Legend.Add("Modelled", modelled)
		p.Legend.Top = true
		grid = append(grid, []*plot.Plot{p})
	}
	if len(grid) == 0 {
		return fmt.Errorf("prediction table has no model columns")
	}
	return saveGrid(path, grid, vg.Length(len(grid))*16*vg.Inch/3)
}

func saveDecomposition(path string, s *timeseries.Series) error {
	period := stats.Period(s.Freq.SeasonalPeriod(), s.Len())
	c, err := stats.STL(s.Values, period, 2)
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}

	panels := []struct {
		title  string
		values []float64
		color  color.Color
	}{
		{"Trend", c.Trend, navy},
		{"Seasonal", c.Seasonal, seagreen},
		{"Residuals", c.Residual, red},
	}

	grid := make([][]*plot.Plot, 0, len(panels))
	for _, panel := range panels {
		p := newTimePlot(panel.title, s.Timestamps)
		line, err := timeLine(s.Timestamps, panel.values, panel.color)
		if err != nil {
			return err
		}
		p.Add(line)
		grid = append(grid, []*plot.Plot{p})
	}
	return saveGrid(path, grid, 8*vg.Inch)
}

func newTimePlot(title string, index []time.Time) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Add(plotter.NewGrid())

	format := "2006-01-02"
	if layoutFor(index) == time.RFC3339 {
		format = "2006-01-02\n15:04"
	}
	p.X.Tick.Marker = plot.TimeTicks{Format: format}
	return p
}

// timeLine plots values against unix seconds, skipping non-finite points.
func timeLine(index []time.Time, values []float64, c color.Color) (*plotter.Line, error) {
	xys := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(index[i].Unix()), Y: v})
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("line: %w", err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	return line, nil
}

// correlogram draws correlation bars per lag with the white-noise band.
func correlogram(title string, values []float64, bound float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Lag"
	p.Y.Min, p.Y.Max = -1, 1

	if len(values) == 0 {
		// constant series: nothing to correlate
		return p, nil
	}

	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(3))
	if err != nil {
		return nil, fmt.Errorf("bars: %w", err)
	}
	bars.Color = navy
	bars.LineStyle.Width = 0

	upper := plotter.NewFunction(func(float64) float64 { return bound })
	lower := plotter.NewFunction(func(float64) float64 { return -bound })
	for _, f := range []*plotter.Function{upper, lower} {
		f.Color = lightBlue
		f.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	}

	p.Add(plotter.NewGrid(), bars, upper, lower)
	return p, nil
}

// saveGrid stacks plots in a grid with aligned axes and writes one SVG.
func saveGrid(path string, grid [][]*plot.Plot, height vg.Length) error {
	canvas := vgsvg.New(width, height)
	dc := draw.New(canvas)
	tiles := draw.Tiles{
		Rows: len(grid),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 4 * vg.Millimeter,
	}

	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		for j := range grid[i] {
			grid[i][j].Draw(canvases[i][j])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := canvas.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
