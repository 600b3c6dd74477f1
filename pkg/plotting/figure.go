package plotting

import (
	"fmt"
	"time"

	"github.com/HatiCode/tsdash/pkg/analysis"
	"github.com/HatiCode/tsdash/pkg/models"
)

// Figure is an interactive chart rendered by the browser. Values that are
// not finite encode as null and show as gaps.
type Figure struct {
	Title  string  `json:"title"`
	Panels []Panel `json:"panels"`
}

// Panel is one set of axes of a Figure.
type Panel struct {
	Title  string  `json:"title,omitempty"`
	Traces []Trace `json:"traces"`
}

// Trace is a single line.
type Trace struct {
	Name  string           `json:"name"`
	X     []string         `json:"x"`
	Y     []analysis.Float `json:"y"`
	Color string           `json:"color"`
	Dash  string           `json:"dash,omitempty"`
	// Fill is "tonexty" to shade the area down to the previous trace.
	Fill string `json:"fill,omitempty"`
}

func newTrace(name, color string, index []time.Time, values []float64) Trace {
	x := make([]string, len(index))
	layout := layoutFor(index)
	for i, t := range index {
		x[i] = t.Format(layout)
	}
	return Trace{Name: name, X: x, Y: analysis.Floats(values), Color: color}
}

// ForecastFigure plots the data, the in-sample predictions of a refit and
// its forecast with the prediction band when one was computed.
func ForecastFigure(r *analysis.Refit, label string) *Figure {
	traces := []Trace{
		newTrace("actual data", "#8888ff", r.Index, r.Actual),
		newTrace("predictions", "navy", r.InSampleIndex, r.InSample),
		newTrace("forecast", "lime", r.ForecastIndex, r.Forecast),
	}
	if r.Lower != nil && r.Upper != nil {
		level := models.FormatIntervalLevel(r.Level)
		lower := newTrace("lower bound ("+level+")", "limegreen", r.ForecastIndex, r.Lower)
		lower.Dash = "dot"
		upper := newTrace("upper bound ("+level+")", "limegreen", r.ForecastIndex, r.Upper)
		upper.Dash = "dot"
		upper.Fill = "tonexty"
		traces = append(traces, lower, upper)
	}

	return &Figure{
		Title:  fmt.Sprintf("An %s model fitted on %s", r.Info.Name, label),
		Panels: []Panel{{Traces: traces}},
	}
}

// ComponentsFigure plots the trend, seasonal and residual components of a
// refit's decomposition, one panel each.
func ComponentsFigure(r *analysis.Refit, label string) *Figure {
	fig := &Figure{Title: "Seasonal Decomposition for " + label}
	c := r.Components
	if c == nil {
		return fig
	}
	fig.Panels = []Panel{
		{Title: "Trend", Traces: []Trace{newTrace("trend", "navy", r.Index, c.Trend)}},
		{Title: "Seasonal", Traces: []Trace{newTrace("seasonal", "seagreen", r.Index, c.Seasonal)}},
		{Title: "Residuals", Traces: []Trace{newTrace("residuals", "#ff3322", r.Index, c.Residual)}},
	}
	return fig
}

func layoutFor(index []time.Time) string {
	for _, t := range index {
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 {
			return time.RFC3339
		}
	}
	return time.DateOnly
}
