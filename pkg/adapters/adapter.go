// Package adapters imports a series from a remote metrics source so that it
// can go through the same validation and analysis as an uploaded file.
//
// Available adapters:
//   - PrometheusAdapter: range queries against the Prometheus HTTP API or a
//     compatible backend such as VictoriaMetrics
//   - HTTPAdapter: any JSON API, with timestamps and values picked by gjson
//     paths
//
// Adapters only fetch and order points. The result is turned into an
// ingest.Table and validated like an upload, so a source returning gaps or
// an irregular step is rejected with the usual messages.
package adapters

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/HatiCode/tsdash/pkg/ingest"
)

// DefaultStepSeconds is the resolution used when none is configured.
const DefaultStepSeconds = 60

// Point is one observation.
type Point struct {
	TS    time.Time
	Value float64
}

// DataFrame is what an adapter collected over a window, ordered by time.
type DataFrame struct {
	Name   string
	Points []Point
}

// Len returns the number of points.
func (df *DataFrame) Len() int {
	return len(df.Points)
}

// Table converts the frame into a raw two-column table. Timestamps are
// written as dates when every point falls on midnight UTC.
func (df *DataFrame) Table() *ingest.Table {
	layout := time.DateOnly
	for _, p := range df.Points {
		if !p.TS.Equal(p.TS.Truncate(24 * time.Hour)) {
			layout = time.RFC3339
			break
		}
	}

	name := df.Name
	if name == "" {
		name = "value"
	}
	t := &ingest.Table{
		Header:  []string{"date", name},
		Index:   make([]string, len(df.Points)),
		Columns: [][]string{make([]string, len(df.Points))},
	}
	for i, p := range df.Points {
		t.Index[i] = p.TS.UTC().Format(layout)
		t.Columns[0][i] = strconv.FormatFloat(p.Value, 'g', -1, 64)
	}
	return t
}

// Adapter fetches a series from an external system.
//
// Collect is synchronous and must respect context cancellation and
// deadlines. It must not panic on malformed responses.
type Adapter interface {
	// Collect fetches the last windowSeconds of data.
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)

	// Name returns a short identifier such as "prometheus" or "http".
	Name() string
}

// window returns the [start, end] range of a collection ending now,
// truncated to whole seconds.
func window(windowSeconds int, now time.Time) (time.Time, time.Time) {
	end := now.UTC().Truncate(time.Second)
	return end.Add(-time.Duration(windowSeconds) * time.Second), end
}

func stepOrDefault(step int) int {
	if step <= 0 {
		return DefaultStepSeconds
	}
	return step
}

func sortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].TS.Before(points[j].TS)
	})
}
