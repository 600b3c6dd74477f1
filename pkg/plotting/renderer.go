// Package plotting draws the diagnostic charts of a series: static SVG
// files for the results page and in-memory figures for the interactive
// refit view.
package plotting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/tsdash/pkg/analysis"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

// Keys of the plot map returned by Render.
const (
	LinePlot              = "lineplot"
	ACFPACF               = "acf&pacf"
	ModelFit              = "model_fit"
	SeasonalDecomposition = "seasonal_decomposition"
)

var fileNames = map[string]string{
	LinePlot:              "line_plot",
	ACFPACF:               "acf_pacf",
	ModelFit:              "model_fit",
	SeasonalDecomposition: "seasonal_decomposition",
}

// Renderer writes the static plots of one result into a directory. Every
// batch replaces the previous one: existing SVG files are removed before
// the new files are written, and batches never interleave.
type Renderer struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewRenderer creates the plot directory if needed.
func NewRenderer(dir string) (*Renderer, error) {
	if dir == "" {
		return nil, fmt.Errorf("plot directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot directory: %w", err)
	}
	return &Renderer{dir: dir, now: time.Now}, nil
}

// Dir returns the plot directory.
func (r *Renderer) Dir() string {
	return r.dir
}

// Render draws the four diagnostic plots for s and its prediction table.
// The returned map holds plot keys to file names relative to Dir, named
// <unix-nano>_<plot>.svg.
func (r *Renderer) Render(ctx context.Context, s *timeseries.Series, table *analysis.Table) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.clear(); err != nil {
		return nil, err
	}

	stamp := strconv.FormatInt(r.now().UnixNano(), 10)
	files := make(map[string]string, len(fileNames))
	for key, name := range fileNames {
		files[key] = stamp + "_" + name + ".svg"
	}

	jobs := map[string]func(path string) error{
		LinePlot:              func(path string) error { return saveLinePlot(path, s) },
		ACFPACF:               func(path string) error { return saveACFPACF(path, s) },
		ModelFit:              func(path string) error { return saveModelFit(path, s, table) },
		SeasonalDecomposition: func(path string) error { return saveDecomposition(path, s) },
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, draw := range jobs {
		path := filepath.Join(r.dir, files[key])
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := draw(path); err != nil {
				return fmt.Errorf("render %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return files, nil
}

// Path resolves a file name returned by Render. Names that would leave the
// plot directory are rejected.
func (r *Renderer) Path(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || filepath.Ext(name) != ".svg" {
		return "", false
	}
	return filepath.Join(r.dir, name), true
}

func (r *Renderer) clear() error {
	matches, err := filepath.Glob(filepath.Join(r.dir, "*.svg"))
	if err != nil {
		return fmt.Errorf("list plots: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(m), err)
		}
	}
	return nil
}
