// Package main implements the dashboard pipeline behind the HTTP routes.
//
// Every way of loading a series ends in the same pipeline:
//
//	ingest (upload | sample | import) → fit → render → package → store
//
// Each stage is timed, logged with duration_ms, traced as a span and
// recorded in the stage histogram. The loaded series is kept as a session so
// that interactive refits and the results download can find it again.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/HatiCode/tsdash/cmd/tsdash/config"
	"github.com/HatiCode/tsdash/cmd/tsdash/metrics"
	"github.com/HatiCode/tsdash/cmd/tsdash/router"
	"github.com/HatiCode/tsdash/pkg/adapters"
	"github.com/HatiCode/tsdash/pkg/analysis"
	"github.com/HatiCode/tsdash/pkg/failure"
	"github.com/HatiCode/tsdash/pkg/httpx"
	"github.com/HatiCode/tsdash/pkg/ingest"
	"github.com/HatiCode/tsdash/pkg/models"
	"github.com/HatiCode/tsdash/pkg/plotting"
	"github.com/HatiCode/tsdash/pkg/sample"
	"github.com/HatiCode/tsdash/pkg/storage"
	"github.com/HatiCode/tsdash/pkg/timeseries"
	"github.com/HatiCode/tsdash/pkg/tls"
)

// Size of the sample served by /sample/random.
const randomSampleSize = 100

// App runs the analysis pipeline. It is safe for concurrent use.
type App struct {
	store      storage.Store
	validator  *ingest.Validator
	generator  *sample.Generator
	fitter     *analysis.Fitter
	renderer   *plotting.Renderer
	resultsDir string
	sessionTTL time.Duration

	importClient  *http.Client
	importTimeout time.Duration
	newAdapter    func(kind string, config map[string]string, stepSeconds int) (adapters.Adapter, error)

	refits singleflight.Group

	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewApp wires the pipeline from the configuration. tracer and m may be nil.
func NewApp(cfg *config.Config, store storage.Store, tracer trace.Tracer, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("tsdash")
	}

	ac, err := cfg.Analysis()
	if err != nil {
		return nil, err
	}

	renderer, err := plotting.NewRenderer(cfg.PlotDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}

	importClient := httpx.NewClient(cfg.ImportTimeout, nil)
	if cfg.ImportCAFile != "" {
		tc, err := tls.NewClientTLSConfig(cfg.ImportCAFile)
		if err != nil {
			return nil, fmt.Errorf("import tls: %w", err)
		}
		importClient = httpx.NewClient(cfg.ImportTimeout, tc)
	}

	return &App{
		store:         store,
		validator:     ingest.NewValidator(cfg.MinSampleSize),
		generator:     sample.NewGenerator(cfg.MinSampleSize, cfg.SampleSeed),
		fitter:        analysis.NewFitter(ac),
		renderer:      renderer,
		resultsDir:    cfg.ResultsDir,
		sessionTTL:    cfg.SessionTTL,
		importClient:  importClient,
		importTimeout: cfg.ImportTimeout,
		newAdapter:    adapters.New,
		tracer:        tracer,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
	}, nil
}

// Upload parses and validates an uploaded file, then analyses it.
func (a *App) Upload(ctx context.Context, filename string, r io.Reader) (*analysis.Result, error) {
	var s *timeseries.Series
	err := a.stage(ctx, metrics.StageIngest, func(ctx context.Context) error {
		table, err := ingest.Parse(filename, r)
		if err != nil {
			return err
		}
		s, err = a.validator.Validate(ctx, table)
		return err
	})
	if err != nil {
		return nil, wrapStage("ingest", err)
	}
	return a.analyse(ctx, storage.SourceUpload, filename, s)
}

// Sample generates an ARMA sample over a date range and analyses it.
func (a *App) Sample(ctx context.Context, p sample.Params) (*analysis.Result, error) {
	var s *timeseries.Series
	err := a.stage(ctx, metrics.StageSample, func(context.Context) error {
		var err error
		s, err = a.generator.Generate(p)
		return err
	})
	if err != nil {
		return nil, wrapStage("sample", err)
	}
	return a.analyse(ctx, storage.SourceSample, s.Name, s)
}

// RandomSample analyses 100 daily ARMA(1, 1) values starting today.
func (a *App) RandomSample(ctx context.Context) (*analysis.Result, error) {
	now := a.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var s *timeseries.Series
	err := a.stage(ctx, metrics.StageSample, func(context.Context) error {
		var err error
		s, err = a.generator.GenerateN(1, 1, randomSampleSize, today, timeseries.Daily)
		return err
	})
	if err != nil {
		return nil, wrapStage("sample", err)
	}
	return a.analyse(ctx, storage.SourceSample, s.Name, s)
}

// Import collects a series from a remote source, validates it like an
// upload and analyses it.
func (a *App) Import(ctx context.Context, req router.ImportRequest) (*analysis.Result, error) {
	step := int(req.Step.Seconds())
	ad, err := a.newAdapter(req.Adapter, req.Config, step)
	if err != nil {
		return nil, &failure.Error{Kind: failure.InvalidParameter, Field: "config", Reason: err.Error()}
	}
	setHTTPClient(ad, a.importClient)

	var s *timeseries.Series
	err = a.stage(ctx, metrics.StageImport, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.importTimeout)
		defer cancel()

		df, err := ad.Collect(ctx, int(req.Window.Seconds()))
		if err != nil {
			return &failure.Error{Kind: failure.SourceUnavailable, Reason: err.Error(), Err: err}
		}
		a.logger.Info("collected series", "adapter", ad.Name(), "points", df.Len(), "window", req.Window)

		s, err = a.validator.Validate(ctx, df.Table())
		return err
	})
	if err != nil {
		return nil, wrapStage("import", err)
	}
	return a.analyse(ctx, storage.SourceImport, ad.Name()+": "+s.Name, s)
}

func setHTTPClient(ad adapters.Adapter, cli *http.Client) {
	switch v := ad.(type) {
	case *adapters.PrometheusAdapter:
		v.HTTPClient = cli
	case *adapters.HTTPAdapter:
		v.HTTPClient = cli
	}
}

// analyse runs fit → render → package on a validated series and stores the
// session and its results file.
func (a *App) analyse(ctx context.Context, source, label string, s *timeseries.Series) (*analysis.Result, error) {
	start := time.Now()
	id := uuid.NewString()

	ctx, span := a.tracer.Start(ctx, "analyse", trace.WithAttributes(
		attribute.String("session", id),
		attribute.String("source", source),
		attribute.Int("observations", s.Len()),
	))
	defer span.End()

	var fit *analysis.Fit
	if err := a.stage(ctx, metrics.StageFit, func(ctx context.Context) error {
		var err error
		fit, err = a.fitter.Fit(ctx, s)
		return err
	}); err != nil {
		return nil, wrapStage("fit", err)
	}

	var plots map[string]string
	if err := a.stage(ctx, metrics.StageRender, func(ctx context.Context) error {
		var err error
		plots, err = a.renderer.Render(ctx, s, fit.Table)
		return err
	}); err != nil {
		return nil, wrapStage("render", err)
	}

	var res *analysis.Result
	if err := a.stage(ctx, metrics.StagePackage, func(ctx context.Context) error {
		res = analysis.Package(label, fit.Table, fit.Models, plots)
		res.SessionID = id

		sess := storage.Session{ID: id, Label: label, Source: source, Series: s, CreatedAt: a.now()}
		if err := a.store.Put(ctx, sess); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
		return a.writeResults(id, fit.Table)
	}); err != nil {
		return nil, wrapStage("package", err)
	}

	if a.metrics != nil {
		a.metrics.RecordSeries(source, s.Len())
		if ms, ok := a.store.(*storage.MemoryStore); ok {
			a.metrics.SetSessions(ms.Len())
		}
	}

	a.logger.Info("analysis complete",
		"session", id,
		"source", source,
		"label", label,
		"observations", s.Len(),
		"frequency", s.Freq.String(),
		"rows", fit.Table.Len(),
		"arma_order", fit.ARMAOrder.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Refit fits ARIMA(order) to a loaded series. Identical refits of the same
// session that overlap run once.
func (a *App) Refit(ctx context.Context, sessionID string, order models.Order) (*router.RefitView, error) {
	sess, err := a.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	key := sessionID + order.String()
	v, err, shared := a.refits.Do(key, func() (any, error) {
		// the result is shared, so one caller going away must not cancel it
		ctx := context.WithoutCancel(ctx)
		var r *analysis.Refit
		err := a.stage(ctx, metrics.StageRefit, func(ctx context.Context) error {
			var err error
			r, err = a.fitter.Refit(ctx, sess.Series, order)
			return err
		})
		return r, err
	})
	if shared && a.metrics != nil {
		a.metrics.RecordCoalescedRefit()
	}
	if err != nil {
		return nil, wrapStage("refit", err)
	}
	r := v.(*analysis.Refit)

	a.logger.Debug("refit complete", "session", sessionID, "order", order.String(), "shared", shared)

	return &router.RefitView{
		Session:    sessionID,
		Forecast:   plotting.ForecastFigure(r, sess.Label),
		Components: plotting.ComponentsFigure(r, sess.Label),
		Model:      r.Info,
		Interval:   models.FormatIntervalLevel(r.Level),
	}, nil
}

// Session returns a loaded series.
func (a *App) Session(ctx context.Context, id string) (storage.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return storage.Session{}, failure.New(failure.SessionNotFound)
	}
	sess, found, err := a.store.Get(ctx, id)
	if err != nil {
		return storage.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return storage.Session{}, failure.New(failure.SessionNotFound)
	}
	return sess, nil
}

// ResultsFile returns the results CSV of a live session.
func (a *App) ResultsFile(ctx context.Context, id string) (string, error) {
	if _, err := a.Session(ctx, id); err != nil {
		return "", err
	}
	path := a.resultsPath(id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", failure.New(failure.SessionNotFound)
		}
		return "", err
	}
	return path, nil
}

// PlotPath resolves a plot file name.
func (a *App) PlotPath(name string) (string, bool) {
	return a.renderer.Path(name)
}

// Ready reports whether the session store is reachable.
func (a *App) Ready(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *App) resultsPath(id string) string {
	return filepath.Join(a.resultsDir, id+".csv")
}

// writeResults saves the prediction table and prunes files that outlived
// the session TTL.
func (a *App) writeResults(id string, table *analysis.Table) error {
	path := a.resultsPath(id)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	if err := table.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write results: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close results file: %w", err)
	}

	a.pruneResults()
	return nil
}

func (a *App) pruneResults() {
	matches, err := filepath.Glob(filepath.Join(a.resultsDir, "*.csv"))
	if err != nil {
		return
	}
	cutoff := a.now().Add(-a.sessionTTL)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to remove stale results", "file", filepath.Base(m), "error", err)
		}
	}
}

// stage runs fn as a traced, timed pipeline stage.
func (a *App) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if a.metrics != nil {
		a.metrics.RecordStage(name, duration.Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if a.metrics != nil {
			a.metrics.RecordError(name, errorKind(err))
		}
		a.logger.Debug("stage failed", "stage", name, "duration_ms", duration.Milliseconds(), "error", err)
		return err
	}

	a.logger.Debug("stage complete", "stage", name, "duration_ms", duration.Milliseconds())
	return nil
}

func errorKind(err error) string {
	if fe, ok := failure.As(err); ok {
		return string(fe.Kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal"
}

// wrapStage leaves failures as they are and names the stage of anything
// else.
func wrapStage(stage string, err error) error {
	if _, ok := failure.As(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", stage, err)
}
