package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/tsdash/pkg/models"
	"github.com/HatiCode/tsdash/pkg/stats"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

// Config tunes the fitter.
type Config struct {
	// Coverage is the share of the series, counted from the end, covered by
	// the prediction table.
	Coverage float64
	// RefitCoverage is the share covered by the in-sample part of a refit.
	RefitCoverage float64
	// Horizon is the number of out-of-sample periods forecast by a refit.
	Horizon int
	// IntervalLevel is the coverage of the refit forecast band; 0 disables it.
	IntervalLevel float64
	ARLags        int
	MaxAR         int
	MaxMA         int
}

// DefaultConfig returns the settings used by the dashboard.
func DefaultConfig() Config {
	return Config{
		Coverage:      0.6,
		RefitCoverage: 0.3,
		Horizon:       15,
		IntervalLevel: 0.95,
		ARLags:        models.DefaultARLags,
		MaxAR:         models.DefaultMaxAR,
		MaxMA:         models.DefaultMaxMA,
	}
}

// Validate reports configuration values outside their domain.
func (c Config) Validate() error {
	if c.Coverage <= 0 || c.Coverage > 1 {
		return fmt.Errorf("coverage must be in (0, 1], got %v", c.Coverage)
	}
	if c.RefitCoverage <= 0 || c.RefitCoverage > 1 {
		return fmt.Errorf("refit coverage must be in (0, 1], got %v", c.RefitCoverage)
	}
	if c.Horizon < 1 {
		return fmt.Errorf("horizon must be >= 1, got %d", c.Horizon)
	}
	if c.IntervalLevel < 0 || c.IntervalLevel >= 1 {
		return fmt.Errorf("interval level must be in [0, 1), got %v", c.IntervalLevel)
	}
	if c.ARLags < 1 || c.MaxAR < 0 || c.MaxMA < 0 {
		return fmt.Errorf("invalid model orders: lags=%d maxAR=%d maxMA=%d", c.ARLags, c.MaxAR, c.MaxMA)
	}
	return nil
}

// ModelInfo describes one fitted model of the result.
type ModelInfo struct {
	Column string `json:"column"`
	Name   string `json:"name"`
	Order  string `json:"order,omitempty"`
	NObs   int    `json:"nobs"`
	AIC    Float  `json:"aic"`
	BIC    Float  `json:"bic"`
}

func newModelInfo(column string, m models.Model) ModelInfo {
	info := ModelInfo{Column: column, Name: m.Name()}
	if d, ok := m.(models.Describer); ok {
		i := d.Info()
		info.Order = i.Order
		info.NObs = i.NObs
		info.AIC = Float(i.AIC)
		info.BIC = Float(i.BIC)
	}
	return info
}

// Fit is the outcome of fitting every model to a series.
type Fit struct {
	Table  *Table
	Models []ModelInfo
	// ARMAOrder is the order used for the ARMA column.
	ARMAOrder models.Order
}

// Fitter fits the dashboard models. It holds no per-series state and is
// safe for concurrent use.
type Fitter struct {
	cfg Config

	selectOrder func(ctx context.Context, values []float64, maxAR, maxMA int) (models.Order, error)
	// fitOrder fits the ARMA column at a given order.
	fitOrder func(ctx context.Context, values []float64, order models.Order) (*models.ARIMAModel, error)
}

// NewFitter creates a fitter. Panics if the configuration is invalid.
func NewFitter(cfg Config) *Fitter {
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}
	return &Fitter{cfg: cfg, selectOrder: models.SelectOrder, fitOrder: fitARMAOrder}
}

// Config returns the fitter settings.
func (f *Fitter) Config() Config {
	return f.cfg
}

// Fit fits exponential smoothing, AR and ARMA models to s and predicts the
// last Coverage share of it. Rows where any model has no prediction are
// dropped from the table.
func (f *Fitter) Fit(ctx context.Context, s *timeseries.Series) (*Fit, error) {
	n := s.Len()
	start := windowStart(n, f.cfg.Coverage)
	end := n - 1

	smoothing := models.NewExponentialSmoothing(s.Freq.SeasonalPeriod())
	ar := models.NewARModel(f.cfg.ARLags)
	var arma *models.ARIMAModel

	var esPred, arPred, armaPred []float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		esPred, err = fitPredict(gctx, smoothing, s.Values, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		arPred, err = fitPredict(gctx, ar, s.Values, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		arma, err = f.fitARMA(gctx, s.Values)
		if err != nil {
			return err
		}
		armaPred, err = arma.Predict(gctx, start, end)
		if err != nil {
			return fmt.Errorf("predict %s: %w", arma.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table, err := NewTable(
		s.Index(start, end),
		[]string{ColumnActual, ColumnSmoothing, ColumnAR, ColumnARMA},
		[][]float64{s.Values[start:], esPred, arPred, armaPred},
	)
	if err != nil {
		return nil, fmt.Errorf("build prediction table: %w", err)
	}

	return &Fit{
		Table: table,
		Models: []ModelInfo{
			newModelInfo(ColumnSmoothing, smoothing),
			newModelInfo(ColumnAR, ar),
			newModelInfo(ColumnARMA, arma),
		},
		ARMAOrder: arma.Order(),
	}, nil
}

// fitARMA searches the order by BIC and fits it with a constant, falling
// back to ARMA(1, 1) when the chosen order does not converge.
func (f *Fitter) fitARMA(ctx context.Context, values []float64) (*models.ARIMAModel, error) {
	order, err := f.selectOrder(ctx, values, f.cfg.MaxAR, f.cfg.MaxMA)
	if err != nil {
		return nil, fmt.Errorf("select ARMA order: %w", err)
	}

	m, err := f.fitOrder(ctx, values, order)
	if errors.Is(err, models.ErrNotConverged) && order != models.MinARMAOrder {
		m, err = f.fitOrder(ctx, values, models.MinARMAOrder)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func fitARMAOrder(ctx context.Context, values []float64, order models.Order) (*models.ARIMAModel, error) {
	m := models.NewARIMAModel(order.P, 0, order.Q, true)
	if err := m.Fit(ctx, values); err != nil {
		return nil, fmt.Errorf("fit %s: %w", m.Name(), err)
	}
	return m, nil
}

func fitPredict(ctx context.Context, m models.Model, values []float64, start, end int) ([]float64, error) {
	if err := m.Fit(ctx, values); err != nil {
		return nil, fmt.Errorf("fit %s: %w", m.Name(), err)
	}
	pred, err := m.Predict(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", m.Name(), err)
	}
	return pred, nil
}

// Refit is the interactive view of one ARIMA order.
type Refit struct {
	Order models.Order
	Info  ModelInfo

	Actual []float64
	Index  []time.Time

	// InSample covers positions from the refit window start through n, the
	// last one being the first out-of-sample step.
	InSampleIndex []time.Time
	InSample      []float64

	ForecastIndex []time.Time
	Forecast      []float64
	// Lower and Upper bound the forecast band; nil when disabled.
	Lower []float64
	Upper []float64
	Level float64

	Components *stats.Components
}

// Refit fits ARIMA(order) to s, predicts the last RefitCoverage share of it
// in-sample and forecasts Horizon periods ahead. A classical decomposition
// of s is attached for the components view.
func (f *Fitter) Refit(ctx context.Context, s *timeseries.Series, order models.Order) (*Refit, error) {
	n := s.Len()
	m := models.NewARIMAModel(order.P, order.D, order.Q, true)
	if err := m.Fit(ctx, s.Values); err != nil {
		return nil, fmt.Errorf("fit %s: %w", m.Name(), err)
	}

	start := windowStart(n, f.cfg.RefitCoverage)
	inSample, err := m.Predict(ctx, start, n)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", m.Name(), err)
	}

	fcStart, fcEnd := n, n+f.cfg.Horizon-1
	forecast, err := m.Predict(ctx, fcStart, fcEnd)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", m.Name(), err)
	}

	r := &Refit{
		Order:         order,
		Info:          newModelInfo("ARIMA", m),
		Actual:        s.Values,
		Index:         s.Timestamps,
		InSampleIndex: s.Index(start, n),
		InSample:      inSample,
		ForecastIndex: s.Index(fcStart, fcEnd),
		Forecast:      forecast,
		Level:         f.cfg.IntervalLevel,
	}

	if f.cfg.IntervalLevel > 0 {
		r.Lower, r.Upper, err = m.Interval(ctx, fcStart, fcEnd, f.cfg.IntervalLevel)
		if err != nil {
			return nil, fmt.Errorf("forecast interval: %w", err)
		}
	}

	components, err := stats.Classical(s.Values, stats.Period(s.Freq.SeasonalPeriod(), n))
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	r.Components = components

	return r, nil
}

// windowStart returns the first position of a window that leaves the
// leading (1-coverage) share of n observations out.
func windowStart(n int, coverage float64) int {
	return int(math.Floor((1-coverage)*float64(n) + 1e-9))
}
