package models

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ExponentialSmoothing is additive Holt-Winters smoothing (additive trend,
// additive seasonality):
//
//	level[t]  = alpha*(y[t]-s[t-m]) + (1-alpha)*(level[t-1]+trend[t-1])
//	trend[t]  = beta*(level[t]-level[t-1]) + (1-beta)*trend[t-1]
//	s[t]      = gamma*(y[t]-level[t]) + (1-gamma)*s[t-m]
//
// The smoothing parameters minimise the in-sample one-step squared error
// with Nelder-Mead. When the series holds fewer than two full seasons, or
// the period is below 2, the seasonal equation is dropped and the model
// reduces to Holt's linear trend.
type ExponentialSmoothing struct {
	period int

	mu       sync.RWMutex
	fitted   bool
	seasonal bool
	alpha    float64
	beta     float64
	gamma    float64
	level    float64
	trend    float64
	seasons  []float64 // last m seasonal states, aligned to positions n..n+m-1
	inSample []float64
	sse      float64
}

// NewExponentialSmoothing creates a model with the given seasonal period.
func NewExponentialSmoothing(period int) *ExponentialSmoothing {
	return &ExponentialSmoothing{period: period}
}

// Name returns "Exponential Smoothing".
func (m *ExponentialSmoothing) Name() string {
	return "Exponential Smoothing"
}

// Fit estimates alpha, beta and gamma.
func (m *ExponentialSmoothing) Fit(ctx context.Context, values []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(values) < 4 {
		return fmt.Errorf("exponential smoothing needs at least 4 points, got %d: %w", len(values), ErrInsufficientData)
	}

	seasonal := m.period >= 2 && len(values) >= 2*m.period
	period := 0
	if seasonal {
		period = m.period
	}

	// parameters live on the real line and are squashed into (0, 1)
	objective := func(x []float64) float64 {
		a, b, g := squash(x[0]), squash(x[1]), squash(x[2])
		st := holtWinters(values, period, a, b, g)
		if math.IsNaN(st.sse) {
			return math.Inf(1)
		}
		return st.sse
	}

	x0 := []float64{logit(0.3), logit(0.1), logit(0.1)}
	// the best point found is kept even when the evaluation budget runs out
	res, _ := optimize.Minimize(
		optimize.Problem{Func: objective},
		x0,
		&optimize.Settings{MajorIterations: 400, FuncEvaluations: 2000},
		&optimize.NelderMead{},
	)
	if err := ctx.Err(); err != nil {
		return err
	}
	best := x0
	if res != nil && res.F < objective(x0) {
		best = res.X
	}

	a, b, g := squash(best[0]), squash(best[1]), squash(best[2])
	st := holtWinters(values, period, a, b, g)
	if math.IsInf(st.sse, 0) || math.IsNaN(st.sse) {
		return fmt.Errorf("exponential smoothing: %w", ErrNotConverged)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fitted = true
	m.seasonal = seasonal
	m.alpha, m.beta, m.gamma = a, b, g
	if !seasonal {
		m.gamma = 0
	}
	m.level = st.level
	m.trend = st.trend
	m.seasons = st.seasons
	m.inSample = st.fitted
	m.sse = st.sse

	return nil
}

// Predict returns one-step-ahead in-sample values for positions below n and
// the h-step forecast level + h*trend + season beyond.
func (m *ExponentialSmoothing) Predict(ctx context.Context, start, end int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.fitted {
		return nil, ErrNotFitted
	}

	n := len(m.inSample)
	out := make([]float64, 0, end-start+1)
	for t := start; t <= end; t++ {
		if t < n {
			out = append(out, m.inSample[t])
			continue
		}
		h := t - n + 1
		v := m.level + float64(h)*m.trend
		if len(m.seasons) > 0 {
			v += m.seasons[(h-1)%len(m.seasons)]
		}
		out = append(out, v)
	}
	return out, nil
}

// Info reports AIC and BIC computed from the in-sample squared error.
func (m *ExponentialSmoothing) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.inSample)
	k := 4 // alpha, beta, level0, trend0
	order := "additive trend"
	if m.seasonal {
		k += 1 + m.period
		order = fmt.Sprintf("additive trend, additive seasonal (%d)", m.period)
	}
	var aic, bic float64
	if n > 0 {
		aic, bic = informationCriteria(m.sse/float64(n), n, k)
	}
	return Info{Name: m.Name(), Order: order, NObs: n, AIC: aic, BIC: bic}
}

// Params returns alpha, beta and gamma. Gamma is 0 for the non-seasonal
// fallback.
func (m *ExponentialSmoothing) Params() (alpha, beta, gamma float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alpha, m.beta, m.gamma
}

type hwState struct {
	fitted  []float64
	level   float64
	trend   float64
	seasons []float64
	sse     float64
}

// holtWinters runs the smoothing recursions. A period of 0 disables the
// seasonal component.
func holtWinters(y []float64, period int, alpha, beta, gamma float64) hwState {
	n := len(y)
	var level, trend float64
	var s []float64

	// initial states sit one step before the first observation
	if period > 0 {
		first := stat.Mean(y[:period], nil)
		second := stat.Mean(y[period:2*period], nil)
		trend = (second - first) / float64(period)
		center := float64(period-1) / 2
		level = first - trend*(center+1)
		s = make([]float64, n+period)
		for i := range period {
			s[i] = y[i] - (first + trend*(float64(i)-center))
		}
	} else {
		trend = y[1] - y[0]
		level = y[0] - trend
	}

	fitted := make([]float64, n)
	var sse float64
	for t := range n {
		var season float64
		if period > 0 {
			season = s[t]
		}
		fitted[t] = level + trend + season
		e := y[t] - fitted[t]
		sse += e * e

		prev := level
		level = alpha*(y[t]-season) + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
		if period > 0 {
			s[t+period] = gamma*(y[t]-level) + (1-gamma)*season
		}
	}

	st := hwState{fitted: fitted, level: level, trend: trend, sse: sse}
	if period > 0 {
		st.seasons = append([]float64(nil), s[n:]...)
	}
	return st
}

func squash(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
