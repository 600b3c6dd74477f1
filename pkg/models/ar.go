package models

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// DefaultARLags is the lag count used for the AR column of the prediction
// table.
const DefaultARLags = 10

// rankTol is the relative singular value cutoff for the AR design matrix.
const rankTol = 1e-10

// ARModel is an autoregression with a constant term,
//
//	y[t] = c + phi[1]*y[t-1] + ... + phi[p]*y[t-p] + e[t]
//
// estimated by conditional least squares. It is safe for concurrent
// Predict calls after Fit.
type ARModel struct {
	lags int

	mu      sync.RWMutex
	fitted  bool
	coeffs  []float64 // const, phi[1..p]
	history []float64
	sigma2  float64
	aic     float64
	bic     float64
}

// NewARModel creates an AR(lags) model. Panics if lags < 1.
func NewARModel(lags int) *ARModel {
	if lags < 1 {
		panic("lags must be >= 1")
	}
	return &ARModel{lags: lags}
}

// Name returns "AR".
func (m *ARModel) Name() string {
	return "AR"
}

// Fit solves the least squares regression of y[t] on its lags, using
// observations lags..n-1 as the response.
func (m *ARModel) Fit(ctx context.Context, values []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := len(values)
	rows := n - m.lags
	cols := m.lags + 1
	if rows <= cols {
		return fmt.Errorf("AR(%d) needs more than %d points, got %d: %w", m.lags, 2*m.lags+1, n, ErrInsufficientData)
	}

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for t := m.lags; t < n; t++ {
		r := t - m.lags
		x.Set(r, 0, 1)
		for i := 1; i <= m.lags; i++ {
			x.Set(r, i, values[t-i])
		}
		y.SetVec(r, values[t])
	}

	// Trending, constant and exactly periodic series leave x rank deficient.
	// The truncated SVD gives the minimum norm solution in that case.
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return fmt.Errorf("factorize AR(%d) design matrix: %w", m.lags, ErrNotConverged)
	}
	// the intercept column keeps the rank at one or more
	var beta mat.VecDense
	svd.SolveVecTo(&beta, y, svd.Rank(rankTol))

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	var sse float64
	for r := range rows {
		e := y.AtVec(r) - fitted.AtVec(r)
		sse += e * e
	}
	sigma2 := sse / float64(rows)

	coeffs := make([]float64, cols)
	for i := range coeffs {
		coeffs[i] = beta.AtVec(i)
		if math.IsNaN(coeffs[i]) || math.IsInf(coeffs[i], 0) {
			return fmt.Errorf("AR(%d) coefficient %d: %w", m.lags, i, ErrNotConverged)
		}
	}

	aic, bic := informationCriteria(sigma2, rows, cols+1)

	history := make([]float64, n)
	copy(history, values)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fitted = true
	m.coeffs = coeffs
	m.history = history
	m.sigma2 = sigma2
	m.aic = aic
	m.bic = bic

	return nil
}

// Predict returns predictions for positions start..end. The first lags
// positions have no complete lag vector and are NaN.
func (m *ARModel) Predict(ctx context.Context, start, end int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if !m.fitted {
		m.mu.RUnlock()
		return nil, ErrNotFitted
	}
	coeffs := m.coeffs
	ext := make([]float64, len(m.history), max(len(m.history), end+1))
	copy(ext, m.history)
	m.mu.RUnlock()

	n := len(ext)
	predict := func(series []float64, t int) float64 {
		v := coeffs[0]
		for i := 1; i <= m.lags; i++ {
			v += coeffs[i] * series[t-i]
		}
		return v
	}

	for t := n; t <= end; t++ {
		ext = append(ext, predict(ext, t))
	}

	out := make([]float64, 0, end-start+1)
	for t := start; t <= end; t++ {
		switch {
		case t < m.lags:
			out = append(out, math.NaN())
		case t < n:
			out = append(out, predict(ext, t))
		default:
			out = append(out, ext[t])
		}
	}
	return out, nil
}

// Info reports the fit statistics.
func (m *ARModel) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{
		Name:  m.Name(),
		Order: fmt.Sprintf("AR(%d)", m.lags),
		NObs:  max(len(m.history)-m.lags, 0),
		AIC:   m.aic,
		BIC:   m.bic,
	}
}

// Params returns the fitted constant followed by the lag coefficients.
func (m *ARModel) Params() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(m.coeffs))
	copy(out, m.coeffs)
	return out
}

// informationCriteria returns AIC and BIC for a Gaussian likelihood with
// residual variance sigma2 over nobs observations and k parameters.
func informationCriteria(sigma2 float64, nobs, k int) (aic, bic float64) {
	if sigma2 <= 0 || nobs == 0 {
		return math.Inf(-1), math.Inf(-1)
	}
	ll := logLikelihood(sigma2, nobs)
	aic = -2*ll + 2*float64(k)
	bic = -2*ll + float64(k)*math.Log(float64(nobs))
	return aic, bic
}

func logLikelihood(sigma2 float64, nobs int) float64 {
	return -float64(nobs) / 2 * (math.Log(2*math.Pi*sigma2) + 1)
}
