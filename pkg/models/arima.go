package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// Order is an ARIMA(p, d, q) order.
type Order struct {
	P int `json:"ar_order"`
	D int `json:"diff_order"`
	Q int `json:"ma_order"`
}

// String formats the order as "(p, d, q)".
func (o Order) String() string {
	return fmt.Sprintf("(%d, %d, %d)", o.P, o.D, o.Q)
}

// Less orders by p, then d, then q.
func (o Order) Less(other Order) bool {
	if o.P != other.P {
		return o.P < other.P
	}
	if o.D != other.D {
		return o.D < other.D
	}
	return o.Q < other.Q
}

// ARIMAModel implements the Model interface using AutoRegressive Integrated
// Moving Average.
//
// ARIMA(p,d,q) where:
//   - p: AutoRegressive order (how many past values to use)
//   - d: Differencing order (trend removal: 0=none, 1=linear, 2=quadratic)
//   - q: Moving Average order (how many past errors to use)
//
// The differenced series w follows
//
//	w[t] - mu = sum phi[i]*(w[t-i] - mu) + e[t] + sum theta[j]*e[t-j]
//
// with mu = 0 unless a constant is included (only allowed when d = 0).
// It is thread-safe for concurrent Predict calls after fitting.
type ARIMAModel struct {
	order    Order
	constant bool

	mu        sync.RWMutex
	fitted    bool
	arCoeffs  []float64 // AR coefficients (length p)
	maCoeffs  []float64 // MA coefficients (length q)
	mean      float64   // mean of the differenced series
	levels    []float64 // observations
	diffed    []float64 // differenced observations
	residuals []float64 // one-step errors on the differenced scale
	sigma2    float64
	nobs      int
}

// NewARIMAModel creates an ARIMA(p, d, q) model. A constant is estimated
// when d = 0 and withConstant is set.
//
// Panics if p or q is negative, or d is outside [0, 2].
func NewARIMAModel(p, d, q int, withConstant bool) *ARIMAModel {
	if p < 0 {
		panic("p must be >= 0")
	}
	if q < 0 {
		panic("q must be >= 0")
	}
	if d < 0 || d > 2 {
		panic("d must be in range [0, 2]")
	}
	return &ARIMAModel{
		order:    Order{P: p, D: d, Q: q},
		constant: withConstant && d == 0,
	}
}

// Name returns the model name with ARIMA parameters.
func (m *ARIMAModel) Name() string {
	return "ARIMA" + m.order.String()
}

// Order returns the model order.
func (m *ARIMAModel) Order() Order {
	return m.order
}

// Fit estimates the ARIMA model.
//
// The fitting process:
//  1. Applies differencing (d times)
//  2. Computes the mean of the differenced series (when a constant is used)
//  3. Seeds AR coefficients with Yule-Walker equations (Levinson-Durbin)
//  4. Seeds MA coefficients from residual autocorrelations
//  5. Refines all coefficients by minimising the conditional sum of
//     squares with Nelder-Mead, keeping the AR part stationary and the MA
//     part invertible
//
// Returns ErrInsufficientData when the series is too short and
// ErrNotConverged when no admissible solution is found.
func (m *ARIMAModel) Fit(ctx context.Context, values []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, d, q := m.order.P, m.order.D, m.order.Q
	minPoints := max(2*(p+q)+d+2, 10)
	if len(values) < minPoints {
		return fmt.Errorf("need at least %d points for ARIMA%s, got %d: %w",
			minPoints, m.order, len(values), ErrInsufficientData)
	}

	diffed := difference(values, d)

	mean := 0.0
	if m.constant {
		mean = computeMean(diffed)
	}
	centered := make([]float64, len(diffed))
	for i, v := range diffed {
		centered[i] = v - mean
	}

	arInit, err := fitAR(centered, p)
	if err != nil {
		return fmt.Errorf("failed to fit AR coefficients: %w", err)
	}
	maInit, err := fitMA(computeResiduals(centered, arInit, p), q)
	if err != nil {
		return fmt.Errorf("failed to fit MA coefficients: %w", err)
	}

	init := packParams(arInit, maInit, mean, m.constant)
	objective := func(x []float64) float64 {
		ar, ma, mu := unpackParams(x, p, q, m.constant)
		if !stationary(ar) || !stationary(negate(ma)) {
			return math.Inf(1)
		}
		_, css := cssResiduals(diffed, ar, ma, mu)
		return css
	}

	best := init
	if len(init) > 0 {
		res, _ := optimize.Minimize(
			optimize.Problem{Func: objective},
			init,
			&optimize.Settings{MajorIterations: 500, FuncEvaluations: 3000},
			&optimize.NelderMead{},
		)
		if err := ctx.Err(); err != nil {
			return err
		}
		if res != nil && res.F < objective(init) {
			best = res.X
		}
	}

	if math.IsInf(objective(best), 0) || math.IsNaN(objective(best)) {
		return fmt.Errorf("ARIMA%s: %w", m.order, ErrNotConverged)
	}

	ar, ma, mu := unpackParams(best, p, q, m.constant)
	residuals, css := cssResiduals(diffed, ar, ma, mu)
	nobs := len(diffed) - p
	sigma2 := css / float64(nobs)

	levels := make([]float64, len(values))
	copy(levels, values)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fitted = true
	m.arCoeffs = ar
	m.maCoeffs = ma
	m.mean = mu
	m.levels = levels
	m.diffed = diffed
	m.residuals = residuals
	m.sigma2 = sigma2
	m.nobs = nobs

	return nil
}

// Predict returns predictions in levels for positions start..end.
//
// In-sample positions are one-step-ahead predictions from the observed
// history (the first d positions are NaN). Positions at or beyond n are
// recursive forecasts with future errors set to zero.
func (m *ARIMAModel) Predict(ctx context.Context, start, end int) ([]float64, error) {
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
	ar, ma, mu := m.arCoeffs, m.maCoeffs, m.mean
	d := m.order.D
	n := len(m.levels)
	levels := append(make([]float64, 0, max(n, end+1)), m.levels...)
	diffed := append(make([]float64, 0, max(len(m.diffed), end+1)), m.diffed...)
	errs := append(make([]float64, 0, max(len(m.residuals), end+1)), m.residuals...)
	m.mu.RUnlock()

	integ := integrationWeights(d)

	for t := n; t <= end; t++ {
		w := armaStep(diffed, errs, t-d, ar, ma, mu)
		diffed = append(diffed, w)
		errs = append(errs, 0)
		levels = append(levels, undifference(levels, t, w, integ))
	}

	out := make([]float64, 0, end-start+1)
	for t := start; t <= end; t++ {
		switch {
		case t < d:
			out = append(out, math.NaN())
		case t < n:
			w := armaStep(diffed, errs, t-d, ar, ma, mu)
			out = append(out, undifference(levels, t, w, integ))
		default:
			out = append(out, levels[t])
		}
	}
	return out, nil
}

// Interval returns the lower and upper bounds of the central prediction
// interval at the given level (0.95 for a 95% band) for positions
// start..end. In-sample positions use the one-step error variance; the
// variance of an h-step forecast is sigma2 * sum(psi[j]^2, j < h).
func (m *ARIMAModel) Interval(ctx context.Context, start, end int, level float64) (lower, upper []float64, err error) {
	if level <= 0 || level >= 1 {
		return nil, nil, fmt.Errorf("interval level %v out of range (0, 1)", level)
	}
	point, err := m.Predict(ctx, start, end)
	if err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	n := len(m.levels)
	sigma2 := m.sigma2
	psi := psiWeights(m.arCoeffs, m.maCoeffs, m.order.D, max(end-n+1, 1))
	m.mu.RUnlock()

	z := distuv.UnitNormal.Quantile(0.5 + level/2)

	cum := make([]float64, len(psi))
	var acc float64
	for j, w := range psi {
		acc += w * w
		cum[j] = acc
	}

	lower = make([]float64, len(point))
	upper = make([]float64, len(point))
	for i, v := range point {
		h := 1
		if t := start + i; t >= n {
			h = t - n + 1
		}
		half := z * math.Sqrt(sigma2*cum[h-1])
		lower[i] = v - half
		upper[i] = v + half
	}
	return lower, upper, nil
}

// Info reports the conditional log-likelihood based information criteria.
func (m *ARIMAModel) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := m.order.P + m.order.Q + 1
	if m.constant {
		k++
	}
	var aic, bic float64
	if m.fitted {
		aic, bic = informationCriteria(m.sigma2, m.nobs, k)
	}
	return Info{Name: m.Name(), Order: m.order.String(), NObs: m.nobs, AIC: aic, BIC: bic}
}

// Params returns the fitted AR and MA coefficients and the mean of the
// differenced series.
func (m *ARIMAModel) Params() (ar, ma []float64, mean float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float64(nil), m.arCoeffs...), append([]float64(nil), m.maCoeffs...), m.mean
}

// Sigma2 returns the estimated innovation variance.
func (m *ARIMAModel) Sigma2() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sigma2
}

// armaStep predicts w[i] from the values and errors before i. Lags before
// the start of the sample are taken at the mean with zero error.
func armaStep(w, errs []float64, i int, ar, ma []float64, mu float64) float64 {
	pred := mu
	for k, phi := range ar {
		if j := i - 1 - k; j >= 0 {
			pred += phi * (w[j] - mu)
		}
	}
	for k, theta := range ma {
		if j := i - 1 - k; j >= 0 {
			pred += theta * errs[j]
		}
	}
	return pred
}

// cssResiduals returns the one-step errors of the ARMA recursion and their
// sum of squares over positions p..n-1.
func cssResiduals(w, ar, ma []float64, mu float64) ([]float64, float64) {
	errs := make([]float64, len(w))
	var css float64
	for i := range w {
		errs[i] = w[i] - armaStep(w, errs, i, ar, ma, mu)
		if i >= len(ar) {
			css += errs[i] * errs[i]
		}
	}
	if math.IsNaN(css) {
		css = math.Inf(1)
	}
	return errs, css
}

// integrationWeights are the coefficients c[k] with
// y[t] = w[t] + sum c[k]*y[t-k], k = 1..d.
func integrationWeights(d int) []float64 {
	c := make([]float64, d)
	binom := 1.0
	for k := 1; k <= d; k++ {
		binom = binom * float64(d-k+1) / float64(k)
		sign := 1.0
		if k%2 == 0 {
			sign = -1
		}
		c[k-1] = sign * binom
	}
	return c
}

func undifference(levels []float64, t int, w float64, integ []float64) float64 {
	y := w
	for k, c := range integ {
		y += c * levels[t-1-k]
	}
	return y
}

// psiWeights returns the first h coefficients of the MA(infinity)
// representation of the integrated model.
func psiWeights(ar, ma []float64, d, h int) []float64 {
	// phi*(L) = phi(L) * (1-L)^d
	full := append([]float64(nil), ar...)
	for range d {
		next := make([]float64, len(full)+1)
		next[0] = 1
		for i, c := range full {
			next[i] += c
			next[i+1] -= c
		}
		full = next
	}

	psi := make([]float64, h)
	psi[0] = 1
	for j := 1; j < h; j++ {
		var v float64
		if j <= len(ma) {
			v = ma[j-1]
		}
		for k := 1; k <= min(j, len(full)); k++ {
			v += full[k-1] * psi[j-k]
		}
		psi[j] = v
	}
	return psi
}

// stationary reports whether the AR polynomial 1 - sum c[i] L^i has all
// roots outside the unit circle, checked through the eigenvalues of its
// companion matrix.
func stationary(coeffs []float64) bool {
	switch len(coeffs) {
	case 0:
		return true
	case 1:
		return math.Abs(coeffs[0]) < 1
	}

	p := len(coeffs)
	companion := mat.NewDense(p, p, nil)
	for i, c := range coeffs {
		companion.Set(0, i, c)
	}
	for i := 1; i < p; i++ {
		companion.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if !eig.Factorize(companion, mat.EigenNone) {
		return false
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= 1 {
			return false
		}
	}
	return true
}

func negate(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = -x
	}
	return out
}

func packParams(ar, ma []float64, mean float64, constant bool) []float64 {
	x := append(append([]float64(nil), ar...), ma...)
	if constant {
		x = append(x, mean)
	}
	return x
}

func unpackParams(x []float64, p, q int, constant bool) (ar, ma []float64, mean float64) {
	ar = append([]float64(nil), x[:p]...)
	ma = append([]float64(nil), x[p:p+q]...)
	if constant {
		mean = x[p+q]
	}
	return ar, ma, mean
}

// difference applies d-order differencing to make series stationary
func difference(series []float64, d int) []float64 {
	if d == 0 || len(series) == 0 {
		result := make([]float64, len(series))
		copy(result, series)
		return result
	}

	result := make([]float64, len(series)-1)
	for i := 0; i < len(series)-1; i++ {
		result[i] = series[i+1] - series[i]
	}

	if d > 1 {
		return difference(result, d-1)
	}

	return result
}

// computeMean calculates the arithmetic mean of a series
func computeMean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// computeVariance calculates the variance of a series
func computeVariance(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	mean := computeMean(series)
	var sumSq float64
	for _, v := range series {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(series))
}

// fitAR estimates AR coefficients using Yule-Walker equations with Levinson-Durbin
func fitAR(centered []float64, p int) ([]float64, error) {
	if p == 0 {
		return []float64{}, nil
	}

	variance := computeVariance(centered)
	if variance < 1e-10 {
		return make([]float64, p), nil
	}

	acf := make([]float64, p+1)
	for k := 0; k <= p; k++ {
		acf[k] = autocorr(centered, k)
	}

	coeffs, err := levinsonDurbin(acf, p)
	if err != nil {
		coeffs = make([]float64, p)
		coeffs[0] = 0.5
	}

	return coeffs, nil
}

// autocorr computes autocorrelation at given lag
func autocorr(series []float64, lag int) float64 {
	if lag < 0 || lag >= len(series) {
		return 0
	}

	n := len(series)
	mean := computeMean(series)

	var c0, ck float64
	for i := range n {
		c0 += (series[i] - mean) * (series[i] - mean)
	}

	for i := 0; i < n-lag; i++ {
		ck += (series[i] - mean) * (series[i+lag] - mean)
	}

	if c0 == 0 {
		return 0
	}

	return ck / c0
}

// levinsonDurbin solves Yule-Walker equations efficiently
func levinsonDurbin(acf []float64, p int) ([]float64, error) {
	if p == 0 {
		return []float64{}, nil
	}

	phi := make([][]float64, p+1)
	for i := range phi {
		phi[i] = make([]float64, p+1)
	}

	v := acf[0]

	for k := 1; k <= p; k++ {
		num := acf[k]
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-j]
		}

		if v == 0 {
			return nil, errors.New("numerical instability in Levinson-Durbin")
		}

		phi[k][k] = num / v

		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}

		v = v * (1 - phi[k][k]*phi[k][k])

		if v < 0 {
			return nil, errors.New("negative variance in Levinson-Durbin")
		}
	}

	coeffs := make([]float64, p)
	for i := range p {
		coeffs[i] = phi[p][i+1]
	}

	return coeffs, nil
}

// computeResiduals calculates the AR prediction errors used to seed the MA
// coefficients.
func computeResiduals(centered []float64, arCoeffs []float64, p int) []float64 {
	if len(centered) <= p {
		return []float64{}
	}

	residuals := make([]float64, len(centered)-p)

	for t := p; t < len(centered); t++ {
		var arPred float64
		for i := 0; i < p && i < len(arCoeffs); i++ {
			arPred += arCoeffs[i] * centered[t-1-i]
		}

		residuals[t-p] = centered[t] - arPred
	}

	return residuals
}

// fitMA seeds MA coefficients from the residual autocorrelations, shrunk
// inside the invertible region.
func fitMA(residuals []float64, q int) ([]float64, error) {
	if q == 0 || len(residuals) == 0 {
		return make([]float64, q), nil
	}

	coeffs := make([]float64, q)
	for i := 0; i < q && i < len(residuals); i++ {
		coeffs[i] = autocorr(residuals, i+1)
	}

	var total float64
	for _, c := range coeffs {
		total += math.Abs(c)
	}
	if total >= 0.95 {
		for i := range coeffs {
			coeffs[i] *= 0.9 / total
		}
	}

	return coeffs, nil
}
