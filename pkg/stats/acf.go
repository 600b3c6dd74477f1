// Package stats holds the diagnostic statistics shown next to the fitted
// models: autocorrelation, partial autocorrelation and seasonal
// decomposition.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultLags returns min(10*log10(n), n-1), the usual number of lags for
// an ACF plot.
func DefaultLags(n int) int {
	if n < 2 {
		return 0
	}
	return min(int(10*math.Log10(float64(n))), n-1)
}

// PACFLags bounds the PACF lag count to less than half the sample size,
// beyond which the Durbin-Levinson estimates are unreliable.
func PACFLags(n int) int {
	return max(min(DefaultLags(n), n/2-1), 0)
}

// ACF returns the sample autocorrelation for lags 0..nlags. A constant
// series yields nil.
func ACF(values []float64, nlags int) []float64 {
	n := len(values)
	if nlags >= n {
		nlags = n - 1
	}
	if nlags < 0 {
		return nil
	}

	mean := stat.Mean(values, nil)
	centered := make([]float64, n)
	copy(centered, values)
	floats.AddConst(-mean, centered)

	c0 := floats.Dot(centered, centered)
	if c0 == 0 {
		return nil
	}

	acf := make([]float64, nlags+1)
	for k := 0; k <= nlags; k++ {
		acf[k] = floats.Dot(centered[k:], centered[:n-k]) / c0
	}
	return acf
}

// PACF returns the partial autocorrelation for lags 0..nlags using the
// Durbin-Levinson recursion on the sample ACF. Lag 0 is 1.
func PACF(values []float64, nlags int) []float64 {
	acf := ACF(values, nlags)
	if len(acf) < 2 {
		return nil
	}
	nlags = len(acf) - 1

	pacf := make([]float64, nlags+1)
	pacf[0] = 1

	prev := make([]float64, nlags+1)
	cur := make([]float64, nlags+1)
	prev[1] = acf[1]
	pacf[1] = acf[1]

	for k := 2; k <= nlags; k++ {
		num, den := acf[k], 1.0
		for j := 1; j < k; j++ {
			num -= prev[j] * acf[k-j]
			den -= prev[j] * acf[j]
		}
		if den == 0 {
			break
		}

		cur[k] = num / den
		for j := 1; j < k; j++ {
			cur[j] = prev[j] - cur[k]*prev[k-j]
		}
		pacf[k] = cur[k]
		copy(prev, cur)
	}
	return pacf
}

// ConfidenceBound returns the half-width of the 95% band around zero for a
// white-noise autocorrelation estimate on n observations.
func ConfidenceBound(n int) float64 {
	if n <= 0 {
		return 0
	}
	return distuv.UnitNormal.Quantile(0.975) / math.Sqrt(float64(n))
}
