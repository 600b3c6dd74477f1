package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooShort is returned when a series holds fewer than two seasonal cycles.
var ErrTooShort = errors.New("series shorter than two seasonal periods")

// Components is an additive decomposition: value = trend + seasonal + residual.
// Classical decomposition leaves NaN at the edges of Trend and Residual where
// the moving average is undefined.
type Components struct {
	Trend    []float64
	Seasonal []float64
	Residual []float64
	Period   int
}

// Period picks the seasonal period for a series of length n: the natural
// cycle of its frequency, shrunk so that at least two cycles fit and never
// below 2.
func Period(natural, n int) int {
	p := natural
	if p > n/2 {
		p = n / 2
	}
	return max(p, 2)
}

// Classical decomposes values with a centered moving average trend and
// per-position seasonal means.
func Classical(values []float64, period int) (*Components, error) {
	n := len(values)
	if period < 2 {
		return nil, fmt.Errorf("period must be >= 2, got %d", period)
	}
	if n < 2*period {
		return nil, ErrTooShort
	}

	trend := movingAverage(values, period)

	detrended := make([]float64, n)
	for i := range values {
		detrended[i] = values[i] - trend[i]
	}

	pattern := seasonalMeans(detrended, nil, period)
	seasonal := make([]float64, n)
	residual := make([]float64, n)
	for i := range values {
		seasonal[i] = pattern[i%period]
		residual[i] = values[i] - trend[i] - seasonal[i]
	}

	return &Components{Trend: trend, Seasonal: seasonal, Residual: residual, Period: period}, nil
}

// STL runs a simplified robust seasonal-trend decomposition: seasonal means
// and a triangular-kernel trend smoother are refined over robustIters
// passes, with bisquare weights down-weighting large residuals. Unlike
// Classical, every position gets a value.
func STL(values []float64, period, robustIters int) (*Components, error) {
	n := len(values)
	if period < 2 {
		return nil, fmt.Errorf("period must be >= 2, got %d", period)
	}
	if n < 2*period {
		return nil, ErrTooShort
	}
	if robustIters < 1 {
		robustIters = 2
	}

	trend := make([]float64, n)
	seasonal := make([]float64, n)
	residual := make([]float64, n)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}

	window := period
	if window%2 == 0 {
		window++
	}
	half := window / 2

	for iter := range robustIters {
		detrended := make([]float64, n)
		floats.SubTo(detrended, values, trend)

		pattern := seasonalMeans(detrended, weights, period)
		for i := range seasonal {
			seasonal[i] = pattern[i%period]
		}

		deseasonalized := make([]float64, n)
		floats.SubTo(deseasonalized, values, seasonal)

		for i := range n {
			var sum, wsum float64
			for j := -half; j <= half; j++ {
				idx := i + j
				if idx < 0 || idx >= n {
					continue
				}
				w := weights[idx] * (1 - math.Abs(float64(j))/float64(half+1))
				sum += deseasonalized[idx] * w
				wsum += w
			}
			if wsum > 0 {
				trend[i] = sum / wsum
			}
		}

		for i := range n {
			residual[i] = values[i] - trend[i] - seasonal[i]
		}

		if iter < robustIters-1 {
			updateRobustWeights(residual, weights)
		}
	}

	return &Components{Trend: trend, Seasonal: seasonal, Residual: residual, Period: period}, nil
}

// movingAverage is the centered moving average used for classical
// decomposition (2xperiod MA when the period is even).
func movingAverage(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}

	half := period / 2
	for i := half; i < n-half; i++ {
		var sum float64
		if period%2 == 0 {
			sum = 0.5*values[i-half] + 0.5*values[i+half]
			sum += floats.Sum(values[i-half+1 : i+half])
		} else {
			sum = floats.Sum(values[i-half : i+half+1])
		}
		out[i] = sum / float64(period)
	}
	return out
}

// seasonalMeans averages detrended values per cycle position, skipping NaN,
// and centers the pattern on zero. Nil weights mean equal weights.
func seasonalMeans(detrended, weights []float64, period int) []float64 {
	pattern := make([]float64, period)
	counts := make([]float64, period)
	for i, v := range detrended {
		if math.IsNaN(v) {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		pattern[i%period] += v * w
		counts[i%period] += w
	}
	for i := range pattern {
		if counts[i] > 0 {
			pattern[i] /= counts[i]
		}
	}
	floats.AddConst(-stat.Mean(pattern, nil), pattern)
	return pattern
}

func updateRobustWeights(residual, weights []float64) {
	abs := make([]float64, len(residual))
	for i, r := range residual {
		abs[i] = math.Abs(r)
	}
	sort.Float64s(abs)
	h := 6 * stat.Quantile(0.5, stat.Empirical, abs, nil)
	if h == 0 {
		return
	}
	for i, r := range residual {
		u := math.Abs(r) / h
		if u < 1 {
			weights[i] = (1 - u*u) * (1 - u*u)
		} else {
			weights[i] = 0
		}
	}
}
