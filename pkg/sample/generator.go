// Package sample generates synthetic ARMA series for users who do not have
// data of their own.
package sample

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/HatiCode/tsdash/pkg/failure"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

const (
	// DefaultSeed makes repeated samples identical across runs.
	DefaultSeed = 123
	// MaxOrder bounds the AR and MA orders accepted by the generator.
	MaxOrder = 5
)

// Params describes a sample requested over a calendar range.
type Params struct {
	Start     time.Time
	End       time.Time
	Frequency timeseries.Frequency
	AROrder   int
	MAOrder   int
}

// Generator produces ARMA(p, q) samples driven by seeded standard normal
// noise. Every call restarts the noise stream from the seed, so equal
// requests give equal samples.
type Generator struct {
	minSize int
	seed    uint64
}

// NewGenerator creates a generator. A seed of 0 draws a new seed from the
// clock for every sample. Panics if minSize < 1.
func NewGenerator(minSize int, seed uint64) *Generator {
	if minSize < 1 {
		panic("minSize must be >= 1")
	}
	return &Generator{minSize: minSize, seed: seed}
}

// MinSize returns the smallest sample the generator accepts.
func (g *Generator) MinSize() int {
	return g.minSize
}

// Generate builds the date range described by p and fills it with an ARMA
// sample. Ranges that hold fewer than MinSize periods are rejected before
// any values are drawn.
func (g *Generator) Generate(p Params) (*timeseries.Series, error) {
	if err := checkOrders(p.AROrder, p.MAOrder); err != nil {
		return nil, err
	}
	if p.Frequency.IsZero() {
		return nil, &failure.Error{Kind: failure.InvalidParameter, Field: "frequency", Reason: "no frequency was given"}
	}
	if p.End.Before(p.Start) {
		return nil, &failure.Error{Kind: failure.InvalidParameter, Field: "end_date", Reason: "the end date is before the start date"}
	}

	index := timeseries.DateRange(p.Start, p.End, p.Frequency)
	if len(index) < g.minSize {
		return nil, &failure.Error{
			Kind:    failure.SampleTooSmall,
			Count:   len(index),
			Period:  p.Frequency.Label(),
			Start:   p.Start.Format(time.DateOnly),
			End:     p.End.Format(time.DateOnly),
			Minimum: g.minSize,
		}
	}

	values := g.draw(p.AROrder, p.MAOrder, len(index))
	return timeseries.New(Label(p.AROrder, p.MAOrder), index, values, p.Frequency)
}

// GenerateN builds a sample of exactly size values starting at start.
func (g *Generator) GenerateN(arOrder, maOrder, size int, start time.Time, freq timeseries.Frequency) (*timeseries.Series, error) {
	if err := checkOrders(arOrder, maOrder); err != nil {
		return nil, err
	}
	if size < g.minSize {
		return nil, &failure.Error{Kind: failure.InvalidParameter, Field: "size", Reason: fmt.Sprintf("the minimum sample size is %d", g.minSize)}
	}

	if freq.IsZero() {
		return nil, &failure.Error{Kind: failure.InvalidParameter, Field: "frequency", Reason: "no frequency was given"}
	}

	first := freq.RollForward(start)
	index := make([]time.Time, size)
	for i := range index {
		index[i] = freq.Add(first, i)
	}

	values := g.draw(arOrder, maOrder, size)
	return timeseries.New(Label(arOrder, maOrder), index, values, freq)
}

// Label is the description shown for a generated sample.
func Label(arOrder, maOrder int) string {
	return fmt.Sprintf("an ARMA(%d, %d) sample", arOrder, maOrder)
}

// Coefficients returns the lag polynomials used for an ARMA(p, q) sample:
// AR is linspace(1, -0.9, p+1) and MA is linspace(1, 0.9, q+1), both
// including the zero-lag term.
func Coefficients(arOrder, maOrder int) (ar, ma []float64) {
	return linspace(1, -0.9, arOrder+1), linspace(1, 0.9, maOrder+1)
}

func (g *Generator) draw(arOrder, maOrder, size int) []float64 {
	seed := g.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	noise := make([]float64, size)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}

	ar, ma := Coefficients(arOrder, maOrder)
	return lfilter(ma, ar, noise)
}

// lfilter applies the rational transfer function b(z)/a(z) to x, the
// direct form used to turn white noise into an ARMA process.
func lfilter(b, a, x []float64) []float64 {
	y := make([]float64, len(x))
	for n := range x {
		var acc float64
		for k, bk := range b {
			if n-k < 0 {
				break
			}
			acc += bk * x[n-k]
		}
		for k := 1; k < len(a); k++ {
			if n-k < 0 {
				break
			}
			acc -= a[k] * y[n-k]
		}
		y[n] = acc / a[0]
	}
	return y
}

func linspace(start, stop float64, num int) []float64 {
	if num == 1 {
		return []float64{start}
	}
	out := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[num-1] = stop
	return out
}

func checkOrders(arOrder, maOrder int) error {
	if arOrder < 1 || arOrder > MaxOrder {
		return &failure.Error{Kind: failure.InvalidParameter, Field: "ar_order", Reason: fmt.Sprintf("it must be between 1 and %d", MaxOrder)}
	}
	if maOrder < 1 || maOrder > MaxOrder {
		return &failure.Error{Kind: failure.InvalidParameter, Field: "ma_order", Reason: fmt.Sprintf("it must be between 1 and %d", MaxOrder)}
	}
	return nil
}
