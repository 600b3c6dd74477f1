package models

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func simulateARMA(n int, c float64, ar, ma []float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	burn := 200
	y := make([]float64, n+burn)
	e := make([]float64, n+burn)
	for t := range y {
		e[t] = rng.NormFloat64()
		v := c + e[t]
		for i, phi := range ar {
			if t-1-i >= 0 {
				v += phi * y[t-1-i]
			}
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				v += theta * e[t-1-j]
			}
		}
		y[t] = v
	}
	return y[burn:]
}

func seasonalLinear(n, period int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 10 + 0.5*float64(i) + 3*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return out
}

func TestARModel_Fit(t *testing.T) {
	values := simulateARMA(3000, 2, []float64{0.5, -0.3}, nil, 1)

	m := NewARModel(2)
	if err := m.Fit(context.Background(), values); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	params := m.Params()
	want := []float64{2, 0.5, -0.3}
	tol := []float64{0.2, 0.06, 0.06}
	for i := range want {
		if math.Abs(params[i]-want[i]) > tol[i] {
			t.Errorf("param[%d] = %.3f, want %.3f ± %.2f", i, params[i], want[i], tol[i])
		}
	}

	info := m.Info()
	if info.NObs != 2998 {
		t.Errorf("NObs = %d, want 2998", info.NObs)
	}
	if info.BIC <= info.AIC {
		t.Errorf("BIC %v should exceed AIC %v for n > e^2", info.BIC, info.AIC)
	}
}

func TestARModel_Predict(t *testing.T) {
	values := simulateARMA(200, 1, []float64{0.7}, nil, 2)
	m := NewARModel(DefaultARLags)
	if err := m.Fit(context.Background(), values); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pred, err := m.Predict(context.Background(), 0, 214)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(pred) != 215 {
		t.Fatalf("len = %d, want 215", len(pred))
	}
	for i := range DefaultARLags {
		if !math.IsNaN(pred[i]) {
			t.Errorf("pred[%d] = %v, want NaN", i, pred[i])
		}
	}
	for i := DefaultARLags; i < len(pred); i++ {
		if math.IsNaN(pred[i]) || math.IsInf(pred[i], 0) {
			t.Fatalf("pred[%d] = %v, want finite", i, pred[i])
		}
	}

	// the in-sample part must match a window predicted on its own
	window, err := m.Predict(context.Background(), 80, 199)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i, v := range window {
		if v != pred[80+i] {
			t.Fatalf("window[%d] = %v, want %v", i, v, pred[80+i])
		}
	}
}

func TestARModel_RankDeficient(t *testing.T) {
	weekly := []float64{120, 135, 128, 140, 150, 90, 80}
	tests := []struct {
		name string
		at   func(i int) float64
	}{
		{"ramp", func(i int) float64 { return 5 + 2*float64(i) }},
		{"constant", func(int) float64 { return 42.5 }},
		{"weekly", func(i int) float64 { return weekly[i%7] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([]float64, 60)
			for i := range values {
				values[i] = tt.at(i)
			}

			m := NewARModel(DefaultARLags)
			if err := m.Fit(context.Background(), values); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			pred, err := m.Predict(context.Background(), DefaultARLags, 69)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			// every lag window lies in the span of the design matrix, so
			// the fit and the forecast are exact
			for i, v := range pred {
				want := tt.at(DefaultARLags + i)
				if math.Abs(v-want) > 1e-6*math.Max(1, math.Abs(want)) {
					t.Errorf("pred[%d] = %v, want %v", DefaultARLags+i, v, want)
				}
			}
		})
	}
}

func TestARModel_Errors(t *testing.T) {
	m := NewARModel(10)
	if _, err := m.Predict(context.Background(), 0, 5); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Predict() before Fit error = %v, want ErrNotFitted", err)
	}
	if err := m.Fit(context.Background(), make([]float64, 15)); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Fit() short series error = %v, want ErrInsufficientData", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Fit(ctx, simulateARMA(100, 0, []float64{0.5}, nil, 3)); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit() canceled error = %v, want context.Canceled", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("NewARModel(0) did not panic")
		}
	}()
	NewARModel(0)
}

func TestExponentialSmoothing_Seasonal(t *testing.T) {
	values := seasonalLinear(84, 7)

	m := NewExponentialSmoothing(7)
	if err := m.Fit(context.Background(), values[:70]); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	alpha, beta, gamma := m.Params()
	for name, v := range map[string]float64{"alpha": alpha, "beta": beta, "gamma": gamma} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v, want in [0, 1]", name, v)
		}
	}

	pred, err := m.Predict(context.Background(), 0, 83)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i, v := range pred {
		if math.Abs(v-values[i]) > 1e-6 {
			t.Errorf("pred[%d] = %.6f, want %.6f", i, v, values[i])
		}
	}

	if got := m.Info().Order; got != "additive trend, additive seasonal (7)" {
		t.Errorf("Order = %q", got)
	}
}

func TestExponentialSmoothing_HoltFallback(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 3 + 2*float64(i)
	}

	m := NewExponentialSmoothing(12)
	if err := m.Fit(context.Background(), values); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if _, _, gamma := m.Params(); gamma != 0 {
		t.Errorf("gamma = %v, want 0 without a seasonal component", gamma)
	}

	pred, err := m.Predict(context.Background(), 18, 22)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	want := []float64{39, 41, 43, 45, 47}
	for i := range want {
		if math.Abs(pred[i]-want[i]) > 1e-9 {
			t.Errorf("pred[%d] = %v, want %v", i, pred[i], want[i])
		}
	}
}

func TestExponentialSmoothing_TooShort(t *testing.T) {
	err := NewExponentialSmoothing(7).Fit(context.Background(), []float64{1, 2, 3})
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Fit() error = %v, want ErrInsufficientData", err)
	}
}

func TestARIMAModel_Name(t *testing.T) {
	if got := NewARIMAModel(2, 1, 1, false).Name(); got != "ARIMA(2, 1, 1)" {
		t.Errorf("Name() = %q, want %q", got, "ARIMA(2, 1, 1)")
	}
}

func TestARIMAModel_Panics(t *testing.T) {
	tests := []struct {
		name    string
		p, d, q int
	}{
		{"negative p", -1, 0, 0},
		{"negative q", 0, 0, -1},
		{"d too large", 1, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("NewARIMAModel(%d, %d, %d) did not panic", tt.p, tt.d, tt.q)
				}
			}()
			NewARIMAModel(tt.p, tt.d, tt.q, false)
		})
	}
}

func TestARIMAModel_RecoversARMA11(t *testing.T) {
	values := simulateARMA(1500, 0, []float64{0.6}, []float64{0.3}, 11)

	m := NewARIMAModel(1, 0, 1, false)
	if err := m.Fit(context.Background(), values); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	ar, ma, _ := m.Params()
	if math.Abs(ar[0]-0.6) > 0.1 {
		t.Errorf("phi = %.3f, want 0.6 ± 0.1", ar[0])
	}
	if math.Abs(ma[0]-0.3) > 0.1 {
		t.Errorf("theta = %.3f, want 0.3 ± 0.1", ma[0])
	}
	if s := m.Sigma2(); math.Abs(s-1) > 0.15 {
		t.Errorf("sigma2 = %.3f, want 1 ± 0.15", s)
	}
}

func TestARIMAModel_ConstantMeanReversion(t *testing.T) {
	values := simulateARMA(400, 5, []float64{0.5}, nil, 5) // mean 10

	m := NewARIMAModel(1, 0, 0, true)
	if err := m.Fit(context.Background(), values); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	pred, err := m.Predict(context.Background(), 400, 459)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if last := pred[len(pred)-1]; math.Abs(last-10) > 0.5 {
		t.Errorf("long-run forecast = %.3f, want close to 10", last)
	}
}

func TestARIMAModel_RandomWalk(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	values := make([]float64, 100)
	for i := 1; i < len(values); i++ {
		values[i] = values[i-1] + rng.NormFloat64()
	}

	m := NewARIMAModel(0, 1, 0, false)
	if err := m.Fit(context.Background(), values); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pred, err := m.Predict(context.Background(), 0, 104)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if !math.IsNaN(pred[0]) {
		t.Errorf("pred[0] = %v, want NaN for d = 1", pred[0])
	}
	for i := 1; i < 100; i++ {
		if math.Abs(pred[i]-values[i-1]) > 1e-12 {
			t.Fatalf("pred[%d] = %v, want previous value %v", i, pred[i], values[i-1])
		}
	}
	for i := 100; i < 105; i++ {
		if math.Abs(pred[i]-values[99]) > 1e-12 {
			t.Errorf("forecast[%d] = %v, want last value %v", i, pred[i], values[99])
		}
	}

	lower, upper, err := m.Interval(context.Background(), 100, 103, 0.95)
	if err != nil {
		t.Fatalf("Interval() error = %v", err)
	}
	w1 := upper[0] - lower[0]
	w4 := upper[3] - lower[3]
	if math.Abs(w4/w1-2) > 1e-9 {
		t.Errorf("width ratio h=4/h=1 = %v, want 2 (sqrt of horizon)", w4/w1)
	}
	if math.Abs(w1/2-1.959964*math.Sqrt(m.Sigma2())) > 1e-4 {
		t.Errorf("half width = %v, want 1.96 sigma", w1/2)
	}
}

func TestARIMAModel_SecondDifference(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		x := float64(i)
		values[i] = 1 + 2*x + 0.5*x*x
	}

	m := NewARIMAModel(0, 2, 0, false)
	if err := m.Fit(context.Background(), values); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	// the second difference of a quadratic is constant, so the model
	// without a constant extrapolates a straight line from the last two
	// points
	pred, err := m.Predict(context.Background(), 40, 41)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	slope := values[39] - values[38]
	if math.Abs(pred[0]-(values[39]+slope)) > 1e-9 || math.Abs(pred[1]-(values[39]+2*slope)) > 1e-9 {
		t.Errorf("forecast = %v", pred)
	}
}

func TestARIMAModel_Errors(t *testing.T) {
	m := NewARIMAModel(1, 0, 1, false)
	if _, err := m.Predict(context.Background(), 0, 1); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Predict() before Fit error = %v, want ErrNotFitted", err)
	}
	if err := m.Fit(context.Background(), []float64{1, 2, 3}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Fit() error = %v, want ErrInsufficientData", err)
	}
	if err := m.Fit(context.Background(), simulateARMA(50, 0, []float64{0.5}, nil, 9)); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if _, err := m.Predict(context.Background(), 5, 2); err == nil {
		t.Error("Predict() with end < start should fail")
	}
	if _, _, err := m.Interval(context.Background(), 50, 55, 1); err == nil {
		t.Error("Interval() with level 1 should fail")
	}
}

func TestPsiWeights(t *testing.T) {
	tests := []struct {
		name string
		ar   []float64
		ma   []float64
		d    int
		want []float64
	}{
		{"white noise", nil, nil, 0, []float64{1, 0, 0, 0}},
		{"AR(1)", []float64{0.5}, nil, 0, []float64{1, 0.5, 0.25, 0.125}},
		{"MA(1)", nil, []float64{0.4}, 0, []float64{1, 0.4, 0, 0}},
		{"random walk", nil, nil, 1, []float64{1, 1, 1, 1}},
		{"ARIMA(0,2,0)", nil, nil, 2, []float64{1, 2, 3, 4}},
		{"ARIMA(1,1,0)", []float64{0.5}, nil, 1, []float64{1, 1.5, 1.75, 1.875}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := psiWeights(tt.ar, tt.ma, tt.d, len(tt.want))
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("psi = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestIntegrationWeights(t *testing.T) {
	if got := integrationWeights(1); len(got) != 1 || got[0] != 1 {
		t.Errorf("d=1: %v, want [1]", got)
	}
	if got := integrationWeights(2); len(got) != 2 || got[0] != 2 || got[1] != -1 {
		t.Errorf("d=2: %v, want [2 -1]", got)
	}
}

func TestStationary(t *testing.T) {
	tests := []struct {
		coeffs []float64
		want   bool
	}{
		{nil, true},
		{[]float64{0.9}, true},
		{[]float64{1.0}, false},
		{[]float64{1.3, -0.4}, true},
		{[]float64{0.5, 0.6}, false},
		{[]float64{0.2, 0.2, 0.2}, true},
	}
	for _, tt := range tests {
		if got := stationary(tt.coeffs); got != tt.want {
			t.Errorf("stationary(%v) = %v, want %v", tt.coeffs, got, tt.want)
		}
	}
}

func TestSelectOrder(t *testing.T) {
	t.Run("strong AR(2)", func(t *testing.T) {
		values := simulateARMA(400, 0, []float64{1.2, -0.5}, nil, 21)
		got, err := BICOrder(context.Background(), values, DefaultMaxAR, DefaultMaxMA)
		if err != nil {
			t.Fatalf("BICOrder() error = %v", err)
		}
		if got.P < 1 {
			t.Errorf("BICOrder() = %v, want an autoregressive order", got)
		}
	})

	t.Run("floored at (1, 1)", func(t *testing.T) {
		values := simulateARMA(200, 0, nil, nil, 22)
		got, err := SelectOrder(context.Background(), values, DefaultMaxAR, DefaultMaxMA)
		if err != nil {
			t.Fatalf("SelectOrder() error = %v", err)
		}
		if got.Less(MinARMAOrder) {
			t.Errorf("SelectOrder() = %v, want at least %v", got, MinARMAOrder)
		}
	})

	t.Run("fallback when nothing converges", func(t *testing.T) {
		got, err := SelectOrder(context.Background(), []float64{1, 2, 3, 4, 5}, DefaultMaxAR, DefaultMaxMA)
		if err != nil {
			t.Fatalf("SelectOrder() error = %v", err)
		}
		if got != MinARMAOrder {
			t.Errorf("SelectOrder() = %v, want %v", got, MinARMAOrder)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := SelectOrder(ctx, simulateARMA(100, 0, []float64{0.5}, nil, 23), 1, 1)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("SelectOrder() error = %v, want context.Canceled", err)
		}
	})
}

func TestOrder_Less(t *testing.T) {
	if !(Order{P: 0, Q: 2}).Less(MinARMAOrder) {
		t.Error("(0, 0, 2) should sort before (1, 0, 1)")
	}
	if !(Order{P: 1, Q: 0}).Less(MinARMAOrder) {
		t.Error("(1, 0, 0) should sort before (1, 0, 1)")
	}
	if (Order{P: 2, Q: 0}).Less(MinARMAOrder) {
		t.Error("(2, 0, 0) should not sort before (1, 0, 1)")
	}
}
