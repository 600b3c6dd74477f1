// Package models provides the forecasting models fitted to an uploaded or
// generated series: autoregression, Holt-Winters exponential smoothing and
// ARIMA, plus BIC-based ARMA order selection.
//
// All models share one life cycle: Fit on the observed values, then Predict
// over index positions. Positions below the number of observations are
// one-step-ahead in-sample predictions; positions at or beyond it are
// recursive out-of-sample forecasts. Positions that cannot be predicted
// (the first lags of an autoregression, for example) are NaN.
package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFitted is returned by Predict before a successful Fit.
	ErrNotFitted = errors.New("model not fitted, call Fit() first")
	// ErrNotConverged is returned when parameter estimation ends on a
	// non-finite or non-stationary solution.
	ErrNotConverged = errors.New("model did not converge")
	// ErrInsufficientData is returned when the series is too short for the
	// requested model.
	ErrInsufficientData = errors.New("insufficient data")
)

// Model is a univariate forecasting model.
type Model interface {
	// Name identifies the model, e.g. "AR" or "ARIMA(1, 0, 1)".
	Name() string
	// Fit estimates the model parameters from values.
	Fit(ctx context.Context, values []float64) error
	// Predict returns predictions for positions start..end inclusive.
	Predict(ctx context.Context, start, end int) ([]float64, error)
}

// Info summarises a fitted model.
type Info struct {
	Name  string  `json:"name"`
	Order string  `json:"order,omitempty"`
	NObs  int     `json:"nobs"`
	AIC   float64 `json:"aic"`
	BIC   float64 `json:"bic"`
}

// Describer is implemented by models that report information criteria.
type Describer interface {
	Info() Info
}

func checkRange(start, end int) error {
	if start < 0 || end < start {
		return fmt.Errorf("invalid prediction range [%d, %d]", start, end)
	}
	return nil
}
