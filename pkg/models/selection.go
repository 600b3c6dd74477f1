package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Default bounds of the ARMA order search.
const (
	DefaultMaxAR = 4
	DefaultMaxMA = 2
)

// MinARMAOrder is the smallest order used for the ARMA column.
var MinARMAOrder = Order{P: 1, Q: 1}

// SelectOrder picks the ARMA order used for the prediction table. The
// BIC-minimising order from BICOrder is raised to at least (1, 1) in
// lexicographic order; when the search does not converge the result is
// (1, 1). Only context errors are returned.
func SelectOrder(ctx context.Context, values []float64, maxAR, maxMA int) (Order, error) {
	best, err := BICOrder(ctx, values, maxAR, maxMA)
	if err != nil {
		if errors.Is(err, ErrNotConverged) {
			return MinARMAOrder, nil
		}
		return Order{}, err
	}
	if best.Less(MinARMAOrder) {
		return MinARMAOrder, nil
	}
	return best, nil
}

// BICOrder fits ARMA(p, q) without a constant for every p <= maxAR and
// q <= maxMA and returns the order with the lowest BIC. Candidates that
// fail to converge or lack data are skipped; ErrNotConverged is returned
// when none succeed.
func BICOrder(ctx context.Context, values []float64, maxAR, maxMA int) (Order, error) {
	if maxAR < 0 || maxMA < 0 {
		return Order{}, fmt.Errorf("invalid search bounds p<=%d q<=%d", maxAR, maxMA)
	}

	type candidate struct {
		order Order
		bic   float64
	}
	candidates := make([]candidate, 0, (maxAR+1)*(maxMA+1))
	for p := 0; p <= maxAR; p++ {
		for q := 0; q <= maxMA; q++ {
			candidates = append(candidates, candidate{order: Order{P: p, Q: q}, bic: math.Inf(1)})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range candidates {
		g.Go(func() error {
			o := candidates[i].order
			m := NewARIMAModel(o.P, 0, o.Q, false)
			if err := m.Fit(gctx, values); err != nil {
				if errors.Is(err, ErrNotConverged) || errors.Is(err, ErrInsufficientData) {
					return nil
				}
				return fmt.Errorf("fit ARMA(%d, %d): %w", o.P, o.Q, err)
			}
			if bic := m.Info().BIC; !math.IsNaN(bic) {
				candidates[i].bic = bic
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Order{}, err
	}

	best := -1
	for i, c := range candidates {
		if !math.IsInf(c.bic, 1) && (best < 0 || c.bic < candidates[best].bic) {
			best = i
		}
	}
	if best < 0 {
		return Order{}, fmt.Errorf("order search: %w", ErrNotConverged)
	}
	return candidates[best].order, nil
}
