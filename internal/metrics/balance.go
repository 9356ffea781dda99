package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Budget names the variables of a water balance: the change of the summed
// Storages between consecutive time points should equal the Gains minus
// the Losses at the earlier point. With Rates set the gains and losses are
// per unit time and are multiplied by the step length.
type Budget struct {
	Storages []string
	Gains    []string
	Losses   []string
	Rates    bool
}

// MassBalance returns the largest absolute balance residual at node. The
// identity is exact for the explicit fixed-step and discrete steppers
// (scaled Euler when Rates is set) and approximate for the Runge-Kutta
// ones. Gains and losses may name forcing series as well as rows of res.
func MassBalance(res *dynamo.Result, forcing map[string][]float64, node int, b Budget) (float64, error) {
	series := func(name string) ([]float64, error) {
		if s, ok := res.Series(name, node); ok {
			return s, nil
		}
		if s, ok := forcing[name]; ok {
			if len(s) != len(res.Times) {
				return nil, fmt.Errorf("forcing %q has %d values for %d time points", name, len(s), len(res.Times))
			}
			return s, nil
		}
		return nil, fmt.Errorf("mass balance: unknown variable %q", name)
	}
	sum := func(names []string) ([]float64, error) {
		total := make([]float64, len(res.Times))
		for _, n := range names {
			s, err := series(n)
			if err != nil {
				return nil, err
			}
			for k, v := range s {
				total[k] += v
			}
		}
		return total, nil
	}

	storage, err := sum(b.Storages)
	if err != nil {
		return 0, err
	}
	gains, err := sum(b.Gains)
	if err != nil {
		return 0, err
	}
	losses, err := sum(b.Losses)
	if err != nil {
		return 0, err
	}

	worst := 0.0
	for k := 0; k+1 < len(res.Times); k++ {
		w := 1.0
		if b.Rates {
			w = res.Times[k+1] - res.Times[k]
		}
		r := storage[k+1] - storage[k] - w*(gains[k]-losses[k])
		worst = math.Max(worst, math.Abs(r))
	}
	return worst, nil
}
