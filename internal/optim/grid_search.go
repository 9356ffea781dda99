// Package optim calibrates model parameters against observations.
package optim

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/metrics"
)

// GridSearch tries every combination of the candidate values in Ranges.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("grid search: %d parameters, %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("grid search: no candidates for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// ParseRange reads "name=lo:hi:n" into n evenly spaced values, or
// "name=v1,v2,..." into an explicit list.
func ParseRange(s string) (string, []float64, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("range %q: want name=lo:hi:n or name=v1,v2", s)
	}
	if parts := strings.Split(spec, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || n < 1 {
			return "", nil, fmt.Errorf("range %q: bad lo:hi:n", s)
		}
		if n == 1 {
			return name, []float64{lo}, nil
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		return name, values, nil
	}
	var values []float64
	for _, f := range strings.Split(spec, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("range %q: %w", s, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

// Target is what a candidate is scored on.
type Target struct {
	Variable string
	Node     int
	Observed []float64
	// Metric names a metric from package metrics.
	Metric string
}

type Best struct {
	Params    map[string]float64
	Score     float64
	Evaluated int
}

// better reports whether a beats b: skill scores are maximised, error
// scores are minimised in magnitude.
func better(metric string, a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	switch metric {
	case "nse", "kge":
		return a > b
	default:
		return math.Abs(a) < math.Abs(b)
	}
}

// Search runs every grid point through exp concurrently and returns the
// best scoring parameters. Candidates whose run fails score NaN.
func (g *GridSearch) Search(ctx context.Context, exp *experiment.Experiment, target Target) (*Best, error) {
	if _, err := metrics.New(target.Metric); err != nil {
		return nil, err
	}

	base := exp.Config().ParamSet()
	var points []map[string]float64
	g.searchRecursive(0, map[string]float64{}, &points)

	sets := make([]dynamo.ParamSet, len(points))
	for i, p := range points {
		ps := base
		for name, v := range p {
			ps = ps.With(name, v)
		}
		sets[i] = ps
	}

	results, err := dynamo.NewEnsemble(exp.RunWith, 0).Run(ctx, sets)
	if err != nil {
		return nil, err
	}

	best := &Best{Score: math.NaN(), Evaluated: len(results)}
	for i, res := range results {
		sim, ok := res.Series(target.Variable, target.Node)
		if !ok {
			return nil, fmt.Errorf("model has no variable %q", target.Variable)
		}
		m, _ := metrics.New(target.Metric)
		score, err := metrics.Score(m, sim, target.Observed)
		if err != nil {
			return nil, err
		}
		if best.Params == nil || better(target.Metric, score, best.Score) {
			best.Params = points[i]
			best.Score = score
		}
	}
	return best, nil
}

func (g *GridSearch) searchRecursive(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(depth+1, newParams, out)
	}
}
