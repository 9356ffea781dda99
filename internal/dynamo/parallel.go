package dynamo

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RunFunc runs one member of an ensemble.
type RunFunc func(ctx context.Context, ps ParamSet) (*Result, error)

// Ensemble runs independent simulations over many parameter sets. Each run
// owns its arrays, so compiled units can be shared freely between members.
type Ensemble struct {
	run   RunFunc
	limit int
}

// NewEnsemble returns an ensemble running at most limit members at once;
// limit <= 0 uses GOMAXPROCS.
func NewEnsemble(run RunFunc, limit int) *Ensemble {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Ensemble{run: run, limit: limit}
}

// Run returns one result per parameter set, in input order. The first error
// cancels the remaining members.
func (e *Ensemble) Run(ctx context.Context, sets []ParamSet) ([]*Result, error) {
	results := make([]*Result, len(sets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := range sets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.run(ctx, sets[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
