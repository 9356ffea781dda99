// Package dynamo provides core simulation primitives for compositional
// water-balance models.
//
// The package defines the shared vocabulary used by every other layer of the
// engine:
//
//   - [Array]: dense variables x nodes x time storage for inputs and results
//   - [ParamSet]: named parameter values (shared scalar or per-node) plus
//     opaque sub-model weight blobs
//   - [Stepper]: advances a state vector over declared time points given a
//     per-step [Derivative]
//   - [Unit]: anything runnable by name-matched composition (buckets,
//     routes, composite models)
//   - [Interpolator]: continuous view of an input matrix along the time axis
//   - [Ensemble]: independent runs over many parameter sets
//
// # Example
//
//	soil, _ := bucket.New("soil", fluxes, states)
//	res, err := soil.Run(ctx, forcing, params, dynamo.RunConfig{
//		Stepper: integrators.NewEuler(),
//	})
//
// # Thread Safety
//
// Units and compiled programs are immutable after construction and may be
// shared across goroutines. Every run owns its own arrays; callers must not
// share an [Array] between concurrent runs.
package dynamo
