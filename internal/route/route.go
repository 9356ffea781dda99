// Package route implements network units: buckets whose state update also
// receives, at the same step, the aggregated outflow of upstream nodes.
package route

import (
	"context"
	"fmt"
	"slices"

	"github.com/san-kum/hydrosim/internal/bucket"
	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Route is a bucket coupled across nodes by a static topology. Each step it
// evaluates the local fluxes of every node, aggregates the outflow variable
// into the inflow variable and only then evaluates the state rates.
type Route struct {
	*bucket.Bucket
	topo    *Topology
	outflow string
	inflow  string
}

type config struct {
	aggregate  Aggregator
	bucketOpts []bucket.Option
}

type Option func(*config)

// WithAggregator replaces the default SumUpstream aggregation.
func WithAggregator(a Aggregator) Option {
	return func(c *config) { c.aggregate = a }
}

// WithBucketOptions forwards options to the underlying bucket.
func WithBucketOptions(opts ...bucket.Option) Option {
	return func(c *config) { c.bucketOpts = append(c.bucketOpts, opts...) }
}

// New builds a route whose declarations read inflow and produce outflow.
// Outflow must not depend on inflow: that would be an algebraic loop within
// one step and is rejected as a cycle.
func New(name string, fluxes []decl.Flux, states []decl.StateFlux, topo *Topology, outflow, inflow string, opts ...Option) (*Route, error) {
	if topo == nil {
		return nil, dynamo.NewConfigError(name, "", "route needs a topology", dynamo.ErrTopology)
	}
	cfg := config{aggregate: SumUpstream(topo)}
	for _, opt := range opts {
		opt(&cfg)
	}

	agg, err := aggregationFlux(topo, cfg.aggregate, outflow, inflow)
	if err != nil {
		return nil, err
	}
	all := append(append([]decl.Flux{}, fluxes...), agg)

	bopts := append([]bucket.Option{bucket.WithKind("route")}, cfg.bucketOpts...)
	b, err := bucket.New(name, all, states, bopts...)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(b.Outputs(), outflow) && !slices.Contains(b.States(), outflow) {
		return nil, dynamo.NewConfigError(name, outflow, "outflow is not produced by the route:", dynamo.ErrMissingInput)
	}
	return &Route{Bucket: b, topo: topo, outflow: outflow, inflow: inflow}, nil
}

func aggregationFlux(topo *Topology, aggregate Aggregator, outflow, inflow string) (decl.Flux, error) {
	nodes := topo.Nodes()
	f, err := decl.NewFlux("aggregate "+inflow, []string{outflow}, nil, []string{inflow},
		func(args, out [][]float64) error {
			q, in := args[0], out[0]
			if len(in) != nodes {
				return fmt.Errorf("%w: aggregation over %d values, network has %d nodes", dynamo.ErrShape, len(in), nodes)
			}
			if len(q) == 1 {
				full := make([]float64, nodes)
				for i := range full {
					full[i] = q[0]
				}
				q = full
			}
			aggregate(q, in)
			return nil
		})
	if err != nil {
		return decl.Flux{}, err
	}
	f.Coupled = true
	return f, nil
}

func (r *Route) Topology() *Topology { return r.topo }

// Outflow and Inflow name the coupled variables.
func (r *Route) Outflow() string { return r.outflow }
func (r *Route) Inflow() string  { return r.inflow }

// Run checks that in covers every network node and runs the bucket.
func (r *Route) Run(ctx context.Context, in *dynamo.Array, ps dynamo.ParamSet, cfg dynamo.RunConfig) (*dynamo.Result, error) {
	if in.Nodes() != r.topo.Nodes() {
		return nil, &dynamo.ShapeError{Unit: r.Name(), What: "network input", Want: []int{in.Vars(), r.topo.Nodes(), in.Steps()}, Got: []int{in.Vars(), in.Nodes(), in.Steps()}}
	}
	return r.Bucket.Run(ctx, in, ps, cfg)
}
