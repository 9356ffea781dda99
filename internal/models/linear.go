package models

import (
	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/model"
	"github.com/san-kum/hydrosim/internal/route"
)

// NewLinearReservoir drains storage S at rate k*S.
func NewLinearReservoir(o Options) (*model.Model, error) {
	b, err := build("reservoir", o.Bucket,
		[]fluxDef{{"q", decl.Mul(decl.P("k"), decl.V("S"))}},
		[]fluxDef{{"S", decl.Sub(decl.V("precip"), decl.V("q"))}})
	if err != nil {
		return nil, err
	}
	return model.New("linear_reservoir", []dynamo.Unit{b}, b.Inputs(), nil)
}

// NewChannel is a linear-reservoir channel on a network: each node stores
// lateral plus upstream inflow and releases outflow = kr*channel.
func NewChannel(lateral string, o Options) (*route.Route, error) {
	if o.Topology == nil {
		return nil, dynamo.NewConfigError("channel", "", "channel routing needs a topology", dynamo.ErrTopology)
	}
	out, err := decl.Eq("outflow", decl.Mul(decl.P("kr"), decl.V("channel")))
	if err != nil {
		return nil, err
	}
	store, err := decl.NewExprState("channel",
		decl.Sub(decl.Add(decl.V(lateral), decl.V("inflow")), decl.V("outflow")))
	if err != nil {
		return nil, err
	}
	opts := []route.Option{route.WithBucketOptions(o.Bucket...)}
	if o.Weighted {
		opts = append(opts, route.WithAggregator(route.Weighted(o.Topology)))
	}
	return route.New("channel", []decl.Flux{out}, []decl.StateFlux{store}, o.Topology, "outflow", "inflow", opts...)
}

// NewLinearRoute routes an external runoff series through the network.
func NewLinearRoute(o Options) (*model.Model, error) {
	ch, err := NewChannel("runoff", o)
	if err != nil {
		return nil, err
	}
	return model.New("linear_route", []dynamo.Unit{ch}, []string{"runoff"}, nil)
}

// NewRoutedExpHydro runs ExpHydro on every node and routes its streamflow
// q down the network.
func NewRoutedExpHydro(o Options) (*model.Model, error) {
	snow, err := NewSnowBucket(o.Bucket...)
	if err != nil {
		return nil, err
	}
	soil, err := NewSoilBucket(o.Bucket...)
	if err != nil {
		return nil, err
	}
	ch, err := NewChannel("q", o)
	if err != nil {
		return nil, err
	}
	return model.New("exphydro_routed", []dynamo.Unit{snow, soil, ch}, []string{"prcp", "temp", "pet"}, nil)
}
