package route

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Edge routes the fraction Weight of node From's outflow into node To. A
// zero Weight declares a fully lossy link.
type Edge struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Weight float64 `json:"weight"`
}

// Topology is a static directed network over nodes 0..Nodes()-1. It is
// acyclic and immutable once built.
type Topology struct {
	nodes    int
	edges    []Edge
	upstream [][]int
	order    []int
}

// NewTopology validates edges and builds the upstream adjacency. Weights are
// taken as given. Out of range nodes, negative weights and cycles fail with
// ErrTopology.
func NewTopology(nodes int, edges []Edge) (*Topology, error) {
	t := &Topology{
		nodes:    nodes,
		upstream: make([][]int, nodes),
	}
	for i, e := range edges {
		if e.From < 0 || e.From >= nodes || e.To < 0 || e.To >= nodes {
			return nil, dynamo.NewConfigError("", fmt.Sprintf("%d->%d", e.From, e.To),
				fmt.Sprintf("edge %d leaves the %d-node network:", i, nodes), dynamo.ErrTopology)
		}
		if e.Weight < 0 {
			return nil, dynamo.NewConfigError("", fmt.Sprintf("%d->%d", e.From, e.To),
				fmt.Sprintf("edge %d has negative weight %g:", i, e.Weight), dynamo.ErrTopology)
		}
		t.edges = append(t.edges, e)
		t.upstream[e.To] = append(t.upstream[e.To], len(t.edges)-1)
	}
	if err := t.sort(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromDownstream builds a tree network where node i drains into down[i];
// a negative entry marks an outlet.
func FromDownstream(down []int) (*Topology, error) {
	var edges []Edge
	for i, d := range down {
		if d >= 0 {
			edges = append(edges, Edge{From: i, To: d, Weight: 1})
		}
	}
	return NewTopology(len(down), edges)
}

// sort orders nodes upstream first by depth-first search, rejecting cycles.
func (t *Topology) sort() error {
	visiting := make([]bool, t.nodes)
	visited := make([]bool, t.nodes)

	var visit func(n int) error
	visit = func(n int) error {
		visiting[n] = true
		for _, ei := range t.upstream[n] {
			up := t.edges[ei].From
			if visiting[up] {
				return dynamo.NewConfigError("", fmt.Sprint(up), "cycle in network involving node", dynamo.ErrTopology)
			}
			if !visited[up] {
				if err := visit(up); err != nil {
					return err
				}
			}
		}
		visiting[n] = false
		visited[n] = true
		t.order = append(t.order, n)
		return nil
	}

	for n := 0; n < t.nodes; n++ {
		if !visited[n] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Topology) Nodes() int { return t.nodes }

func (t *Topology) Edges() []Edge { return t.edges }

// Upstream returns the nodes draining directly into n.
func (t *Topology) Upstream(n int) []int {
	out := make([]int, 0, len(t.upstream[n]))
	for _, ei := range t.upstream[n] {
		out = append(out, t.edges[ei].From)
	}
	return out
}

// Order returns the nodes with every node after all of its upstream nodes.
func (t *Topology) Order() []int { return t.order }

// Headwaters returns the nodes with no upstream contributors.
func (t *Topology) Headwaters() []int {
	var out []int
	for n, up := range t.upstream {
		if len(up) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Aggregator maps the outflow of every node at one step to the inflow of
// every node. It must be pure.
type Aggregator func(outflow, inflow []float64)

// SumUpstream gives each node the plain sum of its upstream outflows.
func SumUpstream(t *Topology) Aggregator {
	return func(outflow, inflow []float64) {
		for n := range inflow {
			sum := 0.0
			for _, ei := range t.upstream[n] {
				sum += outflow[t.edges[ei].From]
			}
			inflow[n] = sum
		}
	}
}

// Weighted gives each node the edge-weighted sum of its upstream outflows,
// for split or lossy channels.
func Weighted(t *Topology) Aggregator {
	return func(outflow, inflow []float64) {
		for n := range inflow {
			sum := 0.0
			for _, ei := range t.upstream[n] {
				e := t.edges[ei]
				sum += e.Weight * outflow[e.From]
			}
			inflow[n] = sum
		}
	}
}
