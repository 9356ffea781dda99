// Package expand maps per-class parameter and state values onto nodes.
package expand

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Classes returns the number of classes referenced by index, which is one
// more than its largest entry.
func Classes(index []int) int {
	k := 0
	for _, c := range index {
		if c+1 > k {
			k = c + 1
		}
	}
	return k
}

// ByClass expands one value per class to one value per node.
func ByClass(values []float64, index []int) ([]float64, error) {
	out := make([]float64, len(index))
	for n, c := range index {
		if c < 0 || c >= len(values) {
			return nil, fmt.Errorf("%w: node %d has class %d, only %d classes given", dynamo.ErrShape, n, c, len(values))
		}
		out[n] = values[c]
	}
	return out, nil
}

// Collapse picks one representative value per class: the value of the first
// node of that class. Classes with no node are an error.
func Collapse(nodeValues []float64, index []int, classes int) ([]float64, error) {
	if len(nodeValues) != len(index) {
		return nil, fmt.Errorf("%w: %d node values for %d nodes", dynamo.ErrShape, len(nodeValues), len(index))
	}
	out := make([]float64, classes)
	seen := make([]bool, classes)
	for n, c := range index {
		if c < 0 || c >= classes {
			return nil, fmt.Errorf("%w: node %d has class %d of %d", dynamo.ErrShape, n, c, classes)
		}
		if !seen[c] {
			out[c] = nodeValues[n]
			seen[c] = true
		}
	}
	for c, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: class %d has no node", dynamo.ErrShape, c)
		}
	}
	return out, nil
}

// Params expands every per-class value in ps to one value per node. Shared
// scalars stay shared, vectors with one value per node are taken as already
// expanded, and blobs are passed through untouched. When the class and node
// counts agree a vector is read per class. With a nil index ps is returned
// as is.
func Params(ps dynamo.ParamSet, index []int) (dynamo.ParamSet, error) {
	if index == nil {
		return ps, nil
	}
	out := dynamo.ParamSet{
		Values: make(map[string][]float64, len(ps.Values)),
		Blobs:  ps.Blobs,
	}
	k := Classes(index)
	for name, v := range ps.Values {
		if len(v) == 1 || (len(v) == len(index) && len(v) != k) {
			out.Values[name] = v
			continue
		}
		if len(v) != k {
			return dynamo.ParamSet{}, dynamo.NewConfigError("", name,
				fmt.Sprintf("%d values for %d classes and %d nodes in parameter", len(v), k, len(index)), dynamo.ErrShape)
		}
		nodes, err := ByClass(v, index)
		if err != nil {
			return dynamo.ParamSet{}, fmt.Errorf("parameter %q: %w", name, err)
		}
		out.Values[name] = nodes
	}
	return out, nil
}

// States expands per-class initial states the same way as Params.
func States(init map[string][]float64, index []int) (map[string][]float64, error) {
	if index == nil || init == nil {
		return init, nil
	}
	ps, err := Params(dynamo.ParamSet{Values: init}, index)
	if err != nil {
		return nil, err
	}
	return ps.Values, nil
}
