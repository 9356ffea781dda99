package dynamo

import (
	"fmt"
	"maps"
	"slices"
)

// ParamSet maps parameter names to values. A value of length one is shared
// by every node; otherwise it must carry one value per node (or one per
// class when a RunConfig.ClassIndex is supplied). Blobs hold opaque
// sub-model weights and are passed through verbatim, never per node.
type ParamSet struct {
	Values map[string][]float64
	Blobs  map[string][]float64
}

// Scalars builds a ParamSet of shared scalar values.
func Scalars(kv map[string]float64) ParamSet {
	ps := ParamSet{Values: make(map[string][]float64, len(kv))}
	for k, v := range kv {
		ps.Values[k] = []float64{v}
	}
	return ps
}

// With returns a copy of ps with name set to v.
func (ps ParamSet) With(name string, v ...float64) ParamSet {
	out := ps.Clone()
	out.Values[name] = slices.Clone(v)
	return out
}

// WithBlob returns a copy of ps with the named blob set.
func (ps ParamSet) WithBlob(name string, v []float64) ParamSet {
	out := ps.Clone()
	out.Blobs[name] = slices.Clone(v)
	return out
}

func (ps ParamSet) Clone() ParamSet {
	out := ParamSet{
		Values: make(map[string][]float64, len(ps.Values)),
		Blobs:  make(map[string][]float64, len(ps.Blobs)),
	}
	for k, v := range ps.Values {
		out.Values[k] = slices.Clone(v)
	}
	for k, v := range ps.Blobs {
		out.Blobs[k] = slices.Clone(v)
	}
	return out
}

// Names returns the sorted value names.
func (ps ParamSet) Names() []string {
	return slices.Sorted(maps.Keys(ps.Values))
}

// Lookup returns the values of name for a run over nodes nodes. The result
// has length one or nodes.
func (ps ParamSet) Lookup(unit, name string, nodes int) ([]float64, error) {
	v, ok := ps.Values[name]
	if !ok {
		return nil, NewConfigError(unit, name, "missing parameter", ErrMissingParam)
	}
	if len(v) != 1 && len(v) != nodes {
		return nil, &ShapeError{Unit: unit, What: fmt.Sprintf("parameter %q", name), Want: []int{nodes}, Got: []int{len(v)}}
	}
	return v, nil
}

// Blob returns the named opaque weight vector.
func (ps ParamSet) Blob(unit, name string) ([]float64, error) {
	v, ok := ps.Blobs[name]
	if !ok {
		return nil, NewConfigError(unit, name, "missing parameter blob", ErrMissingParam)
	}
	return v, nil
}
