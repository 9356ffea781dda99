package decl

import (
	"slices"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Role classifies a symbol within one unit.
type Role int

const (
	RoleInput Role = iota
	RoleOutput
	RoleState
	RoleParam
	RoleBlob
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleState:
		return "state"
	case RoleParam:
		return "parameter"
	case RoleBlob:
		return "submodel-parameter"
	default:
		return "unknown"
	}
}

// Signature is the set of names a unit reads and writes, derived once from
// its declarations.
type Signature struct {
	Inputs  []string
	Outputs []string
	States  []string
	Params  []string
	Blobs   []string
}

// Infer derives a unit's signature purely from usage: states are the names
// with a StateFlux, outputs are names assigned by a Flux, parameters are
// param references, and every other name read is an external input. Names
// keep declaration order.
func Infer(unit string, fluxes []Flux, states []StateFlux) (Signature, error) {
	var sig Signature

	for _, s := range states {
		if slices.Contains(sig.States, s.State) {
			return Signature{}, dynamo.NewConfigError(unit, s.State, "state declared twice", dynamo.ErrDuplicate)
		}
		sig.States = append(sig.States, s.State)
	}
	for _, f := range fluxes {
		for _, o := range f.Outputs {
			if slices.Contains(sig.States, o) {
				return Signature{}, dynamo.NewConfigError(unit, o, "name is both a state and an output", dynamo.ErrDuplicate)
			}
			if slices.Contains(sig.Outputs, o) {
				return Signature{}, dynamo.NewConfigError(unit, o, "output produced twice", dynamo.ErrDuplicate)
			}
			sig.Outputs = append(sig.Outputs, o)
		}
	}

	internal := func(n string) bool {
		return slices.Contains(sig.Outputs, n) || slices.Contains(sig.States, n)
	}
	for _, f := range fluxes {
		for _, in := range f.Inputs {
			if !internal(in) {
				sig.Inputs = appendNew(sig.Inputs, in)
			}
		}
		sig.Params = appendNew(sig.Params, f.Params...)
		if f.Blob != "" {
			sig.Blobs = appendNew(sig.Blobs, f.Blob)
		}
	}
	for _, s := range states {
		for _, in := range s.Inputs {
			if !internal(in) {
				sig.Inputs = appendNew(sig.Inputs, in)
			}
		}
		sig.Params = appendNew(sig.Params, s.Params...)
	}

	for _, p := range sig.Params {
		if slices.Contains(sig.Inputs, p) || internal(p) {
			return Signature{}, dynamo.NewConfigError(unit, p, "name is both a parameter and a variable", dynamo.ErrDuplicate)
		}
	}
	return sig, nil
}

// Roles returns the role of every symbol in sig.
func (sig Signature) Roles() map[string]Role {
	roles := make(map[string]Role)
	for _, n := range sig.Inputs {
		roles[n] = RoleInput
	}
	for _, n := range sig.Outputs {
		roles[n] = RoleOutput
	}
	for _, n := range sig.States {
		roles[n] = RoleState
	}
	for _, n := range sig.Params {
		roles[n] = RoleParam
	}
	for _, n := range sig.Blobs {
		roles[n] = RoleBlob
	}
	return roles
}
