package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for model construction and execution.
var (
	// ErrCycle indicates declarations or units that depend on each other.
	ErrCycle = errors.New("dynamo: dependency cycle")

	// ErrMissingParam indicates a referenced parameter absent from the ParamSet.
	ErrMissingParam = errors.New("dynamo: missing parameter")

	// ErrMissingInput indicates an input that no source provides.
	ErrMissingInput = errors.New("dynamo: missing input")

	// ErrMissingState indicates a state without a rate declaration or value.
	ErrMissingState = errors.New("dynamo: missing state")

	// ErrDuplicate indicates a name produced more than once.
	ErrDuplicate = errors.New("dynamo: duplicate declaration")

	// ErrArity indicates an output/expression count mismatch.
	ErrArity = errors.New("dynamo: output count mismatch")

	// ErrTopology indicates an unknown or cyclic network entry.
	ErrTopology = errors.New("dynamo: invalid topology")

	// ErrShape indicates mismatched array rank or size.
	ErrShape = errors.New("dynamo: array shape mismatch")

	// ErrSolver indicates a failed or non-converged integration.
	ErrSolver = errors.New("dynamo: solver failed")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrMaxSteps indicates the integrator exhausted its step budget.
	ErrMaxSteps = errors.New("dynamo: adaptive step budget exhausted")
)

// ConfigError reports a construction-time or missing-name failure. It always
// names the offending unit and variable.
type ConfigError struct {
	Unit    string
	Name    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Unit != "" && e.Name != "":
		return fmt.Sprintf("unit %q: %s %q", e.Unit, e.Message, e.Name)
	case e.Name != "":
		return fmt.Sprintf("%s %q", e.Message, e.Name)
	case e.Unit != "":
		return fmt.Sprintf("unit %q: %s", e.Unit, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError builds a ConfigError wrapping one of the sentinel errors.
func NewConfigError(unit, name, message string, err error) *ConfigError {
	return &ConfigError{Unit: unit, Name: name, Message: message, Err: err}
}

// ShapeError reports an array whose dimensions do not match what a run needs.
type ShapeError struct {
	Unit string
	What string
	Want []int
	Got  []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unit %q: %s shape %v, want %v", e.Unit, e.What, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error {
	return ErrShape
}

// SolverError wraps an integration failure with the step it happened at.
type SolverError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SolverError) Unwrap() []error {
	return []error{ErrSolver, e.Wrapped}
}
