// Package integrators implements the steppers that advance unit states over
// declared time points.
package integrators

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Method names a stepper strategy.
type Method string

const (
	MethodEuler       Method = "euler"
	MethodScaledEuler Method = "scaled_euler"
	MethodDiscrete    Method = "discrete"
	MethodRK4         Method = "rk4"
	MethodRK45        Method = "rk45"
)

// Methods lists every supported strategy.
func Methods() []Method {
	return []Method{MethodEuler, MethodScaledEuler, MethodDiscrete, MethodRK4, MethodRK45}
}

// New returns the stepper for m. cfg applies to adaptive methods only.
func New(m Method, cfg Config) (dynamo.Stepper, error) {
	switch m {
	case MethodEuler, "":
		return NewEuler(), nil
	case MethodScaledEuler:
		return NewScaledEuler(), nil
	case MethodDiscrete:
		return NewDiscrete(), nil
	case MethodRK4:
		return NewRK4(), nil
	case MethodRK45:
		return NewRK45WithConfig(cfg), nil
	}
	return nil, fmt.Errorf("unknown solver method %q", m)
}
