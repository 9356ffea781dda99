package integrators

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Euler is the explicit fixed-step recurrence x[i+1] = x[i] + f(t[i], x[i]).
// f returns the whole increment for the step, so the spacing of the time
// points does not enter the update and storage closes exactly against the
// summed fluxes.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return string(MethodEuler) }

func (e *Euler) Advance(f dynamo.Derivative, x0 dynamo.State, times []float64) ([]float64, error) {
	return fixedStep(f, x0, times, false)
}

// ScaledEuler treats f as a rate and steps x[i+1] = x[i] + dt*f(t[i], x[i])
// with dt = t[i+1]-t[i]. On unit-spaced time points it equals Euler.
type ScaledEuler struct{}

func NewScaledEuler() *ScaledEuler {
	return &ScaledEuler{}
}

func (e *ScaledEuler) Name() string { return string(MethodScaledEuler) }

func (e *ScaledEuler) Advance(f dynamo.Derivative, x0 dynamo.State, times []float64) ([]float64, error) {
	return fixedStep(f, x0, times, true)
}

// Discrete applies the map x[i+1] = x[i] + f(t[i], x[i]) once per declared
// time point. It shares the recurrence with Euler and is kept as a named
// strategy for configurations that declare a discrete-time model.
type Discrete struct{}

func NewDiscrete() *Discrete {
	return &Discrete{}
}

func (d *Discrete) Name() string { return string(MethodDiscrete) }

func (d *Discrete) Advance(f dynamo.Derivative, x0 dynamo.State, times []float64) ([]float64, error) {
	return fixedStep(f, x0, times, false)
}

func fixedStep(f dynamo.Derivative, x0 dynamo.State, times []float64, scale bool) ([]float64, error) {
	n := len(x0)
	traj, err := newTrajectory(x0, times)
	if err != nil {
		return nil, err
	}
	dx := make([]float64, n)
	for i := 0; i+1 < len(times); i++ {
		x := traj[i*n : (i+1)*n]
		next := traj[(i+1)*n : (i+2)*n]
		if err := f(times[i], x, dx); err != nil {
			return traj, &dynamo.SolverError{Step: i, Time: times[i], Wrapped: err}
		}
		dt := 1.0
		if scale {
			dt = times[i+1] - times[i]
		}
		for j := range next {
			next[j] = x[j] + dt*dx[j]
		}
	}
	return traj, nil
}

// newTrajectory allocates a [time][state] buffer whose first row is x0.
func newTrajectory(x0 dynamo.State, times []float64) ([]float64, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no time points", dynamo.ErrShape)
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return nil, fmt.Errorf("%w: time points must increase, t[%d]=%g after %g",
				dynamo.ErrShape, i, times[i], times[i-1])
		}
	}
	traj := make([]float64, len(times)*len(x0))
	copy(traj, x0)
	return traj, nil
}
