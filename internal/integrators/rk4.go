package integrators

import "github.com/san-kum/hydrosim/internal/dynamo"

// RK4 is the classical fourth-order Runge-Kutta scheme taking one step per
// declared interval.
type RK4 struct{}

type rk4Work struct {
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string { return string(MethodRK4) }

func newRK4Work(n int) *rk4Work {
	return &rk4Work{
		k1:      make([]float64, n),
		k2:      make([]float64, n),
		k3:      make([]float64, n),
		k4:      make([]float64, n),
		scratch: make([]float64, n),
	}
}

func (r *RK4) Advance(f dynamo.Derivative, x0 dynamo.State, times []float64) ([]float64, error) {
	n := len(x0)
	traj, err := newTrajectory(x0, times)
	if err != nil {
		return nil, err
	}
	w := newRK4Work(n)

	for i := 0; i+1 < len(times); i++ {
		x := traj[i*n : (i+1)*n]
		next := traj[(i+1)*n : (i+2)*n]
		t, dt := times[i], times[i+1]-times[i]
		if err := w.step(f, x, next, t, dt); err != nil {
			return traj, &dynamo.SolverError{Step: i, Time: t, Wrapped: err}
		}
	}
	return traj, nil
}

func (r *rk4Work) step(f dynamo.Derivative, x, next []float64, t, dt float64) error {
	n := len(x)
	if err := f(t, x, r.k1); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	if err := f(t+dt*0.5, r.scratch, r.k2); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	if err := f(t+dt*0.5, r.scratch, r.k3); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	if err := f(t+dt, r.scratch, r.k4); err != nil {
		return err
	}

	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		next[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return nil
}
