package integrators

import (
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// Config tunes the adaptive integrator. Zero fields take the defaults of
// DefaultConfig.
type Config struct {
	// InitialStep is the first trial step; 0 uses the first interval.
	InitialStep float64
	// MinStep aborts integration when the accepted step would fall below it.
	MinStep float64
	// MaxStep caps the step size; 0 means no cap beyond the interval.
	MaxStep  float64
	AbsTol   float64
	RelTol   float64
	MaxSteps int
}

func DefaultConfig() Config {
	return Config{
		MinStep:  1e-10,
		AbsTol:   1e-8,
		RelTol:   1e-6,
		MaxSteps: 100000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinStep <= 0 {
		c.MinStep = d.MinStep
	}
	if c.AbsTol <= 0 {
		c.AbsTol = d.AbsTol
	}
	if c.RelTol <= 0 {
		c.RelTol = d.RelTol
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	return c
}

// Statistics describes the work done by the last Advance call.
type Statistics struct {
	Steps       int
	Rejected    int
	Evaluations int
	LastStep    float64
}

// RK45 is the adaptive Dormand-Prince 5(4) integrator. It steps with
// error control between declared time points and always lands exactly on
// them, so the trajectory is sampled at the caller's time points.
type RK45 struct {
	cfg      Config
	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return NewRK45WithConfig(DefaultConfig())
}

func NewRK45WithConfig(cfg Config) *RK45 {
	return &RK45{
		cfg:      cfg.withDefaults(),
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (r *RK45) Name() string { return string(MethodRK45) }

func (r *RK45) Config() Config { return r.cfg }

func (r *RK45) Advance(f dynamo.Derivative, x0 dynamo.State, times []float64) ([]float64, error) {
	traj, _, err := r.AdvanceStats(f, x0, times)
	return traj, err
}

type dopriWork struct {
	k1, k2, k3, k4, k5, k6, k7 []float64
	tmp, xNew                  []float64
}

func newDopriWork(n int) *dopriWork {
	mk := func() []float64 { return make([]float64, n) }
	return &dopriWork{
		k1: mk(), k2: mk(), k3: mk(), k4: mk(), k5: mk(), k6: mk(), k7: mk(),
		tmp: mk(), xNew: mk(),
	}
}

// AdvanceStats is Advance plus integration statistics. Exceeding MaxSteps
// or shrinking below MinStep fails with a SolverError wrapping ErrMaxSteps
// or ErrStepTooSmall.
func (r *RK45) AdvanceStats(f dynamo.Derivative, x0 dynamo.State, times []float64) ([]float64, Statistics, error) {
	var stats Statistics
	n := len(x0)
	traj, err := newTrajectory(x0, times)
	if err != nil {
		return nil, stats, err
	}
	if len(times) < 2 {
		return traj, stats, nil
	}
	w := newDopriWork(n)
	x := make([]float64, n)
	copy(x, x0)

	dt := r.cfg.InitialStep
	if dt <= 0 {
		dt = times[1] - times[0]
	}

	t := times[0]
	for i := 1; i < len(times); i++ {
		tEnd := times[i]
		for t < tEnd {
			if stats.Steps+stats.Rejected >= r.cfg.MaxSteps {
				return traj, stats, &dynamo.SolverError{Step: i - 1, Time: t, Wrapped: dynamo.ErrMaxSteps}
			}
			if r.cfg.MaxStep > 0 && dt > r.cfg.MaxStep {
				dt = r.cfg.MaxStep
			}
			h := math.Min(dt, tEnd-t)
			// land exactly on tEnd instead of leaving a sliver
			if tEnd-t-h < r.cfg.MinStep {
				h = tEnd - t
			}

			errRatio, err := r.trial(f, w, x, t, h)
			stats.Evaluations += 7
			if err != nil {
				return traj, stats, &dynamo.SolverError{Step: i - 1, Time: t, Wrapped: err}
			}
			dtNew := r.nextStep(h, errRatio)

			if errRatio <= 1 {
				t += h
				if tEnd-t < r.cfg.MinStep {
					t = tEnd
				}
				copy(x, w.xNew)
				stats.Steps++
				stats.LastStep = h
				if h == dt {
					dt = dtNew
				} else {
					// a landing step says little about the next interval
					dt = math.Max(dt, dtNew)
				}
				continue
			}

			stats.Rejected++
			if dtNew < r.cfg.MinStep {
				return traj, stats, &dynamo.SolverError{Step: i - 1, Time: t, Wrapped: dynamo.ErrStepTooSmall}
			}
			dt = dtNew
		}
		copy(traj[i*n:(i+1)*n], x)
	}
	return traj, stats, nil
}

// trial takes one Dormand-Prince step of size dt from (t, x) into w.xNew and
// returns the scaled error estimate; values <= 1 are acceptable.
func (r *RK45) trial(f dynamo.Derivative, w *dopriWork, x []float64, t, dt float64) (float64, error) {
	n := len(x)

	if err := f(t, x, w.k1); err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		w.tmp[i] = x[i] + dt*b21*w.k1[i]
	}
	if err := f(t+a2*dt, w.tmp, w.k2); err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		w.tmp[i] = x[i] + dt*(b31*w.k1[i]+b32*w.k2[i])
	}
	if err := f(t+a3*dt, w.tmp, w.k3); err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		w.tmp[i] = x[i] + dt*(b41*w.k1[i]+b42*w.k2[i]+b43*w.k3[i])
	}
	if err := f(t+a4*dt, w.tmp, w.k4); err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		w.tmp[i] = x[i] + dt*(b51*w.k1[i]+b52*w.k2[i]+b53*w.k3[i]+b54*w.k4[i])
	}
	if err := f(t+a5*dt, w.tmp, w.k5); err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		w.tmp[i] = x[i] + dt*(b61*w.k1[i]+b62*w.k2[i]+b63*w.k3[i]+b64*w.k4[i]+b65*w.k5[i])
	}
	if err := f(t+dt, w.tmp, w.k6); err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		w.xNew[i] = x[i] + dt*(c1*w.k1[i]+c3*w.k3[i]+c4*w.k4[i]+c5*w.k5[i]+c6*w.k6[i])
	}
	if err := f(t+dt, w.xNew, w.k7); err != nil {
		return 0, err
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*w.k1[i] + dc3*w.k3[i] + dc4*w.k4[i] + dc5*w.k5[i] + dc6*w.k6[i] + dc7*w.k7[i])
		scale := r.cfg.AbsTol + r.cfg.RelTol*math.Max(math.Abs(x[i]), math.Abs(w.xNew[i]))
		errMax = math.Max(errMax, math.Abs(errEst)/scale)
	}
	// a non-finite trial is rejected so the step shrinks
	if !dynamo.State(w.xNew).Finite() || math.IsNaN(errMax) {
		return math.Inf(1), nil
	}
	return errMax, nil
}

func (r *RK45) nextStep(dt, errRatio float64) float64 {
	switch {
	case math.IsInf(errRatio, 1):
		return dt * r.minScale
	case errRatio > 1:
		return dt * math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		return dt * math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		return dt * r.maxScale
	}
}
