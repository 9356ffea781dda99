package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

func oscillator(t float64, x, dx []float64) error {
	dx[0] = x[1]
	dx[1] = -x[0]
	return nil
}

func energy(x []float64) float64 {
	return 0.5 * (x[0]*x[0] + x[1]*x[1])
}

func linspace(t0, t1 float64, n int) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = t0 + (t1-t0)*float64(i)/float64(n-1)
	}
	return ts
}

func last(traj []float64, n int) []float64 {
	return traj[len(traj)-n:]
}

func TestTrajectoryShape(t *testing.T) {
	times := []float64{0, 0.5, 1, 2}
	x0 := dynamo.State{1, 0, 3}
	for _, m := range Methods() {
		s, err := New(m, Config{})
		if err != nil {
			t.Fatalf("New(%s): %v", m, err)
		}
		traj, err := s.Advance(func(t float64, x, dx []float64) error {
			for i := range dx {
				dx[i] = -x[i]
			}
			return nil
		}, x0, times)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if len(traj) != len(times)*len(x0) {
			t.Errorf("%s: len = %d, want %d", m, len(traj), len(times)*len(x0))
		}
		for i, v := range x0 {
			if traj[i] != v {
				t.Errorf("%s: first row[%d] = %v, want %v", m, i, traj[i], v)
			}
		}
		if s.Name() != string(m) {
			t.Errorf("Name() = %q, want %q", s.Name(), m)
		}
	}
}

func TestEulerAccumulation(t *testing.T) {
	in := []float64{10, 0, 3, 7}
	out := []float64{2, 2, 1, 0.5}
	times := []float64{0, 1, 2, 3, 4}

	traj, err := NewEuler().Advance(func(t float64, x, dx []float64) error {
		i := int(t)
		dx[0] = in[i] - out[i]
		return nil
	}, dynamo.State{5}, times)
	if err != nil {
		t.Fatal(err)
	}

	want := 5.0
	for i := range in {
		want += in[i] - out[i]
	}
	if got := last(traj, 1)[0]; got != want {
		t.Errorf("S_final = %v, want %v", got, want)
	}
}

func TestEulerIgnoresSpacing(t *testing.T) {
	f := func(t float64, x, dx []float64) error {
		dx[0] = 1
		return nil
	}
	times := []float64{0, 0.5, 2}

	e, _ := NewEuler().Advance(f, dynamo.State{0}, times)
	s, _ := NewScaledEuler().Advance(f, dynamo.State{0}, times)

	if e[1] != 1 || e[2] != 2 {
		t.Errorf("euler = %v, want [0 1 2]", e)
	}
	if s[1] != 0.5 || s[2] != 2 {
		t.Errorf("scaled euler = %v, want [0 0.5 2]", s)
	}
}

func TestEulerAccumulationOnWideSteps(t *testing.T) {
	in := []float64{10, 0, 0}
	out := []float64{2, 2, 2}
	times := []float64{0, 24, 48}

	traj, err := NewEuler().Advance(func(t float64, x, dx []float64) error {
		i := int(t / 24)
		dx[0] = in[i] - out[i]
		return nil
	}, dynamo.State{5}, times)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{5, 13, 11}
	for i := range want {
		if traj[i] != want[i] {
			t.Errorf("S[%d] = %v, want %v", i, traj[i], want[i])
		}
	}
}

func TestEulerDiscreteEqual(t *testing.T) {
	f := func(t float64, x, dx []float64) error {
		dx[0] = math.Sin(t) - 0.1*x[0]
		return nil
	}
	times := []float64{0, 0.5, 3, 3.25, 10}
	e, _ := NewEuler().Advance(f, dynamo.State{1}, times)
	d, _ := NewDiscrete().Advance(f, dynamo.State{1}, times)
	for i := range e {
		if e[i] != d[i] {
			t.Fatalf("row %d: euler %v != discrete %v", i, e[i], d[i])
		}
	}
}

func TestScaledEulerEqualOnUnitSpacing(t *testing.T) {
	f := func(t float64, x, dx []float64) error {
		dx[0] = math.Sin(t) - 0.1*x[0]
		return nil
	}
	times := linspace(0, 20, 21)
	e, _ := NewEuler().Advance(f, dynamo.State{1}, times)
	s, _ := NewScaledEuler().Advance(f, dynamo.State{1}, times)
	for i := range e {
		if e[i] != s[i] {
			t.Fatalf("row %d: euler %v != scaled %v", i, e[i], s[i])
		}
	}
}

func TestRK4Accuracy(t *testing.T) {
	times := linspace(0, 1, 101)
	traj, err := NewRK4().Advance(oscillator, dynamo.State{1, 0}, times)
	if err != nil {
		t.Fatal(err)
	}
	x := last(traj, 2)

	if math.Abs(x[0]-math.Cos(1)) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], math.Cos(1))
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], -math.Sin(1))
	}
}

func TestRK45EnergyConservation(t *testing.T) {
	times := linspace(0, 100, 11)
	traj, err := NewRK45().Advance(oscillator, dynamo.State{1, 0}, times)
	if err != nil {
		t.Fatal(err)
	}
	drift := math.Abs(energy(last(traj, 2))-0.5) / 0.5
	if drift > 1e-3 {
		t.Errorf("RK45 energy drift too high: %e", drift)
	}
}

func TestRK45LandsOnTimePoints(t *testing.T) {
	times := []float64{0, 0.3, 1.7, 2, 5}
	traj, stats, err := NewRK45().AdvanceStats(func(t float64, x, dx []float64) error {
		dx[0] = -x[0]
		return nil
	}, dynamo.State{1}, times)
	if err != nil {
		t.Fatal(err)
	}
	for i, ts := range times {
		if want := math.Exp(-ts); math.Abs(traj[i]-want) > 1e-5 {
			t.Errorf("x(%v) = %v, want %v", ts, traj[i], want)
		}
	}
	if stats.Steps == 0 || stats.Evaluations == 0 {
		t.Errorf("stats not recorded: %+v", stats)
	}
}

func TestRK45StepBudget(t *testing.T) {
	s := NewRK45WithConfig(Config{MaxSteps: 3, RelTol: 1e-12, AbsTol: 1e-12})
	_, err := s.Advance(oscillator, dynamo.State{1, 0}, []float64{0, 50})

	if !errors.Is(err, dynamo.ErrMaxSteps) {
		t.Fatalf("err = %v, want ErrMaxSteps", err)
	}
	if !errors.Is(err, dynamo.ErrSolver) {
		t.Errorf("err = %v, want ErrSolver", err)
	}
}

func TestRK45StepTooSmall(t *testing.T) {
	s := NewRK45WithConfig(Config{MinStep: 1e-3})
	_, err := s.Advance(func(t float64, x, dx []float64) error {
		dx[0] = math.NaN()
		return nil
	}, dynamo.State{1}, []float64{0, 1})

	if !errors.Is(err, dynamo.ErrStepTooSmall) {
		t.Fatalf("err = %v, want ErrStepTooSmall", err)
	}
}

func TestRK45RejectsOverflowingTrial(t *testing.T) {
	s := NewRK45WithConfig(Config{MinStep: 1e-3})
	_, stats, err := s.AdvanceStats(func(t float64, x, dx []float64) error {
		dx[0] = math.Inf(1)
		return nil
	}, dynamo.State{1}, []float64{0, 1})

	if !errors.Is(err, dynamo.ErrStepTooSmall) {
		t.Fatalf("err = %v, want ErrStepTooSmall", err)
	}
	if stats.Steps != 0 || stats.Rejected == 0 {
		t.Errorf("stats = %+v, want only rejected trials", stats)
	}
}

func TestDerivativeErrorIsSolverError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewEuler().Advance(func(t float64, x, dx []float64) error {
		if t >= 2 {
			return boom
		}
		return nil
	}, dynamo.State{0}, []float64{0, 1, 2, 3})

	var se *dynamo.SolverError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SolverError", err)
	}
	if se.Step != 2 || !errors.Is(err, boom) {
		t.Errorf("SolverError = %+v", se)
	}
}

func TestRejectsNonIncreasingTimes(t *testing.T) {
	_, err := NewEuler().Advance(oscillator, dynamo.State{1, 0}, []float64{0, 1, 1})
	if !errors.Is(err, dynamo.ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

func TestUnknownMethod(t *testing.T) {
	if _, err := New("verlet", Config{}); err == nil {
		t.Error("expected error for unknown method")
	}
}
