package dynamo

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestStateFinite(t *testing.T) {
	tests := []struct {
		name   string
		state  State
		finite bool
	}{
		{"empty", State{}, true},
		{"storages", State{12.5, 0, 80}, true},
		{"NaN storage", State{1, math.NaN()}, false},
		{"overflowed storage", State{math.Inf(1), 1}, false},
		{"negative overflow", State{1, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Finite(); got != tt.finite {
				t.Errorf("Finite() = %v, want %v", got, tt.finite)
			}
		})
	}
}

func TestArrayLayout(t *testing.T) {
	a := NewArray(2, 3, 4)
	a.Set(1, 2, 3, 7)
	a.Set(0, 1, 0, 5)

	if a.At(1, 2, 3) != 7 {
		t.Errorf("At(1,2,3) = %v, want 7", a.At(1, 2, 3))
	}
	if got := a.Lane(1, 3); got[2] != 7 || len(got) != 3 {
		t.Errorf("Lane(1,3) = %v", got)
	}
	if got := a.Row(0); len(got) != 12 || got[1] != 5 {
		t.Errorf("Row(0) = %v", got)
	}
	if got := a.Series(0, 1); got[0] != 5 || len(got) != 4 {
		t.Errorf("Series(0,1) = %v", got)
	}
}

func TestFromRows_Ragged(t *testing.T) {
	_, err := FromRows([][]float64{{1, 2}, {3}})
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestConcatAndSelect(t *testing.T) {
	a, _ := FromRows([][]float64{{1, 2, 3}})
	b, _ := FromRows([][]float64{{4, 5, 6}, {7, 8, 9}})

	c, err := Concat(a, b)
	if err != nil {
		t.Fatalf("concat failed: %v", err)
	}
	if c.Vars() != 3 || c.At(2, 0, 1) != 8 {
		t.Errorf("unexpected concat result: vars=%d at=%v", c.Vars(), c.At(2, 0, 1))
	}

	s := c.Select([]int{2, 0})
	if s.At(0, 0, 0) != 7 || s.At(1, 0, 2) != 3 {
		t.Errorf("unexpected select result: %v %v", s.At(0, 0, 0), s.At(1, 0, 2))
	}

	short, _ := FromRows([][]float64{{1, 2}})
	if _, err := Concat(a, short); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestParamSetLookup(t *testing.T) {
	ps := Scalars(map[string]float64{"k": 0.5}).With("smax", 100, 200, 300)

	if v, err := ps.Lookup("soil", "k", 3); err != nil || len(v) != 1 {
		t.Errorf("Lookup(k) = %v, %v", v, err)
	}
	if v, err := ps.Lookup("soil", "smax", 3); err != nil || v[2] != 300 {
		t.Errorf("Lookup(smax) = %v, %v", v, err)
	}

	_, err := ps.Lookup("soil", "f", 3)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Name != "f" || !errors.Is(err, ErrMissingParam) {
		t.Errorf("expected missing parameter error naming f, got %v", err)
	}

	if _, err := ps.Lookup("soil", "smax", 2); !errors.Is(err, ErrShape) {
		t.Errorf("expected shape error, got %v", err)
	}
}

func TestInterpolator(t *testing.T) {
	in, _ := FromRows([][]float64{{0, 10, 20}})
	times := []float64{0, 1, 2}
	dst := make([]float64, 1)

	lin := NewInterpolator(in, times, Linear)
	cases := []struct {
		t    float64
		want float64
	}{
		{-1, 0}, {0, 0}, {0.5, 5}, {1, 10}, {1.25, 12.5}, {2, 20}, {3, 20},
	}
	for _, c := range cases {
		lin.Fill(0, c.t, dst)
		if math.Abs(dst[0]-c.want) > 1e-12 {
			t.Errorf("linear at %v = %v, want %v", c.t, dst[0], c.want)
		}
	}

	con := NewInterpolator(in, times, Constant)
	con.Fill(0, 1.75, dst)
	if dst[0] != 10 {
		t.Errorf("constant at 1.75 = %v, want 10", dst[0])
	}
}

func TestEnsembleOrder(t *testing.T) {
	run := func(ctx context.Context, ps ParamSet) (*Result, error) {
		a := NewArray(1, 1, 1)
		a.Set(0, 0, 0, ps.Values["k"][0])
		return &Result{Names: []string{"k"}, Data: a}, nil
	}

	sets := make([]ParamSet, 8)
	for i := range sets {
		sets[i] = Scalars(map[string]float64{"k": float64(i)})
	}

	results, err := NewEnsemble(run, 3).Run(context.Background(), sets)
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	for i, r := range results {
		if r.Data.At(0, 0, 0) != float64(i) {
			t.Errorf("result %d out of order: %v", i, r.Data.At(0, 0, 0))
		}
	}
}

func TestSolverError(t *testing.T) {
	err := &SolverError{Time: 1.5, Step: 150, Wrapped: ErrMaxSteps}
	expected := "step 150 (t=1.5000): dynamo: adaptive step budget exhausted"
	if err.Error() != expected {
		t.Errorf("SolverError.Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, ErrSolver) || !errors.Is(err, ErrMaxSteps) {
		t.Error("SolverError should match ErrSolver and its wrapped cause")
	}
}
