package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

func testResult(t *testing.T) *dynamo.Result {
	t.Helper()
	data, err := dynamo.FromNodeRows([][][]float64{
		{{1, 0.9, 0.8}, {2, 1.8, 1.6}},
		{{0.1, 0.09, 0.08}, {0.2, 0.18, 0.16}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &dynamo.Result{Names: []string{"S", "q"}, Times: []float64{0, 0.5, 1}, Data: data}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs := NewFileStore(t.TempDir())
	if err := fs.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	bs, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { bs.Close() })
	return map[string]Store{"file": fs, "badger": bs}
}

func TestStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			res := testResult(t)
			runID, err := st.Save(ctx, RunMetadata{
				Model:   "linear_reservoir",
				Seed:    42,
				Method:  "rk4",
				Metrics: map[string]float64{"nse": 0.8, "kge": math.NaN()},
			}, res)
			if err != nil {
				t.Fatalf("save failed: %v", err)
			}
			if runID == "" {
				t.Error("expected non-empty run id")
			}

			meta, err := st.Load(ctx, runID)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if meta.Model != "linear_reservoir" {
				t.Errorf("expected model 'linear_reservoir', got '%s'", meta.Model)
			}
			if meta.Seed != 42 {
				t.Errorf("expected seed 42, got %d", meta.Seed)
			}
			if meta.Nodes != 2 || meta.Steps != 3 {
				t.Errorf("expected 2 nodes x 3 steps, got %d x %d", meta.Nodes, meta.Steps)
			}
			if meta.Metrics["nse"] != 0.8 {
				t.Errorf("expected nse 0.8, got %f", meta.Metrics["nse"])
			}
			if _, ok := meta.Metrics["kge"]; ok {
				t.Error("expected the NaN metric to be dropped")
			}

			loaded, err := st.LoadResult(ctx, runID)
			if err != nil {
				t.Fatalf("load result failed: %v", err)
			}
			if got := loaded.Data.At(1, 1, 2); got != 0.16 {
				t.Errorf("expected q[node 1, t 2] = 0.16, got %f", got)
			}
			if loaded.Times[1] != 0.5 {
				t.Errorf("expected time 0.5, got %f", loaded.Times[1])
			}

			if _, err := st.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreKeepsFailedRuns(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			res := testResult(t)
			res.Data.Fill(math.NaN())
			res.Failure = errors.New("solver diverged")

			runID, err := st.Save(ctx, RunMetadata{Model: "m"}, res)
			if err != nil {
				t.Fatalf("save failed: %v", err)
			}
			meta, _ := st.Load(ctx, runID)
			if meta.Failure != "solver diverged" {
				t.Errorf("expected the failure to be recorded, got %q", meta.Failure)
			}
			loaded, err := st.LoadResult(ctx, runID)
			if err != nil {
				t.Fatalf("load result failed: %v", err)
			}
			if !loaded.Data.HasNaN() {
				t.Error("expected NaN values to survive")
			}
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			runs, err := st.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(runs) != 0 {
				t.Errorf("expected 0 runs, got %d", len(runs))
			}

			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for i, model := range []string{"b", "a"} {
				_, err := st.Save(ctx, RunMetadata{Model: model, Timestamp: base.Add(time.Duration(i) * time.Hour)}, testResult(t))
				if err != nil {
					t.Fatalf("save failed: %v", err)
				}
			}
			runs, err = st.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(runs) != 2 {
				t.Fatalf("expected 2 runs, got %d", len(runs))
			}
			if runs[0].Model != "b" || runs[1].Model != "a" {
				t.Errorf("expected runs oldest first, got %s then %s", runs[0].Model, runs[1].Model)
			}
		})
	}
}

func TestReadCSVRejectsOtherHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testResult(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCSV(bytes.NewReader(buf.Bytes()), []string{"S", "evap"}, 2); err == nil {
		t.Error("expected a header mismatch error")
	}
	if _, err := ReadCSV(bytes.NewReader(buf.Bytes()), []string{"S", "q"}, 4); err == nil {
		t.Error("expected a node count mismatch error")
	}
}

func TestReadForcing(t *testing.T) {
	src := `time,prcp,temp,prcp:1
# comment
0, 1, -2, 5
1, 0,  3, 6
`
	f, err := ReadForcing(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if f.Steps() != 2 {
		t.Fatalf("expected 2 steps, got %d", f.Steps())
	}
	if got := f.Names(); len(got) != 2 || got[0] != "prcp" || got[1] != "temp" {
		t.Errorf("unexpected names %v", got)
	}
	if f.Times[1] != 1 {
		t.Errorf("expected time column, got %v", f.Times)
	}

	arr, err := f.Array([]string{"temp", "prcp"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := arr.Series(1, 0); got[0] != 1 || got[1] != 0 {
		t.Errorf("node 0 prcp should use the shared column, got %v", got)
	}
	if got := arr.Series(1, 1); got[0] != 5 || got[1] != 6 {
		t.Errorf("node 1 prcp should use its own column, got %v", got)
	}

	if _, err := f.Array([]string{"pet"}, 1); !errors.Is(err, dynamo.ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
	if err := f.Set("pet", []float64{1}); err == nil {
		t.Error("expected a length mismatch error")
	}
}

func TestReadForcingErrors(t *testing.T) {
	for _, src := range []string{
		"prcp\n",
		"prcp\nwet\n",
		"prcp:x\n1\n",
	} {
		if _, err := ReadForcing(strings.NewReader(src)); err == nil {
			t.Errorf("expected an error for %q", src)
		}
	}
}

func TestExportJSONWritesNull(t *testing.T) {
	res := testResult(t)
	res.Data.Set(0, 0, 2, math.NaN())

	var buf bytes.Buffer
	if err := ExportJSON(&buf, RunMetadata{Model: "m", Metrics: map[string]float64{"nse": math.NaN()}}, res); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Nodes   int                     `json:"nodes"`
		Series  map[string][][]*float64 `json:"series"`
		Metrics map[string]*float64     `json:"metrics"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Nodes != 2 {
		t.Errorf("expected 2 nodes, got %d", decoded.Nodes)
	}
	if decoded.Series["S"][0][2] != nil {
		t.Error("expected NaN to export as null")
	}
	if *decoded.Series["q"][1][0] != 0.2 {
		t.Errorf("expected q[node 1, t 0] = 0.2, got %f", *decoded.Series["q"][1][0])
	}
	if decoded.Metrics["nse"] != nil {
		t.Error("expected NaN metric to export as null")
	}
}
