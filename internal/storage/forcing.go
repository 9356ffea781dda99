package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Forcing holds input series read from a CSV file. A column named "prcp"
// applies to every node; "prcp:2" applies to node 2 only and wins over the
// shared column. An optional leading "time" column gives the time points.
type Forcing struct {
	Times  []float64
	shared map[string][]float64
	node   map[string]map[int][]float64
	steps  int
}

func ReadForcing(in io.Reader) (*Forcing, error) {
	r := csv.NewReader(in)
	r.Comment = '#'
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read forcing: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("read forcing: need a header and at least one row")
	}

	f := &Forcing{
		shared: map[string][]float64{},
		node:   map[string]map[int][]float64{},
		steps:  len(records) - 1,
	}
	header := records[0]
	columns := make([][]float64, len(header))
	for c := range header {
		columns[c] = make([]float64, f.steps)
	}
	for i, record := range records[1:] {
		for c, field := range record {
			x, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("read forcing: row %d column %s: %w", i+2, header[c], err)
			}
			columns[c][i] = x
		}
	}

	for c, name := range header {
		name = strings.TrimSpace(name)
		if c == 0 && name == "time" {
			f.Times = columns[c]
			continue
		}
		base, idx, ok := strings.Cut(name, ":")
		if !ok {
			f.shared[name] = columns[c]
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("read forcing: bad node in column %q", name)
		}
		if f.node[base] == nil {
			f.node[base] = map[int][]float64{}
		}
		f.node[base][n] = columns[c]
	}
	return f, nil
}

func (f *Forcing) Steps() int { return f.steps }

// Names returns every variable with at least one column, sorted.
func (f *Forcing) Names() []string {
	var names []string
	for n := range f.shared {
		names = append(names, n)
	}
	for n := range f.node {
		if _, ok := f.shared[n]; !ok {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// Set adds or replaces a shared series.
func (f *Forcing) Set(name string, series []float64) error {
	if f.shared == nil {
		f.shared = map[string][]float64{}
		f.node = map[string]map[int][]float64{}
		f.steps = len(series)
	}
	if len(series) != f.steps {
		return fmt.Errorf("forcing %s: %d values, want %d", name, len(series), f.steps)
	}
	f.shared[name] = slices.Clone(series)
	return nil
}

// Array lays the named series out for a run over nodes nodes. Every name
// must be covered at every node.
func (f *Forcing) Array(names []string, nodes int) (*dynamo.Array, error) {
	arr := dynamo.NewArray(len(names), nodes, f.steps)
	for v, name := range names {
		for n := 0; n < nodes; n++ {
			series, ok := f.node[name][n]
			if !ok {
				series, ok = f.shared[name]
			}
			if !ok {
				return nil, dynamo.NewConfigError("", name, fmt.Sprintf("no forcing at node %d for input", n), dynamo.ErrMissingInput)
			}
			for t, x := range series {
				arr.Set(v, n, t, x)
			}
		}
	}
	return arr, nil
}
