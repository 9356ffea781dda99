package resolve

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
)

type item struct {
	name   string
	reads  []string
	writes []string
}

func itemIO(it item) ([]string, []string) { return it.reads, it.writes }

func names(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.name
	}
	return out
}

func TestOrderKeepsValidInsertionOrder(t *testing.T) {
	items := []item{
		{"a", []string{"x"}, []string{"a"}},
		{"b", []string{"y"}, []string{"b"}},
		{"c", []string{"a", "b"}, []string{"c"}},
	}
	plan, err := Order("u", items, itemIO)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(plan.Order))
	assert.Equal(t, []string{"x", "y"}, plan.External)
}

func TestOrderReordersDependencies(t *testing.T) {
	items := []item{
		{"q", []string{"S", "evap"}, []string{"q"}},
		{"evap", []string{"pet", "S"}, []string{"evap"}},
		{"melt", []string{"T"}, []string{"melt"}},
	}
	plan, err := Order("u", items, itemIO)
	require.NoError(t, err)
	assert.Equal(t, []string{"evap", "q", "melt"}, names(plan.Order))
}

func TestOrderMultiOutputOnce(t *testing.T) {
	items := []item{
		{"use", []string{"p", "q"}, []string{"r"}},
		{"split", []string{"x"}, []string{"p", "q"}},
	}
	plan, err := Order("u", items, itemIO)
	require.NoError(t, err)
	assert.Equal(t, []string{"split", "use"}, names(plan.Order))
}

func TestOrderDetectsCycle(t *testing.T) {
	tests := []struct {
		name  string
		items []item
		want  []string
	}{
		{
			name: "two",
			items: []item{
				{"a", []string{"b"}, []string{"a"}},
				{"b", []string{"a"}, []string{"b"}},
			},
			want: []string{"a", "b"},
		},
		{
			name: "self",
			items: []item{
				{"a", []string{"a"}, []string{"a"}},
			},
			want: []string{"a"},
		},
		{
			name: "behind a chain",
			items: []item{
				{"in", []string{"x"}, []string{"in"}},
				{"a", []string{"in", "c"}, []string{"a"}},
				{"b", []string{"a"}, []string{"b"}},
				{"c", []string{"b"}, []string{"c"}},
			},
			want: []string{"a", "b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Order("soil", tt.items, itemIO)
			require.Error(t, err)
			assert.True(t, errors.Is(err, dynamo.ErrCycle))

			var cfgErr *dynamo.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "soil", cfgErr.Unit)
			for _, n := range tt.want {
				assert.Contains(t, err.Error(), n)
			}
		})
	}
}

func TestOrderRejectsDuplicateProducer(t *testing.T) {
	items := []item{
		{"a", nil, []string{"x"}},
		{"b", nil, []string{"x"}},
	}
	_, err := Order("u", items, itemIO)
	assert.ErrorIs(t, err, dynamo.ErrDuplicate)
}

// randomDAG builds n items where item i may read outputs of items j < i,
// then shuffles them.
func randomDAG(rng *rand.Rand, n int) []item {
	items := make([]item, n)
	for i := 0; i < n; i++ {
		it := item{name: fmt.Sprintf("d%d", i), writes: []string{fmt.Sprintf("v%d", i)}}
		if rng.Intn(3) == 0 {
			it.writes = append(it.writes, fmt.Sprintf("w%d", i))
		}
		for j := 0; j < i; j++ {
			if rng.Float64() < 0.3 {
				it.reads = append(it.reads, items[j].writes[rng.Intn(len(items[j].writes))])
			}
		}
		if rng.Intn(2) == 0 {
			it.reads = append(it.reads, fmt.Sprintf("ext%d", rng.Intn(4)))
		}
		items[i] = it
	}
	rng.Shuffle(n, func(a, b int) { items[a], items[b] = items[b], items[a] })
	return items
}

func TestOrderRandomAcyclicGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		items := randomDAG(rng, 1+rng.Intn(25))
		plan, err := Order("u", items, itemIO)
		require.NoError(t, err, "trial %d", trial)
		require.Len(t, plan.Order, len(items))
		assert.True(t, Valid(plan.Order, itemIO), "trial %d: invalid order %v", trial, names(plan.Order))

		for _, ext := range plan.External {
			for _, it := range items {
				assert.NotContains(t, it.writes, ext)
			}
		}
	}
}

func TestOrderRandomCyclicGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 100; trial++ {
		items := randomDAG(rng, 2+rng.Intn(20))
		// close a loop: make some item read an output of an item that
		// (transitively) depends on it, or simply itself.
		a := rng.Intn(len(items))
		b := rng.Intn(len(items))
		items[a].reads = append(items[a].reads, items[b].writes[0])
		items[b].reads = append(items[b].reads, items[a].writes[0])

		_, err := Order("u", items, itemIO)
		assert.ErrorIs(t, err, dynamo.ErrCycle, "trial %d", trial)
	}
}

func TestFluxes(t *testing.T) {
	q, err := decl.Eq("q", decl.Mul(decl.P("k"), decl.V("evap")))
	require.NoError(t, err)
	evap, err := decl.Eq("evap", decl.Fn("clamp", decl.V("pet"), decl.N(0), decl.V("S")))
	require.NoError(t, err)

	plan, err := Fluxes("soil", []decl.Flux{q, evap})
	require.NoError(t, err)
	require.Len(t, plan.Order, 2)
	assert.Equal(t, "evap", plan.Order[0].Name)
	assert.Equal(t, "q", plan.Order[1].Name)
	assert.Equal(t, []string{"pet", "S"}, plan.External)
}
