package optim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/models"
)

func TestParseRange(t *testing.T) {
	name, values, err := ParseRange("k=0.1:0.3:5")
	require.NoError(t, err)
	assert.Equal(t, "k", name)
	assert.InDeltaSlice(t, []float64{0.1, 0.15, 0.2, 0.25, 0.3}, values, 1e-12)

	_, values, err = ParseRange("smax=100, 200,300")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 200, 300}, values)

	_, values, err = ParseRange("k=0.5:1:1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, values)

	for _, bad := range []string{"k", "=1,2", "k=a:b:3", "k=1:2:0", "k=x"} {
		_, _, err := ParseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewGridSearchRejects(t *testing.T) {
	_, err := NewGridSearch([]string{"k"}, nil)
	assert.Error(t, err)
	_, err = NewGridSearch([]string{"k"}, [][]float64{{}})
	assert.Error(t, err)
}

func TestSearchRecoversParameter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "linear_reservoir"
	cfg.Solver.Method = "discrete"
	cfg.Steps = 12
	cfg.InitStates = map[string][]float64{"S": {50}}
	cfg.Series = map[string][]float64{"precip": {5, 0, 0, 8, 0, 0, 0, 2, 0, 0, 0, 0}}

	exp, err := experiment.New(context.Background(), cfg, models.NewRegistry())
	require.NoError(t, err)
	truth, err := exp.RunWith(context.Background(), exp.Config().ParamSet().With("k", 0.2))
	require.NoError(t, err)
	obs, _ := truth.Series("q", 0)

	_, values, err := ParseRange("k=0.1:0.3:5")
	require.NoError(t, err)
	g, err := NewGridSearch([]string{"k"}, [][]float64{values})
	require.NoError(t, err)

	for _, metric := range []string{"nse", "rmse"} {
		best, err := g.Search(context.Background(), exp, Target{Variable: "q", Observed: obs, Metric: metric})
		require.NoError(t, err)
		assert.Equal(t, 5, best.Evaluated)
		assert.InDelta(t, 0.2, best.Params["k"], 1e-12, metric)
	}

	_, err = g.Search(context.Background(), exp, Target{Variable: "q", Observed: obs, Metric: "r2"})
	assert.Error(t, err)
	_, err = g.Search(context.Background(), exp, Target{Variable: "nope", Observed: obs, Metric: "nse"})
	assert.Error(t, err)
}

func TestBetter(t *testing.T) {
	assert.True(t, better("nse", 0.9, 0.5))
	assert.True(t, better("rmse", 0.1, 0.5))
	assert.True(t, better("pbias", -1, 3))
	assert.True(t, better("kge", 0.1, math.NaN()))
	assert.False(t, better("kge", math.NaN(), 0.1))
}
