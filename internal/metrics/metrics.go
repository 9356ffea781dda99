// Package metrics scores simulated series against observations.
//
// Metrics are streaming: Observe one simulated/observed pair at a time and
// read Value at any point. Pairs where either side is NaN are skipped, so
// gaps in observed records need no special handling.
package metrics

import (
	"fmt"
	"math"
	"slices"
)

type Metric interface {
	Name() string
	Observe(sim, obs float64)
	Value() float64
	Reset()
}

// moments accumulates the sums shared by every goodness-of-fit metric.
type moments struct {
	n                  int
	sumS, sumO         float64
	sumSS, sumOO, sumSO float64
	sse                float64
}

func (m *moments) observe(s, o float64) {
	if math.IsNaN(s) || math.IsNaN(o) {
		return
	}
	m.n++
	m.sumS += s
	m.sumO += o
	m.sumSS += s * s
	m.sumOO += o * o
	m.sumSO += s * o
	m.sse += (s - o) * (s - o)
}

func (m *moments) meanS() float64 { return m.sumS / float64(m.n) }
func (m *moments) meanO() float64 { return m.sumO / float64(m.n) }

func (m *moments) varS() float64 {
	mu := m.meanS()
	return math.Max(m.sumSS/float64(m.n)-mu*mu, 0)
}

func (m *moments) varO() float64 {
	mu := m.meanO()
	return math.Max(m.sumOO/float64(m.n)-mu*mu, 0)
}

func (m *moments) cov() float64 {
	return m.sumSO/float64(m.n) - m.meanS()*m.meanO()
}

// NSE is the Nash-Sutcliffe efficiency: 1 - SSE / variance of obs. It is
// 1 for a perfect fit and 0 when the model is as good as the observed mean.
type NSE struct{ m moments }

func NewNSE() *NSE { return &NSE{} }

func (e *NSE) Name() string             { return "nse" }
func (e *NSE) Observe(sim, obs float64) { e.m.observe(sim, obs) }
func (e *NSE) Reset()                   { e.m = moments{} }

func (e *NSE) Value() float64 {
	if e.m.n == 0 {
		return math.NaN()
	}
	ss := e.m.varO() * float64(e.m.n)
	if ss == 0 {
		return math.NaN()
	}
	return 1 - e.m.sse/ss
}

// KGE is the Kling-Gupta efficiency combining correlation, variability
// ratio and bias ratio.
type KGE struct{ m moments }

func NewKGE() *KGE { return &KGE{} }

func (k *KGE) Name() string             { return "kge" }
func (k *KGE) Observe(sim, obs float64) { k.m.observe(sim, obs) }
func (k *KGE) Reset()                   { k.m = moments{} }

func (k *KGE) Value() float64 {
	if k.m.n == 0 || k.m.meanO() == 0 {
		return math.NaN()
	}
	sdS, sdO := math.Sqrt(k.m.varS()), math.Sqrt(k.m.varO())
	if sdS == 0 || sdO == 0 {
		return math.NaN()
	}
	r := k.m.cov() / (sdS * sdO)
	alpha := sdS / sdO
	beta := k.m.meanS() / k.m.meanO()
	return 1 - math.Sqrt((r-1)*(r-1)+(alpha-1)*(alpha-1)+(beta-1)*(beta-1))
}

type RMSE struct{ m moments }

func NewRMSE() *RMSE { return &RMSE{} }

func (e *RMSE) Name() string             { return "rmse" }
func (e *RMSE) Observe(sim, obs float64) { e.m.observe(sim, obs) }
func (e *RMSE) Reset()                   { e.m = moments{} }

func (e *RMSE) Value() float64 {
	if e.m.n == 0 {
		return math.NaN()
	}
	return math.Sqrt(e.m.sse / float64(e.m.n))
}

// PBias is the percent bias of the simulated volume; positive means the
// model overestimates.
type PBias struct{ m moments }

func NewPBias() *PBias { return &PBias{} }

func (b *PBias) Name() string             { return "pbias" }
func (b *PBias) Observe(sim, obs float64) { b.m.observe(sim, obs) }
func (b *PBias) Reset()                   { b.m = moments{} }

func (b *PBias) Value() float64 {
	if b.m.n == 0 || b.m.sumO == 0 {
		return math.NaN()
	}
	return 100 * (b.m.sumS - b.m.sumO) / b.m.sumO
}

var constructors = map[string]func() Metric{
	"nse":   func() Metric { return NewNSE() },
	"kge":   func() Metric { return NewKGE() },
	"rmse":  func() Metric { return NewRMSE() },
	"pbias": func() Metric { return NewPBias() },
}

// New returns a fresh metric by name.
func New(name string) (Metric, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return c(), nil
}

// Names lists the available metrics, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Score feeds paired series through m and returns its value. The series
// must have equal length.
func Score(m Metric, sim, obs []float64) (float64, error) {
	if len(sim) != len(obs) {
		return 0, fmt.Errorf("%s: %d simulated values, %d observed", m.Name(), len(sim), len(obs))
	}
	m.Reset()
	for i := range sim {
		m.Observe(sim[i], obs[i])
	}
	return m.Value(), nil
}

// ScoreAll evaluates every available metric on one pair of series.
func ScoreAll(sim, obs []float64) (map[string]float64, error) {
	out := make(map[string]float64, len(constructors))
	for _, name := range Names() {
		m, _ := New(name)
		v, err := Score(m, sim, obs)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
