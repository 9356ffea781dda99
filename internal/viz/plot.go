package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

type PlotOptions struct {
	Width   int
	Height  int
	Caption string
	Theme   Theme
}

// Plot draws the named variables of res at node on one chart.
func Plot(res *dynamo.Result, names []string, node int, opts PlotOptions) (string, error) {
	if node < 0 || node >= res.Data.Nodes() {
		return "", fmt.Errorf("node %d out of range, run has %d nodes", node, res.Data.Nodes())
	}
	if opts.Width == 0 {
		opts.Width = 80
	}
	if opts.Height == 0 {
		opts.Height = 12
	}
	if opts.Theme.Name == "" {
		opts.Theme = ThemeRiver
	}

	series := make([][]float64, 0, len(names))
	for _, name := range names {
		s, ok := res.Series(name, node)
		if !ok {
			return "", fmt.Errorf("no variable %q in run", name)
		}
		if allNaN(s) {
			return "", fmt.Errorf("variable %q has no finite values", name)
		}
		series = append(series, s)
	}
	if len(series) == 0 {
		return "", fmt.Errorf("nothing to plot")
	}

	colors := make([]asciigraph.AnsiColor, len(series))
	for i := range colors {
		colors[i] = opts.Theme.Series[i%len(opts.Theme.Series)]
	}
	caption := opts.Caption
	if caption == "" {
		caption = fmt.Sprintf("%s (node %d)", strings.Join(names, ", "), node)
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
		asciigraph.SeriesLegends(names...),
		asciigraph.Precision(2),
	), nil
}

func allNaN(s []float64) bool {
	for _, v := range s {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
