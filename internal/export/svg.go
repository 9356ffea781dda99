// Package export renders stored runs as standalone SVG charts.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Palette is the stroke color of each series, reused cyclically.
var Palette = []string{"#4fc3f7", "#ffb74d", "#81c784", "#e57373", "#ba68c8", "#fff176"}

// HydrographToSVG draws the named variables of res at node against time.
// NaN values break the line.
func HydrographToSVG(res *dynamo.Result, names []string, node, width, height int) (string, error) {
	if node < 0 || node >= res.Data.Nodes() {
		return "", fmt.Errorf("node %d out of range, run has %d nodes", node, res.Data.Nodes())
	}
	if len(res.Times) < 2 {
		return "", fmt.Errorf("need at least two time points, got %d", len(res.Times))
	}

	series := make([][]float64, len(names))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, name := range names {
		s, ok := res.Series(name, node)
		if !ok {
			return "", fmt.Errorf("unknown variable %q", name)
		}
		for _, v := range s {
			if !math.IsNaN(v) {
				minY, maxY = math.Min(minY, v), math.Max(maxY, v)
			}
		}
		series[i] = s
	}
	if math.IsInf(minY, 1) {
		return "", fmt.Errorf("nothing to draw: every value is NaN")
	}

	minX, maxX := res.Times[0], res.Times[len(res.Times)-1]
	// Add padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i, s := range series {
		color := Palette[i%len(Palette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="`, color))
		pen := "M"
		for t, v := range s {
			if math.IsNaN(v) {
				pen = "M"
				continue
			}
			x := (res.Times[t] - minX) / rangeX * float64(width)
			y := float64(height) - (v-minY)/rangeY*float64(height)
			sb.WriteString(fmt.Sprintf("%s%.1f,%.1f ", pen, x, y))
			pen = "L"
		}
		sb.WriteString("\"/>\n")
		sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+14*i, color, escape(names[i])))
	}

	sb.WriteString("</svg>")
	return sb.String(), nil
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
