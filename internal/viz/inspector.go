package viz

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Inspector is a Bubble Tea model for browsing a finished run.
type Inspector struct {
	title  string
	res    *dynamo.Result
	cursor int
	node   int
	pinned []bool
	theme  int
	width  int
	height int
}

func NewInspector(title string, res *dynamo.Result) Inspector {
	return Inspector{
		title:  title,
		res:    res,
		pinned: make([]bool, len(res.Names)),
		width:  100,
		height: 30,
	}
}

// Run shows the inspector until the user quits or ctx ends.
func (m Inspector) Run(ctx context.Context) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Inspector) Init() tea.Cmd { return nil }

func (m Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.res.Names)-1 {
				m.cursor++
			}
		case "left", "h":
			if m.node > 0 {
				m.node--
			}
		case "right", "l":
			if m.node < m.res.Data.Nodes()-1 {
				m.node++
			}
		case " ", "space":
			m.pinned = slices.Clone(m.pinned)
			m.pinned[m.cursor] = !m.pinned[m.cursor]
		case "t":
			m.theme = (m.theme + 1) % len(Themes)
		}
	}
	return m, nil
}

// Plotted returns the variables drawn on the chart: the pinned ones and
// the one under the cursor.
func (m Inspector) Plotted() []string {
	var names []string
	for i, name := range m.res.Names {
		if m.pinned[i] || i == m.cursor {
			names = append(names, name)
		}
	}
	return names
}

func (m Inspector) View() string {
	if len(m.res.Names) == 0 {
		return "empty run\n"
	}
	theme := Themes[m.theme]
	st := newStyles(theme)

	var list strings.Builder
	for i, name := range m.res.Names {
		marker := "  "
		if m.pinned[i] {
			marker = st.pinned.Render("● ")
		}
		line := name
		if i == m.cursor {
			line = st.selected.Render("▸ " + name)
		} else {
			line = "  " + line
		}
		list.WriteString(marker + line + "\n")
	}

	chartWidth := max(m.width-30, 20)
	chartHeight := max(m.height-14, 5)
	chart, err := Plot(m.res, m.Plotted(), m.node, PlotOptions{Width: chartWidth, Height: chartHeight, Theme: theme})
	if err != nil {
		chart = st.muted.Render(err.Error())
	}

	series, _ := m.res.Series(m.res.Names[m.cursor], m.node)
	lo, hi, mean, last := summarize(series)
	stats := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		st.label.Render("min"), st.value.Render(format(lo)),
		st.label.Render("max"), st.value.Render(format(hi)),
		st.label.Render("mean"), st.value.Render(format(mean)),
		st.label.Render("final"), st.value.Render(format(last)))

	var b strings.Builder
	b.WriteString(st.title.Render(m.title))
	b.WriteString(st.muted.Render(fmt.Sprintf("  node %d/%d  %d steps  theme %s", m.node, m.res.Data.Nodes()-1, m.res.Data.Steps(), theme.Name)))
	b.WriteString("\n")
	if m.res.Failed() {
		b.WriteString(st.failure.Render("solver failure: "+m.res.Failure.Error()) + "\n")
	}
	b.WriteString(st.separator(min(m.width, 120)) + "\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, st.panel.Render(strings.TrimRight(list.String(), "\n")), " ", chart))
	b.WriteString("\n\n" + stats + "\n")
	b.WriteString(st.sparkline(series, min(chartWidth, 60)) + "\n")
	b.WriteString(st.muted.Render("↑/↓ variable  ←/→ node  space pin  t theme  q quit") + "\n")
	return b.String()
}

func summarize(s []float64) (lo, hi, mean, last float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	n := 0
	for _, v := range s {
		if math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		mean += v
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN(), math.NaN(), math.NaN()
	}
	return lo, hi, mean / float64(n), s[len(s)-1]
}

func format(v float64) string {
	if math.IsNaN(v) {
		return "—"
	}
	return fmt.Sprintf("%.4g", v)
}

// WithTheme starts the inspector on the named theme.
func (m Inspector) WithTheme(name string) Inspector {
	for i, t := range Themes {
		if t.Name == name {
			m.theme = i
		}
	}
	return m
}
