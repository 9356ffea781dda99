package viz

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

// Theme defines the color scheme for styled output and plots.
type Theme struct {
	Name    string
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	// Series colors plotted lines in order.
	Series []asciigraph.AnsiColor
}

var (
	ThemeRiver = Theme{
		Name:    "river",
		Primary: lipgloss.Color("#00a8cc"),
		Accent:  lipgloss.Color("#ffd700"),
		Text:    lipgloss.Color("#e0f0ff"),
		Muted:   lipgloss.Color("#4488aa"),
		Success: lipgloss.Color("#00ff88"),
		Warning: lipgloss.Color("#ffcc00"),
		Error:   lipgloss.Color("#ff4444"),
		Series:  []asciigraph.AnsiColor{asciigraph.DeepSkyBlue, asciigraph.Gold, asciigraph.LimeGreen, asciigraph.Orchid},
	}

	ThemeGlacier = Theme{
		Name:    "glacier",
		Primary: lipgloss.Color("#aee6ff"),
		Accent:  lipgloss.Color("#ffffff"),
		Text:    lipgloss.Color("#f0fbff"),
		Muted:   lipgloss.Color("#7a9aa8"),
		Success: lipgloss.Color("#88ffcc"),
		Warning: lipgloss.Color("#ffe08a"),
		Error:   lipgloss.Color("#ff7b7b"),
		Series:  []asciigraph.AnsiColor{asciigraph.LightCyan, asciigraph.White, asciigraph.LightSkyBlue, asciigraph.Aquamarine},
	}

	ThemeMinimal = Theme{
		Name:    "minimal",
		Primary: lipgloss.Color("#ffffff"),
		Accent:  lipgloss.Color("#0088ff"),
		Text:    lipgloss.Color("#ffffff"),
		Muted:   lipgloss.Color("#888888"),
		Success: lipgloss.Color("#00ff00"),
		Warning: lipgloss.Color("#ffaa00"),
		Error:   lipgloss.Color("#ff0000"),
		Series:  []asciigraph.AnsiColor{asciigraph.Default, asciigraph.Blue, asciigraph.Red, asciigraph.Green},
	}

	Themes = []Theme{ThemeRiver, ThemeGlacier, ThemeMinimal}
)

// GetTheme returns a theme by name, falling back to river.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeRiver
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
