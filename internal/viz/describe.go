package viz

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/model"
	"github.com/san-kum/hydrosim/internal/route"
)

type ordered interface {
	Order() []string
	Signature() decl.Signature
}

type networked interface {
	Topology() *route.Topology
	Outflow() string
	Inflow() string
}

// Describe prints a model's wiring: its interface, then every unit with
// its inferred roles and resolved evaluation order.
func Describe(w io.Writer, m *model.Model, theme Theme) error {
	st := newStyles(theme)
	var b strings.Builder

	b.WriteString(st.header.Render("model "+m.Name()) + "\n")
	row := func(label string, names []string) {
		if len(names) == 0 {
			return
		}
		fmt.Fprintf(&b, "  %s %s\n", st.label.Render(fmt.Sprintf("%-9s", label)), strings.Join(names, ", "))
	}
	row("inputs", m.Inputs())
	row("outputs", m.Outputs())
	row("params", m.Params())
	row("states", m.UnitStates())

	for _, u := range m.Units() {
		b.WriteString("\n")
		describeUnit(&b, st, u, row)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func describeUnit(b *strings.Builder, st styles, u dynamo.Unit, row func(string, []string)) {
	kind := "unit"
	if _, ok := u.(networked); ok {
		kind = "route"
	} else if _, ok := u.(ordered); ok {
		kind = "bucket"
	}
	fmt.Fprintf(b, "%s %s\n", st.title.Render(u.Name()), st.muted.Render("("+kind+")"))
	row("inputs", u.Inputs())
	row("states", u.States())
	row("outputs", u.Outputs())
	row("params", u.Params())

	if o, ok := u.(ordered); ok {
		row("blobs", o.Signature().Blobs)
		row("order", []string{strings.Join(o.Order(), " → ")})
	}
	if n, ok := u.(networked); ok {
		topo := n.Topology()
		row("network", []string{fmt.Sprintf("%d nodes, %d edges, %s → %s", topo.Nodes(), len(topo.Edges()), n.Outflow(), n.Inflow())})
		heads := make([]string, 0)
		for _, h := range topo.Headwaters() {
			heads = append(heads, fmt.Sprint(h))
		}
		row("heads", heads)
	}
}
