// Package resolve orders declarations and units so that every name they read
// is either external or produced by an earlier element.
package resolve

import (
	"fmt"
	"slices"
	"strings"

	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Plan is a resolved evaluation order.
type Plan[T any] struct {
	Order []T
	// External lists the names read but never produced, in first-use order.
	External []string
}

// Order sorts items with Kahn's algorithm over the "produces before reads"
// relation. io reports the names an item reads and writes. Among items that
// are ready at the same time the earlier one in items wins, so an already
// valid order is returned unchanged. A cycle is reported as a ConfigError
// wrapping dynamo.ErrCycle that names the variables involved.
func Order[T any](unit string, items []T, io func(T) (reads, writes []string)) (Plan[T], error) {
	n := len(items)
	producer := make(map[string]int)
	reads := make([][]string, n)

	for i, it := range items {
		r, w := io(it)
		reads[i] = r
		for _, name := range w {
			if j, dup := producer[name]; dup && j != i {
				return Plan[T]{}, dynamo.NewConfigError(unit, name, "variable produced twice", dynamo.ErrDuplicate)
			}
			producer[name] = i
		}
	}

	var plan Plan[T]
	inDegree := make([]int, n)
	dependents := make([][]int, n)
	for i := range items {
		var deps []int
		for _, name := range reads[i] {
			j, ok := producer[name]
			if !ok {
				if !slices.Contains(plan.External, name) {
					plan.External = append(plan.External, name)
				}
				continue
			}
			if j == i {
				return Plan[T]{}, cycleError(unit, []string{name})
			}
			if !slices.Contains(deps, j) {
				deps = append(deps, j)
				dependents[j] = append(dependents[j], i)
			}
		}
		inDegree[i] = len(deps)
	}

	// ready is kept sorted by index so ties follow insertion order.
	var ready []int
	for i := range items {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	done := make([]bool, n)
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		done[i] = true
		plan.Order = append(plan.Order, items[i])

		for _, d := range dependents[i] {
			inDegree[d]--
			if inDegree[d] == 0 {
				pos, _ := slices.BinarySearch(ready, d)
				ready = slices.Insert(ready, pos, d)
			}
		}
	}

	if len(plan.Order) != n {
		var stuck []string
		for i := range items {
			if done[i] {
				continue
			}
			for _, name := range reads[i] {
				if j, ok := producer[name]; ok && !done[j] && !slices.Contains(stuck, name) {
					stuck = append(stuck, name)
				}
			}
		}
		return Plan[T]{}, cycleError(unit, stuck)
	}
	return plan, nil
}

func cycleError(unit string, names []string) error {
	return dynamo.NewConfigError(unit, "",
		fmt.Sprintf("dependency cycle through %s", strings.Join(names, ", ")), dynamo.ErrCycle)
}

// Fluxes orders a unit's flux declarations. Multi-output fluxes appear once.
func Fluxes(unit string, fluxes []decl.Flux) (Plan[decl.Flux], error) {
	return Order(unit, fluxes, func(f decl.Flux) ([]string, []string) {
		return f.Inputs, f.Outputs
	})
}

// UnitIO reports the names a unit reads and writes. A unit's states count
// as written by it.
func UnitIO(u dynamo.Unit) (reads, writes []string) {
	return u.Inputs(), append(slices.Clone(u.States()), u.Outputs()...)
}

// Units orders units so every unit runs after the producers of its inputs.
func Units(units []dynamo.Unit) (Plan[dynamo.Unit], error) {
	return Order("", units, UnitIO)
}

// Valid reports whether order already satisfies the dependency relation:
// every name read is external or written by an earlier item.
func Valid[T any](items []T, io func(T) (reads, writes []string)) bool {
	written := make(map[string]bool)
	later := make(map[string]bool)
	for _, it := range items {
		_, w := io(it)
		for _, name := range w {
			later[name] = true
		}
	}
	for _, it := range items {
		r, w := io(it)
		for _, name := range r {
			if later[name] && !written[name] {
				return false
			}
		}
		for _, name := range w {
			written[name] = true
		}
	}
	return true
}
