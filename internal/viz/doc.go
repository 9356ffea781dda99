// Package viz renders runs in the terminal.
//
// [Plot] draws selected variables with asciigraph, [Describe] prints a
// model's wiring and inferred roles, and [Inspector] is a Bubble Tea
// browser over a finished run.
//
// # Inspector key bindings
//
//	up/down    - select variable
//	left/right - select node
//	space      - pin the variable for overlay
//	t          - cycle color themes
//	q          - quit
package viz
