package decl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Expr is a node of the closed expression language declarations are written
// in. Implementations are immutable.
type Expr interface {
	String() string
	walk(fn func(Expr))
}

// Num is a numeric literal.
type Num float64

// Ref names a variable. Param marks references to parameters (param.x in
// model files); everything else is resolved as an input, state or output.
type Ref struct {
	Name  string
	Param bool
}

// Unary applies "-" or "!" to X.
type Unary struct {
	Op string
	X  Expr
}

// Binary applies an arithmetic, comparison or logical operator.
type Binary struct {
	Op   string
	L, R Expr
}

// Call applies a built-in function from Funcs.
type Call struct {
	Fn   string
	Args []Expr
}

// Cond is the ternary If ? Then : Else; If is true when non-zero.
type Cond struct {
	If, Then, Else Expr
}

func N(v float64) Num                   { return Num(v) }
func V(name string) Ref                 { return Ref{Name: name} }
func P(name string) Ref                 { return Ref{Name: name, Param: true} }
func Neg(x Expr) Unary                  { return Unary{Op: "-", X: x} }
func Add(l, r Expr) Binary              { return Binary{Op: "+", L: l, R: r} }
func Sub(l, r Expr) Binary              { return Binary{Op: "-", L: l, R: r} }
func Mul(l, r Expr) Binary              { return Binary{Op: "*", L: l, R: r} }
func Div(l, r Expr) Binary              { return Binary{Op: "/", L: l, R: r} }
func Fn(name string, args ...Expr) Call { return Call{Fn: name, Args: args} }
func If(c, a, b Expr) Cond              { return Cond{If: c, Then: a, Else: b} }

func (n Num) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (r Ref) String() string {
	if r.Param {
		return "param." + r.Name
	}
	return r.Name
}
func (u Unary) String() string  { return u.Op + u.X.String() }
func (b Binary) String() string { return "(" + b.L.String() + " " + b.Op + " " + b.R.String() + ")" }
func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Fn + "(" + strings.Join(args, ", ") + ")"
}
func (c Cond) String() string {
	return "(" + c.If.String() + " ? " + c.Then.String() + " : " + c.Else.String() + ")"
}

func (n Num) walk(fn func(Expr)) { fn(n) }
func (r Ref) walk(fn func(Expr)) { fn(r) }
func (u Unary) walk(fn func(Expr)) {
	fn(u)
	u.X.walk(fn)
}
func (b Binary) walk(fn func(Expr)) {
	fn(b)
	b.L.walk(fn)
	b.R.walk(fn)
}
func (c Call) walk(fn func(Expr)) {
	fn(c)
	for _, a := range c.Args {
		a.walk(fn)
	}
}
func (c Cond) walk(fn func(Expr)) {
	fn(c)
	c.If.walk(fn)
	c.Then.walk(fn)
	c.Else.walk(fn)
}

// Refs returns the distinct variable and parameter names e reads, in first
// appearance order.
func Refs(e Expr) (vars, params []string) {
	seenV := map[string]bool{}
	seenP := map[string]bool{}
	e.walk(func(x Expr) {
		r, ok := x.(Ref)
		if !ok {
			return
		}
		if r.Param {
			if !seenP[r.Name] {
				seenP[r.Name] = true
				params = append(params, r.Name)
			}
			return
		}
		if !seenV[r.Name] {
			seenV[r.Name] = true
			vars = append(vars, r.Name)
		}
	})
	return vars, params
}

// Func is a built-in elementwise function. Exactly one of F1, F2, F3 is set
// and matches Arity; variadic functions (Arity < 0) fold F2 left to right.
type Func struct {
	Arity int
	F1    func(float64) float64
	F2    func(float64, float64) float64
	F3    func(float64, float64, float64) float64
}

// Funcs is the closed set of functions available to expressions.
var Funcs = map[string]Func{
	"abs":   {Arity: 1, F1: math.Abs},
	"exp":   {Arity: 1, F1: math.Exp},
	"log":   {Arity: 1, F1: math.Log},
	"sqrt":  {Arity: 1, F1: math.Sqrt},
	"tanh":  {Arity: 1, F1: math.Tanh},
	"sin":   {Arity: 1, F1: math.Sin},
	"cos":   {Arity: 1, F1: math.Cos},
	"floor": {Arity: 1, F1: math.Floor},
	"step":  {Arity: 1, F1: heaviside},
	"sign":  {Arity: 1, F1: sign},
	"pow":   {Arity: 2, F2: math.Pow},
	"min":   {Arity: -1, F2: math.Min},
	"max":   {Arity: -1, F2: math.Max},
	"clamp": {Arity: 3, F3: clamp},
}

func heaviside(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

// Check validates operators and function arities in e.
func Check(e Expr) error {
	var err error
	e.walk(func(x Expr) {
		if err != nil {
			return
		}
		switch n := x.(type) {
		case Unary:
			if n.Op != "-" && n.Op != "!" {
				err = fmt.Errorf("unknown unary operator %q", n.Op)
			}
		case Binary:
			if _, ok := binaryOps[n.Op]; !ok {
				err = fmt.Errorf("unknown operator %q", n.Op)
			}
		case Call:
			f, ok := Funcs[n.Fn]
			switch {
			case !ok:
				err = fmt.Errorf("unknown function %q", n.Fn)
			case f.Arity < 0 && len(n.Args) < 2:
				err = fmt.Errorf("function %q needs at least 2 arguments, got %d", n.Fn, len(n.Args))
			case f.Arity >= 0 && len(n.Args) != f.Arity:
				err = fmt.Errorf("function %q takes %d arguments, got %d", n.Fn, f.Arity, len(n.Args))
			}
		}
	})
	return err
}

// BinaryOp returns the elementwise implementation of op.
func BinaryOp(op string) (func(a, b float64) float64, bool) {
	f, ok := binaryOps[op]
	return f, ok
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var binaryOps = map[string]func(a, b float64) float64{
	"+":  func(a, b float64) float64 { return a + b },
	"-":  func(a, b float64) float64 { return a - b },
	"*":  func(a, b float64) float64 { return a * b },
	"/":  func(a, b float64) float64 { return a / b },
	"%":  math.Mod,
	"^":  math.Pow,
	"<":  func(a, b float64) float64 { return truth(a < b) },
	"<=": func(a, b float64) float64 { return truth(a <= b) },
	">":  func(a, b float64) float64 { return truth(a > b) },
	">=": func(a, b float64) float64 { return truth(a >= b) },
	"==": func(a, b float64) float64 { return truth(a == b) },
	"!=": func(a, b float64) float64 { return truth(a != b) },
	"&&": func(a, b float64) float64 { return truth(a != 0 && b != 0) },
	"||": func(a, b float64) float64 { return truth(a != 0 || b != 0) },
}
