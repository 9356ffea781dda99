package loader

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/san-kum/hydrosim/internal/decl"
)

// ParamRoot is the traversal root marking parameter references, as in
// param.k.
const ParamRoot = "param"

var binaryOps = map[*hclsyntax.Operation]string{
	hclsyntax.OpAdd:                "+",
	hclsyntax.OpSubtract:           "-",
	hclsyntax.OpMultiply:           "*",
	hclsyntax.OpDivide:             "/",
	hclsyntax.OpModulo:             "%",
	hclsyntax.OpLessThan:           "<",
	hclsyntax.OpLessThanOrEqual:    "<=",
	hclsyntax.OpGreaterThan:        ">",
	hclsyntax.OpGreaterThanOrEqual: ">=",
	hclsyntax.OpEqual:              "==",
	hclsyntax.OpNotEqual:           "!=",
	hclsyntax.OpLogicalAnd:         "&&",
	hclsyntax.OpLogicalOr:          "||",
}

// ParseExpr parses one expression in model-file syntax.
func ParseExpr(src string) (decl.Expr, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "expr", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse expression %q: %s", src, diags.Error())
	}
	return Translate(expr)
}

// Translate converts an HCL native-syntax expression into the declaration
// expression language.
func Translate(expr hcl.Expression) (decl.Expr, error) {
	se, ok := expr.(hclsyntax.Expression)
	if !ok {
		return nil, fmt.Errorf("%s: not a native syntax expression", expr.Range())
	}

	switch e := se.(type) {
	case *hclsyntax.LiteralValueExpr:
		return literal(e.Val, e.Range())

	case *hclsyntax.ScopeTraversalExpr:
		return reference(e.Traversal)

	case *hclsyntax.ParenthesesExpr:
		return Translate(e.Expression)

	case *hclsyntax.UnaryOpExpr:
		x, err := Translate(e.Val)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case hclsyntax.OpNegate:
			return decl.Neg(x), nil
		case hclsyntax.OpLogicalNot:
			return decl.Unary{Op: "!", X: x}, nil
		}
		return nil, fmt.Errorf("%s: unsupported unary operator", e.Range())

	case *hclsyntax.BinaryOpExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			return nil, fmt.Errorf("%s: unsupported operator", e.Range())
		}
		l, err := Translate(e.LHS)
		if err != nil {
			return nil, err
		}
		r, err := Translate(e.RHS)
		if err != nil {
			return nil, err
		}
		return decl.Binary{Op: op, L: l, R: r}, nil

	case *hclsyntax.ConditionalExpr:
		c, err := Translate(e.Condition)
		if err != nil {
			return nil, err
		}
		a, err := Translate(e.TrueResult)
		if err != nil {
			return nil, err
		}
		b, err := Translate(e.FalseResult)
		if err != nil {
			return nil, err
		}
		return decl.If(c, a, b), nil

	case *hclsyntax.FunctionCallExpr:
		if _, ok := decl.Funcs[e.Name]; !ok {
			return nil, fmt.Errorf("%s: unknown function %q", e.NameRange, e.Name)
		}
		args := make([]decl.Expr, len(e.Args))
		for i, a := range e.Args {
			x, err := Translate(a)
			if err != nil {
				return nil, err
			}
			args[i] = x
		}
		return decl.Fn(e.Name, args...), nil
	}
	return nil, fmt.Errorf("%s: unsupported expression", se.Range())
}

func literal(v cty.Value, rng hcl.Range) (decl.Expr, error) {
	switch {
	case v.IsNull() || !v.IsKnown():
		return nil, fmt.Errorf("%s: null literal", rng)
	case v.Type() == cty.Bool:
		if v.True() {
			return decl.N(1), nil
		}
		return decl.N(0), nil
	}
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return nil, fmt.Errorf("%s: literal must be a number: %w", rng, err)
	}
	return decl.N(f), nil
}

func reference(t hcl.Traversal) (decl.Expr, error) {
	root := t.RootName()
	if root != ParamRoot {
		if len(t) != 1 {
			return nil, fmt.Errorf("%s: variables are plain names, got attribute access on %q", t.SourceRange(), root)
		}
		return decl.V(root), nil
	}
	if len(t) != 2 {
		return nil, fmt.Errorf("%s: parameter references look like param.name", t.SourceRange())
	}
	attr, ok := t[1].(hcl.TraverseAttr)
	if !ok {
		return nil, fmt.Errorf("%s: parameter references look like param.name", t.SourceRange())
	}
	return decl.P(attr.Name), nil
}

// present reports whether an optional expression attribute was set. gohcl
// fills absent ones with a static null.
func present(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	if _, ok := expr.(hclsyntax.Expression); ok {
		return true
	}
	v, diags := expr.Value(nil)
	return diags.HasErrors() || !v.IsNull()
}
