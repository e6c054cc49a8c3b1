package reliability

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"gonum.org/v1/gonum/mat"
)

// SymbolicFunction is a performance function given by formulas such as
//
//	-(6 + x0^2 - x1)
//
// Values are computed by compiled expr programs. Gradients are exact: the
// parsed tree is evaluated a second time over dual numbers.
//
// Supported syntax: + - * / ^ **, unary minus, numeric literals, the input
// names, abs, min, max, floor, ceil, round and sin, cos, tan, exp, log, sqrt.
type SymbolicFunction struct {
	inputs   []string
	outputs  []string
	formulas []string
	index    map[string]int
	programs []*vm.Program
	trees    []ast.Node
}

var _ Gradienter = (*SymbolicFunction)(nil)

type unaryFunc struct {
	value func(float64) float64
	deriv func(float64) float64
}

var mathFuncs = map[string]unaryFunc{
	"sin":  {math.Sin, math.Cos},
	"cos":  {math.Cos, func(x float64) float64 { return -math.Sin(x) }},
	"tan":  {math.Tan, func(x float64) float64 { c := math.Cos(x); return 1 / (c * c) }},
	"exp":  {math.Exp, math.Exp},
	"log":  {math.Log, func(x float64) float64 { return 1 / x }},
	"sqrt": {math.Sqrt, func(x float64) float64 { return 0.5 / math.Sqrt(x) }},
}

func exprOptions(env map[string]any) []expr.Option {
	opts := []expr.Option{expr.Env(env), expr.AsFloat64()}
	for name, fn := range mathFuncs {
		value := fn.value
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			x, ok := params[0].(float64)
			if !ok {
				return nil, fmt.Errorf("%s expects a float, got %T", name, params[0])
			}
			return value(x), nil
		}, new(func(float64) float64)))
	}
	return opts
}

// NewSymbolicFunction compiles one formula per output.
func NewSymbolicFunction(inputs, outputs, formulas []string) (*SymbolicFunction, error) {
	if len(inputs) == 0 || len(outputs) == 0 || len(outputs) != len(formulas) {
		return nil, fmt.Errorf("symbolic function with %d inputs, %d outputs and %d formulas: %w",
			len(inputs), len(outputs), len(formulas), ErrInvalidArgument)
	}
	f := &SymbolicFunction{
		inputs:   append([]string(nil), inputs...),
		outputs:  append([]string(nil), outputs...),
		formulas: append([]string(nil), formulas...),
		index:    make(map[string]int, len(inputs)),
	}
	env := make(map[string]any, len(inputs))
	for i, name := range inputs {
		if _, dup := f.index[name]; dup {
			return nil, fmt.Errorf("duplicate input %q: %w", name, ErrInvalidArgument)
		}
		f.index[name] = i
		env[name] = 0.0
	}
	for k, src := range formulas {
		program, err := expr.Compile(src, exprOptions(env)...)
		if err != nil {
			return nil, fmt.Errorf("compile %s = %q: %w: %w", outputs[k], src, ErrInvalidArgument, err)
		}
		tree, err := parser.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s = %q: %w: %w", outputs[k], src, ErrInvalidArgument, err)
		}
		// Reject constructs the differentiator does not know before the first
		// gradient is requested.
		if _, err := f.dual(tree.Node, make([]float64, len(inputs))); err != nil {
			return nil, fmt.Errorf("differentiate %s = %q: %w: %w", outputs[k], src, ErrInvalidArgument, err)
		}
		f.programs = append(f.programs, program)
		f.trees = append(f.trees, tree.Node)
	}
	return f, nil
}

func (f *SymbolicFunction) InputNames() []string  { return append([]string(nil), f.inputs...) }
func (f *SymbolicFunction) OutputNames() []string { return append([]string(nil), f.outputs...) }

// Formulas returns the source expressions, one per output.
func (f *SymbolicFunction) Formulas() []string { return append([]string(nil), f.formulas...) }

func (f *SymbolicFunction) Evaluate(dst, x []float64) error {
	if len(x) != len(f.inputs) || len(dst) != len(f.outputs) {
		return fmt.Errorf("symbolic function called with %d inputs and %d outputs: %w", len(x), len(dst), ErrInvalidArgument)
	}
	env := make(map[string]any, len(x))
	for i, name := range f.inputs {
		env[name] = x[i]
	}
	for k, program := range f.programs {
		out, err := expr.Run(program, env)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", f.outputs[k], err)
		}
		v, ok := out.(float64)
		if !ok {
			return fmt.Errorf("evaluate %s: result of type %T: %w", f.outputs[k], out, ErrInvalidArgument)
		}
		dst[k] = v
	}
	return nil
}

func (f *SymbolicFunction) Jacobian(dst *mat.Dense, x []float64) error {
	if len(x) != len(f.inputs) {
		return fmt.Errorf("symbolic jacobian at a point of size %d: %w", len(x), ErrInvalidArgument)
	}
	for k, tree := range f.trees {
		d, err := f.dual(tree, x)
		if err != nil {
			return fmt.Errorf("differentiate %s: %w", f.outputs[k], err)
		}
		dst.SetRow(k, d.grad)
	}
	return nil
}

// dualNumber carries a value and its gradient with respect to the inputs.
type dualNumber struct {
	val  float64
	grad []float64
}

func (f *SymbolicFunction) constant(v float64) dualNumber {
	return dualNumber{val: v, grad: make([]float64, len(f.inputs))}
}

// combine returns {v, a·da + b·db}.
func combine(v float64, a float64, da dualNumber, b float64, db dualNumber) dualNumber {
	out := dualNumber{val: v, grad: make([]float64, len(da.grad))}
	for i := range out.grad {
		out.grad[i] = a*da.grad[i] + b*db.grad[i]
	}
	return out
}

func scale(v, a float64, d dualNumber) dualNumber {
	return combine(v, a, d, 0, d)
}

func (f *SymbolicFunction) dual(node ast.Node, x []float64) (dualNumber, error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return f.constant(float64(n.Value)), nil

	case *ast.FloatNode:
		return f.constant(n.Value), nil

	case *ast.IdentifierNode:
		i, ok := f.index[n.Value]
		if !ok {
			return dualNumber{}, fmt.Errorf("unknown identifier %q", n.Value)
		}
		d := f.constant(x[i])
		d.grad[i] = 1
		return d, nil

	case *ast.UnaryNode:
		a, err := f.dual(n.Node, x)
		if err != nil {
			return dualNumber{}, err
		}
		switch n.Operator {
		case "-":
			return scale(-a.val, -1, a), nil
		case "+":
			return a, nil
		}
		return dualNumber{}, fmt.Errorf("unsupported unary operator %q", n.Operator)

	case *ast.BinaryNode:
		a, err := f.dual(n.Left, x)
		if err != nil {
			return dualNumber{}, err
		}
		b, err := f.dual(n.Right, x)
		if err != nil {
			return dualNumber{}, err
		}
		return binary(n.Operator, a, b)

	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return dualNumber{}, fmt.Errorf("unsupported call")
		}
		fn, ok := mathFuncs[id.Value]
		if !ok || len(n.Arguments) != 1 {
			return dualNumber{}, fmt.Errorf("unsupported function %s/%d", id.Value, len(n.Arguments))
		}
		a, err := f.dual(n.Arguments[0], x)
		if err != nil {
			return dualNumber{}, err
		}
		return scale(fn.value(a.val), fn.deriv(a.val), a), nil

	case *ast.BuiltinNode:
		args := make([]dualNumber, len(n.Arguments))
		for i, arg := range n.Arguments {
			d, err := f.dual(arg, x)
			if err != nil {
				return dualNumber{}, err
			}
			args[i] = d
		}
		return f.builtin(n.Name, args)
	}
	return dualNumber{}, fmt.Errorf("unsupported expression %T", node)
}

func binary(op string, a, b dualNumber) (dualNumber, error) {
	switch op {
	case "+":
		return combine(a.val+b.val, 1, a, 1, b), nil
	case "-":
		return combine(a.val-b.val, 1, a, -1, b), nil
	case "*":
		return combine(a.val*b.val, b.val, a, a.val, b), nil
	case "/":
		return combine(a.val/b.val, 1/b.val, a, -a.val/(b.val*b.val), b), nil
	case "^", "**":
		v := math.Pow(a.val, b.val)
		da := 0.0
		if b.val != 0 {
			da = b.val * math.Pow(a.val, b.val-1)
		}
		db := 0.0
		if !isConstant(b) {
			db = v * math.Log(a.val)
		}
		return combine(v, da, a, db, b), nil
	}
	return dualNumber{}, fmt.Errorf("unsupported operator %q", op)
}

func isConstant(d dualNumber) bool {
	for _, g := range d.grad {
		if g != 0 {
			return false
		}
	}
	return true
}

func (f *SymbolicFunction) builtin(name string, args []dualNumber) (dualNumber, error) {
	switch name {
	case "abs":
		if len(args) == 1 {
			s := 1.0
			if args[0].val < 0 {
				s = -1
			}
			return scale(math.Abs(args[0].val), s, args[0]), nil
		}
	case "floor", "ceil", "round":
		if len(args) == 1 {
			op := map[string]func(float64) float64{"floor": math.Floor, "ceil": math.Ceil, "round": math.Round}[name]
			return f.constant(op(args[0].val)), nil
		}
	case "min", "max":
		if len(args) > 0 {
			best := args[0]
			for _, a := range args[1:] {
				if (name == "min" && a.val < best.val) || (name == "max" && a.val > best.val) {
					best = a
				}
			}
			return best, nil
		}
	}
	return dualNumber{}, fmt.Errorf("unsupported builtin %s/%d", name, len(args))
}
