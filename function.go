package reliability

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// PerformanceFunction maps a physical point x to one or more outputs.
type PerformanceFunction interface {
	InputNames() []string
	OutputNames() []string

	// Evaluate stores the outputs at x in dst.
	Evaluate(dst, x []float64) error
}

// Gradienter is implemented by performance functions with an analytic
// Jacobian. dst is outputs × inputs.
type Gradienter interface {
	Jacobian(dst *mat.Dense, x []float64) error
}

// Function adapts Go closures to PerformanceFunction.
type Function struct {
	inputs, outputs []string
	eval            func(dst, x []float64) error
	jac             func(dst *mat.Dense, x []float64) error
}

// NewFunction wraps eval. jac may be nil, in which case gradients are taken
// by central finite differences.
func NewFunction(inputs, outputs []string, eval func(dst, x []float64) error, jac func(dst *mat.Dense, x []float64) error) (*Function, error) {
	if len(inputs) == 0 || len(outputs) == 0 || eval == nil {
		return nil, fmt.Errorf("function needs inputs, outputs and an evaluator: %w", ErrInvalidArgument)
	}
	return &Function{
		inputs:  append([]string(nil), inputs...),
		outputs: append([]string(nil), outputs...),
		eval:    eval,
		jac:     jac,
	}, nil
}

// InputNames returns the argument names.
func (f *Function) InputNames() []string { return append([]string(nil), f.inputs...) }

// OutputNames returns the result names.
func (f *Function) OutputNames() []string { return append([]string(nil), f.outputs...) }

func (f *Function) Evaluate(dst, x []float64) error {
	if len(x) != len(f.inputs) || len(dst) != len(f.outputs) {
		return fmt.Errorf("function %v->%v called with %d inputs and %d outputs: %w",
			f.inputs, f.outputs, len(x), len(dst), ErrInvalidArgument)
	}
	return f.eval(dst, x)
}

func (f *Function) Jacobian(dst *mat.Dense, x []float64) error {
	if f.jac == nil {
		return jacobian(dst, f, x)
	}
	return f.jac(dst, x)
}

// jacobian differences any performance function.
func jacobian(dst *mat.Dense, f PerformanceFunction, x []float64) error {
	var evalErr error
	fd.Jacobian(dst, func(y, x []float64) {
		if err := f.Evaluate(y, x); err != nil && evalErr == nil {
			evalErr = err
		}
	}, x, &fd.JacobianSettings{Formula: fd.Central})
	return evalErr
}

// gradient returns ∂g_out/∂x using the analytic Jacobian when f has one.
func gradient(f PerformanceFunction, out int, x []float64) ([]float64, error) {
	jac := mat.NewDense(len(f.OutputNames()), len(x), nil)
	var err error
	if g, ok := f.(Gradienter); ok {
		err = g.Jacobian(jac, x)
	} else {
		err = jacobian(jac, f, x)
	}
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, out, jac), nil
}
