// Package optim solves the nearest-point problem of reliability analysis:
//
//	minimise   ½‖u‖²
//	subject to G(u) = 0
//
// in standard normal space. The solution is the design point u*, whose norm
// is the Hasofer-Lind reliability index.
//
// Three algorithms are provided:
//
//	SQP                 Newton step on the KKT system with a regularised
//	                    Hessian of the Lagrangian and merit backtracking.
//	AbdoRackwitz        The HLRF projection direction with a merit line
//	                    search (iHLRF). First order only.
//	AugmentedLagrangian Multiplier method whose unconstrained subproblems are
//	                    solved by gonum's BFGS.
//
// Non-convergence is not an error at this layer: a Result carries
// Converged=false and its full history. Errors are reserved for invalid
// input, failed evaluations and numerical breakdown.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidProblem is returned for inconsistent problem definitions or
	// start points.
	ErrInvalidProblem = errors.New("invalid nearest-point problem")

	// ErrInvalidConfig is returned by ConfigBuilder.Build.
	ErrInvalidConfig = errors.New("invalid solver configuration")

	// ErrNumerical is returned when the algorithm cannot proceed: vanishing
	// constraint gradient, non-finite iterate or an unrecoverable linear
	// system.
	ErrNumerical = errors.New("numerical breakdown")
)

// Problem is the nearest-point problem for a constraint G.
type Problem struct {
	Dimension int

	// Constraint evaluates G(u).
	Constraint func(u []float64) (float64, error)

	// Gradient stores ∇G(u) in dst.
	Gradient func(dst, u []float64) error

	// Hessian stores ∇²G(u) in dst. If nil, solvers that need it difference
	// the gradient.
	Hessian func(dst *mat.SymDense, u []float64) error
}

func (p Problem) validate(start []float64) error {
	switch {
	case p.Dimension < 1:
		return fmt.Errorf("dimension %d: %w", p.Dimension, ErrInvalidProblem)
	case p.Constraint == nil || p.Gradient == nil:
		return fmt.Errorf("constraint and gradient are required: %w", ErrInvalidProblem)
	case len(start) != p.Dimension:
		return fmt.Errorf("start point of size %d for dimension %d: %w", len(start), p.Dimension, ErrInvalidProblem)
	case !allFinite(start):
		return fmt.Errorf("start point %v is not finite: %w", start, ErrInvalidProblem)
	}
	return nil
}

// hessian evaluates ∇²G, by central differences of the gradient when the
// problem has no analytic Hessian.
func (p Problem) hessian(dst *mat.SymDense, u []float64) error {
	if p.Hessian != nil {
		return p.Hessian(dst, u)
	}
	n := len(u)
	jac := mat.NewDense(n, n, nil)
	var evalErr error
	fd.Jacobian(jac, func(y, x []float64) {
		if err := p.Gradient(y, x); err != nil && evalErr == nil {
			evalErr = err
		}
	}, u, &fd.JacobianSettings{Formula: fd.Central})
	if evalErr != nil {
		return fmt.Errorf("hessian by finite differences: %w", evalErr)
	}
	for i := range n {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, 0.5*(jac.At(i, j)+jac.At(j, i)))
		}
	}
	return nil
}

// Iteration is the record of one accepted step.
type Iteration struct {
	Index           int
	X               []float64
	Objective       float64
	Constraint      float64
	AbsoluteError   float64
	RelativeError   float64
	ResidualError   float64
	ConstraintError float64
}

// Result is the outcome of a solve.
type Result struct {
	X           []float64
	Constraint  float64
	Iterations  int
	Converged   bool
	History     []Iteration
	Evaluations int
}

// Solver finds the point of the constraint surface closest to the origin.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p Problem, start []float64, cfg Config) (Result, error)
}

func objective(u []float64) float64 {
	return 0.5 * floats.Dot(u, u)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// record builds the iteration for the step prev -> next.
func record(index int, prev, next []float64, g float64) Iteration {
	abs := floats.Distance(prev, next, 2)
	rel := abs
	if n := floats.Norm(next, 2); n > 0 {
		rel = abs / n
	}
	return Iteration{
		Index:           index,
		X:               append([]float64(nil), next...),
		Objective:       objective(next),
		Constraint:      g,
		AbsoluteError:   abs,
		RelativeError:   rel,
		ResidualError:   math.Abs(objective(next) - objective(prev)),
		ConstraintError: math.Abs(g),
	}
}

// converged applies the four stopping criteria.
func (c Config) converged(it Iteration) bool {
	return it.AbsoluteError <= c.maxAbsoluteError &&
		it.RelativeError <= c.maxRelativeError &&
		it.ResidualError <= c.maxResidualError &&
		it.ConstraintError <= c.maxConstraintError
}

// counter wraps a problem to count constraint evaluations.
type counter struct {
	Problem
	n int
}

func (c *counter) constraint(u []float64) (float64, error) {
	c.n++
	g, err := c.Constraint(u)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return 0, fmt.Errorf("constraint %g at %v: %w", g, u, ErrNumerical)
	}
	return g, nil
}

func (c *counter) gradient(dst, u []float64) error {
	if err := c.Gradient(dst, u); err != nil {
		return err
	}
	if !allFinite(dst) {
		return fmt.Errorf("gradient %v at %v: %w", dst, u, ErrNumerical)
	}
	if floats.Norm(dst, 2) == 0 {
		return fmt.Errorf("vanishing constraint gradient at %v: %w", u, ErrNumerical)
	}
	return nil
}
