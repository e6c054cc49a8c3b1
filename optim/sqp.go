package optim

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SQP solves the nearest-point problem by sequential quadratic programming.
//
// Each iteration estimates the multiplier λ = -u·∇G/‖∇G‖², forms the
// Hessian of the Lagrangian
//
//	H = I + λ∇²G
//
// shifted by τI until it is positive definite, and solves the KKT system
//
//	[ H    ∇G ] [d]   [-u]
//	[ ∇Gᵀ  0  ] [ν] = [-G]
//
// The step d is then shortened by backtracking on the exact penalty merit
// ½‖u‖² + c|G| with c = 2|ν| + 1e-3.
type SQP struct{}

func (SQP) Name() string { return "SQP" }

const (
	armijo        = 1e-4
	maxBacktracks = 40
)

func (s SQP) Solve(ctx context.Context, p Problem, start []float64, cfg Config) (Result, error) {
	if err := p.validate(start); err != nil {
		return Result{}, err
	}
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}

	c := &counter{Problem: p}
	n := p.Dimension
	u := append([]float64(nil), start...)
	g, err := c.constraint(u)
	if err != nil {
		return Result{}, fmt.Errorf("constraint at start point: %w", err)
	}

	var res Result
	grad := make([]float64, n)
	hess := mat.NewSymDense(n, nil)
	for k := 1; k <= cfg.maxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return res.finish(u, g, c.n), err
		}
		if err := c.gradient(grad, u); err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}
		if err := p.hessian(hess, u); err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}
		d, nu, err := newtonKKT(u, g, grad, hess)
		if err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}

		next, gNext, err := backtrack(c, u, g, d, 2*math.Abs(nu)+1e-3)
		if err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}

		it := record(k, u, next, gNext)
		res.History = append(res.History, it)
		u, g = next, gNext
		if cfg.converged(it) {
			res.Converged = true
			break
		}
	}
	return res.finish(u, g, c.n), nil
}

func (r Result) finish(u []float64, g float64, evals int) Result {
	r.X = append([]float64(nil), u...)
	r.Constraint = g
	r.Iterations = len(r.History)
	r.Evaluations = evals
	return r
}

// newtonKKT solves the regularised KKT system by the Schur complement of H.
func newtonKKT(u []float64, g float64, grad []float64, hess *mat.SymDense) (d []float64, nu float64, err error) {
	n := len(u)
	lambda := -floats.Dot(u, grad) / floats.Dot(grad, grad)

	h := mat.NewSymDense(n, nil)
	var chol mat.Cholesky
	for tau := 0.0; ; {
		for i := range n {
			for j := i; j < n; j++ {
				v := lambda * hess.At(i, j)
				if i == j {
					v += 1 + tau
				}
				h.SetSym(i, j, v)
			}
		}
		if chol.Factorize(h) {
			break
		}
		switch {
		case tau == 0:
			tau = 1e-3
		case tau > 1e12:
			return nil, 0, fmt.Errorf("lagrangian hessian cannot be regularised: %w", ErrNumerical)
		default:
			tau *= 10
		}
	}

	var a, b mat.VecDense
	if err := chol.SolveVecTo(&a, mat.NewVecDense(n, u)); err != nil {
		return nil, 0, fmt.Errorf("kkt solve: %w", ErrNumerical)
	}
	gv := mat.NewVecDense(n, grad)
	if err := chol.SolveVecTo(&b, gv); err != nil {
		return nil, 0, fmt.Errorf("kkt solve: %w", ErrNumerical)
	}
	nu = (g - mat.Dot(gv, &a)) / mat.Dot(gv, &b)

	d = make([]float64, n)
	for i := range d {
		d[i] = -a.AtVec(i) - nu*b.AtVec(i)
	}
	if !allFinite(d) {
		return nil, 0, fmt.Errorf("non-finite step: %w", ErrNumerical)
	}
	return d, nu, nil
}

// backtrack halves the step along d until the merit ½‖u‖² + pen·|G| shows
// sufficient decrease. After maxBacktracks halvings the last trial is kept.
func backtrack(c *counter, u []float64, g float64, d []float64, pen float64) ([]float64, float64, error) {
	m0 := objective(u) + pen*math.Abs(g)
	slope := floats.Dot(u, d) - pen*math.Abs(g)

	next := make([]float64, len(u))
	var gNext float64
	step := 1.0
	for range maxBacktracks {
		floats.AddScaledTo(next, u, step, d)
		var err error
		if gNext, err = c.constraint(next); err != nil {
			return nil, 0, err
		}
		if objective(next)+pen*math.Abs(gNext) <= m0+armijo*step*slope {
			break
		}
		step *= 0.5
	}
	return next, gNext, nil
}
