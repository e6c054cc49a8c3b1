package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// AugmentedLagrangian is the method of multipliers. Each outer iteration
// minimises
//
//	L(u) = ½‖u‖² + λG(u) + (μ/2) G(u)²
//
// without constraints using gonum's BFGS, then updates λ ← λ + μG. The
// penalty μ grows tenfold whenever |G| fails to drop by a factor of four.
type AugmentedLagrangian struct {
	// Penalty is the initial μ. Zero means 10.
	Penalty float64
	// InnerIterations caps each BFGS run. Zero means 200.
	InnerIterations int
}

func (AugmentedLagrangian) Name() string { return "AugmentedLagrangian" }

func (a AugmentedLagrangian) Solve(ctx context.Context, p Problem, start []float64, cfg Config) (Result, error) {
	if err := p.validate(start); err != nil {
		return Result{}, err
	}
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	mu := a.Penalty
	if mu <= 0 {
		mu = 10
	}
	inner := a.InnerIterations
	if inner <= 0 {
		inner = 200
	}

	c := &counter{Problem: p}
	u := append([]float64(nil), start...)
	g, err := c.constraint(u)
	if err != nil {
		return Result{}, fmt.Errorf("constraint at start point: %w", err)
	}

	var res Result
	lambda := 0.0
	for k := 1; k <= cfg.maxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return res.finish(u, g, c.n), err
		}
		next, err := a.minimise(c, u, lambda, mu, inner)
		if err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}
		gNext, err := c.constraint(next)
		if err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}

		lambda += mu * gNext
		if math.Abs(gNext) > 0.25*math.Abs(g) {
			mu *= 10
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

// minimise runs BFGS on the augmented Lagrangian from u.
func (a AugmentedLagrangian) minimise(c *counter, u []float64, lambda, mu float64, inner int) ([]float64, error) {
	var evalErr error
	fail := func(err error) {
		if evalErr == nil {
			evalErr = err
		}
	}
	gradG := make([]float64, len(u))

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			g, err := c.constraint(x)
			if err != nil {
				fail(err)
				return math.Inf(1)
			}
			return objective(x) + lambda*g + 0.5*mu*g*g
		},
		Grad: func(grad, x []float64) {
			g, err := c.constraint(x)
			if err != nil {
				fail(err)
				return
			}
			if err := c.Gradient(gradG, x); err != nil {
				fail(err)
				return
			}
			floats.AddScaledTo(grad, x, lambda+mu*g, gradG)
		},
		Status: func() (optimize.Status, error) {
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-12,
		MajorIterations:   inner,
	}
	result, err := optimize.Minimize(problem, u, settings, &optimize.BFGS{})
	if evalErr != nil {
		return nil, evalErr
	}
	if result == nil {
		return nil, fmt.Errorf("bfgs: %w: %w", ErrNumerical, err)
	}
	// A line search failure close to the optimum still leaves the best point
	// found in the result.
	if err != nil && !errors.Is(err, optimize.ErrLinesearcherFailure) && !errors.Is(err, optimize.ErrNoProgress) && !errors.Is(err, optimize.ErrNonDescentDirection) {
		return nil, fmt.Errorf("bfgs: %w: %w", ErrNumerical, err)
	}
	if !allFinite(result.X) {
		return nil, fmt.Errorf("bfgs returned %v: %w", result.X, ErrNumerical)
	}
	return result.X, nil
}
