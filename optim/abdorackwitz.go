package optim

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// AbdoRackwitz is the improved HLRF algorithm. The search direction is the
// projection of the origin onto the linearised constraint,
//
//	d = ((∇G·u - G) / ‖∇G‖²) ∇G - u
//
// and the step is chosen by backtracking on ½‖u‖² + c|G| with
// c = 2‖u‖/‖∇G‖ + 10.
//
// Because a short line search step also makes the iterate difference small,
// convergence additionally requires ‖d‖ to be within the absolute tolerance.
type AbdoRackwitz struct{}

func (AbdoRackwitz) Name() string { return "AbdoRackwitz" }

func (a AbdoRackwitz) Solve(ctx context.Context, p Problem, start []float64, cfg Config) (Result, error) {
	if err := p.validate(start); err != nil {
		return Result{}, err
	}
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}

	c := &counter{Problem: p}
	u := append([]float64(nil), start...)
	g, err := c.constraint(u)
	if err != nil {
		return Result{}, fmt.Errorf("constraint at start point: %w", err)
	}

	var res Result
	grad := make([]float64, p.Dimension)
	d := make([]float64, p.Dimension)
	for k := 1; k <= cfg.maxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return res.finish(u, g, c.n), err
		}
		if err := c.gradient(grad, u); err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}
		gn := floats.Norm(grad, 2)
		scale := (floats.Dot(grad, u) - g) / (gn * gn)
		floats.ScaleTo(d, scale, grad)
		floats.Sub(d, u)

		pen := 2*floats.Norm(u, 2)/gn + 10
		next, gNext, err := backtrack(c, u, g, d, pen)
		if err != nil {
			return res.finish(u, g, c.n), fmt.Errorf("iteration %d: %w", k, err)
		}

		it := record(k, u, next, gNext)
		res.History = append(res.History, it)
		u, g = next, gNext
		if cfg.converged(it) && floats.Norm(d, 2) <= cfg.maxAbsoluteError {
			res.Converged = true
			break
		}
	}
	return res.finish(u, g, c.n), nil
}
