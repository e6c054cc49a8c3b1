package reliability

import (
	"context"
	"fmt"

	"github.com/alexshd/reliability/optim"
)

// NearestPoint is the outcome of a nearest-point search in standard space.
type NearestPoint struct {
	Point       []float64
	Converged   bool
	History     []optim.Iteration
	Evaluations int
}

// NearestPointSolver runs an optim.Solver against a limit state.
type NearestPointSolver struct {
	solver optim.Solver
	cfg    optim.Config
}

// NewNearestPointSolver defaults to SQP when solver is nil.
func NewNearestPointSolver(solver optim.Solver, cfg optim.Config) NearestPointSolver {
	if solver == nil {
		solver = optim.SQP{}
	}
	return NearestPointSolver{solver: solver, cfg: cfg}
}

// Name names the wrapped algorithm.
func (s NearestPointSolver) Name() string { return s.solver.Name() }

// Config returns the iteration limit and tolerances.
func (s NearestPointSolver) Config() optim.Config { return s.cfg }

// Solve searches from start. A search that hits its iteration cap is not an
// error here: the caller inspects Converged.
func (s NearestPointSolver) Solve(ctx context.Context, ls *LimitState, start []float64) (NearestPoint, error) {
	res, err := s.solver.Solve(ctx, ls.Problem(), start, s.cfg)
	np := NearestPoint{
		Point:       res.X,
		Converged:   res.Converged,
		History:     res.History,
		Evaluations: res.Evaluations,
	}
	if err != nil {
		return np, fmt.Errorf("%s: %w", s.solver.Name(), classify(err))
	}
	if len(np.Point) != ls.Dimension() || !allFinite(np.Point) {
		return np, fmt.Errorf("%s returned %v: %w", s.solver.Name(), np.Point, ErrNumericalInstability)
	}
	return np, nil
}
