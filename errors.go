package reliability

import (
	"errors"
	"fmt"

	"github.com/alexshd/reliability/distribution"
	"github.com/alexshd/reliability/optim"
)

var (
	// ErrInvalidArgument reports dimension mismatches and malformed inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfDomain reports points outside the support of the input
	// distribution. It is the distribution package's sentinel, so errors.Is
	// matches either name.
	ErrOutOfDomain = distribution.ErrOutOfDomain

	// ErrNumericalInstability reports singular Jacobians and non-finite
	// values in the transform, the limit state or the solver.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrNonConvergence is wrapped by *ConvergenceError.
	ErrNonConvergence = errors.New("nearest-point search did not converge")

	// ErrUninitializedResult is returned when a result is requested before a
	// successful run.
	ErrUninitializedResult = errors.New("result not available")

	// ErrInvalidState is returned when Run is called twice.
	ErrInvalidState = errors.New("invalid engine state")
)

// ConvergenceError reports a nearest-point search that hit its iteration cap.
type ConvergenceError struct {
	Solver     string
	Iterations int
	Last       optim.Iteration
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s stopped after %d iterations (abs=%.3g rel=%.3g res=%.3g con=%.3g): %v",
		e.Solver, e.Iterations,
		e.Last.AbsoluteError, e.Last.RelativeError, e.Last.ResidualError, e.Last.ConstraintError,
		ErrNonConvergence)
}

func (e *ConvergenceError) Unwrap() error { return ErrNonConvergence }

// classify maps collaborator errors onto this package's sentinels while
// keeping the original chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, distribution.ErrDimension), errors.Is(err, distribution.ErrInvalidParameter),
		errors.Is(err, optim.ErrInvalidProblem), errors.Is(err, optim.ErrInvalidConfig):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, optim.ErrNumerical):
		return fmt.Errorf("%w: %w", ErrNumericalInstability, err)
	}
	return err
}
