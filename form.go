package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alexshd/reliability/optim"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// State is the lifecycle stage of a FORM engine.
type State string

const (
	StateCreated   State = "CREATED"   // Configured, not run yet
	StateRunning   State = "RUNNING"   // Nearest-point search in progress
	StateConverged State = "CONVERGED" // Result available
	StateFailed    State = "FAILED"    // Run returned an error
)

// Config holds the engine settings.
type Config struct {
	// Optim bounds the nearest-point search.
	Optim optim.Config
}

// DefaultConfig returns the solver defaults: 100 iterations and 1e-5 on all
// four stopping criteria.
func DefaultConfig() Config {
	return Config{Optim: optim.DefaultConfig()}
}

// FORM approximates the probability of an event by linearising its limit
// state at the design point, the point of the failure surface nearest to the
// origin of standard space.
//
// An engine runs once:
//
//	CREATED → RUNNING → CONVERGED
//	                  ↘ FAILED
type FORM struct {
	mu      sync.Mutex
	state   State
	solver  NearestPointSolver
	event   Event
	start   []float64
	logger  *slog.Logger
	history []optim.Iteration
	result  *Result
	err     error
}

// NewFORM prepares an engine for event, searching from the physical point
// start. A nil solver selects SQP.
func NewFORM(solver optim.Solver, cfg Config, event Event, start []float64) (*FORM, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if len(start) != event.Input.Dimension() {
		return nil, fmt.Errorf("start point of size %d for dimension %d: %w",
			len(start), event.Input.Dimension(), ErrInvalidArgument)
	}
	if cfg.Optim.MaxIterations() < 1 {
		return nil, fmt.Errorf("config %v: %w", cfg.Optim, ErrInvalidArgument)
	}
	return &FORM{
		state:  StateCreated,
		solver: NewNearestPointSolver(solver, cfg.Optim),
		event:  event,
		start:  append([]float64(nil), start...),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// WithLogger sets the logger used by Run.
func (f *FORM) WithLogger(l *slog.Logger) *FORM {
	if l != nil {
		f.mu.Lock()
		f.logger = l
		f.mu.Unlock()
	}
	return f
}

// Event returns the analysed event.
func (f *FORM) Event() Event { return f.event }

// SolverName names the nearest-point algorithm.
func (f *FORM) SolverName() string { return f.solver.Name() }

// State reports the lifecycle state.
func (f *FORM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History returns the iteration records of the last run, including a failed
// one.
func (f *FORM) History() []optim.Iteration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]optim.Iteration(nil), f.history...)
}

// Err returns the error of a failed run.
func (f *FORM) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Result returns the analysis once Run has converged.
func (f *FORM) Result() (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateConverged {
		return nil, fmt.Errorf("engine is %s: %w", f.state, ErrUninitializedResult)
	}
	return f.result, nil
}

// Run performs the analysis. It may be called once; the context is checked
// between solver iterations.
func (f *FORM) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateCreated {
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("run on an engine in state %s: %w", state, ErrInvalidState)
	}
	f.state = StateRunning
	logger := f.logger
	f.mu.Unlock()

	started := time.Now()
	logger.Debug("form run", "event", f.event.String(), "solver", f.solver.Name(), "config", f.solver.Config().String())

	res, history, err := f.run(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = history
	if err != nil {
		f.state = StateFailed
		f.err = err
		var ce *ConvergenceError
		if errors.As(err, &ce) {
			logger.Warn("form did not converge", "solver", ce.Solver, "iterations", ce.Iterations,
				"constraint_error", ce.Last.ConstraintError, "elapsed", time.Since(started))
		} else {
			logger.Warn("form failed", "error", err, "elapsed", time.Since(started))
		}
		return err
	}
	f.state = StateConverged
	f.result = res
	logger.Info("form converged",
		"beta", res.HasoferReliabilityIndex(),
		"pf", res.EventProbability(),
		"iterations", len(history),
		"evaluations", res.Evaluations(),
		"elapsed", time.Since(started))
	return nil
}

func (f *FORM) run(ctx context.Context) (*Result, []optim.Iteration, error) {
	ls, err := NewLimitState(f.event)
	if err != nil {
		return nil, nil, err
	}
	u0, err := ls.Transform().ToStandard(f.start)
	if err != nil {
		return nil, nil, fmt.Errorf("start point: %w", err)
	}

	np, err := f.solver.Solve(ctx, ls, u0)
	if err != nil {
		return nil, np.History, err
	}
	if !np.Converged {
		ce := &ConvergenceError{Solver: f.solver.Name(), Iterations: len(np.History)}
		if n := len(np.History); n > 0 {
			ce.Last = np.History[n-1]
		}
		return nil, np.History, ce
	}

	res, err := newResult(ls, np)
	if err != nil {
		return nil, np.History, err
	}
	return res, np.History, nil
}

// newResult evaluates everything that needs the limit state once.
func newResult(ls *LimitState, np NearestPoint) (*Result, error) {
	u := append([]float64(nil), np.Point...)
	x, err := ls.Transform().ToPhysical(u)
	if err != nil {
		return nil, fmt.Errorf("design point: %w", err)
	}
	originFails, err := ls.InFailureDomain(make([]float64, len(u)))
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	grad := make([]float64, len(u))
	if err := ls.Gradient(grad, u); err != nil {
		return nil, fmt.Errorf("gradient at the design point: %w", err)
	}
	if floats.Norm(grad, 2) == 0 {
		return nil, fmt.Errorf("zero gradient at the design point %v: %w", u, ErrNumericalInstability)
	}

	beta := floats.Norm(u, 2)
	generalised := beta
	pf := distuv.UnitNormal.CDF(-beta)
	if originFails {
		generalised = -beta
		pf = distuv.UnitNormal.CDF(beta)
	}
	values, gradients := ls.Evaluations()
	return &Result{
		limitState:  ls,
		design:      DesignPoint{Standard: u, Physical: x},
		gradient:    grad,
		beta:        beta,
		generalised: generalised,
		pf:          pf,
		originFails: originFails,
		history:     np.History,
		solverEvals: np.Evaluations,
		values:      values,
		gradients:   gradients,
	}, nil
}
