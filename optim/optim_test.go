package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// parabola is the FORM draw scenario mapped to standard space:
// x0 = 5 + 3.3 u0, x1 = 2.1 + 3 u1 and G = t + 6 + x0² - x1.
func parabola(t float64) Problem {
	return Problem{
		Dimension: 2,
		Constraint: func(u []float64) (float64, error) {
			x0, x1 := 5+3.3*u[0], 2.1+3*u[1]
			return t + 6 + x0*x0 - x1, nil
		},
		Gradient: func(dst, u []float64) error {
			dst[0] = 2 * 3.3 * (5 + 3.3*u[0])
			dst[1] = -3
			return nil
		},
	}
}

func linear(a []float64, b float64) Problem {
	return Problem{
		Dimension: len(a),
		Constraint: func(u []float64) (float64, error) {
			return b - floats.Dot(a, u), nil
		},
		Gradient: func(dst, _ []float64) error {
			floats.ScaleTo(dst, -1, a)
			return nil
		},
	}
}

// circle has its nearest point at (2, 0).
func circle() Problem {
	return Problem{
		Dimension: 2,
		Constraint: func(u []float64) (float64, error) {
			return (u[0]-3)*(u[0]-3) + u[1]*u[1] - 1, nil
		},
		Gradient: func(dst, u []float64) error {
			dst[0] = 2 * (u[0] - 3)
			dst[1] = 2 * u[1]
			return nil
		},
		Hessian: func(dst *mat.SymDense, _ []float64) error {
			dst.SetSym(0, 0, 2)
			dst.SetSym(0, 1, 0)
			dst.SetSym(1, 1, 2)
			return nil
		},
	}
}

func config(t *testing.T, iterations int, tol float64) Config {
	t.Helper()
	cfg, err := NewConfigBuilder().MaxIterations(iterations).Tolerance(tol).Build()
	require.NoError(t, err)
	return cfg
}

func TestSQPParabola(t *testing.T) {
	res, err := SQP{}.Solve(context.Background(), parabola(0), []float64{0, 0}, config(t, 200, 1e-10))
	require.NoError(t, err)
	require.True(t, res.Converged)

	assert.InDelta(t, -1.3766956, res.X[0], 1e-6)
	assert.InDelta(t, 1.3695873, res.X[1], 1e-6)
	assert.InDelta(t, 1.9419217, floats.Norm(res.X, 2), 1e-6)
	assert.LessOrEqual(t, res.Iterations, 12)
	assert.Len(t, res.History, res.Iterations)
	assert.Greater(t, res.Evaluations, res.Iterations)

	last := res.History[len(res.History)-1]
	assert.LessOrEqual(t, last.AbsoluteError, 1e-10)
	assert.LessOrEqual(t, last.ConstraintError, 1e-10)
	assert.Equal(t, res.X, last.X)
}

func TestSQPParabolaThresholds(t *testing.T) {
	want := map[float64]float64{
		-10: 0.7544, -3: 1.3664, 0: 1.9419, 1: 2.1880, 2: 2.4524, 3: 2.7307,
		4: 3.0193, 5: 3.3159, 10: 4.8680, 20: 8.1071, 50: 18.0300,
	}
	for threshold, beta := range want {
		res, err := SQP{}.Solve(context.Background(), parabola(threshold), []float64{0, 0}, config(t, 200, 1e-10))
		require.NoError(t, err)
		require.True(t, res.Converged, "threshold %g", threshold)
		assert.InDelta(t, beta, floats.Norm(res.X, 2), 1e-4, "threshold %g", threshold)
	}
}

func TestSolversOnKnownProblems(t *testing.T) {
	tests := []struct {
		name    string
		solver  Solver
		problem Problem
		start   []float64
		tol     float64
		want    []float64
		delta   float64
	}{
		{"sqp linear", SQP{}, linear([]float64{0.6, 0.8}, 3), []float64{0, 0}, 1e-10, []float64{1.8, 2.4}, 1e-9},
		{"sqp circle", SQP{}, circle(), []float64{0.1, 0.2}, 1e-10, []float64{2, 0}, 1e-8},
		{"abdo-rackwitz linear", AbdoRackwitz{}, linear([]float64{0.6, 0.8}, 3), []float64{0, 0}, 1e-10, []float64{1.8, 2.4}, 1e-9},
		{"abdo-rackwitz circle", AbdoRackwitz{}, circle(), []float64{0.1, 0.2}, 1e-6, []float64{2, 0}, 1e-4},
		{"augmented lagrangian linear", AugmentedLagrangian{}, linear([]float64{0.6, 0.8}, 3), []float64{0, 0}, 1e-6, []float64{1.8, 2.4}, 1e-4},
		{"augmented lagrangian circle", AugmentedLagrangian{}, circle(), []float64{0.1, 0.2}, 1e-6, []float64{2, 0}, 1e-4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.solver.Solve(context.Background(), tt.problem, tt.start, config(t, 200, tt.tol))
			require.NoError(t, err)
			require.True(t, res.Converged, "after %d iterations at %v", res.Iterations, res.X)
			assert.InDeltaSlice(t, tt.want, res.X, tt.delta)
		})
	}
}

func TestNonConvergenceIsNotAnError(t *testing.T) {
	res, err := SQP{}.Solve(context.Background(), parabola(0), []float64{0, 0}, config(t, 2, 1e-10))
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	assert.Len(t, res.History, 2)
}

func TestSolveErrors(t *testing.T) {
	cfg := DefaultConfig()
	ctx := context.Background()

	_, err := SQP{}.Solve(ctx, parabola(0), []float64{0}, cfg)
	assert.ErrorIs(t, err, ErrInvalidProblem)

	_, err = SQP{}.Solve(ctx, parabola(0), []float64{math.NaN(), 0}, cfg)
	assert.ErrorIs(t, err, ErrInvalidProblem)

	_, err = SQP{}.Solve(ctx, parabola(0), []float64{0, 0}, Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	boom := errors.New("boom")
	p := parabola(0)
	p.Constraint = func([]float64) (float64, error) { return 0, boom }
	_, err = AbdoRackwitz{}.Solve(ctx, p, []float64{0, 0}, cfg)
	assert.ErrorIs(t, err, boom)

	flat := linear([]float64{0, 0}, 1)
	_, err = SQP{}.Solve(ctx, flat, []float64{0, 0}, cfg)
	assert.ErrorIs(t, err, ErrNumerical)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res, err := SQP{}.Solve(cancelled, parabola(0), []float64{0, 0}, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.History)
}

func TestConfigBuilder(t *testing.T) {
	cfg, err := NewConfigBuilder().
		MaxIterations(200).
		MaxAbsoluteError(1e-10).
		MaxRelativeError(1e-9).
		MaxResidualError(1e-8).
		MaxConstraintError(1e-7).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.MaxIterations())
	assert.Equal(t, 1e-10, cfg.MaxAbsoluteError())
	assert.Equal(t, 1e-9, cfg.MaxRelativeError())
	assert.Equal(t, 1e-8, cfg.MaxResidualError())
	assert.Equal(t, 1e-7, cfg.MaxConstraintError())

	// The builder leaves the source configuration untouched.
	derived, err := NewConfigBuilder().From(cfg).MaxIterations(5).Build()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.MaxIterations())
	assert.Equal(t, 5, derived.MaxIterations())

	_, err = NewConfigBuilder().MaxIterations(0).MaxResidualError(-1).Build()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, 100, DefaultConfig().MaxIterations())
}

func TestRecordErrors(t *testing.T) {
	it := record(3, []float64{0, 0}, []float64{3, 4}, -0.5)
	assert.Equal(t, 3, it.Index)
	assert.Equal(t, 5.0, it.AbsoluteError)
	assert.Equal(t, 1.0, it.RelativeError)
	assert.Equal(t, 12.5, it.ResidualError)
	assert.Equal(t, 0.5, it.ConstraintError)

	// A step onto the origin falls back to the absolute error.
	it = record(1, []float64{1, 0}, []float64{0, 0}, 0)
	assert.Equal(t, 1.0, it.RelativeError)
}
