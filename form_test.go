package reliability

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/alexshd/reliability/distribution"
	"github.com/alexshd/reliability/optim"
	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func mustMarginal(t *testing.T) func(distribution.Marginal, error) distribution.Marginal {
	return func(m distribution.Marginal, err error) distribution.Marginal {
		t.Helper()
		if err != nil {
			t.Fatalf("marginal: %v", err)
		}
		return m
	}
}

func mustJoint(t *testing.T, ms []distribution.Marginal, c distribution.Copula) *distribution.Joint {
	t.Helper()
	j, err := distribution.NewJoint(ms, c)
	if err != nil {
		t.Fatalf("NewJoint: %v", err)
	}
	return j
}

func tightConfig(t *testing.T, iterations int, tol float64) Config {
	t.Helper()
	c, err := optim.NewConfigBuilder().MaxIterations(iterations).Tolerance(tol).Build()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return Config{Optim: c}
}

// parabolaEvent is {-(6 + x0² - x1) > threshold} with x0 ~ N(5, 3.3) and
// x1 ~ N(2.1, 3.0) independent.
func parabolaEvent(t *testing.T, threshold float64) Event {
	t.Helper()
	joint := mustJoint(t, []distribution.Marginal{
		mustMarginal(t)(distribution.NewNormal(5.0, 3.3)),
		mustMarginal(t)(distribution.NewNormal(2.1, 3.0)),
	}, nil).WithDescription("x0", "x1")
	g, err := NewSymbolicFunction([]string{"x0", "x1"}, []string{"g"}, []string{"-(6 + x0^2 - x1)"})
	if err != nil {
		t.Fatalf("NewSymbolicFunction: %v", err)
	}
	event, err := NewEvent(g, NewRandomVector(joint), Greater, threshold)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return event
}

// linearEvent is {R - S op 0} with R ~ N(10, 2) and S ~ N(4, 1.5), optionally
// correlated. β = 6/sqrt(6.25 - 6ρ).
func linearEvent(t *testing.T, op Operator, rho float64) Event {
	t.Helper()
	var cop distribution.Copula
	if rho != 0 {
		c, err := distribution.NewBivariateNormalCopula(rho)
		if err != nil {
			t.Fatalf("NewBivariateNormalCopula: %v", err)
		}
		cop = c
	}
	joint := mustJoint(t, []distribution.Marginal{
		mustMarginal(t)(distribution.NewNormal(10, 2)),
		mustMarginal(t)(distribution.NewNormal(4, 1.5)),
	}, cop).WithDescription("R", "S")
	g, err := NewFunction([]string{"R", "S"}, []string{"margin"},
		func(dst, x []float64) error {
			dst[0] = x[0] - x[1]
			return nil
		},
		func(dst *mat.Dense, x []float64) error {
			dst.Set(0, 0, 1)
			dst.Set(0, 1, -1)
			return nil
		})
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	event, err := NewEvent(g, NewRandomVector(joint), op, 0)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return event
}

func runFORM(t *testing.T, solver optim.Solver, cfg Config, event Event, start []float64) *Result {
	t.Helper()
	form, err := NewFORM(solver, cfg, event, start)
	if err != nil {
		t.Fatalf("NewFORM failed: %v", err)
	}
	if err := form.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if form.State() != StateConverged {
		t.Fatalf("state = %s, want %s", form.State(), StateConverged)
	}
	res, err := form.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	return res
}

// TestFORM_Parabola runs the reference scenario end to end.
func TestFORM_Parabola(t *testing.T) {
	res := runFORM(t, optim.SQP{}, tightConfig(t, 200, 1e-10), parabolaEvent(t, 0), []float64{5.0, 2.1})

	AssertFORM(t, res)
	PrintAnalysis(t, res)

	beta := res.HasoferReliabilityIndex()
	if math.Abs(beta-1.9419217) > 1e-6 {
		t.Errorf("β = %.8f, want 1.9419217", beta)
	}
	if pf := res.EventProbability(); math.Abs(pf-0.0260733) > 1e-6 {
		t.Errorf("Pf = %.8f, want 0.0260733", pf)
	}
	if res.IsStandardPointOriginInFailureSpace() {
		t.Error("origin reported in the failure domain")
	}

	dp := res.DesignPoint()
	wantU := []float64{-1.3766956, 1.3695873}
	for i := range wantU {
		if math.Abs(dp.Standard[i]-wantU[i]) > 1e-6 {
			t.Errorf("u*[%d] = %.8f, want %.7f", i, dp.Standard[i], wantU[i])
		}
	}
	wantX := []float64{5.0 + 3.3*wantU[0], 2.1 + 3.0*wantU[1]}
	for i := range wantX {
		if math.Abs(dp.Physical[i]-wantX[i]) > 1e-5 {
			t.Errorf("x*[%d] = %.8f, want %.7f", i, dp.Physical[i], wantX[i])
		}
	}

	factors := res.ImportanceFactors()
	for i, want := range []float64{0.5025883, 0.4974117} {
		if math.Abs(factors[i]-want) > 1e-6 {
			t.Errorf("α²[%d] = %.8f, want %.7f", i, factors[i], want)
		}
	}
	signed := res.SignedImportanceFactors()
	if signed[0] >= 0 || signed[1] <= 0 {
		t.Errorf("signed importance factors %v, want [-, +]", signed)
	}

	if n := len(res.ErrorHistory()); n == 0 || n > 12 {
		t.Errorf("%d iterations, want 1..12", n)
	}
	t.Logf("✓ β = %.7f after %d iterations", beta, len(res.ErrorHistory()))
}

// TestFORM_LinearIsExact verifies β for a linear margin of normals,
// independent and correlated through the Nataf transform.
func TestFORM_LinearIsExact(t *testing.T) {
	for _, rho := range []float64{0, 0.5, -0.4} {
		res := runFORM(t, nil, tightConfig(t, 100, 1e-10), linearEvent(t, Less, rho), []float64{10, 4})
		want := 6 / math.Sqrt(6.25-6*rho)
		if beta := res.HasoferReliabilityIndex(); math.Abs(beta-want) > 1e-8 {
			t.Errorf("ρ=%g: β = %.10f, want %.10f", rho, beta, want)
		}
		if pf := res.EventProbability(); math.Abs(pf-distuv.UnitNormal.CDF(-want)) > 1e-10 {
			t.Errorf("ρ=%g: Pf = %.10g, want %.10g", rho, pf, distuv.UnitNormal.CDF(-want))
		}
		AssertFORM(t, res)
	}
}

// TestFORM_Solvers verifies every solver reaches the same design point.
func TestFORM_Solvers(t *testing.T) {
	want := 6 / math.Sqrt(6.25)
	tests := []struct {
		solver optim.Solver
		tol    float64
		delta  float64
	}{
		{optim.SQP{}, 1e-10, 1e-8},
		{optim.AbdoRackwitz{}, 1e-10, 1e-8},
		{optim.AugmentedLagrangian{}, 1e-6, 1e-4},
	}
	for _, tt := range tests {
		t.Run(tt.solver.Name(), func(t *testing.T) {
			res := runFORM(t, tt.solver, tightConfig(t, 200, tt.tol), linearEvent(t, Less, 0), []float64{10, 4})
			if beta := res.HasoferReliabilityIndex(); math.Abs(beta-want) > tt.delta {
				t.Errorf("β = %.10f, want %.10f", beta, want)
			}
			t.Logf("✓ %s: β = %.8f", tt.solver.Name(), res.HasoferReliabilityIndex())
		})
	}
}

// TestFORM_OriginInFailureDomain verifies the orientation of Pf and the
// generalised index.
func TestFORM_OriginInFailureDomain(t *testing.T) {
	res := runFORM(t, nil, tightConfig(t, 100, 1e-10), linearEvent(t, Greater, 0), []float64{10, 4})

	if !res.IsStandardPointOriginInFailureSpace() {
		t.Fatal("origin not reported in the failure domain")
	}
	if beta := res.HasoferReliabilityIndex(); math.Abs(beta-2.4) > 1e-8 {
		t.Errorf("β = %.10f, want 2.4", beta)
	}
	if g := res.GeneralisedReliabilityIndex(); math.Abs(g+2.4) > 1e-8 {
		t.Errorf("generalised β = %.10f, want -2.4", g)
	}
	if pf := res.EventProbability(); math.Abs(pf-distuv.UnitNormal.CDF(2.4)) > 1e-10 {
		t.Errorf("Pf = %.10f, want Φ(2.4)", pf)
	}
	AssertFORM(t, res)
}

// TestFORM_Idempotent verifies identical engines give identical results.
func TestFORM_Idempotent(t *testing.T) {
	run := func() *Result {
		return runFORM(t, optim.SQP{}, tightConfig(t, 200, 1e-10), parabolaEvent(t, 0), []float64{5.0, 2.1})
	}
	a, b := run(), run()

	if diff := cmp.Diff(a.DesignPoint(), b.DesignPoint()); diff != "" {
		t.Errorf("design points differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(a.ErrorHistory(), b.ErrorHistory()); diff != "" {
		t.Errorf("histories differ (-first +second):\n%s", diff)
	}
	if a.EventProbability() != b.EventProbability() {
		t.Errorf("Pf %v != %v", a.EventProbability(), b.EventProbability())
	}
}

// TestFORM_StateMachine verifies the lifecycle.
func TestFORM_StateMachine(t *testing.T) {
	form, err := NewFORM(nil, DefaultConfig(), parabolaEvent(t, 0), []float64{5.0, 2.1})
	if err != nil {
		t.Fatalf("NewFORM failed: %v", err)
	}
	if form.State() != StateCreated {
		t.Errorf("state = %s, want %s", form.State(), StateCreated)
	}
	if _, err := form.Result(); !errors.Is(err, ErrUninitializedResult) {
		t.Errorf("Result before Run: got %v, want ErrUninitializedResult", err)
	}
	if form.SolverName() != "SQP" {
		t.Errorf("default solver = %s, want SQP", form.SolverName())
	}

	if err := form.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if form.State() != StateConverged {
		t.Errorf("state = %s, want %s", form.State(), StateConverged)
	}
	if err := form.Run(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Run: got %v, want ErrInvalidState", err)
	}
	if form.State() != StateConverged {
		t.Errorf("second Run changed state to %s", form.State())
	}
	t.Logf("✓ CREATED → RUNNING → CONVERGED, second run rejected")
}

// TestFORM_NonConvergence verifies a capped search fails with its history.
func TestFORM_NonConvergence(t *testing.T) {
	form, err := NewFORM(optim.SQP{}, tightConfig(t, 2, 1e-10), parabolaEvent(t, 0), []float64{5.0, 2.1})
	if err != nil {
		t.Fatalf("NewFORM failed: %v", err)
	}
	err = form.Run(context.Background())

	var ce *ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("Run: got %v, want *ConvergenceError", err)
	}
	if !errors.Is(err, ErrNonConvergence) {
		t.Errorf("%v does not wrap ErrNonConvergence", err)
	}
	if ce.Iterations != 2 || ce.Last.Index != 2 {
		t.Errorf("ConvergenceError = %+v, want 2 iterations", ce)
	}
	if form.State() != StateFailed {
		t.Errorf("state = %s, want %s", form.State(), StateFailed)
	}
	if n := len(form.History()); n != 2 {
		t.Errorf("history has %d iterations, want 2", n)
	}
	if !errors.Is(form.Err(), ErrNonConvergence) {
		t.Errorf("Err() = %v", form.Err())
	}
	if _, err := form.Result(); !errors.Is(err, ErrUninitializedResult) {
		t.Errorf("Result after failure: got %v, want ErrUninitializedResult", err)
	}
}

// TestFORM_Cancelled verifies Run honours the context.
func TestFORM_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	form, err := NewFORM(nil, DefaultConfig(), parabolaEvent(t, 0), []float64{5.0, 2.1})
	if err != nil {
		t.Fatalf("NewFORM failed: %v", err)
	}
	if err := form.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run: got %v, want context.Canceled", err)
	}
	if form.State() != StateFailed {
		t.Errorf("state = %s, want %s", form.State(), StateFailed)
	}
}

// TestNewFORM_Errors verifies construction checks.
func TestNewFORM_Errors(t *testing.T) {
	event := parabolaEvent(t, 0)

	if _, err := NewFORM(nil, DefaultConfig(), event, []float64{5.0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short start: got %v, want ErrInvalidArgument", err)
	}
	if _, err := NewFORM(nil, DefaultConfig(), Event{}, []float64{5.0, 2.1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty event: got %v, want ErrInvalidArgument", err)
	}
	if _, err := NewFORM(nil, Config{}, event, []float64{5.0, 2.1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero config: got %v, want ErrInvalidArgument", err)
	}

	narrow, err := NewSymbolicFunction([]string{"a"}, []string{"y"}, []string{"a"})
	if err != nil {
		t.Fatalf("NewSymbolicFunction: %v", err)
	}
	badOperator := parabolaEvent(t, 0)
	badOperator.Operator = Operator(9)
	mismatch := parabolaEvent(t, 0)
	mismatch.Function = narrow
	nanThreshold := parabolaEvent(t, 0)
	nanThreshold.Threshold = math.NaN()

	for name, ev := range map[string]Event{
		"unknown operator":   badOperator,
		"dimension mismatch": mismatch,
		"NaN threshold":      nanThreshold,
	} {
		if _, err := NewFORM(nil, DefaultConfig(), ev, []float64{5.0, 2.1}); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: got %v, want ErrInvalidArgument", name, err)
		}
		if _, err := NewLimitState(ev); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: NewLimitState got %v, want ErrInvalidArgument", name, err)
		}
	}
}

// TestNewResult_ZeroGradient verifies a flat limit state at the design point
// is reported instead of yielding NaN importance factors.
func TestNewResult_ZeroGradient(t *testing.T) {
	event := parabolaEvent(t, 0)
	flat, err := NewSymbolicFunction([]string{"x0", "x1"}, []string{"g"}, []string{"0 * x0 + 0 * x1 + 1"})
	if err != nil {
		t.Fatalf("NewSymbolicFunction: %v", err)
	}
	event.Function = flat
	ls, err := NewLimitState(event)
	if err != nil {
		t.Fatalf("NewLimitState failed: %v", err)
	}
	if _, err := newResult(ls, NearestPoint{Point: []float64{1, 0}, Converged: true}); !errors.Is(err, ErrNumericalInstability) {
		t.Errorf("got %v, want ErrNumericalInstability", err)
	}
}

// TestFORM_StartOutsideSupport verifies the start point is checked against
// the input distribution.
func TestFORM_StartOutsideSupport(t *testing.T) {
	joint := mustJoint(t, []distribution.Marginal{mustMarginal(t)(distribution.NewUniform(0, 1))}, nil)
	g, err := NewSymbolicFunction([]string{"x"}, []string{"y"}, []string{"x"})
	if err != nil {
		t.Fatalf("NewSymbolicFunction: %v", err)
	}
	event, err := NewEvent(g, NewRandomVector(joint), Greater, 0.9)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	form, err := NewFORM(nil, DefaultConfig(), event, []float64{2})
	if err != nil {
		t.Fatalf("NewFORM failed: %v", err)
	}
	if err := form.Run(context.Background()); !errors.Is(err, ErrOutOfDomain) {
		t.Errorf("Run: got %v, want ErrOutOfDomain", err)
	}
	if form.State() != StateFailed {
		t.Errorf("state = %s, want %s", form.State(), StateFailed)
	}
}

// TestFORM_Series verifies the plotting data.
func TestFORM_Series(t *testing.T) {
	res := runFORM(t, nil, tightConfig(t, 200, 1e-10), parabolaEvent(t, 0), []float64{5.0, 2.1})

	pie := res.ImportanceFactorSeries()
	if diff := cmp.Diff([]string{"x0", "x1"}, pie.Names); diff != "" {
		t.Errorf("importance factor names (-want +got):\n%s", diff)
	}
	if len(pie.Points) != 2 {
		t.Errorf("%d importance points, want 2", len(pie.Points))
	}

	errs := res.ErrorHistorySeries()
	if len(errs) != 4 {
		t.Fatalf("%d error series, want 4", len(errs))
	}
	for _, s := range errs {
		if len(s.Points) != len(res.ErrorHistory()) {
			t.Errorf("%s has %d points, want %d", s.Label, len(s.Points), len(res.ErrorHistory()))
		}
	}

	sens, err := res.HasoferSensitivitySeries()
	if err != nil {
		t.Fatalf("HasoferSensitivitySeries failed: %v", err)
	}
	if len(sens) != 2 {
		t.Fatalf("%d sensitivity series, want 2", len(sens))
	}
	wantNames := []string{"x0.mu", "x0.sigma", "x1.mu", "x1.sigma"}
	if diff := cmp.Diff(wantNames, sens[0].Names); diff != "" {
		t.Errorf("marginal sensitivity names (-want +got):\n%s", diff)
	}
	if len(sens[1].Points) != 0 {
		t.Errorf("independent copula has %d dependence points", len(sens[1].Points))
	}

	pfSens, err := res.EventProbabilitySensitivitySeries()
	if err != nil {
		t.Fatalf("EventProbabilitySensitivitySeries failed: %v", err)
	}
	if len(pfSens[0].Points) != len(sens[0].Points) {
		t.Errorf("%d probability points, want %d", len(pfSens[0].Points), len(sens[0].Points))
	}
}
