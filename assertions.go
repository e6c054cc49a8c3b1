package reliability

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// AssertionConfig contains tolerances for FORM result properties.
type AssertionConfig struct {
	// Importance factors must sum to 1 within this
	FactorTolerance float64

	// |G(u*)| must be below this
	SurfaceTolerance float64

	// 1 - |cos(u*, ∇G)| must be below this
	AlignmentTolerance float64
}

// DefaultAssertionConfig returns conservative tolerances.
func DefaultAssertionConfig() AssertionConfig {
	return AssertionConfig{
		FactorTolerance:    1e-6,
		SurfaceTolerance:   1e-6,
		AlignmentTolerance: 1e-6,
	}
}

// AssertImportanceFactors verifies the factors are non-negative and sum to 1.
func AssertImportanceFactors(t *testing.T, r *Result, cfg AssertionConfig) {
	t.Helper()

	factors := r.ImportanceFactors()
	for i, f := range factors {
		if f < 0 || f > 1 {
			t.Errorf("Importance factor %d out of [0,1]: %.6g", i, f)
		}
	}
	if sum := floats.Sum(factors); math.Abs(sum-1) > cfg.FactorTolerance {
		t.Errorf("Importance factors sum to %.12f (tolerance: %.1e)", sum, cfg.FactorTolerance)
	}

	t.Logf("✓ Importance factors: %v", factors)
}

// AssertProbabilityBounds verifies β ≥ 0 and Pf in [0,1].
func AssertProbabilityBounds(t *testing.T, r *Result) {
	t.Helper()

	beta, pf := r.HasoferReliabilityIndex(), r.EventProbability()
	if beta < 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		t.Errorf("Reliability index not a non-negative finite number: β = %g", beta)
	}
	if pf < 0 || pf > 1 || math.IsNaN(pf) {
		t.Errorf("Event probability outside [0,1]: Pf = %g", pf)
	}

	t.Logf("✓ β = %.6f, Pf = %.6g", beta, pf)
}

// AssertDesignPoint verifies u* lies on the limit-state surface and is
// aligned with the gradient there, the first-order optimality condition of
// the nearest-point problem.
//
//	G(u*) = 0,   u* ∥ ∇G(u*)
func AssertDesignPoint(t *testing.T, r *Result, cfg AssertionConfig) {
	t.Helper()

	u := r.design.Standard
	g, err := r.limitState.Value(u)
	if err != nil {
		t.Fatalf("Failed to evaluate limit state at design point: %v", err)
	}
	if math.Abs(g) > cfg.SurfaceTolerance {
		t.Errorf("Design point off the surface: G(u*) = %.3e (tolerance: %.1e)", g, cfg.SurfaceTolerance)
	}

	if r.beta > 0 {
		cos := math.Abs(floats.Dot(u, r.gradient)) / (r.beta * floats.Norm(r.gradient, 2))
		if 1-cos > cfg.AlignmentTolerance {
			t.Errorf("Design point not aligned with the gradient: 1-cos = %.3e (tolerance: %.1e)",
				1-cos, cfg.AlignmentTolerance)
		}
	}

	t.Logf("✓ Design point: u* = %v, G(u*) = %.3e", u, g)
}

// AssertMonotoneIndex verifies that β does not decrease along a batch whose
// events become rarer from one study to the next.
func AssertMonotoneIndex(t *testing.T, results []BatchResult) {
	t.Helper()

	prev := math.Inf(-1)
	for _, br := range results {
		if br.Result == nil {
			t.Errorf("Study %s did not converge: %v", br.Name, br.Err)
			continue
		}
		beta := br.Result.GeneralisedReliabilityIndex()
		if beta < prev-1e-9 {
			t.Errorf("Reliability index decreased at %s: %.6f < %.6f", br.Name, beta, prev)
		}
		prev = beta
	}

	t.Logf("✓ Reliability index non-decreasing over %d studies", len(results))
}

// AssertFORM runs all result assertions with default config.
func AssertFORM(t *testing.T, r *Result) {
	t.Helper()

	cfg := DefaultAssertionConfig()

	t.Run("ImportanceFactors", func(t *testing.T) {
		AssertImportanceFactors(t, r, cfg)
	})

	t.Run("ProbabilityBounds", func(t *testing.T) {
		AssertProbabilityBounds(t, r)
	})

	t.Run("DesignPoint", func(t *testing.T) {
		AssertDesignPoint(t, r, cfg)
	})
}

// PrintAnalysis outputs the FORM result to the test log.
func PrintAnalysis(t *testing.T, r *Result) {
	t.Helper()

	dp := r.DesignPoint()
	t.Logf("\n=== FORM Analysis ===")
	t.Logf("  β (Hasofer-Lind)  = %.6f", r.HasoferReliabilityIndex())
	t.Logf("  β (generalised)   = %.6f", r.GeneralisedReliabilityIndex())
	t.Logf("  Pf                = %.6g", r.EventProbability())
	t.Logf("  u*                = %v", dp.Standard)
	t.Logf("  x*                = %v", dp.Physical)

	t.Logf("\nImportance factors:")
	names := r.Names()
	for i, f := range r.SignedImportanceFactors() {
		t.Logf("  %-8s %+8.4f", names[i], f)
	}

	t.Logf("\nConvergence:")
	t.Logf("  iter  abs          rel          res          con")
	for _, it := range r.ErrorHistory() {
		t.Logf("  %-4d  %.3e    %.3e    %.3e    %.3e",
			it.Index, it.AbsoluteError, it.RelativeError, it.ResidualError, it.ConstraintError)
	}

	if r.IsStandardPointOriginInFailureSpace() {
		t.Logf("\n  ⚠ Origin lies in the failure domain: Pf = Φ(β)")
	}
}
