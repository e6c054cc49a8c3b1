package reliability

import (
	"errors"
	"math"
	"testing"

	"github.com/alexshd/reliability/distribution"
	"gonum.org/v1/gonum/stat/distuv"
)

// TestSensitivity_LinearNormal checks dβ/dθ against the closed form
// β = (μR - μS)/sqrt(σR² + σS²).
func TestSensitivity_LinearNormal(t *testing.T) {
	res := runFORM(t, nil, tightConfig(t, 100, 1e-10), linearEvent(t, Less, 0), []float64{10, 4})

	s, err := res.HasoferReliabilityIndexSensitivity()
	if err != nil {
		t.Fatalf("HasoferReliabilityIndexSensitivity failed: %v", err)
	}
	if len(s.Marginals) != 2 {
		t.Fatalf("%d marginal groups, want 2", len(s.Marginals))
	}
	if s.Marginals[0].Group != "R" || s.Marginals[1].Group != "S" {
		t.Errorf("groups %s, %s, want R, S", s.Marginals[0].Group, s.Marginals[1].Group)
	}
	if len(s.Dependence.Values) != 0 {
		t.Errorf("independent copula has dependence sensitivities %v", s.Dependence.Values)
	}
	if n := len(s.Groups()); n != 3 {
		t.Errorf("%d groups, want 3", n)
	}

	// σ = 2.5, μR - μS = 6
	want := [][]float64{
		{0.4, -6 * 2 / 15.625},
		{-0.4, -6 * 1.5 / 15.625},
	}
	for g := range want {
		for p := range want[g] {
			got := s.Marginals[g].Values[p]
			if math.Abs(got-want[g][p]) > 1e-6 {
				t.Errorf("dβ/d%s.%s = %.8f, want %.8f", s.Marginals[g].Group, s.Marginals[g].Names[p], got, want[g][p])
			}
		}
	}

	pf, err := res.EventProbabilitySensitivity()
	if err != nil {
		t.Fatalf("EventProbabilitySensitivity failed: %v", err)
	}
	phi := distuv.UnitNormal.Prob(2.4)
	for g := range want {
		for p := range want[g] {
			got := pf.Marginals[g].Values[p]
			if math.Abs(got+phi*want[g][p]) > 1e-7 {
				t.Errorf("dPf/d%s.%s = %.8f, want %.8f", pf.Marginals[g].Group, pf.Marginals[g].Names[p], got, -phi*want[g][p])
			}
		}
	}
	t.Logf("✓ dβ/dθ = %v %v", s.Marginals[0].Values, s.Marginals[1].Values)
}

// TestSensitivity_Correlation checks the differenced dependence group
// against dβ/dρ = 18/(6.25 - 6ρ)^(3/2).
func TestSensitivity_Correlation(t *testing.T) {
	rho := 0.5
	res := runFORM(t, nil, tightConfig(t, 100, 1e-10), linearEvent(t, Less, rho), []float64{10, 4})

	s, err := res.HasoferReliabilityIndexSensitivity()
	if err != nil {
		t.Fatalf("HasoferReliabilityIndexSensitivity failed: %v", err)
	}
	if s.Dependence.Group != "dependence" || len(s.Dependence.Names) != 1 || s.Dependence.Names[0] != "R_0_1" {
		t.Fatalf("dependence group = %+v", s.Dependence)
	}
	want := 18 / math.Pow(6.25-6*rho, 1.5)
	if got := s.Dependence.Values[0]; math.Abs(got-want) > 1e-5 {
		t.Errorf("dβ/dρ = %.8f, want %.8f", got, want)
	}

	// The marginal means enter only through μR - μS.
	v := math.Sqrt(6.25 - 6*rho)
	if got := s.Marginals[0].Values[0]; math.Abs(got-1/v) > 1e-6 {
		t.Errorf("dβ/dμR = %.8f, want %.8f", got, 1/v)
	}
	t.Logf("✓ dβ/dρ = %.6f", s.Dependence.Values[0])
}

// TestSensitivity_MatchesRerun compares dβ/dθ at the design point with
// central differences of β over complete FORM runs.
func TestSensitivity_MatchesRerun(t *testing.T) {
	params := []float64{5.0, 3.3, 2.1, 3.0}
	beta := func(p []float64) float64 {
		joint := mustJoint(t, []distribution.Marginal{
			mustMarginal(t)(distribution.NewNormal(p[0], p[1])),
			mustMarginal(t)(distribution.NewNormal(p[2], p[3])),
		}, nil)
		event := parabolaEvent(t, 0)
		event.Input = NewRandomVector(joint)
		res := runFORM(t, nil, tightConfig(t, 200, 1e-11), event, []float64{p[0], p[2]})
		return res.HasoferReliabilityIndex()
	}

	res := runFORM(t, nil, tightConfig(t, 200, 1e-11), parabolaEvent(t, 0), []float64{5.0, 2.1})
	s, err := res.HasoferReliabilityIndexSensitivity()
	if err != nil {
		t.Fatalf("HasoferReliabilityIndexSensitivity failed: %v", err)
	}
	got := append(append([]float64(nil), s.Marginals[0].Values...), s.Marginals[1].Values...)

	const h = 1e-4
	for i := range params {
		up := append([]float64(nil), params...)
		down := append([]float64(nil), params...)
		up[i] += h
		down[i] -= h
		want := (beta(up) - beta(down)) / (2 * h)
		if math.Abs(got[i]-want) > 1e-5 {
			t.Errorf("parameter %d: dβ/dθ = %.8f, rerun differences %.8f", i, got[i], want)
		}
	}
	t.Logf("✓ dβ/dθ = %v", got)
}

// TestSensitivity_OriginInFailureDomain verifies the sign flip.
func TestSensitivity_OriginInFailureDomain(t *testing.T) {
	safe := runFORM(t, nil, tightConfig(t, 100, 1e-10), linearEvent(t, Less, 0), []float64{10, 4})
	failing := runFORM(t, nil, tightConfig(t, 100, 1e-10), linearEvent(t, Greater, 0), []float64{10, 4})

	a, err := safe.HasoferReliabilityIndexSensitivity()
	if err != nil {
		t.Fatalf("safe: %v", err)
	}
	b, err := failing.HasoferReliabilityIndexSensitivity()
	if err != nil {
		t.Fatalf("failing: %v", err)
	}
	for g := range a.Marginals {
		for p := range a.Marginals[g].Values {
			if math.Abs(a.Marginals[g].Values[p]+b.Marginals[g].Values[p]) > 1e-6 {
				t.Errorf("%s.%s: %.8f vs %.8f, want opposite signs", a.Marginals[g].Group, a.Marginals[g].Names[p],
					a.Marginals[g].Values[p], b.Marginals[g].Values[p])
			}
		}
	}
}

// TestSensitivity_DesignPointAtOrigin verifies the degenerate case is an
// error rather than a division by zero.
func TestSensitivity_DesignPointAtOrigin(t *testing.T) {
	event := linearEvent(t, Less, 0)
	event.Threshold = 6 // surface through the means
	res := runFORM(t, nil, tightConfig(t, 100, 1e-10), event, []float64{10, 4})

	if beta := res.HasoferReliabilityIndex(); beta > 1e-9 {
		t.Fatalf("β = %g, want 0", beta)
	}
	if _, err := res.HasoferReliabilityIndexSensitivity(); !errors.Is(err, ErrNumericalInstability) {
		t.Errorf("got %v, want ErrNumericalInstability", err)
	}
}
