package reliability

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ParameterSensitivity holds the derivatives for one parameter group.
type ParameterSensitivity struct {
	Group  string
	Names  []string
	Values []float64
}

// Sensitivity is a derivative with respect to every distribution parameter,
// grouped by marginal with the dependence parameters last.
type Sensitivity struct {
	Marginals  []ParameterSensitivity
	Dependence ParameterSensitivity
}

// Groups returns the marginal groups followed by the dependence group.
func (s Sensitivity) Groups() []ParameterSensitivity {
	return append(append([]ParameterSensitivity(nil), s.Marginals...), s.Dependence)
}

func (s Sensitivity) scale(c float64) Sensitivity {
	scaled := func(p ParameterSensitivity) ParameterSensitivity {
		v := append([]float64(nil), p.Values...)
		floats.Scale(c, v)
		return ParameterSensitivity{Group: p.Group, Names: p.Names, Values: v}
	}
	out := Sensitivity{Dependence: scaled(s.Dependence)}
	for _, m := range s.Marginals {
		out.Marginals = append(out.Marginals, scaled(m))
	}
	return out
}

// HasoferReliabilityIndexSensitivity returns dβ/dθ at the fixed design point:
//
//	dβ/dθ = s·(u*/β)ᵀ ∂T(x*;θ)/∂θ
//
// with s = −1 when the origin lies in the failure domain.
func (r *Result) HasoferReliabilityIndexSensitivity() (Sensitivity, error) {
	if r.beta == 0 {
		return Sensitivity{}, fmt.Errorf("design point at the origin: %w", ErrNumericalInstability)
	}
	grads, err := r.limitState.Transform().ParameterGradient(r.design.Physical)
	if err != nil {
		return Sensitivity{}, fmt.Errorf("parameter gradient at the design point: %w", err)
	}
	dir := append([]float64(nil), r.design.Standard...)
	floats.Scale(1/r.beta, dir)
	if r.originFails {
		floats.Scale(-1, dir)
	}

	var s Sensitivity
	for i, g := range grads {
		ps := ParameterSensitivity{Group: g.Group, Names: g.Names, Values: make([]float64, len(g.Rows))}
		for p, row := range g.Rows {
			ps.Values[p] = floats.Dot(dir, row)
		}
		if !allFinite(ps.Values) {
			return Sensitivity{}, fmt.Errorf("sensitivity of %s: %w", g.Group, ErrNumericalInstability)
		}
		if i == len(grads)-1 {
			s.Dependence = ps
		} else {
			s.Marginals = append(s.Marginals, ps)
		}
	}
	return s, nil
}

// EventProbabilitySensitivity returns dPf/dθ = −φ(β)·dβ/dθ.
func (r *Result) EventProbabilitySensitivity() (Sensitivity, error) {
	s, err := r.HasoferReliabilityIndexSensitivity()
	if err != nil {
		return Sensitivity{}, err
	}
	return s.scale(-distuv.UnitNormal.Prob(r.beta)), nil
}
