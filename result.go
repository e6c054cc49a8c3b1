package reliability

import (
	"fmt"
	"math"
	"strings"

	"github.com/alexshd/reliability/optim"
	"gonum.org/v1/gonum/floats"
)

// DesignPoint is the converged nearest point in both spaces.
type DesignPoint struct {
	Standard []float64
	Physical []float64
}

// Result is an immutable snapshot of a converged FORM run.
type Result struct {
	limitState  *LimitState
	design      DesignPoint
	gradient    []float64
	beta        float64
	generalised float64
	pf          float64
	originFails bool
	history     []optim.Iteration
	solverEvals int
	values      int
	gradients   int
}

// DesignPoint returns copies of u* and x*.
func (r *Result) DesignPoint() DesignPoint {
	return DesignPoint{
		Standard: append([]float64(nil), r.design.Standard...),
		Physical: append([]float64(nil), r.design.Physical...),
	}
}

// HasoferReliabilityIndex is β = ‖u*‖.
func (r *Result) HasoferReliabilityIndex() float64 { return r.beta }

// GeneralisedReliabilityIndex is β, negated when the origin of standard
// space lies in the failure domain.
func (r *Result) GeneralisedReliabilityIndex() float64 { return r.generalised }

// EventProbability is Φ(−β), or Φ(β) when the origin is in the failure domain.
func (r *Result) EventProbability() float64 { return r.pf }

// IsStandardPointOriginInFailureSpace reports the orientation used for the
// probability.
func (r *Result) IsStandardPointOriginInFailureSpace() bool { return r.originFails }

// Evaluations is the number of limit-state values computed by the solver.
func (r *Result) Evaluations() int { return r.solverEvals }

// Calls returns the limit-state value and gradient calls of the whole run,
// including the post-processing at the design point.
func (r *Result) Calls() (values, gradients int) { return r.values, r.gradients }

// Names returns the input component names.
func (r *Result) Names() []string { return r.limitState.Event().Input.Names() }

// direction is α = ∇G/‖∇G‖ oriented so that α·u* ≥ 0.
func (r *Result) direction() []float64 {
	alpha := append([]float64(nil), r.gradient...)
	floats.Scale(1/floats.Norm(alpha, 2), alpha)
	if floats.Dot(alpha, r.design.Standard) < 0 {
		floats.Scale(-1, alpha)
	}
	return alpha
}

// ImportanceFactors returns α_i². The factors are non-negative and sum to 1.
func (r *Result) ImportanceFactors() []float64 {
	alpha := r.direction()
	for i, a := range alpha {
		alpha[i] = a * a
	}
	return alpha
}

// SignedImportanceFactors returns sign(α_i)·α_i² with α oriented along u*.
func (r *Result) SignedImportanceFactors() []float64 {
	alpha := r.direction()
	for i, a := range alpha {
		alpha[i] = math.Copysign(a*a, a)
	}
	return alpha
}

// ErrorHistory returns the solver's iteration records.
func (r *Result) ErrorHistory() []optim.Iteration {
	return append([]optim.Iteration(nil), r.history...)
}

func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "beta=%.6g pf=%.6g u*=%v x*=%v", r.beta, r.pf, r.design.Standard, r.design.Physical)
	if r.originFails {
		b.WriteString(" (origin in failure domain)")
	}
	return b.String()
}
