package reliability

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/alexshd/reliability/optim"
	"gonum.org/v1/gonum/mat"
)

// LimitState is the event seen from standard space:
//
//	G(u) = s·(g(T⁻¹(u)) − threshold)
//
// with s = −1 for Greater and GreaterOrEqual. The event occurs iff G < 0
// (G ≤ 0 for the non-strict operators).
type LimitState struct {
	event     Event
	transform *Transform
	sign      float64

	evaluations atomic.Int64
	gradients   atomic.Int64
}

// NewLimitState builds the adapter for event.
func NewLimitState(event Event) (*LimitState, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	t, err := NewTransform(event.Input.Distribution)
	if err != nil {
		return nil, err
	}
	return &LimitState{event: event, transform: t, sign: event.Operator.sign()}, nil
}

// Event returns the event whose failure surface is G = 0.
func (l *LimitState) Event() Event { return l.event }

// Transform returns the map between physical and standard space.
func (l *LimitState) Transform() *Transform { return l.transform }

// Dimension is the size of u.
func (l *LimitState) Dimension() int { return l.transform.Dimension() }

// Evaluations returns how many times G and ∇G have been computed.
func (l *LimitState) Evaluations() (values, gradients int) {
	return int(l.evaluations.Load()), int(l.gradients.Load())
}

// Value returns G(u).
func (l *LimitState) Value(u []float64) (float64, error) {
	l.evaluations.Add(1)
	x, err := l.transform.ToPhysical(u)
	if err != nil {
		return 0, err
	}
	g, err := l.event.Performance(x)
	if err != nil {
		return 0, fmt.Errorf("performance at %v: %w", x, err)
	}
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return 0, fmt.Errorf("performance at %v is %g: %w", x, g, ErrNumericalInstability)
	}
	return l.sign * (g - l.event.Threshold), nil
}

// Gradient stores ∇_u G = s·(∂x/∂u)ᵀ∇_x g in dst.
func (l *LimitState) Gradient(dst, u []float64) error {
	l.gradients.Add(1)
	if len(dst) != l.Dimension() {
		return fmt.Errorf("gradient buffer of size %d: %w", len(dst), ErrInvalidArgument)
	}
	x, err := l.transform.ToPhysical(u)
	if err != nil {
		return err
	}
	gx, err := gradient(l.event.Function, 0, x)
	if err != nil {
		return fmt.Errorf("performance gradient at %v: %w", x, err)
	}
	jac, err := l.transform.InverseJacobian(u)
	if err != nil {
		return err
	}
	var v mat.VecDense
	v.MulVec(jac.T(), mat.NewVecDense(len(gx), gx))
	for i := range dst {
		dst[i] = l.sign * v.AtVec(i)
	}
	if !allFinite(dst) {
		return fmt.Errorf("gradient at %v: %w", u, ErrNumericalInstability)
	}
	return nil
}

// InFailureDomain reports whether the event occurs at the standard point u.
func (l *LimitState) InFailureDomain(u []float64) (bool, error) {
	g, err := l.Value(u)
	if err != nil {
		return false, err
	}
	if l.event.Operator.strict() {
		return g < 0, nil
	}
	return g <= 0, nil
}

// Problem exposes the adapter to the optim solvers. The Hessian is left to
// the solver's finite differences of Gradient.
func (l *LimitState) Problem() optim.Problem {
	return optim.Problem{
		Dimension:  l.Dimension(),
		Constraint: l.Value,
		Gradient:   l.Gradient,
	}
}
