package reliability

import (
	"fmt"
	"math"

	"github.com/alexshd/reliability/distribution"
)

// Operator compares the performance output with the threshold.
type Operator int

const (
	Less Operator = iota
	LessOrEqual
	Greater
	GreaterOrEqual
)

func (o Operator) String() string {
	switch o {
	case Less:
		return "<"
	case LessOrEqual:
		return "<="
	case Greater:
		return ">"
	case GreaterOrEqual:
		return ">="
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator accepts "<", "<=", ">", ">=" and their names.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "<", "less", "Less":
		return Less, nil
	case "<=", "lessOrEqual", "LessOrEqual":
		return LessOrEqual, nil
	case ">", "greater", "Greater":
		return Greater, nil
	case ">=", "greaterOrEqual", "GreaterOrEqual":
		return GreaterOrEqual, nil
	}
	return 0, fmt.Errorf("operator %q: %w", s, ErrInvalidArgument)
}

// Compare reports whether a op b holds.
func (o Operator) Compare(a, b float64) bool {
	switch o {
	case Less:
		return a < b
	case LessOrEqual:
		return a <= b
	case Greater:
		return a > b
	case GreaterOrEqual:
		return a >= b
	}
	return false
}

// sign is s in G = s·(g - threshold): failure is G < 0 in every case.
func (o Operator) sign() float64 {
	if o == Greater || o == GreaterOrEqual {
		return -1
	}
	return 1
}

func (o Operator) strict() bool { return o == Less || o == Greater }

// RandomVector is the physical input of a study.
type RandomVector struct {
	Distribution distribution.Distribution
}

// NewRandomVector wraps a joint distribution as a study input.
func NewRandomVector(d distribution.Distribution) RandomVector {
	return RandomVector{Distribution: d}
}

// Dimension is the number of components.
func (r RandomVector) Dimension() int { return r.Distribution.Dimension() }

// Names returns the component descriptions.
func (r RandomVector) Names() []string { return r.Distribution.Description() }

// Event is {x : g(x) op threshold} for a scalar performance function.
type Event struct {
	Function  PerformanceFunction
	Input     RandomVector
	Operator  Operator
	Threshold float64
}

// NewEvent validates that f consumes the random vector and has one output.
func NewEvent(f PerformanceFunction, input RandomVector, op Operator, threshold float64) (Event, error) {
	e := Event{Function: f, Input: input, Operator: op, Threshold: threshold}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate applies the checks of NewEvent to an event built as a literal.
func (e Event) Validate() error {
	switch {
	case e.Function == nil || e.Input.Distribution == nil:
		return fmt.Errorf("event needs a function and an input distribution: %w", ErrInvalidArgument)
	case len(e.Function.InputNames()) != e.Input.Dimension():
		return fmt.Errorf("function takes %d inputs, distribution has dimension %d: %w",
			len(e.Function.InputNames()), e.Input.Dimension(), ErrInvalidArgument)
	case len(e.Function.OutputNames()) != 1:
		return fmt.Errorf("event function must have one output, has %d: %w", len(e.Function.OutputNames()), ErrInvalidArgument)
	case e.Operator < Less || e.Operator > GreaterOrEqual:
		return fmt.Errorf("operator %v: %w", e.Operator, ErrInvalidArgument)
	case math.IsNaN(e.Threshold) || math.IsInf(e.Threshold, 0):
		return fmt.Errorf("threshold %g: %w", e.Threshold, ErrInvalidArgument)
	}
	return nil
}

// Performance evaluates g(x).
func (e Event) Performance(x []float64) (float64, error) {
	var y [1]float64
	if err := e.Function.Evaluate(y[:], x); err != nil {
		return 0, err
	}
	return y[0], nil
}

// Occurs reports whether the event holds at the physical point x.
func (e Event) Occurs(x []float64) (bool, error) {
	g, err := e.Performance(x)
	if err != nil {
		return false, err
	}
	return e.Operator.Compare(g, e.Threshold), nil
}

func (e Event) String() string {
	return fmt.Sprintf("%v %v %g", e.Function.OutputNames(), e.Operator, e.Threshold)
}
