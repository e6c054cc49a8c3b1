// Package distribution provides the probabilistic collaborators of the FORM
// engine: univariate marginals, copulas and the joint distribution that glues
// them together.
//
// The package is deliberately small. It covers the families a reliability
// study usually needs and nothing more:
//
//	Marginals: Normal, Uniform, Exponential, LogNormal, Gumbel, Triangular, Weibull
//	Copulas:   Independent, Normal (Gaussian), Clayton, Gumbel
//
// Univariate evaluation is delegated to gonum's distuv. Copulas are closed form
// where one exists and return ErrUnsupported otherwise.
package distribution

import (
	"errors"
	"math/rand/v2"
)

var (
	// ErrOutOfDomain is returned when a point lies outside the support or a
	// probability lies outside [0, 1].
	ErrOutOfDomain = errors.New("point outside the distribution domain")

	// ErrInvalidParameter is returned by constructors for illegal parameters.
	ErrInvalidParameter = errors.New("invalid distribution parameter")

	// ErrDimension is returned when a point does not match the dimension.
	ErrDimension = errors.New("dimension mismatch")

	// ErrUnsupported is returned when a family has no closed form for the
	// requested operation or dimension.
	ErrUnsupported = errors.New("operation not supported by this family")
)

// Parameter is a named scalar parameter of a marginal or copula.
type Parameter struct {
	Name  string
	Value float64
}

// Values extracts the values of params in order.
func Values(params []Parameter) []float64 {
	out := make([]float64, len(params))
	for i, p := range params {
		out[i] = p.Value
	}
	return out
}

// Distribution is the multivariate contract the transform consumes.
//
// Conditional operations refer to component k = len(y): the distribution of
// X_k given X_0..X_{k-1} = y.
type Distribution interface {
	Dimension() int
	PDF(x []float64) (float64, error)
	CDF(x []float64) (float64, error)

	// Quantile returns the point x on the copula diagonal with CDF(x) = p.
	Quantile(p float64) ([]float64, error)

	ConditionalPDF(x float64, y []float64) (float64, error)
	ConditionalCDF(x float64, y []float64) (float64, error)
	ConditionalQuantile(q float64, y []float64) (float64, error)

	Marginals() []Marginal
	Copula() Copula
	Marginal(indices ...int) (Distribution, error)
	Parameters() [][]Parameter
	Description() []string
	Sample(src rand.Source, n int) [][]float64
}
