package distribution

import (
	"fmt"
	"math/rand/v2"
)

// Joint is a multivariate distribution assembled from marginals and a copula
// by Sklar's theorem:
//
//	F(x) = C(F_1(x_1), ..., F_d(x_d))
//
// A Joint is immutable. Every "With" method returns a new value.
type Joint struct {
	marginals   []Marginal
	copula      Copula
	description []string
}

var _ Distribution = (*Joint)(nil)

// NewJoint builds a joint distribution. A nil copula means independence.
func NewJoint(marginals []Marginal, copula Copula) (*Joint, error) {
	if len(marginals) == 0 {
		return nil, fmt.Errorf("joint distribution without marginals: %w", ErrInvalidParameter)
	}
	if copula == nil {
		copula = Independent{dim: len(marginals)}
	}
	if copula.Dimension() != len(marginals) {
		return nil, fmt.Errorf("copula of dimension %d for %d marginals: %w", copula.Dimension(), len(marginals), ErrDimension)
	}
	desc := make([]string, len(marginals))
	for i := range desc {
		desc[i] = fmt.Sprintf("X%d", i)
	}
	return &Joint{
		marginals:   append([]Marginal(nil), marginals...),
		copula:      copula,
		description: desc,
	}, nil
}

// WithDescription returns a copy with component names. It panics if the
// number of names does not match the dimension.
func (j *Joint) WithDescription(names ...string) *Joint {
	if len(names) != j.Dimension() {
		panic(fmt.Sprintf("distribution: %d names for dimension %d", len(names), j.Dimension()))
	}
	out := *j
	out.description = append([]string(nil), names...)
	return &out
}

// WithMarginal returns a copy with component i replaced.
func (j *Joint) WithMarginal(i int, m Marginal) (*Joint, error) {
	if i < 0 || i >= j.Dimension() {
		return nil, fmt.Errorf("marginal index %d: %w", i, ErrDimension)
	}
	out := *j
	out.marginals = append([]Marginal(nil), j.marginals...)
	out.marginals[i] = m
	return &out, nil
}

// WithCopula returns a copy with the dependence structure replaced.
func (j *Joint) WithCopula(c Copula) (*Joint, error) {
	if c.Dimension() != j.Dimension() {
		return nil, fmt.Errorf("copula of dimension %d for %d marginals: %w", c.Dimension(), j.Dimension(), ErrDimension)
	}
	out := *j
	out.copula = c
	return &out, nil
}

func (j *Joint) Dimension() int        { return len(j.marginals) }
func (j *Joint) Copula() Copula        { return j.copula }
func (j *Joint) Marginals() []Marginal { return append([]Marginal(nil), j.marginals...) }
func (j *Joint) Description() []string { return append([]string(nil), j.description...) }

func (j *Joint) check(x []float64) error {
	if len(x) != j.Dimension() {
		return fmt.Errorf("point of size %d for dimension %d: %w", len(x), j.Dimension(), ErrDimension)
	}
	return nil
}

func (j *Joint) uniforms(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		u[i] = j.marginals[i].CDF(v)
	}
	return u
}

// PDF is c(F(x)) Π f_i(x_i).
func (j *Joint) PDF(x []float64) (float64, error) {
	if err := j.check(x); err != nil {
		return 0, err
	}
	p := 1.0
	for i, v := range x {
		p *= j.marginals[i].PDF(v)
	}
	if p == 0 {
		return 0, nil
	}
	c, err := j.copula.PDF(j.uniforms(x))
	if err != nil {
		return 0, err
	}
	return c * p, nil
}

func (j *Joint) CDF(x []float64) (float64, error) {
	if err := j.check(x); err != nil {
		return 0, err
	}
	return j.copula.CDF(j.uniforms(x))
}

// Quantile returns x_i = F_i⁻¹(t) where t is the copula diagonal quantile
// of p, so that CDF(x) = p.
func (j *Joint) Quantile(p float64) ([]float64, error) {
	if !inUnit(p) {
		return nil, fmt.Errorf("p=%g: %w", p, ErrOutOfDomain)
	}
	t, err := j.copula.DiagonalQuantile(p)
	if err != nil {
		return nil, err
	}
	x := make([]float64, j.Dimension())
	for i, m := range j.marginals {
		x[i] = m.Quantile(t)
	}
	return x, nil
}

func (j *Joint) conditioning(y []float64) ([]float64, error) {
	if len(y) >= j.Dimension() {
		return nil, fmt.Errorf("conditioning on %d components of dimension %d: %w", len(y), j.Dimension(), ErrDimension)
	}
	return j.uniforms(y), nil
}

// ConditionalPDF is the density of X_k at x given X_<k = y, k = len(y).
func (j *Joint) ConditionalPDF(x float64, y []float64) (float64, error) {
	u, err := j.conditioning(y)
	if err != nil {
		return 0, err
	}
	m := j.marginals[len(y)]
	f := m.PDF(x)
	if f == 0 {
		return 0, nil
	}
	c, err := j.copula.ConditionalPDF(m.CDF(x), u)
	if err != nil {
		return 0, err
	}
	return c * f, nil
}

func (j *Joint) ConditionalCDF(x float64, y []float64) (float64, error) {
	u, err := j.conditioning(y)
	if err != nil {
		return 0, err
	}
	return j.copula.ConditionalCDF(j.marginals[len(y)].CDF(x), u)
}

func (j *Joint) ConditionalQuantile(q float64, y []float64) (float64, error) {
	u, err := j.conditioning(y)
	if err != nil {
		return 0, err
	}
	v, err := j.copula.ConditionalQuantile(q, u)
	if err != nil {
		return 0, err
	}
	return j.marginals[len(y)].Quantile(v), nil
}

// Marginal extracts the sub-distribution of the given components.
func (j *Joint) Marginal(indices ...int) (Distribution, error) {
	c, err := j.copula.Marginal(indices...)
	if err != nil {
		return nil, err
	}
	ms := make([]Marginal, len(indices))
	names := make([]string, len(indices))
	for k, i := range indices {
		ms[k] = j.marginals[i]
		names[k] = j.description[i]
	}
	out, err := NewJoint(ms, c)
	if err != nil {
		return nil, err
	}
	return out.WithDescription(names...), nil
}

// Parameters returns one group per marginal followed by the copula group.
func (j *Joint) Parameters() [][]Parameter {
	out := make([][]Parameter, 0, j.Dimension()+1)
	for _, m := range j.marginals {
		out = append(out, m.Parameters())
	}
	return append(out, j.copula.Parameters())
}

// Sample draws n points from the copula and maps them through the marginal
// quantiles.
func (j *Joint) Sample(src rand.Source, n int) [][]float64 {
	out := make([][]float64, n)
	for k := range out {
		u := j.copula.Sample(src)
		x := make([]float64, len(u))
		for i, v := range u {
			x[i] = j.marginals[i].Quantile(v)
		}
		out[k] = x
	}
	return out
}

// Mean returns the vector of marginal means.
func (j *Joint) Mean() []float64 {
	out := make([]float64, j.Dimension())
	for i, m := range j.marginals {
		out[i] = m.Mean()
	}
	return out
}

// IsIndependent reports whether the copula is the product copula.
func (j *Joint) IsIndependent() bool {
	switch c := j.copula.(type) {
	case Independent:
		return true
	case GumbelCopula:
		return c.theta == 1
	}
	return false
}

func (j *Joint) String() string {
	s := fmt.Sprintf("Joint(%s copula", j.copula.Name())
	for i, m := range j.marginals {
		s += fmt.Sprintf(", %s=%s%v", j.description[i], m.Name(), Values(m.Parameters()))
	}
	return s + ")"
}
