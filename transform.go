package reliability

import (
	"fmt"
	"math"

	"github.com/alexshd/reliability/distribution"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

type transformKind int

const (
	independentTransform transformKind = iota
	natafTransform
	rosenblattTransform
)

func (k transformKind) String() string {
	switch k {
	case independentTransform:
		return "independent"
	case natafTransform:
		return "nataf"
	}
	return "rosenblatt"
}

// Transform is the iso-probabilistic map T between the physical space of a
// distribution and the standard normal space.
//
// The construction depends on the copula:
//
//	independent  u_i = Φ⁻¹(F_i(x_i))
//	normal       z_i = Φ⁻¹(F_i(x_i)), u = L⁻¹z with R = LLᵀ (Nataf)
//	other        u_k = Φ⁻¹(F(x_k | x_1..x_{k-1}))   (Rosenblatt)
//
// Jacobians are analytic for the first two and finite differences for
// Rosenblatt.
type Transform struct {
	dist      distribution.Distribution
	marginals []distribution.Marginal
	kind      transformKind
	l, linv   *mat.TriDense
}

// NewTransform picks the transform for dist.
func NewTransform(dist distribution.Distribution) (*Transform, error) {
	if dist == nil || dist.Dimension() < 1 {
		return nil, fmt.Errorf("transform needs a distribution: %w", ErrInvalidArgument)
	}
	t := &Transform{dist: dist, marginals: dist.Marginals()}
	switch c := dist.Copula().(type) {
	case distribution.Independent:
		t.kind = independentTransform
	case *distribution.NormalCopula:
		t.kind = natafTransform
		t.l = c.Cholesky()
		t.linv = mat.NewTriDense(dist.Dimension(), mat.Lower, nil)
		if err := t.linv.InverseTri(t.l); err != nil {
			return nil, fmt.Errorf("inverting the correlation factor: %w: %w", ErrNumericalInstability, err)
		}
	default:
		t.kind = rosenblattTransform
	}
	return t, nil
}

// Dimension is the size of x and u.
func (t *Transform) Dimension() int { return len(t.marginals) }

// Kind is "independent", "nataf" or "rosenblatt".
func (t *Transform) Kind() string { return t.kind.String() }

// Distribution returns the physical distribution.
func (t *Transform) Distribution() distribution.Distribution { return t.dist }

func (t *Transform) check(v []float64, space string) error {
	if len(v) != t.Dimension() {
		return fmt.Errorf("%s point of size %d for dimension %d: %w", space, len(v), t.Dimension(), ErrInvalidArgument)
	}
	for i, x := range v {
		if math.IsNaN(x) {
			return fmt.Errorf("%s point component %d is NaN: %w", space, i, ErrInvalidArgument)
		}
	}
	return nil
}

func probit(p float64, i int, x float64) (float64, error) {
	if !(p > 0 && p < 1) {
		return 0, fmt.Errorf("x[%d]=%g has probability %g: %w", i, x, p, ErrOutOfDomain)
	}
	return distuv.UnitNormal.Quantile(p), nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// score returns z = Φ⁻¹(F(x)).
func score(m distribution.Marginal, i int, x float64) (float64, error) {
	if s, ok := m.(distribution.NormalScorer); ok {
		z := s.NormalScore(x)
		if math.IsInf(z, 0) {
			return 0, fmt.Errorf("x[%d]=%g outside the support of %s: %w", i, x, m.Name(), ErrOutOfDomain)
		}
		return z, nil
	}
	return probit(m.CDF(x), i, x)
}

// unscore returns x = F⁻¹(Φ(z)).
func unscore(m distribution.Marginal, z float64) float64 {
	if s, ok := m.(distribution.NormalScorer); ok {
		return s.FromNormalScore(z)
	}
	return m.Quantile(distuv.UnitNormal.CDF(z))
}

func (t *Transform) scores(x []float64) ([]float64, error) {
	z := make([]float64, len(x))
	for i, m := range t.marginals {
		var err error
		if z[i], err = score(m, i, x[i]); err != nil {
			return nil, err
		}
	}
	return z, nil
}

// ToStandard maps a physical point to standard space.
func (t *Transform) ToStandard(x []float64) ([]float64, error) {
	if err := t.check(x, "physical"); err != nil {
		return nil, err
	}
	var u []float64
	switch t.kind {
	case independentTransform, natafTransform:
		z, err := t.scores(x)
		if err != nil {
			return nil, err
		}
		u = z
		if t.kind == natafTransform {
			var v mat.VecDense
			v.MulVec(t.linv, mat.NewVecDense(len(z), z))
			u = v.RawVector().Data
		}
	case rosenblattTransform:
		u = make([]float64, len(x))
		for k := range x {
			p, err := t.dist.ConditionalCDF(x[k], x[:k])
			if err != nil {
				return nil, fmt.Errorf("conditional CDF of component %d: %w", k, err)
			}
			if u[k], err = probit(p, k, x[k]); err != nil {
				return nil, err
			}
		}
	}
	if !allFinite(u) {
		return nil, fmt.Errorf("standard point %v: %w", u, ErrNumericalInstability)
	}
	return u, nil
}

// ToPhysical maps a standard point back to physical space.
func (t *Transform) ToPhysical(u []float64) ([]float64, error) {
	if err := t.check(u, "standard"); err != nil {
		return nil, err
	}
	x := make([]float64, len(u))
	switch t.kind {
	case independentTransform, natafTransform:
		z := u
		if t.kind == natafTransform {
			var v mat.VecDense
			v.MulVec(t.l, mat.NewVecDense(len(u), u))
			z = v.RawVector().Data
		}
		for i, m := range t.marginals {
			x[i] = unscore(m, z[i])
		}
	case rosenblattTransform:
		for k := range u {
			var err error
			x[k], err = t.dist.ConditionalQuantile(distuv.UnitNormal.CDF(u[k]), x[:k])
			if err != nil {
				return nil, fmt.Errorf("conditional quantile of component %d at u=%g: %w", k, u[k], err)
			}
		}
	}
	if !allFinite(x) {
		return nil, fmt.Errorf("physical point %v for u=%v: %w", x, u, ErrNumericalInstability)
	}
	return x, nil
}

// Jacobian returns ∂u/∂x at the physical point x.
func (t *Transform) Jacobian(x []float64) (*mat.Dense, error) {
	if err := t.check(x, "physical"); err != nil {
		return nil, err
	}
	n := t.Dimension()
	jac := mat.NewDense(n, n, nil)
	switch t.kind {
	case independentTransform, natafTransform:
		z, err := t.scores(x)
		if err != nil {
			return nil, err
		}
		d := make([]float64, n)
		for i, m := range t.marginals {
			d[i] = m.PDF(x[i]) / distuv.UnitNormal.Prob(z[i])
		}
		if t.kind == independentTransform {
			for i := range d {
				jac.Set(i, i, d[i])
			}
		} else {
			jac.Mul(t.linv, mat.NewDiagDense(n, d))
		}
	case rosenblattTransform:
		if err := t.differentiate(jac, t.ToStandard, x); err != nil {
			return nil, err
		}
	}
	if !allFinite(jac.RawMatrix().Data) {
		return nil, fmt.Errorf("jacobian at %v: %w", x, ErrNumericalInstability)
	}
	return jac, nil
}

// InverseJacobian returns ∂x/∂u at the standard point u.
func (t *Transform) InverseJacobian(u []float64) (*mat.Dense, error) {
	x, err := t.ToPhysical(u)
	if err != nil {
		return nil, err
	}
	n := t.Dimension()
	jac := mat.NewDense(n, n, nil)
	switch t.kind {
	case independentTransform, natafTransform:
		z := u
		if t.kind == natafTransform {
			var v mat.VecDense
			v.MulVec(t.l, mat.NewVecDense(n, u))
			z = v.RawVector().Data
		}
		d := make([]float64, n)
		for i, m := range t.marginals {
			f := m.PDF(x[i])
			if f == 0 {
				return nil, fmt.Errorf("zero density at x[%d]=%g: %w", i, x[i], ErrNumericalInstability)
			}
			d[i] = distuv.UnitNormal.Prob(z[i]) / f
		}
		if t.kind == independentTransform {
			for i := range d {
				jac.Set(i, i, d[i])
			}
		} else {
			jac.Mul(mat.NewDiagDense(n, d), t.l)
		}
	case rosenblattTransform:
		if err := t.differentiate(jac, t.ToPhysical, u); err != nil {
			return nil, err
		}
	}
	if !allFinite(jac.RawMatrix().Data) {
		return nil, fmt.Errorf("inverse jacobian at %v: %w", u, ErrNumericalInstability)
	}
	return jac, nil
}

func (t *Transform) differentiate(dst *mat.Dense, f func([]float64) ([]float64, error), at []float64) error {
	var evalErr error
	fd.Jacobian(dst, func(y, v []float64) {
		out, err := f(v)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return
		}
		copy(y, out)
	}, at, &fd.JacobianSettings{Formula: fd.Central})
	if evalErr != nil {
		return fmt.Errorf("finite-difference jacobian: %w", evalErr)
	}
	return nil
}

// ParameterGradient is ∂T(x;θ)/∂θ for one group of parameters.
// Rows[p][i] is ∂u_i/∂θ_p.
type ParameterGradient struct {
	Group string
	Names []string
	Rows  [][]float64
}

// ParameterGradient differentiates the standard point of x with respect to
// the distribution parameters. It returns one group per marginal followed by
// the dependence group, which is empty for the independent copula.
//
// Marginal parameters use the marginal's analytic CDF gradient when the
// transform is independent or Nataf; everything else is differenced.
func (t *Transform) ParameterGradient(x []float64) ([]ParameterGradient, error) {
	if err := t.check(x, "physical"); err != nil {
		return nil, err
	}
	names := t.dist.Description()
	out := make([]ParameterGradient, 0, t.Dimension()+1)
	for i, m := range t.marginals {
		g, err := t.marginalGradient(i, m, x)
		if err != nil {
			return nil, fmt.Errorf("marginal %s: %w", names[i], err)
		}
		g.Group = names[i]
		out = append(out, g)
	}

	cop := t.dist.Copula()
	dep := ParameterGradient{Group: "dependence", Names: parameterNames(cop.Parameters())}
	if len(dep.Names) > 0 {
		rows, err := t.differentiateParameters(x, distribution.Values(cop.Parameters()), func(theta []float64) (*Transform, error) {
			c, err := cop.WithParameters(theta)
			if err != nil {
				return nil, err
			}
			return t.rebuild(t.marginals, c)
		})
		if err != nil {
			return nil, fmt.Errorf("dependence: %w", err)
		}
		dep.Rows = rows
	}
	return append(out, dep), nil
}

func parameterNames(ps []distribution.Parameter) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func (t *Transform) rebuild(ms []distribution.Marginal, c distribution.Copula) (*Transform, error) {
	j, err := distribution.NewJoint(ms, c)
	if err != nil {
		return nil, classify(err)
	}
	return NewTransform(j)
}

func (t *Transform) marginalGradient(i int, m distribution.Marginal, x []float64) (ParameterGradient, error) {
	params := m.Parameters()
	g := ParameterGradient{Names: parameterNames(params)}

	if t.kind == rosenblattTransform {
		rows, err := t.differentiateParameters(x, distribution.Values(params), func(theta []float64) (*Transform, error) {
			perturbed, err := m.WithParameters(theta)
			if err != nil {
				return nil, classify(err)
			}
			ms := append([]distribution.Marginal(nil), t.marginals...)
			ms[i] = perturbed
			return t.rebuild(ms, t.dist.Copula())
		})
		g.Rows = rows
		return g, err
	}

	dF, err := cdfParameterGradient(m, x[i])
	if err != nil {
		return g, err
	}
	z, err := score(m, i, x[i])
	if err != nil {
		return g, err
	}
	phi := distuv.UnitNormal.Prob(z)
	g.Rows = make([][]float64, len(params))
	for p := range params {
		row := make([]float64, t.Dimension())
		dz := dF[p] / phi
		if t.kind == independentTransform {
			row[i] = dz
		} else {
			for r := range row {
				row[r] = t.linv.At(r, i) * dz
			}
		}
		g.Rows[p] = row
	}
	return g, nil
}

// cdfParameterGradient returns ∂F(x;θ)/∂θ, analytic when available.
func cdfParameterGradient(m distribution.Marginal, x float64) ([]float64, error) {
	if g, ok := m.(distribution.CDFParameterGradienter); ok {
		return g.CDFParameterGradient(x), nil
	}
	theta := distribution.Values(m.Parameters())
	out := make([]float64, len(theta))
	var evalErr error
	fd.Gradient(out, func(p []float64) float64 {
		perturbed, err := m.WithParameters(p)
		if err != nil {
			if evalErr == nil {
				evalErr = classify(err)
			}
			return math.NaN()
		}
		return perturbed.CDF(x)
	}, theta, &fd.Settings{Formula: fd.Central})
	return out, evalErr
}

// differentiateParameters differences ToStandard(x) over a parameter vector
// for transforms rebuilt by build.
func (t *Transform) differentiateParameters(x, theta []float64, build func([]float64) (*Transform, error)) ([][]float64, error) {
	jac := mat.NewDense(t.Dimension(), len(theta), nil)
	var evalErr error
	fd.Jacobian(jac, func(y, p []float64) {
		if evalErr != nil {
			return
		}
		tr, err := build(p)
		if err != nil {
			evalErr = err
			return
		}
		u, err := tr.ToStandard(x)
		if err != nil {
			evalErr = err
			return
		}
		copy(y, u)
	}, theta, &fd.JacobianSettings{Formula: fd.Central})
	if evalErr != nil {
		return nil, evalErr
	}
	rows := make([][]float64, len(theta))
	for p := range rows {
		rows[p] = mat.Col(nil, p, jac)
	}
	return rows, nil
}
