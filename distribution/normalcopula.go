package distribution

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalCopula is the Gaussian copula with correlation matrix R:
//
//	C(u) = Φ_R(Φ⁻¹(u_1), ..., Φ⁻¹(u_d))
//
// It is the dependence structure behind the Nataf transform. The CDF has a
// closed form up to dimension 2; densities and conditionals work in any
// dimension.
type NormalCopula struct {
	r    *mat.SymDense
	chol mat.Cholesky
}

// NewNormalCopula validates r as a correlation matrix (unit diagonal,
// positive definite) and copies it.
func NewNormalCopula(r mat.Symmetric) (*NormalCopula, error) {
	n := r.SymmetricDim()
	if n < 1 {
		return nil, fmt.Errorf("empty correlation matrix: %w", ErrInvalidParameter)
	}
	c := &NormalCopula{r: mat.NewSymDense(n, nil)}
	c.r.CopySym(r)
	for i := range n {
		if c.r.At(i, i) != 1 {
			return nil, fmt.Errorf("correlation diagonal R[%d][%d]=%g: %w", i, i, c.r.At(i, i), ErrInvalidParameter)
		}
		for j := i + 1; j < n; j++ {
			if v := c.r.At(i, j); !(v > -1 && v < 1) {
				return nil, fmt.Errorf("correlation R[%d][%d]=%g: %w", i, j, v, ErrInvalidParameter)
			}
		}
	}
	if ok := c.chol.Factorize(c.r); !ok {
		return nil, fmt.Errorf("correlation matrix is not positive definite: %w", ErrInvalidParameter)
	}
	return c, nil
}

// NewBivariateNormalCopula is shorthand for a 2-D Gaussian copula with
// correlation rho.
func NewBivariateNormalCopula(rho float64) (*NormalCopula, error) {
	return NewNormalCopula(mat.NewSymDense(2, []float64{1, rho, rho, 1}))
}

func (c *NormalCopula) Name() string   { return "Normal" }
func (c *NormalCopula) Dimension() int { return c.r.SymmetricDim() }

// Correlation returns a copy of R.
func (c *NormalCopula) Correlation() *mat.SymDense {
	out := mat.NewSymDense(c.Dimension(), nil)
	out.CopySym(c.r)
	return out
}

// Cholesky returns the lower triangular factor L with R = L Lᵀ.
func (c *NormalCopula) Cholesky() *mat.TriDense {
	var l mat.TriDense
	c.chol.LTo(&l)
	return &l
}

func normalScores(u []float64) []float64 {
	z := make([]float64, len(u))
	for i, v := range u {
		z[i] = distuv.UnitNormal.Quantile(v)
	}
	return z
}

func (c *NormalCopula) CDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.Dimension()); err != nil {
		return 0, err
	}
	switch c.Dimension() {
	case 1:
		return u[0], nil
	case 2:
		switch {
		case u[0] == 0 || u[1] == 0:
			return 0, nil
		case u[0] == 1:
			return u[1], nil
		case u[1] == 1:
			return u[0], nil
		}
		z := normalScores(u)
		return bivariateNormalCDF(z[0], z[1], c.r.At(0, 1)), nil
	}
	return 0, fmt.Errorf("normal copula CDF in dimension %d: %w", c.Dimension(), ErrUnsupported)
}

// bivariateNormalCDF evaluates Φ₂(h, k; rho) by Plackett's identity
//
//	Φ₂(h, k; rho) = Φ(h)Φ(k) + 1/(2π) ∫₀^rho exp(-(h² - 2rhk + k²) / (2(1-r²))) / √(1-r²) dr
func bivariateNormalCDF(h, k, rho float64) float64 {
	base := distuv.UnitNormal.CDF(h) * distuv.UnitNormal.CDF(k)
	if rho == 0 {
		return base
	}
	f := func(r float64) float64 {
		s := 1 - r*r
		return math.Exp(-(h*h-2*r*h*k+k*k)/(2*s)) / math.Sqrt(s)
	}
	lo, hi := 0.0, rho
	sign := 1.0
	if rho < 0 {
		lo, hi, sign = rho, 0, -1
	}
	p := base + sign*quad.Fixed(f, lo, hi, 64, quad.Legendre{}, 0)/(2*math.Pi)
	return math.Min(1, math.Max(0, p))
}

func (c *NormalCopula) PDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.Dimension()); err != nil {
		return 0, err
	}
	for _, v := range u {
		if v == 0 || v == 1 {
			return 0, nil
		}
	}
	z := mat.NewVecDense(len(u), normalScores(u))
	var w mat.VecDense
	if err := c.chol.SolveVecTo(&w, z); err != nil {
		return 0, fmt.Errorf("normal copula density: %w", err)
	}
	q := mat.Dot(z, &w) - mat.Dot(z, z)
	return math.Exp(-0.5*q - 0.5*c.chol.LogDet()), nil
}

// conditional returns the mean and standard deviation of Z_k given
// Z_0..Z_{k-1} = z, k = len(z).
func (c *NormalCopula) conditional(z []float64) (mean, sd float64, err error) {
	k := len(z)
	if k == 0 {
		return 0, 1, nil
	}
	var sub mat.Cholesky
	if ok := sub.Factorize(c.r.SliceSym(0, k)); !ok {
		return 0, 0, fmt.Errorf("leading correlation block of size %d: %w", k, ErrInvalidParameter)
	}
	r := mat.NewVecDense(k, nil)
	for i := range k {
		r.SetVec(i, c.r.At(i, k))
	}
	var w mat.VecDense
	if err := sub.SolveVecTo(&w, r); err != nil {
		return 0, 0, err
	}
	v := 1 - mat.Dot(&w, r)
	if v <= 0 {
		return 0, 0, fmt.Errorf("conditional variance %g: %w", v, ErrInvalidParameter)
	}
	return mat.Dot(&w, mat.NewVecDense(k, z)), math.Sqrt(v), nil
}

func (c *NormalCopula) ConditionalCDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.Dimension()); err != nil {
		return 0, err
	}
	if x == 0 || x == 1 {
		return x, nil
	}
	m, s, err := c.conditional(normalScores(u))
	if err != nil {
		return 0, err
	}
	return distuv.UnitNormal.CDF((distuv.UnitNormal.Quantile(x) - m) / s), nil
}

func (c *NormalCopula) ConditionalPDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.Dimension()); err != nil {
		return 0, err
	}
	if x == 0 || x == 1 {
		return 0, nil
	}
	m, s, err := c.conditional(normalScores(u))
	if err != nil {
		return 0, err
	}
	z := distuv.UnitNormal.Quantile(x)
	return distuv.UnitNormal.Prob((z-m)/s) / (s * distuv.UnitNormal.Prob(z)), nil
}

func (c *NormalCopula) ConditionalQuantile(q float64, u []float64) (float64, error) {
	if err := checkConditioning(q, u, c.Dimension()); err != nil {
		return 0, err
	}
	if q == 0 || q == 1 {
		return q, nil
	}
	m, s, err := c.conditional(normalScores(u))
	if err != nil {
		return 0, err
	}
	return distuv.UnitNormal.CDF(m + s*distuv.UnitNormal.Quantile(q)), nil
}

func (c *NormalCopula) DiagonalQuantile(p float64) (float64, error) {
	if !inUnit(p) {
		return 0, fmt.Errorf("p=%g: %w", p, ErrOutOfDomain)
	}
	if p == 0 || p == 1 {
		return p, nil
	}
	d := c.Dimension()
	diag := make([]float64, d)
	return bisect(func(t float64) (float64, error) {
		for i := range diag {
			diag[i] = t
		}
		return c.CDF(diag)
	}, p, 0, 1)
}

func (c *NormalCopula) Marginal(indices ...int) (Copula, error) {
	if err := checkIndices(indices, c.Dimension()); err != nil {
		return nil, err
	}
	sub := mat.NewSymDense(len(indices), nil)
	for i, a := range indices {
		for j, b := range indices {
			sub.SetSym(i, j, c.r.At(a, b))
		}
	}
	return NewNormalCopula(sub)
}

// Parameters lists the strict upper triangle of R row by row.
func (c *NormalCopula) Parameters() []Parameter {
	n := c.Dimension()
	var out []Parameter
	for i := range n {
		for j := i + 1; j < n; j++ {
			out = append(out, Parameter{Name: fmt.Sprintf("R_%d_%d", i, j), Value: c.r.At(i, j)})
		}
	}
	return out
}

func (c *NormalCopula) WithParameters(values []float64) (Copula, error) {
	n := c.Dimension()
	if err := wantParams("normal copula", values, n*(n-1)/2); err != nil {
		return nil, err
	}
	r := mat.NewSymDense(n, nil)
	k := 0
	for i := range n {
		r.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			r.SetSym(i, j, values[k])
			k++
		}
	}
	return NewNormalCopula(r)
}

func (c *NormalCopula) Sample(src rand.Source) []float64 {
	rng := rand.New(src)
	n := c.Dimension()
	e := mat.NewVecDense(n, nil)
	for i := range n {
		e.SetVec(i, rng.NormFloat64())
	}
	var z mat.VecDense
	z.MulVec(c.Cholesky(), e)
	u := make([]float64, n)
	for i := range u {
		u[i] = distuv.UnitNormal.CDF(z.AtVec(i))
	}
	return u
}
