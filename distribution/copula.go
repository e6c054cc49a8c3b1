package distribution

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Copula is a distribution on the unit hypercube with uniform marginals.
//
// Conditional operations refer to component k = len(u), conditioned on the
// first k components taking the values u. Conditioning values must lie in
// the open interval (0, 1).
type Copula interface {
	Name() string
	Dimension() int
	CDF(u []float64) (float64, error)
	PDF(u []float64) (float64, error)
	ConditionalCDF(x float64, u []float64) (float64, error)
	ConditionalPDF(x float64, u []float64) (float64, error)
	ConditionalQuantile(q float64, u []float64) (float64, error)

	// DiagonalQuantile returns t with C(t, ..., t) = p.
	DiagonalQuantile(p float64) (float64, error)

	Marginal(indices ...int) (Copula, error)
	Parameters() []Parameter
	WithParameters(values []float64) (Copula, error)
	Sample(src rand.Source) []float64
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func checkUnitPoint(u []float64, dim int) error {
	if len(u) != dim {
		return fmt.Errorf("point of size %d for dimension %d: %w", len(u), dim, ErrDimension)
	}
	for i, v := range u {
		if !inUnit(v) {
			return fmt.Errorf("u[%d]=%g: %w", i, v, ErrOutOfDomain)
		}
	}
	return nil
}

func checkConditioning(x float64, u []float64, dim int) error {
	if len(u) >= dim {
		return fmt.Errorf("conditioning on %d components of a %d-dimensional copula: %w", len(u), dim, ErrDimension)
	}
	if !inUnit(x) {
		return fmt.Errorf("x=%g: %w", x, ErrOutOfDomain)
	}
	for i, v := range u {
		if !(v > 0 && v < 1) {
			return fmt.Errorf("conditioning value u[%d]=%g: %w", i, v, ErrOutOfDomain)
		}
	}
	return nil
}

func checkIndices(indices []int, dim int) error {
	if len(indices) == 0 {
		return fmt.Errorf("empty marginal indices: %w", ErrDimension)
	}
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= dim || seen[i] {
			return fmt.Errorf("marginal index %d for dimension %d: %w", i, dim, ErrDimension)
		}
		seen[i] = true
	}
	return nil
}

func hasZero(u []float64) bool {
	for _, v := range u {
		if v == 0 {
			return true
		}
	}
	return false
}

// bisect finds t in [lo, hi] with f(t) = target for a non-decreasing f.
func bisect(f func(float64) (float64, error), target, lo, hi float64) (float64, error) {
	for range 200 {
		mid := 0.5 * (lo + hi)
		if mid == lo || mid == hi {
			break
		}
		v, err := f(mid)
		if err != nil {
			return 0, err
		}
		if v < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi), nil
}

// Independent is the product copula.
type Independent struct {
	dim int
}

func NewIndependent(dim int) (Independent, error) {
	if dim < 1 {
		return Independent{}, fmt.Errorf("independent copula of dimension %d: %w", dim, ErrInvalidParameter)
	}
	return Independent{dim: dim}, nil
}

func (c Independent) Name() string   { return "Independent" }
func (c Independent) Dimension() int { return c.dim }

func (c Independent) CDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.dim); err != nil {
		return 0, err
	}
	p := 1.0
	for _, v := range u {
		p *= v
	}
	return p, nil
}

func (c Independent) PDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.dim); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c Independent) ConditionalCDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.dim); err != nil {
		return 0, err
	}
	return x, nil
}

func (c Independent) ConditionalPDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.dim); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c Independent) ConditionalQuantile(q float64, u []float64) (float64, error) {
	if err := checkConditioning(q, u, c.dim); err != nil {
		return 0, err
	}
	return q, nil
}

func (c Independent) DiagonalQuantile(p float64) (float64, error) {
	if !inUnit(p) {
		return 0, fmt.Errorf("p=%g: %w", p, ErrOutOfDomain)
	}
	return math.Pow(p, 1/float64(c.dim)), nil
}

func (c Independent) Marginal(indices ...int) (Copula, error) {
	if err := checkIndices(indices, c.dim); err != nil {
		return nil, err
	}
	return Independent{dim: len(indices)}, nil
}

func (c Independent) Parameters() []Parameter { return nil }

func (c Independent) WithParameters(values []float64) (Copula, error) {
	if len(values) != 0 {
		return nil, fmt.Errorf("independent copula takes no parameters: %w", ErrInvalidParameter)
	}
	return c, nil
}

func (c Independent) Sample(src rand.Source) []float64 {
	rng := rand.New(src)
	u := make([]float64, c.dim)
	for i := range u {
		u[i] = rng.Float64()
	}
	return u
}

// Clayton is the Archimedean copula with generator t^{-theta} - 1:
//
//	C(u) = (Σ u_i^{-theta} - d + 1)^{-1/theta},  theta > 0
type Clayton struct {
	dim   int
	theta float64
}

func NewClayton(dim int, theta float64) (Clayton, error) {
	if dim < 1 || !finite(theta) || theta <= 0 {
		return Clayton{}, fmt.Errorf("clayton copula (dim=%d, theta=%g): %w", dim, theta, ErrInvalidParameter)
	}
	return Clayton{dim: dim, theta: theta}, nil
}

func (c Clayton) Name() string   { return "Clayton" }
func (c Clayton) Dimension() int { return c.dim }

// partial returns S_k = 1 + Σ_{i<k} (u_i^{-theta} - 1).
func (c Clayton) partial(u []float64) float64 {
	s := 1.0
	for _, v := range u {
		s += math.Pow(v, -c.theta) - 1
	}
	return s
}

func (c Clayton) CDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.dim); err != nil {
		return 0, err
	}
	if hasZero(u) {
		return 0, nil
	}
	return math.Pow(c.partial(u), -1/c.theta), nil
}

func (c Clayton) PDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.dim); err != nil {
		return 0, err
	}
	if hasZero(u) {
		return 0, nil
	}
	d := float64(c.dim)
	logc := 0.0
	for j := 1; j < c.dim; j++ {
		logc += math.Log1p(float64(j) * c.theta)
	}
	for _, v := range u {
		logc += (-c.theta - 1) * math.Log(v)
	}
	logc += (-1/c.theta - d) * math.Log(c.partial(u))
	return math.Exp(logc), nil
}

func (c Clayton) ConditionalCDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.dim); err != nil {
		return 0, err
	}
	if len(u) == 0 || x == 0 || x == 1 {
		return x, nil
	}
	k := float64(len(u))
	prev := c.partial(u)
	cur := prev + math.Pow(x, -c.theta) - 1
	return math.Pow(cur/prev, -(1/c.theta + k)), nil
}

func (c Clayton) ConditionalPDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.dim); err != nil {
		return 0, err
	}
	if len(u) == 0 {
		return 1, nil
	}
	if x == 0 {
		return 0, nil
	}
	k := float64(len(u))
	prev := c.partial(u)
	cur := prev + math.Pow(x, -c.theta) - 1
	logc := math.Log1p(c.theta*k) + (-c.theta-1)*math.Log(x) +
		-(1/c.theta+k+1)*math.Log(cur) + (1/c.theta+k)*math.Log(prev)
	return math.Exp(logc), nil
}

func (c Clayton) ConditionalQuantile(q float64, u []float64) (float64, error) {
	if err := checkConditioning(q, u, c.dim); err != nil {
		return 0, err
	}
	if len(u) == 0 || q == 0 || q == 1 {
		return q, nil
	}
	a := 1/c.theta + float64(len(u))
	prev := c.partial(u)
	return math.Pow(prev*(math.Pow(q, -1/a)-1)+1, -1/c.theta), nil
}

func (c Clayton) DiagonalQuantile(p float64) (float64, error) {
	if !inUnit(p) {
		return 0, fmt.Errorf("p=%g: %w", p, ErrOutOfDomain)
	}
	if p == 0 {
		return 0, nil
	}
	d := float64(c.dim)
	return math.Pow((math.Pow(p, -c.theta)+d-1)/d, -1/c.theta), nil
}

func (c Clayton) Marginal(indices ...int) (Copula, error) {
	if err := checkIndices(indices, c.dim); err != nil {
		return nil, err
	}
	return Clayton{dim: len(indices), theta: c.theta}, nil
}

func (c Clayton) Parameters() []Parameter { return []Parameter{{"theta", c.theta}} }

func (c Clayton) WithParameters(values []float64) (Copula, error) {
	if err := wantParams("clayton", values, 1); err != nil {
		return nil, err
	}
	return NewClayton(c.dim, values[0])
}

// Sample draws by the Marshall-Olkin construction with a Gamma(1/theta)
// frailty.
func (c Clayton) Sample(src rand.Source) []float64 {
	rng := rand.New(src)
	v := distuv.Gamma{Alpha: 1 / c.theta, Beta: 1, Src: src}.Rand()
	u := make([]float64, c.dim)
	for i := range u {
		u[i] = math.Pow(1+rng.ExpFloat64()/v, -1/c.theta)
	}
	return u
}

// GumbelCopula is the Gumbel-Hougaard Archimedean copula
//
//	C(u) = exp(-(Σ (-ln u_i)^theta)^{1/theta}),  theta >= 1
//
// Densities and conditionals are closed form in two dimensions only.
type GumbelCopula struct {
	dim   int
	theta float64
}

func NewGumbelCopula(dim int, theta float64) (GumbelCopula, error) {
	if dim < 1 || !finite(theta) || theta < 1 {
		return GumbelCopula{}, fmt.Errorf("gumbel copula (dim=%d, theta=%g): %w", dim, theta, ErrInvalidParameter)
	}
	return GumbelCopula{dim: dim, theta: theta}, nil
}

func (c GumbelCopula) Name() string   { return "Gumbel" }
func (c GumbelCopula) Dimension() int { return c.dim }

func (c GumbelCopula) sum(u []float64) float64 {
	a := 0.0
	for _, v := range u {
		a += math.Pow(-math.Log(v), c.theta)
	}
	return a
}

func (c GumbelCopula) CDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.dim); err != nil {
		return 0, err
	}
	if hasZero(u) {
		return 0, nil
	}
	return math.Exp(-math.Pow(c.sum(u), 1/c.theta)), nil
}

func (c GumbelCopula) PDF(u []float64) (float64, error) {
	if err := checkUnitPoint(u, c.dim); err != nil {
		return 0, err
	}
	switch c.dim {
	case 1:
		return 1, nil
	case 2:
		return c.density(u[0], u[1]), nil
	}
	return 0, fmt.Errorf("gumbel copula density in dimension %d: %w", c.dim, ErrUnsupported)
}

func (c GumbelCopula) density(u, v float64) float64 {
	if u <= 0 || v <= 0 || u >= 1 || v >= 1 {
		return 0
	}
	x, y := -math.Log(u), -math.Log(v)
	a := math.Pow(x, c.theta) + math.Pow(y, c.theta)
	cdf := math.Exp(-math.Pow(a, 1/c.theta))
	return cdf / (u * v) * math.Pow(x*y, c.theta-1) * math.Pow(a, 2/c.theta-2) *
		(1 + (c.theta-1)*math.Pow(a, -1/c.theta))
}

// h is ∂C(u, v)/∂u, the conditional CDF of V given U = u.
func (c GumbelCopula) h(v, u float64) float64 {
	if v == 0 || v == 1 {
		return v
	}
	x, y := -math.Log(u), -math.Log(v)
	a := math.Pow(x, c.theta) + math.Pow(y, c.theta)
	cdf := math.Exp(-math.Pow(a, 1/c.theta))
	return cdf * math.Pow(a, 1/c.theta-1) * math.Pow(x, c.theta-1) / u
}

func (c GumbelCopula) ConditionalCDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.dim); err != nil {
		return 0, err
	}
	switch len(u) {
	case 0:
		return x, nil
	case 1:
		return c.h(x, u[0]), nil
	}
	return 0, fmt.Errorf("gumbel copula conditional on %d components: %w", len(u), ErrUnsupported)
}

func (c GumbelCopula) ConditionalPDF(x float64, u []float64) (float64, error) {
	if err := checkConditioning(x, u, c.dim); err != nil {
		return 0, err
	}
	switch len(u) {
	case 0:
		return 1, nil
	case 1:
		return c.density(u[0], x), nil
	}
	return 0, fmt.Errorf("gumbel copula conditional on %d components: %w", len(u), ErrUnsupported)
}

func (c GumbelCopula) ConditionalQuantile(q float64, u []float64) (float64, error) {
	if err := checkConditioning(q, u, c.dim); err != nil {
		return 0, err
	}
	switch {
	case len(u) == 0 || q == 0 || q == 1:
		return q, nil
	case len(u) == 1:
		return bisect(func(v float64) (float64, error) { return c.h(v, u[0]), nil }, q, 0, 1)
	}
	return 0, fmt.Errorf("gumbel copula conditional on %d components: %w", len(u), ErrUnsupported)
}

func (c GumbelCopula) DiagonalQuantile(p float64) (float64, error) {
	if !inUnit(p) {
		return 0, fmt.Errorf("p=%g: %w", p, ErrOutOfDomain)
	}
	return math.Pow(p, math.Pow(float64(c.dim), -1/c.theta)), nil
}

func (c GumbelCopula) Marginal(indices ...int) (Copula, error) {
	if err := checkIndices(indices, c.dim); err != nil {
		return nil, err
	}
	return GumbelCopula{dim: len(indices), theta: c.theta}, nil
}

func (c GumbelCopula) Parameters() []Parameter { return []Parameter{{"theta", c.theta}} }

func (c GumbelCopula) WithParameters(values []float64) (Copula, error) {
	if err := wantParams("gumbel copula", values, 1); err != nil {
		return nil, err
	}
	return NewGumbelCopula(c.dim, values[0])
}

// Sample draws by Marshall-Olkin with a positive stable frailty of index
// 1/theta generated by Kanter's representation.
func (c GumbelCopula) Sample(src rand.Source) []float64 {
	rng := rand.New(src)
	alpha := 1 / c.theta
	s := 1.0
	if alpha < 1 {
		w := rng.ExpFloat64()
		t := math.Pi * rng.Float64()
		for t == 0 {
			t = math.Pi * rng.Float64()
		}
		s = math.Sin(alpha*t) / math.Pow(math.Sin(t), 1/alpha) *
			math.Pow(math.Sin((1-alpha)*t)/w, (1-alpha)/alpha)
	}
	u := make([]float64, c.dim)
	for i := range u {
		u[i] = math.Exp(-math.Pow(rng.ExpFloat64()/s, alpha))
	}
	return u
}
