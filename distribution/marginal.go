package distribution

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Marginal is a continuous univariate distribution.
//
// Evaluation never fails: CDF and PDF are total on the real line and Quantile
// returns NaN for p outside [0, 1]. Callers that need an error (the joint
// distribution, the transform) check the domain themselves.
type Marginal interface {
	Name() string
	PDF(x float64) float64
	CDF(x float64) float64
	Quantile(p float64) float64
	Support() (lo, hi float64)
	Mean() float64
	StdDev() float64
	Parameters() []Parameter
	WithParameters(values []float64) (Marginal, error)
}

// CDFParameterGradienter is implemented by marginals with an analytic
// gradient of F(x; θ) with respect to their parameters, ordered as Parameters.
type CDFParameterGradienter interface {
	CDFParameterGradient(x float64) []float64
}

// NormalScorer is implemented by marginals that map to and from the normal
// score z = Φ⁻¹(F(x)) in closed form. The closed form stays exact in the
// upper tail, where Φ(z) rounds to 1.
type NormalScorer interface {
	NormalScore(x float64) float64
	FromNormalScore(z float64) float64
}

type univariate interface {
	CDF(x float64) float64
	Prob(x float64) float64
	Quantile(p float64) float64
	Mean() float64
	StdDev() float64
}

// support wraps a distuv distribution, shifted by a location, and clamps
// evaluation to [lo, hi].
type support struct {
	d      univariate
	shift  float64
	lo, hi float64
}

func (s support) PDF(x float64) float64 {
	if x < s.lo || x > s.hi || math.IsNaN(x) {
		return 0
	}
	return s.d.Prob(x - s.shift)
}

func (s support) CDF(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.NaN()
	case x <= s.lo:
		return 0
	case x >= s.hi:
		return 1
	}
	return s.d.CDF(x - s.shift)
}

func (s support) Quantile(p float64) float64 {
	switch {
	case !(p >= 0 && p <= 1):
		return math.NaN()
	case p == 0:
		return s.lo
	case p == 1:
		return s.hi
	}
	return s.d.Quantile(p) + s.shift
}

func (s support) Support() (lo, hi float64) { return s.lo, s.hi }
func (s support) Mean() float64             { return s.d.Mean() + s.shift }
func (s support) StdDev() float64           { return s.d.StdDev() }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func wantParams(name string, values []float64, n int) error {
	if len(values) != n {
		return fmt.Errorf("%s takes %d parameters, got %d: %w", name, n, len(values), ErrInvalidParameter)
	}
	return nil
}

// Normal is the Gaussian distribution N(mu, sigma).
type Normal struct {
	support
	mu, sigma float64
}

// NewNormal returns N(mu, sigma). sigma must be positive.
func NewNormal(mu, sigma float64) (Normal, error) {
	if !finite(mu, sigma) || sigma <= 0 {
		return Normal{}, fmt.Errorf("normal(mu=%g, sigma=%g): %w", mu, sigma, ErrInvalidParameter)
	}
	return Normal{
		support: support{d: distuv.Normal{Mu: mu, Sigma: sigma}, lo: math.Inf(-1), hi: math.Inf(1)},
		mu:      mu,
		sigma:   sigma,
	}, nil
}

func (n Normal) Name() string { return "Normal" }

func (n Normal) Parameters() []Parameter {
	return []Parameter{{"mu", n.mu}, {"sigma", n.sigma}}
}

func (n Normal) WithParameters(values []float64) (Marginal, error) {
	if err := wantParams("normal", values, 2); err != nil {
		return nil, err
	}
	return NewNormal(values[0], values[1])
}

// CDFParameterGradient returns (∂F/∂mu, ∂F/∂sigma) = -φ(z)/sigma · (1, z).
func (n Normal) CDFParameterGradient(x float64) []float64 {
	z := (x - n.mu) / n.sigma
	phi := distuv.UnitNormal.Prob(z)
	return []float64{-phi / n.sigma, -phi * z / n.sigma}
}

func (n Normal) NormalScore(x float64) float64     { return (x - n.mu) / n.sigma }
func (n Normal) FromNormalScore(z float64) float64 { return n.mu + n.sigma*z }

// Uniform is the continuous uniform distribution on [a, b].
type Uniform struct {
	support
	a, b float64
}

// NewUniform returns U(a, b) with a < b.
func NewUniform(a, b float64) (Uniform, error) {
	if !finite(a, b) || a >= b {
		return Uniform{}, fmt.Errorf("uniform(a=%g, b=%g): %w", a, b, ErrInvalidParameter)
	}
	return Uniform{
		support: support{d: distuv.Uniform{Min: a, Max: b}, lo: a, hi: b},
		a:       a,
		b:       b,
	}, nil
}

func (u Uniform) Name() string { return "Uniform" }

func (u Uniform) Parameters() []Parameter {
	return []Parameter{{"a", u.a}, {"b", u.b}}
}

func (u Uniform) WithParameters(values []float64) (Marginal, error) {
	if err := wantParams("uniform", values, 2); err != nil {
		return nil, err
	}
	return NewUniform(values[0], values[1])
}

// CDFParameterGradient returns (∂F/∂a, ∂F/∂b); both vanish outside (a, b).
func (u Uniform) CDFParameterGradient(x float64) []float64 {
	if x <= u.a || x >= u.b {
		return []float64{0, 0}
	}
	w := u.b - u.a
	return []float64{(x - u.b) / (w * w), -(x - u.a) / (w * w)}
}

// Exponential is the shifted exponential distribution
//
//	F(x) = 1 - exp(-lambda (x - gamma)),  x >= gamma
type Exponential struct {
	support
	lambda, gamma float64
}

// NewExponential returns an exponential distribution with rate lambda > 0
// and location gamma.
func NewExponential(lambda, gamma float64) (Exponential, error) {
	if !finite(lambda, gamma) || lambda <= 0 {
		return Exponential{}, fmt.Errorf("exponential(lambda=%g, gamma=%g): %w", lambda, gamma, ErrInvalidParameter)
	}
	return Exponential{
		support: support{d: distuv.Exponential{Rate: lambda}, shift: gamma, lo: gamma, hi: math.Inf(1)},
		lambda:  lambda,
		gamma:   gamma,
	}, nil
}

func (e Exponential) Name() string { return "Exponential" }

func (e Exponential) Parameters() []Parameter {
	return []Parameter{{"lambda", e.lambda}, {"gamma", e.gamma}}
}

func (e Exponential) WithParameters(values []float64) (Marginal, error) {
	if err := wantParams("exponential", values, 2); err != nil {
		return nil, err
	}
	return NewExponential(values[0], values[1])
}

// CDFParameterGradient returns (∂F/∂lambda, ∂F/∂gamma).
func (e Exponential) CDFParameterGradient(x float64) []float64 {
	if x <= e.gamma {
		return []float64{0, 0}
	}
	s := math.Exp(-e.lambda * (x - e.gamma))
	return []float64{(x - e.gamma) * s, -e.lambda * s}
}

// LogNormal is the shifted log-normal distribution: log(X - gamma) is
// N(muLog, sigmaLog).
type LogNormal struct {
	support
	muLog, sigmaLog, gamma float64
}

func NewLogNormal(muLog, sigmaLog, gamma float64) (LogNormal, error) {
	if !finite(muLog, sigmaLog, gamma) || sigmaLog <= 0 {
		return LogNormal{}, fmt.Errorf("lognormal(muLog=%g, sigmaLog=%g, gamma=%g): %w", muLog, sigmaLog, gamma, ErrInvalidParameter)
	}
	return LogNormal{
		support:  support{d: distuv.LogNormal{Mu: muLog, Sigma: sigmaLog}, shift: gamma, lo: gamma, hi: math.Inf(1)},
		muLog:    muLog,
		sigmaLog: sigmaLog,
		gamma:    gamma,
	}, nil
}

func (l LogNormal) Name() string { return "LogNormal" }

func (l LogNormal) Parameters() []Parameter {
	return []Parameter{{"muLog", l.muLog}, {"sigmaLog", l.sigmaLog}, {"gamma", l.gamma}}
}

func (l LogNormal) WithParameters(values []float64) (Marginal, error) {
	if err := wantParams("lognormal", values, 3); err != nil {
		return nil, err
	}
	return NewLogNormal(values[0], values[1], values[2])
}

// NormalScore is -Inf at and below gamma.
func (l LogNormal) NormalScore(x float64) float64 {
	if x <= l.gamma {
		return math.Inf(-1)
	}
	return (math.Log(x-l.gamma) - l.muLog) / l.sigmaLog
}

func (l LogNormal) FromNormalScore(z float64) float64 {
	return l.gamma + math.Exp(l.muLog+l.sigmaLog*z)
}

// Gumbel is the maximum extreme value distribution
//
//	F(x) = exp(-exp(-(x - gamma) / beta))
type Gumbel struct {
	support
	beta, gamma float64
}

// NewGumbel returns a Gumbel distribution with scale beta > 0 and mode gamma.
func NewGumbel(beta, gamma float64) (Gumbel, error) {
	if !finite(beta, gamma) || beta <= 0 {
		return Gumbel{}, fmt.Errorf("gumbel(beta=%g, gamma=%g): %w", beta, gamma, ErrInvalidParameter)
	}
	return Gumbel{
		support: support{d: distuv.GumbelRight{Mu: gamma, Beta: beta}, lo: math.Inf(-1), hi: math.Inf(1)},
		beta:    beta,
		gamma:   gamma,
	}, nil
}

// GumbelAB builds a Gumbel from the (a, b) parametrisation where a is the
// mode and b the scale.
func GumbelAB(a, b float64) (Gumbel, error) { return NewGumbel(b, a) }

// GumbelABGradient returns ∂(beta, gamma)/∂(a, b): entry (i, j) is the
// derivative of native parameter j with respect to parameter i of (a, b).
func GumbelABGradient(a, b float64) (*mat.Dense, error) {
	if _, err := GumbelAB(a, b); err != nil {
		return nil, err
	}
	return mat.NewDense(2, 2, []float64{
		0, 1,
		1, 0,
	}), nil
}

func (g Gumbel) Name() string { return "Gumbel" }

func (g Gumbel) Parameters() []Parameter {
	return []Parameter{{"beta", g.beta}, {"gamma", g.gamma}}
}

func (g Gumbel) WithParameters(values []float64) (Marginal, error) {
	if err := wantParams("gumbel", values, 2); err != nil {
		return nil, err
	}
	return NewGumbel(values[0], values[1])
}

// Triangular has lower bound a, mode m and upper bound b.
type Triangular struct {
	support
	a, m, b float64
}

func NewTriangular(a, m, b float64) (Triangular, error) {
	if !finite(a, m, b) || a >= b || m < a || m > b {
		return Triangular{}, fmt.Errorf("triangular(a=%g, m=%g, b=%g): %w", a, m, b, ErrInvalidParameter)
	}
	return Triangular{
		support: support{d: distuv.NewTriangle(a, b, m, nil), lo: a, hi: b},
		a:       a,
		m:       m,
		b:       b,
	}, nil
}

func (t Triangular) Name() string { return "Triangular" }

func (t Triangular) Parameters() []Parameter {
	return []Parameter{{"a", t.a}, {"m", t.m}, {"b", t.b}}
}

func (t Triangular) WithParameters(values []float64) (Marginal, error) {
	if err := wantParams("triangular", values, 3); err != nil {
		return nil, err
	}
	return NewTriangular(values[0], values[1], values[2])
}

// Weibull has scale alpha, shape beta and location gamma:
//
//	F(x) = 1 - exp(-((x - gamma) / alpha)^beta)
type Weibull struct {
	support
	alpha, beta, gamma float64
}

func NewWeibull(alpha, beta, gamma float64) (Weibull, error) {
	if !finite(alpha, beta, gamma) || alpha <= 0 || beta <= 0 {
		return Weibull{}, fmt.Errorf("weibull(alpha=%g, beta=%g, gamma=%g): %w", alpha, beta, gamma, ErrInvalidParameter)
	}
	return Weibull{
		support: support{d: distuv.Weibull{K: beta, Lambda: alpha}, shift: gamma, lo: gamma, hi: math.Inf(1)},
		alpha:   alpha,
		beta:    beta,
		gamma:   gamma,
	}, nil
}

func (w Weibull) Name() string { return "Weibull" }

func (w Weibull) Parameters() []Parameter {
	return []Parameter{{"alpha", w.alpha}, {"beta", w.beta}, {"gamma", w.gamma}}
}

func (w Weibull) WithParameters(values []float64) (Marginal, error) {
	if err := wantParams("weibull", values, 3); err != nil {
		return nil, err
	}
	return NewWeibull(values[0], values[1], values[2])
}
