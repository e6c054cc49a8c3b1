package study

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/alexshd/reliability"
	"github.com/alexshd/reliability/distribution"
	"github.com/alexshd/reliability/optim"
)

// Marginal builds the distribution of one input, fitting it from the sample
// when no parameters are given.
func (m MarginalSpec) Marginal() (distribution.Marginal, error) {
	if len(m.Parameters) == 0 {
		return m.fit()
	}
	p := m.Parameters
	arity := func(lo, hi int) error {
		if len(p) < lo || len(p) > hi {
			return fmt.Errorf("%w: %s input %q takes %d to %d parameters, got %d", ErrInvalid, m.Family, m.Name, lo, hi, len(p))
		}
		return nil
	}
	// optional trailing location parameter
	gamma := func(i int) float64 {
		if len(p) > i {
			return p[i]
		}
		return 0
	}

	var (
		d   distribution.Marginal
		err error
	)
	switch m.Family {
	case "normal":
		if err = arity(2, 2); err == nil {
			d, err = distribution.NewNormal(p[0], p[1])
		}
	case "uniform":
		if err = arity(2, 2); err == nil {
			d, err = distribution.NewUniform(p[0], p[1])
		}
	case "exponential":
		if err = arity(1, 2); err == nil {
			d, err = distribution.NewExponential(p[0], gamma(1))
		}
	case "lognormal":
		if err = arity(2, 3); err == nil {
			d, err = distribution.NewLogNormal(p[0], p[1], gamma(2))
		}
	case "gumbel":
		if err = arity(2, 2); err == nil {
			d, err = distribution.NewGumbel(p[0], p[1])
		}
	case "gumbelab":
		if err = arity(2, 2); err == nil {
			d, err = distribution.GumbelAB(p[0], p[1])
		}
	case "triangular":
		if err = arity(3, 3); err == nil {
			d, err = distribution.NewTriangular(p[0], p[1], p[2])
		}
	case "weibull":
		if err = arity(2, 3); err == nil {
			d, err = distribution.NewWeibull(p[0], p[1], gamma(2))
		}
	default:
		err = fmt.Errorf("%w: unknown family %q", ErrInvalid, m.Family)
	}
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", m.Name, err)
	}
	return d, nil
}

func (m MarginalSpec) fit() (distribution.Marginal, error) {
	var (
		d   distribution.Marginal
		err error
	)
	switch m.Family {
	case "normal":
		d, err = distribution.FitNormal(m.Sample)
	case "uniform":
		d, err = distribution.FitUniform(m.Sample)
	case "exponential":
		d, err = distribution.FitExponential(m.Sample)
	default:
		err = fmt.Errorf("%w: %s cannot be fitted from a sample", ErrInvalid, m.Family)
	}
	if err != nil {
		return nil, fmt.Errorf("fitting input %q: %w", m.Name, err)
	}
	return d, nil
}

// copula builds the dependence structure. Independence is returned as nil.
func (s *Spec) copula() (distribution.Copula, error) {
	n := len(s.Inputs)
	switch s.Copula.Family {
	case "", "independent":
		return nil, nil
	case "normal":
		if len(s.Copula.Correlation) != n {
			return nil, fmt.Errorf("%w: correlation has %d rows for %d inputs", ErrInvalid, len(s.Copula.Correlation), n)
		}
		r := mat.NewSymDense(n, nil)
		for i := range n {
			for j := i; j < n; j++ {
				if len(s.Copula.Correlation[i]) != n || len(s.Copula.Correlation[j]) != n {
					return nil, fmt.Errorf("%w: correlation is not %dx%d", ErrInvalid, n, n)
				}
				if s.Copula.Correlation[i][j] != s.Copula.Correlation[j][i] {
					return nil, fmt.Errorf("%w: correlation is not symmetric at (%d, %d)", ErrInvalid, i, j)
				}
				r.SetSym(i, j, s.Copula.Correlation[i][j])
			}
		}
		return distribution.NewNormalCopula(r)
	case "clayton":
		return distribution.NewClayton(n, s.Copula.Theta)
	case "gumbel":
		return distribution.NewGumbelCopula(n, s.Copula.Theta)
	}
	return nil, fmt.Errorf("%w: unknown copula %q", ErrInvalid, s.Copula.Family)
}

// Joint builds the input distribution with components named after the inputs.
func (s *Spec) Joint() (*distribution.Joint, error) {
	marginals := make([]distribution.Marginal, len(s.Inputs))
	for i, m := range s.Inputs {
		d, err := m.Marginal()
		if err != nil {
			return nil, err
		}
		marginals[i] = d
	}
	c, err := s.copula()
	if err != nil {
		return nil, fmt.Errorf("copula: %w", err)
	}
	joint, err := distribution.NewJoint(marginals, c)
	if err != nil {
		return nil, err
	}
	return joint.WithDescription(s.Names()...), nil
}

// Event compiles the formula against the inputs.
func (s *Spec) Event() (reliability.Event, error) {
	joint, err := s.Joint()
	if err != nil {
		return reliability.Event{}, err
	}
	return s.event(joint)
}

func (s *Spec) event(joint *distribution.Joint) (reliability.Event, error) {
	f, err := reliability.NewSymbolicFunction(s.Names(), []string{"g"}, []string{s.Formula})
	if err != nil {
		return reliability.Event{}, err
	}
	op, err := reliability.ParseOperator(s.Operator)
	if err != nil {
		return reliability.Event{}, err
	}
	return reliability.NewEvent(f, reliability.NewRandomVector(joint), op, s.Threshold)
}

// SolverConfig returns the nearest-point algorithm and the engine configuration.
func (s *Spec) SolverConfig() (optim.Solver, reliability.Config, error) {
	var solver optim.Solver
	switch s.Solver.Name {
	case "", "sqp":
		solver = optim.SQP{}
	case "abdorackwitz":
		solver = optim.AbdoRackwitz{}
	case "auglag":
		solver = optim.AugmentedLagrangian{}
	default:
		return nil, reliability.Config{}, fmt.Errorf("%w: unknown solver %q", ErrInvalid, s.Solver.Name)
	}
	cfg, err := optim.NewConfigBuilder().
		MaxIterations(s.Solver.MaxIterations).
		Tolerance(s.Solver.Tolerance).
		Build()
	if err != nil {
		return nil, reliability.Config{}, err
	}
	return solver, reliability.Config{Optim: cfg}, nil
}

// Study builds the single analysis at Threshold. The start point defaults to
// the input means.
func (s *Spec) Study() (reliability.Study, error) {
	joint, err := s.Joint()
	if err != nil {
		return reliability.Study{}, err
	}
	event, err := s.event(joint)
	if err != nil {
		return reliability.Study{}, err
	}
	solver, cfg, err := s.SolverConfig()
	if err != nil {
		return reliability.Study{}, err
	}
	start := s.Start
	if len(start) == 0 {
		start = joint.Mean()
	}
	return reliability.Study{
		Name:   s.Name,
		Event:  event,
		Start:  append([]float64(nil), start...),
		Solver: solver,
		Config: cfg,
	}, nil
}

// Studies returns the threshold sweep, or the single study when no
// thresholds are listed.
func (s *Spec) Studies() ([]reliability.Study, error) {
	base, err := s.Study()
	if err != nil {
		return nil, err
	}
	if len(s.Thresholds) == 0 {
		return []reliability.Study{base}, nil
	}
	return reliability.SweepThreshold(base, s.Thresholds), nil
}

// BatchConfig maps the batch section onto the runner settings.
func (s *Spec) BatchConfig() reliability.BatchConfig {
	cfg := reliability.DefaultBatchConfig()
	if s.Batch.Workers > 0 {
		cfg.Workers = s.Batch.Workers
	}
	cfg.FailFast = s.Batch.FailFast
	return cfg
}
