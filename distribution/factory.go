package distribution

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func checkSample(family string, sample []float64) error {
	if len(sample) == 0 {
		return fmt.Errorf("cannot fit %s from an empty sample: %w", family, ErrInvalidParameter)
	}
	if !finite(sample...) {
		return fmt.Errorf("cannot fit %s from a sample with non-finite values: %w", family, ErrInvalidParameter)
	}
	return nil
}

// FitNormal estimates N(mu, sigma) by the sample mean and the unbiased
// standard deviation.
func FitNormal(sample []float64) (Normal, error) {
	if err := checkSample("normal", sample); err != nil {
		return Normal{}, err
	}
	if len(sample) < 2 {
		return Normal{}, fmt.Errorf("cannot fit normal from %d point: %w", len(sample), ErrInvalidParameter)
	}
	mean, sd := stat.MeanStdDev(sample, nil)
	return NewNormal(mean, sd)
}

// FitUniform widens the sample range by |bound| / (2 + n) on each side so
// that the extremes fall strictly inside the support.
func FitUniform(sample []float64) (Uniform, error) {
	if err := checkSample("uniform", sample); err != nil {
		return Uniform{}, err
	}
	n := float64(len(sample))
	lo, hi := floats.Min(sample), floats.Max(sample)
	a := lo - math.Abs(lo)/(2+n)
	b := hi + math.Abs(hi)/(2+n)
	return NewUniform(a, b)
}

// FitExponential uses the moment estimator with a shifted location:
//
//	gamma  = min - |min| / (2 + n)
//	lambda = 1 / (mean - gamma)
func FitExponential(sample []float64) (Exponential, error) {
	if err := checkSample("exponential", sample); err != nil {
		return Exponential{}, err
	}
	n := float64(len(sample))
	lo := floats.Min(sample)
	gamma := lo - math.Abs(lo)/(2+n)
	mean := stat.Mean(sample, nil)
	if mean == gamma {
		return Exponential{}, fmt.Errorf("exponential fit needs mean > gamma, got mean=%g gamma=%g: %w", mean, gamma, ErrInvalidParameter)
	}
	return NewExponential(1/(mean-gamma), gamma)
}
