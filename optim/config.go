package optim

import (
	"errors"
	"fmt"
	"math"
)

// Config holds the stopping criteria of a solve. It is immutable; build one
// with NewConfigBuilder.
type Config struct {
	maxIterations      int
	maxAbsoluteError   float64
	maxRelativeError   float64
	maxResidualError   float64
	maxConstraintError float64
}

// DefaultConfig returns 100 iterations and all tolerances at 1e-5.
func DefaultConfig() Config {
	return Config{
		maxIterations:      100,
		maxAbsoluteError:   1e-5,
		maxRelativeError:   1e-5,
		maxResidualError:   1e-5,
		maxConstraintError: 1e-5,
	}
}

func (c Config) MaxIterations() int          { return c.maxIterations }
func (c Config) MaxAbsoluteError() float64   { return c.maxAbsoluteError }
func (c Config) MaxRelativeError() float64   { return c.maxRelativeError }
func (c Config) MaxResidualError() float64   { return c.maxResidualError }
func (c Config) MaxConstraintError() float64 { return c.maxConstraintError }

func (c Config) validate() error {
	if c.maxIterations < 1 {
		return fmt.Errorf("max iterations %d: %w", c.maxIterations, ErrInvalidConfig)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("iterations=%d abs=%g rel=%g res=%g con=%g",
		c.maxIterations, c.maxAbsoluteError, c.maxRelativeError, c.maxResidualError, c.maxConstraintError)
}

// ConfigBuilder accumulates settings over DefaultConfig. Invalid values are
// reported by Build.
type ConfigBuilder struct {
	cfg  Config
	errs []error
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: DefaultConfig()}
}

// From starts the builder from an existing configuration.
func (b *ConfigBuilder) From(c Config) *ConfigBuilder {
	b.cfg = c
	return b
}

func (b *ConfigBuilder) MaxIterations(n int) *ConfigBuilder {
	if n < 1 {
		b.errs = append(b.errs, fmt.Errorf("max iterations %d", n))
	}
	b.cfg.maxIterations = n
	return b
}

func (b *ConfigBuilder) tolerance(name string, dst *float64, v float64) *ConfigBuilder {
	if !(v >= 0) || math.IsInf(v, 0) {
		b.errs = append(b.errs, fmt.Errorf("%s %g", name, v))
	}
	*dst = v
	return b
}

func (b *ConfigBuilder) MaxAbsoluteError(v float64) *ConfigBuilder {
	return b.tolerance("max absolute error", &b.cfg.maxAbsoluteError, v)
}

func (b *ConfigBuilder) MaxRelativeError(v float64) *ConfigBuilder {
	return b.tolerance("max relative error", &b.cfg.maxRelativeError, v)
}

func (b *ConfigBuilder) MaxResidualError(v float64) *ConfigBuilder {
	return b.tolerance("max residual error", &b.cfg.maxResidualError, v)
}

func (b *ConfigBuilder) MaxConstraintError(v float64) *ConfigBuilder {
	return b.tolerance("max constraint error", &b.cfg.maxConstraintError, v)
}

// Tolerance sets all four error tolerances at once.
func (b *ConfigBuilder) Tolerance(v float64) *ConfigBuilder {
	return b.MaxAbsoluteError(v).MaxRelativeError(v).MaxResidualError(v).MaxConstraintError(v)
}

func (b *ConfigBuilder) Build() (Config, error) {
	if len(b.errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(b.errs...))
	}
	return b.cfg, nil
}
