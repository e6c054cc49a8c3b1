// Package study loads FORM study definitions from YAML and turns them into
// engine inputs.
//
// Values are layered the same way for every command: built-in defaults, then
// the YAML file, then FORM_ environment variables. A double underscore in a
// variable name separates levels, so FORM_SOLVER__MAX_ITERATIONS=300 sets
// solver.max_iterations.
package study

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/alexshd/reliability"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "FORM_"

// ErrInvalid is returned for a study file that loads but cannot describe a
// FORM analysis.
var ErrInvalid = errors.New("invalid study")

// Spec is the on-disk description of one study or threshold sweep.
type Spec struct {
	Name       string         `koanf:"name" validate:"required"`
	Inputs     []MarginalSpec `koanf:"inputs" validate:"required,min=1,dive"`
	Copula     CopulaSpec     `koanf:"copula"`
	Formula    string         `koanf:"formula" validate:"required"`
	Operator   string         `koanf:"operator" validate:"required,operator"`
	Threshold  float64        `koanf:"threshold"`
	Thresholds []float64      `koanf:"thresholds"`
	Start      []float64      `koanf:"start"`
	Solver     SolverSpec     `koanf:"solver"`
	Batch      BatchSpec      `koanf:"batch"`
	Log        LogSpec        `koanf:"log"`
	Store      StoreSpec      `koanf:"store"`
}

// MarginalSpec describes one input variable. Normal, uniform and exponential
// inputs may give a sample instead of parameters.
type MarginalSpec struct {
	Name       string    `koanf:"name" validate:"required"`
	Family     string    `koanf:"family" validate:"required,oneof=normal uniform exponential lognormal gumbel gumbelab triangular weibull"`
	Parameters []float64 `koanf:"parameters"`
	Sample     []float64 `koanf:"sample"`
}

type CopulaSpec struct {
	Family      string      `koanf:"family" validate:"oneof=independent normal clayton gumbel"`
	Correlation [][]float64 `koanf:"correlation"`
	Theta       float64     `koanf:"theta"`
}

type SolverSpec struct {
	Name          string  `koanf:"name" validate:"oneof=sqp abdorackwitz auglag"`
	MaxIterations int     `koanf:"max_iterations" validate:"min=1"`
	Tolerance     float64 `koanf:"tolerance" validate:"gt=0"`
}

type BatchSpec struct {
	Workers  int  `koanf:"workers" validate:"min=0"`
	FailFast bool `koanf:"fail_fast"`
}

type LogSpec struct {
	Level string `koanf:"level" validate:"oneof=debug info warn warning error"`
	File  string `koanf:"file"`
}

type StoreSpec struct {
	Path string `koanf:"path"`
}

// Defaults returns the values every study starts from.
func Defaults() Spec {
	return Spec{
		Operator: "<",
		Copula:   CopulaSpec{Family: "independent"},
		Solver: SolverSpec{
			Name:          "sqp",
			MaxIterations: 100,
			Tolerance:     1e-5,
		},
		Log: LogSpec{Level: "info"},
	}
}

// Load reads path over the defaults, applies FORM_ environment overrides and
// validates the result. An empty path uses defaults and environment only.
func Load(path string) (*Spec, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var spec Spec
	if err := k.Unmarshal("", &spec); err != nil {
		return nil, fmt.Errorf("unmarshaling study: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("operator", func(fl validator.FieldLevel) bool {
		_, err := reliability.ParseOperator(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and the shape of the copula.
func (s *Spec) Validate() error {
	if err := newValidator().Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	n := len(s.Inputs)
	if len(s.Start) > 0 && len(s.Start) != n {
		return fmt.Errorf("%w: start has %d components for %d inputs", ErrInvalid, len(s.Start), n)
	}
	if s.Copula.Family == "normal" {
		if len(s.Copula.Correlation) != n {
			return fmt.Errorf("%w: correlation has %d rows for %d inputs", ErrInvalid, len(s.Copula.Correlation), n)
		}
		for i, row := range s.Copula.Correlation {
			if len(row) != n {
				return fmt.Errorf("%w: correlation row %d has %d entries", ErrInvalid, i, len(row))
			}
		}
	}
	seen := make(map[string]bool, n)
	for _, m := range s.Inputs {
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate input %q", ErrInvalid, m.Name)
		}
		seen[m.Name] = true
		if len(m.Parameters) == 0 && len(m.Sample) == 0 {
			return fmt.Errorf("%w: input %q needs parameters or a sample", ErrInvalid, m.Name)
		}
	}
	return nil
}

// Names returns the input names in declaration order.
func (s *Spec) Names() []string {
	out := make([]string, len(s.Inputs))
	for i, m := range s.Inputs {
		out[i] = m.Name
	}
	return out
}
