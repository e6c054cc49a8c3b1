package study

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexshd/reliability"
	"github.com/alexshd/reliability/distribution"
	"github.com/alexshd/reliability/optim"
)

const linearYAML = `
name: linear
formula: R - S
operator: "<"
threshold: 0
inputs:
  - name: R
    family: normal
    parameters: [10, 2]
  - name: S
    family: normal
    parameters: [4, 1.5]
solver:
  tolerance: 1.0e-10
`

func writeStudy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, st reliability.Study) *reliability.Result {
	t.Helper()
	f, err := reliability.NewFORM(st.Solver, st.Config, st.Event, st.Start)
	require.NoError(t, err)
	require.NoError(t, f.Run(context.Background()))
	res, err := f.Result()
	require.NoError(t, err)
	return res
}

func TestLoad_Linear(t *testing.T) {
	spec, err := Load(writeStudy(t, linearYAML))
	require.NoError(t, err)

	assert.Equal(t, "linear", spec.Name)
	assert.Equal(t, []string{"R", "S"}, spec.Names())
	assert.Equal(t, "sqp", spec.Solver.Name)
	assert.Equal(t, 100, spec.Solver.MaxIterations)
	assert.Equal(t, "info", spec.Log.Level)

	st, err := spec.Study()
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 4}, st.Start)
	assert.Equal(t, "SQP", st.Solver.Name())
	assert.Equal(t, 1e-10, st.Config.Optim.MaxAbsoluteError())

	res := run(t, st)
	assert.InDelta(t, 2.4, res.HasoferReliabilityIndex(), 1e-8)
	assert.Equal(t, []string{"R", "S"}, res.Names())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FORM_SOLVER__NAME", "abdorackwitz")
	t.Setenv("FORM_SOLVER__MAX_ITERATIONS", "300")
	t.Setenv("FORM_THRESHOLD", "1.5")

	spec, err := Load(writeStudy(t, linearYAML))
	require.NoError(t, err)
	assert.Equal(t, "abdorackwitz", spec.Solver.Name)
	assert.Equal(t, 300, spec.Solver.MaxIterations)
	assert.Equal(t, 1.5, spec.Threshold)

	solver, cfg, err := spec.SolverConfig()
	require.NoError(t, err)
	assert.Equal(t, optim.AbdoRackwitz{}.Name(), solver.Name())
	assert.Equal(t, 300, cfg.Optim.MaxIterations())
}

func TestLoad_Correlated(t *testing.T) {
	spec, err := Load(writeStudy(t, linearYAML+`
copula:
  family: normal
  correlation:
    - [1, 0.5]
    - [0.5, 1]
`))
	require.NoError(t, err)

	joint, err := spec.Joint()
	require.NoError(t, err)
	assert.IsType(t, &distribution.NormalCopula{}, joint.Copula())
	assert.Equal(t, []string{"R", "S"}, joint.Description())

	st, err := spec.Study()
	require.NoError(t, err)
	res := run(t, st)
	assert.InDelta(t, 6/math.Sqrt(6.25-3), res.HasoferReliabilityIndex(), 1e-7)
}

func TestLoad_Sweep(t *testing.T) {
	spec, err := Load(writeStudy(t, linearYAML+`
thresholds: [0, 1, 2]
batch:
  workers: 2
  fail_fast: true
`))
	require.NoError(t, err)

	studies, err := spec.Studies()
	require.NoError(t, err)
	require.Len(t, studies, 3)
	assert.Equal(t, "linear/t=1", studies[1].Name)
	assert.Equal(t, 2.0, studies[2].Event.Threshold)

	cfg := spec.BatchConfig()
	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.FailFast)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing formula", `
name: x
inputs: [{name: a, family: normal, parameters: [0, 1]}]
`},
		{"bad operator", `
name: x
formula: a
operator: "=="
inputs: [{name: a, family: normal, parameters: [0, 1]}]
`},
		{"unknown family", `
name: x
formula: a
inputs: [{name: a, family: cauchy, parameters: [0, 1]}]
`},
		{"no parameters", `
name: x
formula: a
inputs: [{name: a, family: normal}]
`},
		{"duplicate input", `
name: x
formula: a
inputs:
  - {name: a, family: normal, parameters: [0, 1]}
  - {name: a, family: normal, parameters: [0, 1]}
`},
		{"start length", `
name: x
formula: a
start: [1, 2]
inputs: [{name: a, family: normal, parameters: [0, 1]}]
`},
		{"correlation shape", `
name: x
formula: a + b
copula: {family: normal, correlation: [[1, 0.2]]}
inputs:
  - {name: a, family: normal, parameters: [0, 1]}
  - {name: b, family: normal, parameters: [0, 1]}
`},
		{"unknown solver", `
name: x
formula: a
solver: {name: newton}
inputs: [{name: a, family: normal, parameters: [0, 1]}]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeStudy(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarginalSpec(t *testing.T) {
	m, err := MarginalSpec{Name: "x", Family: "normal", Sample: []float64{1, 2, 3, 4, 5}}.Marginal()
	require.NoError(t, err)
	assert.InDelta(t, 3, m.Mean(), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), m.StdDev(), 1e-12)

	m, err = MarginalSpec{Name: "x", Family: "lognormal", Parameters: []float64{0, 0.25}}.Marginal()
	require.NoError(t, err)
	assert.Equal(t, "LogNormal", m.Name())

	_, err = MarginalSpec{Name: "x", Family: "triangular", Parameters: []float64{0, 1}}.Marginal()
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = MarginalSpec{Name: "x", Family: "weibull", Sample: []float64{1, 2}}.Marginal()
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = MarginalSpec{Name: "x", Family: "normal", Parameters: []float64{0, -1}}.Marginal()
	assert.ErrorIs(t, err, distribution.ErrInvalidParameter)
}
