// Package reliability estimates event probabilities with the First-Order
// Reliability Method (FORM).
//
// # Overview
//
// An event is {x : g(x) op threshold} for a random vector X with a known
// joint distribution. FORM maps X to independent standard normal variables U
// through an iso-probabilistic transform T, finds the design point u*, the
// point of the limit-state surface closest to the origin, and linearises the
// surface there:
//
//	β  = ‖u*‖
//	Pf ≈ Φ(−β)
//
// # Architecture
//
// The package components:
//
//   - distribution/  - Marginals, copulas and joint distributions
//   - optim/         - Nearest-point solvers (SQP, AbdoRackwitz, AugmentedLagrangian)
//   - transform      - Independent, Nataf and Rosenblatt transforms
//   - limitstate     - G(u) = s·(g(T⁻¹(u)) − threshold) and its gradient
//   - form           - Engine with the Created → Running → Converged/Failed lifecycle
//   - result         - Importance factors, sensitivities and plotting series
//   - batch          - Concurrent studies and threshold sweeps
//   - assertions     - Test helpers for FORM result properties
//
// The formctl command (cmd/formctl) runs studies described in YAML files,
// stores runs in SQLite and exports Prometheus metrics.
//
// # Quick Start
//
//	x0, _ := distribution.NewNormal(5.0, 3.3)
//	x1, _ := distribution.NewNormal(2.1, 3.0)
//	joint, _ := distribution.NewJoint([]distribution.Marginal{x0, x1}, nil)
//
//	g, _ := reliability.NewSymbolicFunction(
//	    []string{"x0", "x1"}, []string{"g"}, []string{"-(6 + x0^2 - x1)"})
//	event, _ := reliability.NewEvent(g, reliability.NewRandomVector(joint), reliability.Greater, 0)
//
//	form, _ := reliability.NewFORM(optim.SQP{}, reliability.DefaultConfig(), event, []float64{5.0, 2.1})
//	if err := form.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	res, _ := form.Result()
//	fmt.Printf("β = %.4f, Pf = %.4g\n", res.HasoferReliabilityIndex(), res.EventProbability())
//
// # Orientation
//
// The limit state is negative exactly where the event occurs. When the origin
// of standard space is itself in the event, the probability is Φ(β) and the
// generalised index is −β.
//
// # Sensitivities
//
// At a fixed design point the derivative of β with respect to a parameter θ
// of the input distribution is
//
//	dβ/dθ = (u*/β)ᵀ ∂T(x*; θ)/∂θ
//
// Marginals that implement distribution.CDFParameterGradienter contribute
// analytic derivatives; the rest, and all dependence parameters, are
// differenced.
package reliability
