package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"

	"github.com/alexshd/reliability"
	"github.com/alexshd/reliability/internal/store"
	"github.com/alexshd/reliability/optim"
)

type runReport struct {
	ID          string             `json:"id,omitempty"`
	Study       string             `json:"study"`
	Solver      string             `json:"solver"`
	State       string             `json:"state"`
	Beta        float64            `json:"beta"`
	Generalised float64            `json:"generalised_beta"`
	Pf          float64            `json:"pf"`
	OriginFails bool               `json:"origin_in_failure_domain"`
	Iterations  int                `json:"iterations"`
	Evaluations int                `json:"evaluations"`
	Names       []string           `json:"names,omitempty"`
	UStar       []float64          `json:"u_star,omitempty"`
	XStar       []float64          `json:"x_star,omitempty"`
	Factors     map[string]float64 `json:"importance_factors,omitempty"`
	History     []optim.Iteration  `json:"history,omitempty"`
	Error       string             `json:"error,omitempty"`
	Duration    string             `json:"duration"`
	CreatedAt   *time.Time         `json:"created_at,omitempty"`
}

func newRunReport(run store.Run, withHistory bool) runReport {
	r := runReport{
		ID:          run.ID,
		Study:       run.Study,
		Solver:      run.Solver,
		State:       string(run.State),
		Beta:        run.Beta,
		Generalised: run.Generalised,
		Pf:          run.Pf,
		OriginFails: run.OriginFails,
		Iterations:  len(run.History),
		Evaluations: run.Evaluations,
		Names:       run.Names,
		UStar:       run.Design.Standard,
		XStar:       run.Design.Physical,
		Error:       run.Error,
		Duration:    run.Duration.String(),
	}
	if len(run.Factors) == len(run.Names) && len(run.Factors) > 0 {
		r.Factors = make(map[string]float64, len(run.Factors))
		for i, name := range run.Names {
			r.Factors[name] = run.Factors[i]
		}
	}
	if withHistory {
		r.History = run.History
	}
	if !run.CreatedAt.IsZero() {
		created := run.CreatedAt
		r.CreatedAt = &created
	}
	return r
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func writeRunTable(w io.Writer, reports []runReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDY\tSTATE\tBETA\tPF\tITER\tEVALS\tDURATION\tID")
	for _, r := range reports {
		if r.State != string(reliability.StateConverged) {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t%d\t-\t%s\t%s\n", r.Study, r.State, r.Iterations, r.Duration, r.ID)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6e\t%d\t%d\t%s\t%s\n",
			r.Study, r.State, r.Generalised, r.Pf, r.Iterations, r.Evaluations, r.Duration, r.ID)
	}
	return tw.Flush()
}

func writeRunDetail(w io.Writer, r runReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "study\t%s\n", r.Study)
	if r.ID != "" {
		fmt.Fprintf(tw, "id\t%s\n", r.ID)
	}
	fmt.Fprintf(tw, "solver\t%s\n", r.Solver)
	fmt.Fprintf(tw, "state\t%s\n", r.State)
	if r.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", r.Error)
	}
	if r.State == string(reliability.StateConverged) {
		fmt.Fprintf(tw, "beta\t%.8f\n", r.Beta)
		fmt.Fprintf(tw, "generalised beta\t%.8f\n", r.Generalised)
		fmt.Fprintf(tw, "pf\t%.8e\n", r.Pf)
		fmt.Fprintf(tw, "u*\t%v\n", r.UStar)
		fmt.Fprintf(tw, "x*\t%v\n", r.XStar)
		for _, name := range r.Names {
			if f, ok := r.Factors[name]; ok {
				fmt.Fprintf(tw, "alpha² %s\t%.6f\n", name, f)
			}
		}
	}
	fmt.Fprintf(tw, "iterations\t%d\n", r.Iterations)
	for _, it := range r.History {
		fmt.Fprintf(tw, "  %d\tabs %.3e  rel %.3e  res %.3e  con %.3e\n",
			it.Index, it.AbsoluteError, it.RelativeError, it.ResidualError, it.ConstraintError)
	}
	return tw.Flush()
}

func writeSeries(w io.Writer, series []reliability.Series) error {
	for _, s := range series {
		fmt.Fprintf(w, "# %s [%s vs %s]\n", s.Label, s.YLabel, s.XLabel)
		for i, p := range s.Points {
			if i < len(s.Names) {
				fmt.Fprintf(w, "%-12s %g\n", s.Names[i], p.Y)
				continue
			}
			fmt.Fprintf(w, "%-12g %g\n", p.X, p.Y)
		}
		fmt.Fprintln(w)
	}
	return nil
}
