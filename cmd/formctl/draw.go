package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/alexshd/reliability"
	"github.com/alexshd/reliability/internal/study"
)

type drawing struct {
	Study       string               `json:"study"`
	Beta        float64              `json:"beta"`
	Pf          float64              `json:"pf"`
	Convergence convergence          `json:"convergence"`
	Series      []reliability.Series `json:"series"`
}

type convergence struct {
	Iterations int      `json:"iterations"`
	Rate       *float64 `json:"rate,omitempty"` // absent with fewer than two steps
	Period     int      `json:"period"`
}

func newConvergence(a reliability.ConvergenceAnalysis) convergence {
	c := convergence{Iterations: a.Iterations, Period: a.Period}
	if !math.IsNaN(a.Rate) {
		rate := a.Rate
		c.Rate = &rate
	}
	return c
}

func newDrawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "draw STUDY.yaml",
		Short: "Run a single study and print its plotting series",
		Long: `Draw runs the study at its threshold and prints the importance factors,
the Hasofer-Lind index and event probability sensitivities (marginal and
dependence parameters) and the solver error history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := study.Load(args[0])
			if err != nil {
				return err
			}
			a.applyStudy(cmd, spec)

			st, err := spec.Study()
			if err != nil {
				return err
			}
			f, err := reliability.NewFORM(st.Solver, st.Config, st.Event, st.Start)
			if err != nil {
				return err
			}
			if err := f.WithLogger(a.logger.With("study", st.Name)).Run(cmd.Context()); err != nil {
				return err
			}
			res, err := f.Result()
			if err != nil {
				return err
			}

			series := []reliability.Series{res.ImportanceFactorSeries()}
			hasofer, err := res.HasoferSensitivitySeries()
			if err != nil {
				return err
			}
			pf, err := res.EventProbabilitySensitivitySeries()
			if err != nil {
				return err
			}
			series = append(series, hasofer...)
			series = append(series, pf...)
			series = append(series, res.ErrorHistorySeries()...)

			analysis := reliability.AnalyzeConvergence(res.ErrorHistory(), reliability.DefaultHistoryConfig())
			if analysis.Oscillating() {
				a.logger.Warn("solver iterates oscillate", "study", st.Name)
			}
			d := drawing{
				Study:       st.Name,
				Beta:        res.GeneralisedReliabilityIndex(),
				Pf:          res.EventProbability(),
				Convergence: newConvergence(analysis),
				Series:      series,
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s: beta=%.6f pf=%.6e iterations=%d rate=%.3g\n\n", d.Study, d.Beta, d.Pf, analysis.Iterations, analysis.Rate)
			return writeSeries(w, d.Series)
		},
	}
}
