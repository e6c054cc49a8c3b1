package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alexshd/reliability"
	"github.com/alexshd/reliability/internal/metrics"
	"github.com/alexshd/reliability/internal/store"
	"github.com/alexshd/reliability/internal/study"
	"github.com/alexshd/reliability/optim"
)

func solverName(s optim.Solver) string {
	if s == nil {
		return optim.SQP{}.Name()
	}
	return s.Name()
}

func newRunCmd(a *app) *cobra.Command {
	var (
		save        bool
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "run STUDY.yaml",
		Short: "Run a study, or every threshold of a sweep",
		Long: `Run loads a study file, runs FORM for its threshold (or for each entry of
its thresholds list, concurrently) and prints one line per analysis.
The command fails when any analysis fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := study.Load(args[0])
			if err != nil {
				return err
			}
			a.applyStudy(cmd, spec)

			studies, err := spec.Studies()
			if err != nil {
				return err
			}

			collectors := metrics.New()
			registry := prometheus.NewRegistry()
			if err := collectors.Register(registry); err != nil {
				return err
			}

			cfg := spec.BatchConfig()
			cfg.Logger = a.logger
			cfg.Observe = collectors.Observe
			results, err := reliability.RunBatch(cmd.Context(), studies, cfg)
			if err != nil {
				return err
			}

			runs := make([]store.Run, len(results))
			for i, r := range results {
				runs[i] = store.FromBatch(solverName(studies[i].Solver), r)
			}
			if save {
				if runs, err = a.saveRuns(cmd, runs); err != nil {
					return err
				}
			}
			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}

			stats := reliability.CalculateStatistics(results)
			a.logger.Info("batch finished",
				"studies", len(results),
				"converged", stats.Converged,
				"failed", stats.Failed,
				"p50", stats.P50,
				"p95", stats.P95,
			)

			reports := make([]runReport, len(runs))
			for i, run := range runs {
				reports[i] = newRunReport(run, false)
			}
			if a.jsonOut {
				err = writeJSON(cmd.OutOrStdout(), reports)
			} else {
				err = writeRunTable(cmd.OutOrStdout(), reports)
			}
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d of %d analyses failed", stats.Failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the runs in the database")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	return cmd
}

func (a *app) saveRuns(cmd *cobra.Command, runs []store.Run) ([]store.Run, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	saved := make([]store.Run, len(runs))
	for i, run := range runs {
		if saved[i], err = st.Save(cmd.Context(), run); err != nil {
			return nil, err
		}
		a.logger.Debug("run saved", "id", saved[i].ID, "study", run.Study)
	}
	return saved, nil
}
