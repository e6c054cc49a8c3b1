package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alexshd/reliability/distribution"
	"github.com/alexshd/reliability/internal/study"
)

type fitReport struct {
	Family     string             `json:"family"`
	Size       int                `json:"size"`
	Parameters map[string]float64 `json:"parameters"`
	Mean       float64            `json:"mean"`
	StdDev     float64            `json:"stddev"`
}

func readSample(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sample []float64
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: value %d: %w", path, len(sample)+1, err)
		}
		sample = append(sample, v)
	}
	return sample, sc.Err()
}

func newFitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "fit normal|uniform|exponential SAMPLE",
		Short:     "Estimate marginal parameters from a whitespace separated sample",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"normal", "uniform", "exponential"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sample, err := readSample(args[1])
			if err != nil {
				return err
			}
			m, err := study.MarginalSpec{Name: args[1], Family: args[0], Sample: sample}.Marginal()
			if err != nil {
				return err
			}

			report := fitReport{
				Family:     m.Name(),
				Size:       len(sample),
				Parameters: make(map[string]float64),
				Mean:       m.Mean(),
				StdDev:     m.StdDev(),
			}
			params := m.Parameters()
			for _, p := range params {
				report.Parameters[p.Name] = p.Value
			}
			a.logger.Debug("fitted", "family", report.Family, "size", report.Size)

			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "family: %s (n=%d)\n", report.Family, report.Size)
			fmt.Fprintf(w, "parameters: %v\n", distribution.Values(params))
			for _, p := range params {
				fmt.Fprintf(w, "  %s = %g\n", p.Name, p.Value)
			}
			return nil
		},
	}
}
