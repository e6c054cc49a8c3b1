package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved runs",
	}

	var (
		studyName string
		limit     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.List(cmd.Context(), studyName, limit)
			if err != nil {
				return err
			}
			reports := make([]runReport, len(runs))
			for i, run := range runs {
				reports[i] = newRunReport(run, false)
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			return writeRunTable(cmd.OutOrStdout(), reports)
		},
	}
	list.Flags().StringVar(&studyName, "study", "", "only runs of this study")
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 = all)")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one run with its iteration history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report := newRunReport(run, true)
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return writeRunDetail(cmd.OutOrStdout(), report)
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}
