package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time:
//
//	go build -ldflags "-X main.Version=1.2.0" ./cmd/formctl
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the formctl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "formctl %s\n", Version)
			return err
		},
	}
}
