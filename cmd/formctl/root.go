package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alexshd/reliability/internal/logging"
	"github.com/alexshd/reliability/internal/store"
	"github.com/alexshd/reliability/internal/study"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	logLevel string
	logFile  string
	dbPath   string
	jsonOut  bool

	logger *slog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{logger: logging.Discard()}

	root := &cobra.Command{
		Use:           "formctl",
		Short:         "First-order reliability analysis of limit-state studies",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.initLogging(cmd, a.logLevel, a.logFile)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetVersionTemplate("formctl {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFile, "log-file", "", "also write JSON logs to this rotating file")
	flags.StringVar(&a.dbPath, "db", "formctl.db", "SQLite database of saved runs")
	flags.BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		newRunCmd(a),
		newDrawCmd(a),
		newRunsCmd(a),
		newFitCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) initLogging(cmd *cobra.Command, level, file string) {
	a.close()
	opts := logging.DefaultOptions()
	opts.Level = logging.ParseLevel(level)
	opts.Console = cmd.ErrOrStderr()
	opts.File = file
	a.logger, a.closer = logging.New(opts)
}

// applyStudy lets the study's log section fill in flags the user left unset.
func (a *app) applyStudy(cmd *cobra.Command, spec *study.Spec) {
	level, file := a.logLevel, a.logFile
	if !cmd.Flags().Changed("log-level") && spec.Log.Level != "" {
		level = spec.Log.Level
	}
	if !cmd.Flags().Changed("log-file") && spec.Log.File != "" {
		file = spec.Log.File
	}
	if level != a.logLevel || file != a.logFile {
		a.initLogging(cmd, level, file)
	}
	if !cmd.Flags().Changed("db") && spec.Store.Path != "" {
		a.dbPath = spec.Store.Path
	}
}

func (a *app) openStore() (*store.Store, error) {
	return store.NewStore(a.dbPath)
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
