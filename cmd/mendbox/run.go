package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/isdmx/mendbox/config"
	"github.com/isdmx/mendbox/logger"
	"github.com/isdmx/mendbox/runtime"
	"github.com/isdmx/mendbox/sandbox"
)

var (
	runDir     string
	runEntry   string
	runTimeout int
	runFormat  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a project directory once in a sandbox",
	Long: `Run loads every file under --dir, pushes them into a disposable
container, installs the project's dependencies and executes its entry point.
The container is removed afterwards.

The entry point is auto-detected (main.py, app.py, a file with a __main__
guard, or the only Python file) unless --entry names one explicitly.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDir, "dir", ".", "Project directory to run")
	runCmd.Flags().StringVar(&runEntry, "entry", "", "Entry point file (auto-detected when omitted)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Execution timeout in seconds (defaults to configuration)")
	runCmd.Flags().StringVar(&runFormat, "format", "yaml", "Report format: yaml or json")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stdout sync failures are unactionable

	rt, err := runtime.New(log, cfg)
	if err != nil {
		return err
	}

	files, err := sandbox.LoadDir(runDir)
	if err != nil {
		return err
	}

	entry := runEntry
	if entry == "" {
		if entry, err = sandbox.DetectEntryPoint(files); err != nil {
			return err
		}
	}

	var opts []sandbox.SessionOption
	if runTimeout > 0 {
		opts = append(opts, sandbox.WithExecTimeout(time.Duration(runTimeout)*time.Second))
	}

	sess := sandbox.NewSession(log, rt, cfg, opts...)
	defer sess.Destroy(context.Background()) //nolint:errcheck // cleanup is best effort

	res, err := sess.Run(cmd.Context(), files, entry)
	if err != nil {
		return err
	}

	return writeReport(cmd.OutOrStdout(), runFormat, runReport{
		SessionID:  sess.ID(),
		EntryPoint: entry,
		ExitCode:   res.ExitCode,
		TimedOut:   res.TimedOut(),
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
	})
}
