package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/shellprobe/internal/app"
	"github.com/ternarybob/shellprobe/internal/common"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	flags := common.FlagOverrides{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the smoke scenarios once",
		Long: `Run launches the application, runs every smoke scenario and stops the
application. The exit status is 0 when all scenarios pass, 1 when a
scenario fails and 2 when the application could not be started.

Example:
  shellprobe run -c shellprobe.toml
  shellprobe run --app ./node_modules/.bin/electron --only visible`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.load(flags, true); err != nil {
				return err
			}

			application, err := app.New(root.config, root.logger)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runOnce(ctx, application)
		},
	}

	cmd.Flags().StringVar(&flags.Command, "app", "", "application executable (overrides config)")
	cmd.Flags().StringSliceVar(&flags.Only, "only", nil, "run only scenarios whose name contains one of these")
	cmd.Flags().StringVar(&flags.ResultsDir, "results", "", "results directory (overrides config)")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	return cmd
}

func runOnce(ctx context.Context, application *app.App) error {
	report, err := application.RunOnce(ctx)
	if err != nil {
		return err
	}
	if report.SetupError != nil {
		return &exitError{code: exitSetup, err: report.SetupError}
	}
	if !report.Passed() {
		return &exitError{code: exitFailed}
	}
	return nil
}
