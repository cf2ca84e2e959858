package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/shellprobe/internal/app"
	"github.com/ternarybob/shellprobe/internal/common"
)

func newScheduleCommand(root *rootOptions) *cobra.Command {
	flags := common.FlagOverrides{}
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the smoke scenarios on a cron schedule",
		Long: `Schedule repeats the smoke run on a six-field cron expression (seconds
first) until interrupted. A run still in progress when the next one is due
causes that cycle to be skipped.

Example:
  shellprobe schedule --cron "0 */15 * * * *"
  shellprobe schedule --cron "@every 1h"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.load(flags, true); err != nil {
				return err
			}
			if cronExpr == "" {
				cronExpr = root.config.Schedule.Cron
			}
			if cronExpr == "" {
				return errors.New("no schedule: set schedule.cron or pass --cron")
			}

			application, err := app.New(root.config, root.logger)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root.logger.Info().Str("cron", cronExpr).Msg("Scheduler running - Press Ctrl+C to stop")
			if err := application.Schedule(ctx, cronExpr); err != nil {
				return err
			}

			stats := application.Scheduler.Stats()
			root.logger.Info().
				Int("runs", stats.Runs).
				Int("failures", stats.Failures).
				Int("skipped", stats.Skipped).
				Msg("Scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression (overrides schedule.cron)")
	cmd.Flags().StringVar(&flags.Command, "app", "", "application executable (overrides config)")
	cmd.Flags().StringSliceVar(&flags.Only, "only", nil, "run only scenarios whose name contains one of these")
	cmd.Flags().StringVar(&flags.ResultsDir, "results", "", "results directory (overrides config)")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	return cmd
}
