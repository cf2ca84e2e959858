package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
)

// rootOptions holds global flags and the state resolved from them
type rootOptions struct {
	configFiles []string // Multiple -c flags supported, later files override earlier ones

	config *common.Config
	logger arbor.ILogger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "shellprobe",
		Short: "Smoke-test harness for an Electron shell embedding Neovim",
		Long: `shellprobe launches the application under test with a remote debugging
port, waits for the embedded editor process to start, runs the smoke
scenarios against the renderer and always shuts the application down.
Failed scenarios get a dump of renderer and main process logs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringArrayVarP(&opts.configFiles, "config", "c", nil,
		"configuration file path (repeatable, later files override earlier ones)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newScheduleCommand(opts))
	cmd.AddCommand(newResultsCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// load resolves configuration and the logger.
// Order: defaults -> config files -> env -> CLI flags, then validate, logger, banner.
func (o *rootOptions) load(flags common.FlagOverrides, showBanner bool) error {
	if len(o.configFiles) == 0 {
		if _, err := os.Stat("shellprobe.toml"); err == nil {
			o.configFiles = append(o.configFiles, "shellprobe.toml")
		}
	}

	config, err := common.LoadFromFiles(o.configFiles...)
	if err != nil {
		return err
	}

	common.ApplyFlagOverrides(config, flags)

	if err := config.Validate(); err != nil {
		return err
	}

	o.config = config
	o.logger = common.InitLogger(config)

	if showBanner {
		common.PrintBanner(common.GetVersion())
	}

	if config.Output.ResultsDir != "" {
		common.InstallCrashHandler(config.Output.ResultsDir)
	}

	o.logger.Debug().
		Strs("config_files", o.configFiles).
		Str("command", config.App.Command).
		Strs("args", config.App.Args).
		Str("debug_host", config.App.DebugHost).
		Int("debug_port", config.App.DebugPort).
		Str("readiness_policy", config.Readiness.Policy).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	return nil
}
