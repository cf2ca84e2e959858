package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
	"github.com/ternarybob/shellprobe/internal/storage"
)

var resultFormats = []string{"table", "json", "yaml"}

type resultsOptions struct {
	*rootOptions
	limit  int
	format string
}

func newResultsCommand(root *rootOptions) *cobra.Command {
	opts := &resultsOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List stored run history",
		Long: `Results lists runs saved to the history store, newest first. The store
is read from storage.path even when storage.enabled is false.`,
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, resultFormats)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStorage(func(store interfaces.RunStorage) error {
				runs, err := store.ListRuns(cmd.Context(), opts.limit)
				if err != nil {
					return err
				}
				return writeRuns(cmd.OutOrStdout(), opts.format, runs)
			})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.format, "format", "table", "output format (table|json|yaml)")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of runs to list (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one stored run including diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStorage(func(store interfaces.RunStorage) error {
				record, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeRun(cmd.OutOrStdout(), opts.format, record)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStorage(func(store interfaces.RunStorage) error {
				if err := store.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

// withStorage opens the history store, ignoring reset_on_startup
func (o *resultsOptions) withStorage(fn func(interfaces.RunStorage) error) error {
	if err := o.load(common.FlagOverrides{}, false); err != nil {
		return err
	}

	storageConfig := o.config.Storage
	storageConfig.ResetOnStartup = false

	store, err := storage.NewRunStorage(o.logger, &storageConfig)
	if err != nil {
		return err
	}
	defer store.Close()

	err = fn(store)
	if errors.Is(err, interfaces.ErrRunNotFound) {
		return &exitError{code: 1, err: err}
	}
	return err
}

func isValidFormat(format string) bool {
	for _, f := range resultFormats {
		if f == format {
			return true
		}
	}
	return false
}

func writeRuns(w io.Writer, format string, runs []models.RunRecord) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "yaml":
		return yaml.NewEncoder(w).Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tRESULT\tSCENARIOS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.FinishedAt.Sub(run.StartedAt).Round(10*time.Millisecond),
			runResult(run),
			scenarioCounts(run),
		)
	}
	return tw.Flush()
}

func writeRun(w io.Writer, format string, run *models.RunRecord) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "yaml":
		return yaml.NewEncoder(w).Encode(run)
	}

	fmt.Fprintf(w, "Run:       %s\n", run.ID)
	fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:  %s\n", run.FinishedAt.Sub(run.StartedAt).Round(10*time.Millisecond))
	fmt.Fprintf(w, "Result:    %s\n", runResult(*run))
	if run.WindowTitle != "" {
		fmt.Fprintf(w, "Window:    %s\n", run.WindowTitle)
	}
	if run.SetupError != "" {
		fmt.Fprintf(w, "Setup:     %s\n", run.SetupError)
	}
	if run.TeardownError != "" {
		fmt.Fprintf(w, "Teardown:  %s\n", run.TeardownError)
	}
	if run.ArtifactsDir != "" {
		fmt.Fprintf(w, "Artifacts: %s\n", run.ArtifactsDir)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tRESULT\tDURATION\tERROR")
	for _, s := range run.Scenarios {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, scenarioResult(s), s.Duration.Round(10*time.Millisecond), s.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range run.Scenarios {
		if s.Diagnostics == "" {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n%s", s.Name, s.Diagnostics)
	}
	return nil
}

func runResult(run models.RunRecord) string {
	if run.Passed {
		return "PASS"
	}
	return "FAIL"
}

func scenarioResult(s models.ScenarioRecord) string {
	switch {
	case s.Skipped:
		return "SKIP"
	case s.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

func scenarioCounts(run models.RunRecord) string {
	var passed, failed, skipped int
	for _, s := range run.Scenarios {
		switch {
		case s.Skipped:
			skipped++
		case s.Passed:
			passed++
		default:
			failed++
		}
	}
	return fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped)
}
