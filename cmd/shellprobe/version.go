package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/shellprobe/internal/common"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ShellProbe version %s\n", common.GetFullVersion())
		},
	}
}
