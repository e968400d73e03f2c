// Package cli implements the costguard command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand returns the costguard command tree bound to the process
// streams.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdout, os.Stderr)
}

// NewRootCommandWithIO returns the command tree writing reports to out and
// logs to errOut.
func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "costguard",
		Short:         "Ensemble anomaly detection for cloud cost data",
		Long:          "costguard flags unusual daily costs by combining an isolation forest, z-score, IQR and per-service z-score detectors.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetVersionTemplate(fmt.Sprintf("costguard {{.Version}} (commit %s, built %s)\n", Commit, BuildDate))

	cmd.AddCommand(
		newDetectCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show costguard build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "costguard %s (commit %s, built %s)\n", Version, Commit, BuildDate)
			return nil
		},
	}
}
