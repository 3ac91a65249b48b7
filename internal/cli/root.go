// Package cli implements the tickos command line.
package cli

import (
	"github.com/spf13/cobra"

	"tickos/internal/logging"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger = logging.Discard()
)

// NewRootCmd creates the root cobra command for the tickos CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tickos",
		Short: "Emulated Cortex-M preemptive scheduler",
		Long:  "tickos runs task sets on an emulated single-core Cortex-M under a tick-driven priority scheduler.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(cmd.ErrOrStderr(), logging.Options{
				Level:  flagLogLevel,
				Format: flagLogFormat,
				Debug:  flagDebug,
			})
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error, off)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newTraceCmd(),
		newWorkloadsCmd(),
		newVersionCmd(),
	)

	return root
}
