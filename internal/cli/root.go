package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "lambdasync",
	Short: "Declarative deployment for AWS Lambda functions",
	Long: `lambdasync keeps AWS Lambda functions in line with a declarative configuration.

For every configured function it:
  • Fingerprints the code directory by content
  • Compares configuration and code with the last applied record
  • Creates, updates in place, replaces or leaves the function untouched`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the run context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from "+logging.LevelEnvVar+")")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(taintCmd)
	rootCmd.AddCommand(untaintCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(packageCmd)
	rootCmd.AddCommand(versionCmd)
}
