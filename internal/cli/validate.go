package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateProperties map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the configuration",
	Long:  `Loads the configuration and checks every function definition.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVarP(&validateProperties, "prop", "D", nil, "Set external PKL properties (format: key=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	p, err := openProject(cmd.Context(), args, validateProperties, true)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(out, "Checked %s: %d function(s)\n", p.configPath, len(p.cfg.Functions))
	fmt.Fprintln(out, "\nConfiguration is valid!")
	return nil
}
