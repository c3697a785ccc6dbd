package cli

import (
	"encoding/json"
	"fmt"

	"github.com/picklr-io/lambdasync/internal/engine"
	"github.com/spf13/cobra"
)

var (
	outputJSON bool
	outputPath string
)

var outputCmd = &cobra.Command{
	Use:   "output <function> [attribute]",
	Short: "Print attributes of a deployed function",
	Long: `Reads a function record from state and prints its attributes.

If an attribute is given (remoteId, arn, name, version, roleArn) only that
value is printed, which makes it usable in scripts. The same attributes can
be referenced from other functions as ptr://<function>/<attribute>.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	outputCmd.Flags().StringVarP(&outputPath, "dir", "C", ".", "Project directory")
}

func runOutput(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	p, err := openProject(cmd.Context(), []string{outputPath}, nil, false)
	if err != nil {
		return err
	}
	s, err := p.backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	inst := s.Find(args[0])
	if inst == nil {
		return fmt.Errorf("function %s not found in state", args[0])
	}

	if len(args) == 2 {
		val, err := engine.Attribute(inst, args[1])
		if err != nil {
			return err
		}
		if outputJSON {
			data, _ := json.Marshal(val)
			fmt.Fprintln(out, string(data))
		} else {
			fmt.Fprintln(out, val)
		}
		return nil
	}

	values := make(map[string]string, len(engine.Attributes))
	for _, attr := range engine.Attributes {
		if val, err := engine.Attribute(inst, attr); err == nil {
			values[attr] = val
		}
	}
	if outputJSON {
		data, _ := json.MarshalIndent(values, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}
	for _, attr := range engine.Attributes {
		if val, ok := values[attr]; ok {
			fmt.Fprintf(out, "%s = %s\n", attr, val)
		}
	}
	return nil
}
