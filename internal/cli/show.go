package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Show the current state",
	Long:  `Displays a human-readable view of every function record in state.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

func runShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	p, err := openProject(cmd.Context(), args, nil, false)
	if err != nil {
		return err
	}
	s, err := p.backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if showJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "State: version=%d serial=%d lineage=%s\n", s.Version, s.Serial, s.Lineage)
	fmt.Fprintf(out, "Functions: %d\n\n", len(s.Instances))
	for _, key := range s.Names() {
		printRecord(out, key, s.Get(key))
		fmt.Fprintln(out)
	}
	return nil
}

func printRecord(w io.Writer, key string, inst *ir.PriorInstance) {
	fmt.Fprintf(w, "# %s\n", key)
	fmt.Fprintf(w, "  name        = %s\n", inst.Name)
	fmt.Fprintf(w, "  remote_id   = %s\n", inst.RemoteID)
	if inst.Version != "" {
		fmt.Fprintf(w, "  version     = %s\n", inst.Version)
	}
	fmt.Fprintf(w, "  handler     = %s\n", inst.Handler)
	fmt.Fprintf(w, "  runtime     = %s\n", inst.Runtime)
	fmt.Fprintf(w, "  memory_size = %d\n", inst.MemorySize)
	fmt.Fprintf(w, "  timeout     = %d\n", inst.Timeout)
	if inst.Identity != nil {
		fmt.Fprintf(w, "  role        = %s (%s)\n", inst.Identity.Name, inst.Identity.ARN)
	}
	fmt.Fprintf(w, "  fingerprint = %s\n", inst.Fingerprint)
	if inst.UpdatedAt != "" {
		fmt.Fprintf(w, "  updated_at  = %s\n", inst.UpdatedAt)
	}
}
