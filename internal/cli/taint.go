package cli

import (
	"fmt"
	"strings"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/spf13/cobra"
)

// taintPrefix marks a recorded fingerprint so it never matches the code
// again, which forces a deploy on the next run.
const taintPrefix = "tainted:"

var taintPath string

var taintCmd = &cobra.Command{
	Use:   "taint <function>",
	Short: "Force a function to be redeployed",
	Long: `Marks a function record as tainted, forcing its code and configuration
to be pushed again on the next deploy even if nothing changed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateRecord(cmd, args[0], func(inst *ir.PriorInstance) string {
			if !strings.HasPrefix(inst.Fingerprint, taintPrefix) {
				inst.Fingerprint = taintPrefix + inst.Fingerprint
			}
			return fmt.Sprintf("Function %s has been tainted. It will be redeployed on next deploy.", args[0])
		})
	},
}

var untaintCmd = &cobra.Command{
	Use:   "untaint <function>",
	Short: "Remove taint from a function",
	Long:  `Removes the taint mark from a function record.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateRecord(cmd, args[0], func(inst *ir.PriorInstance) string {
			inst.Fingerprint = strings.TrimPrefix(inst.Fingerprint, taintPrefix)
			return fmt.Sprintf("Function %s has been untainted.", args[0])
		})
	},
}

func init() {
	taintCmd.Flags().StringVarP(&taintPath, "dir", "C", ".", "Project directory")
	untaintCmd.Flags().StringVarP(&taintPath, "dir", "C", ".", "Project directory")
}

func updateRecord(cmd *cobra.Command, target string, mutate func(*ir.PriorInstance) string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx, []string{taintPath}, nil, false)
	if err != nil {
		return err
	}

	return withLock(p.backend, func() error {
		s, err := p.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		inst := s.Find(target)
		if inst == nil {
			return fmt.Errorf("function %s not found in state", target)
		}

		msg := mutate(inst)
		if err := p.backend.Write(ctx, s); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	})
}
