package cli

import (
	"fmt"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/spf13/cobra"
)

var (
	planTargets    []string
	planProperties map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show what deploy would change",
	Long: `Fingerprints each function's code and compares it, together with the
configuration, against the last applied record. No remote calls are made.

The plan shows functions to be:
  • Created
  • Updated in place (with a field diff)
  • Replaced (renamed under the same id)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringSliceVarP(&planTargets, "target", "t", nil, "Limit to the named functions")
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external PKL properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprint(out, "Loading configuration... ")
	p, err := openProject(ctx, args, planProperties, true)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return err
	}
	fmt.Fprintln(out, "OK")

	st, err := p.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	specs, err := selectFunctions(p.cfg, planTargets)
	if err != nil {
		return err
	}

	eng := planEngine(p, st)
	var sum summary
	for _, spec := range specs {
		prior := st.Get(spec.Key())
		outcome, err := eng.Plan(spec, prior)
		if err != nil {
			return fmt.Errorf("plan failed for %s: %w", spec.Key(), err)
		}
		renderOutcome(out, outcome, prior)
		sum.add(outcome, prior)
	}

	renderSummary(out, sum)
	if sum.changes() == 0 {
		fmt.Fprintln(out, "\nNo changes. Functions are up-to-date.")
	}
	if len(planTargets) == 0 {
		warnUnmanaged(cmd, p.cfg, st)
	}
	return nil
}

// warnUnmanaged reports records that no configured function owns anymore.
func warnUnmanaged(cmd *cobra.Command, cfg *ir.Config, st *ir.State) {
	configured := make(map[string]bool, len(cfg.Functions))
	for _, fn := range cfg.Functions {
		configured[fn.Key()] = true
	}
	for _, key := range st.Names() {
		if !configured[key] {
			fmt.Fprintf(cmd.ErrOrStderr(), "%sWarning: %s is tracked in state but no longer configured; run 'lambdasync remove --target %s' to delete it%s\n",
				colorize(colorYellow), key, key, colorize(colorReset))
		}
	}
}
