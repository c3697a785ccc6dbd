package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	removeAutoApprove bool
	removeTargets     []string
	removeEngineOpts  engineOptions
)

var removeCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Delete functions tracked in state",
	Long: `Deletes the remote functions tracked in the state file and drops their
records. A function that is already gone counts as removed. Generated
execution roles are left in place.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVar(&removeAutoApprove, "auto-approve", false, "Skip interactive approval")
	removeCmd.Flags().StringSliceVarP(&removeTargets, "target", "t", nil, "Limit to the named functions")
	addEngineFlags(removeCmd, &removeEngineOpts)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := openProject(ctx, args, nil, false)
	if err != nil {
		return err
	}

	return withLock(p.backend, func() error {
		st, err := p.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}

		records, err := selectRecords(st, removeTargets)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No functions in state.")
			return nil
		}

		red, reset := colorize(colorRed), colorize(colorReset)
		fmt.Fprintln(out, "lambdasync will delete the following functions:")
		for _, inst := range records {
			fmt.Fprintf(out, "%s  - %s (%s)%s\n", red, inst.Name, inst.RemoteID, reset)
		}

		if !removeAutoApprove && !confirm(cmd.InOrStdin(), out, "Do you really want to delete these functions?") {
			fmt.Fprintln(out, "Remove cancelled.")
			return nil
		}

		eng, err := buildEngine(ctx, p, removeEngineOpts, st)
		if err != nil {
			return err
		}

		var errs []error
		removed := 0
		for _, inst := range records {
			if err := eng.Remove(ctx, inst.Name); err != nil {
				fmt.Fprintf(out, "  %s: %sERROR%s (%v)\n", inst.Key(), red, reset, err)
				errs = append(errs, err)
				continue
			}
			st.Delete(inst.Key())
			removed++
			fmt.Fprintf(out, "  %s: removed\n", inst.Key())
		}

		if err := p.backend.Write(ctx, st); err != nil {
			return errors.Join(append(errs, fmt.Errorf("failed to write state: %w", err))...)
		}
		if len(errs) > 0 {
			return fmt.Errorf("remove failed: %w", errors.Join(errs...))
		}

		fmt.Fprintf(out, "\nRemove complete! %d function(s) deleted.\n", removed)
		return nil
	})
}
