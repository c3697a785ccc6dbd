package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshEngineOpts engineOptions

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Update state to match the remote functions",
	Long: `Reads every function tracked in state from the provider and updates the
records. Records of functions that no longer exist are dropped, so the next
deploy recreates them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	addEngineFlags(refreshCmd, &refreshEngineOpts)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := openProject(ctx, args, nil, false)
	if err != nil {
		return err
	}

	return withLock(p.backend, func() error {
		fmt.Fprint(out, "Reading state... ")
		st, err := p.backend.Read(ctx)
		if err != nil {
			fmt.Fprintln(out, "FAILED")
			return fmt.Errorf("failed to read state: %w", err)
		}
		fmt.Fprintln(out, "OK")

		if len(st.Instances) == 0 {
			fmt.Fprintln(out, "No functions to refresh.")
			return nil
		}

		eng, err := buildEngine(ctx, p, refreshEngineOpts, st)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Refreshing %d function(s)...\n\n", len(st.Instances))
		drifted, deleted := 0, 0
		for _, key := range st.Names() {
			prior := st.Get(key)
			refreshed, err := eng.Refresh(ctx, prior)
			switch {
			case err != nil:
				fmt.Fprintf(out, "  %s: ERROR (%v)\n", key, err)
			case refreshed == nil:
				fmt.Fprintf(out, "  %s%s: DELETED (no longer exists in provider)%s\n", colorize(colorRed), key, colorize(colorReset))
				st.Delete(key)
				deleted++
			case refreshed.RemoteID != prior.RemoteID || refreshed.Version != prior.Version:
				fmt.Fprintf(out, "  %s%s: DRIFTED (state updated)%s\n", colorize(colorYellow), key, colorize(colorReset))
				st.Put(refreshed)
				drifted++
			default:
				fmt.Fprintf(out, "  %s: OK\n", key)
			}
		}

		if drifted > 0 || deleted > 0 {
			if err := p.backend.Write(ctx, st); err != nil {
				return fmt.Errorf("failed to write state: %w", err)
			}
		}

		fmt.Fprintf(out, "\nRefresh complete. %d drifted, %d deleted.\n", drifted, deleted)
		return nil
	})
}
