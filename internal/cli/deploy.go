package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/picklr-io/lambdasync/internal/engine"
	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent function reconciles.
const DefaultParallelism = 4

var (
	deployAutoApprove bool
	deployProperties  map[string]string
	deployTargets     []string
	deployParallelism int
	deployTimeout     time.Duration
	deployEngineOpts  engineOptions
)

var deployCmd = &cobra.Command{
	Use:   "deploy [path]",
	Short: "Create or update the configured functions",
	Long: `Reconciles every configured function against its last applied record
and converges the remote function: create, update in place, replace or
leave untouched. Independent functions are reconciled in parallel.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().BoolVar(&deployAutoApprove, "auto-approve", false, "Skip interactive approval of plan before deploying")
	deployCmd.Flags().StringToStringVarP(&deployProperties, "prop", "D", nil, "Set external PKL properties (format: key=value)")
	deployCmd.Flags().StringSliceVarP(&deployTargets, "target", "t", nil, "Limit to the named functions")
	deployCmd.Flags().IntVar(&deployParallelism, "parallelism", DefaultParallelism, "Maximum functions reconciled concurrently")
	deployCmd.Flags().DurationVar(&deployTimeout, "timeout", 0, "Abort the whole run after this duration (0 means no limit)")
	addEngineFlags(deployCmd, &deployEngineOpts)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprint(out, "Loading configuration... ")
	p, err := openProject(ctx, args, deployProperties, true)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return err
	}
	fmt.Fprintln(out, "OK")

	specs, err := selectFunctions(p.cfg, deployTargets)
	if err != nil {
		return err
	}

	return withLock(p.backend, func() error {
		st, err := p.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}

		fmt.Fprint(out, "Calculating plan... ")
		planner := planEngine(p, st)
		var planned summary
		var plans []*engine.Outcome
		for _, spec := range specs {
			prior := st.Get(spec.Key())
			o, err := planner.Plan(spec, prior)
			if err != nil {
				fmt.Fprintln(out, "FAILED")
				return fmt.Errorf("plan failed for %s: %w", spec.Key(), err)
			}
			plans = append(plans, o)
			planned.add(o, prior)
		}
		fmt.Fprintln(out, "OK")

		if planned.changes() == 0 {
			fmt.Fprintln(out, "No changes. Functions are up-to-date.")
			return nil
		}

		fmt.Fprintln(out, "\nlambdasync will perform the following actions:")
		for i, o := range plans {
			renderOutcome(out, o, st.Get(specs[i].Key()))
		}
		renderSummary(out, planned)

		if !deployAutoApprove && !confirm(cmd.InOrStdin(), out, "Do you want to perform these actions?") {
			fmt.Fprintln(out, "Deploy cancelled.")
			return nil
		}

		eng, err := buildEngine(ctx, p, deployEngineOpts, st)
		if err != nil {
			return err
		}

		runCtx := ctx
		if deployTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, deployTimeout)
			defer cancel()
		}

		fmt.Fprintf(out, "\nDeploying %d function(s)...\n", planned.changes())
		applied, runErr := reconcileAll(runCtx, eng, st, specs, deployParallelism)

		// Persist whatever succeeded, even on failure or timeout.
		if err := p.backend.Write(context.WithoutCancel(ctx), st); err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to write state: %w", err))
		}
		if runErr != nil {
			return fmt.Errorf("deploy failed: %w", runErr)
		}

		fmt.Fprintf(out, "\nDeploy complete! Functions: %d created, %d updated, %d replaced.\n",
			applied.Create, applied.Update, applied.Replace)
		return nil
	})
}

// reconcileAll reconciles specs with at most parallelism in flight and
// records every outcome in st. A failure in one function does not stop
// the others; all errors are joined.
func reconcileAll(ctx context.Context, eng engine.Reconciler, st *ir.State, specs []*ir.ResourceSpec, parallelism int) (summary, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		mu   sync.Mutex
		sum  summary
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(parallelism)

	for _, spec := range specs {
		key := spec.Key()
		mu.Lock()
		prior := st.Get(key)
		mu.Unlock()

		g.Go(func() error {
			log := logging.With("function", key)
			outcome, err := eng.Reconcile(ctx, spec, prior)

			mu.Lock()
			defer mu.Unlock()

			if outcome != nil {
				switch {
				case outcome.Instance != nil:
					st.Put(outcome.Instance)
				case outcome.Removed:
					st.Delete(key)
				}
			}
			if err != nil {
				log.Error("reconcile failed", "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return nil
			}
			sum.add(outcome, prior)
			log.Info("reconciled", "decision", outcome.Decision)
			return nil
		})
	}

	_ = g.Wait()
	return sum, errors.Join(errs...)
}
