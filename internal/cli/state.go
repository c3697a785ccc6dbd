package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statePath string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage lambdasync state",
	Long:  `Commands for inspecting and modifying function records in state.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List functions in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <function>",
	Short: "Show a single function record",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateMvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a record to a new key",
	Long: `Moves a record to a new key without touching the remote function.
Use it after adding or changing a function's id in the configuration.`,
	Args: cobra.ExactArgs(2),
	RunE: runStateMv,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <function>",
	Short: "Remove a record from state (does not delete the function)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.PersistentFlags().StringVarP(&statePath, "dir", "C", ".", "Project directory")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMvCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p, err := openProject(cmd.Context(), []string{statePath}, nil, false)
	if err != nil {
		return err
	}
	s, err := p.backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(s.Instances) == 0 {
		fmt.Fprintln(out, "No functions in state.")
		return nil
	}

	fmt.Fprintf(out, "State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
	for _, key := range s.Names() {
		inst := s.Get(key)
		if key == inst.Name {
			fmt.Fprintf(out, "  %s\n", key)
		} else {
			fmt.Fprintf(out, "  %s (name: %s)\n", key, inst.Name)
		}
	}
	fmt.Fprintf(out, "\nTotal: %d function(s)\n", len(s.Instances))
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd.Context(), []string{statePath}, nil, false)
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
	printRecord(cmd.OutOrStdout(), inst.Key(), inst)
	return nil
}

func runStateMv(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx, []string{statePath}, nil, false)
	if err != nil {
		return err
	}

	return withLock(p.backend, func() error {
		s, err := p.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}

		src, dst := args[0], args[1]
		inst := s.Get(src)
		if inst == nil {
			return fmt.Errorf("function %s not found in state", src)
		}
		if s.Get(dst) != nil {
			return fmt.Errorf("destination %s already exists in state", dst)
		}

		s.Delete(src)
		inst.ID = dst
		if dst == inst.Name {
			inst.ID = ""
		}
		s.Put(inst)

		if err := p.backend.Write(ctx, s); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", src, dst)
		return nil
	})
}

func runStateRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx, []string{statePath}, nil, false)
	if err != nil {
		return err
	}

	return withLock(p.backend, func() error {
		s, err := p.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}

		inst := s.Find(args[0])
		if inst == nil {
			return fmt.Errorf("function %s not found in state", args[0])
		}
		s.Delete(inst.Key())

		if err := p.backend.Write(ctx, s); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from state (function was NOT deleted)\n", args[0])
		return nil
	})
}
