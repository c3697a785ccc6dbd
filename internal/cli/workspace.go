package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/state"
	"github.com/spf13/cobra"
)

const defaultWorkspace = "default"

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
	Long: `Workspaces let one configuration deploy several independent copies of its
functions, for example per stage. Each workspace has its own local state file.

The default workspace is called "default".`,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE:  runWorkspaceList,
}

var workspaceNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceNew,
}

var workspaceSelectCmd = &cobra.Command{
	Use:   "select <name>",
	Short: "Switch to another workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceSelect,
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceDelete,
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current workspace name",
	RunE:  runWorkspaceShow,
}

func init() {
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceNewCmd)
	workspaceCmd.AddCommand(workspaceSelectCmd)
	workspaceCmd.AddCommand(workspaceDeleteCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
}

func dataDir() string {
	return filepath.Dir(state.DefaultPath)
}

func workspaceFile(projectDir string) string {
	return filepath.Join(projectDir, dataDir(), "workspace")
}

func currentWorkspace(projectDir string) string {
	data, err := os.ReadFile(workspaceFile(projectDir))
	if err != nil {
		return defaultWorkspace
	}
	ws := strings.TrimSpace(string(data))
	if ws == "" {
		return defaultWorkspace
	}
	return ws
}

// workspaceStateFile returns the state path of a workspace relative to the
// project directory.
func workspaceStateFile(ws string) string {
	if ws == defaultWorkspace {
		return state.DefaultPath
	}
	return filepath.Join(dataDir(), fmt.Sprintf("state.%s.json", ws))
}

// workspaceStatePath returns the state path of the selected workspace.
func workspaceStatePath(projectDir string) string {
	return workspaceStateFile(currentWorkspace(projectDir))
}

func listWorkspaces(projectDir string) ([]string, error) {
	workspaces := []string{defaultWorkspace}

	entries, err := os.ReadDir(filepath.Join(projectDir, dataDir()))
	if os.IsNotExist(err) {
		return workspaces, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", dataDir(), err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if ws, ok := strings.CutPrefix(name, "state."); ok {
			if ws, ok = strings.CutSuffix(ws, ".json"); ok && ws != "" {
				workspaces = append(workspaces, ws)
			}
		}
	}
	return workspaces, nil
}

func workspaceExists(projectDir, name string) bool {
	if name == defaultWorkspace {
		return true
	}
	_, err := os.Stat(filepath.Join(projectDir, workspaceStateFile(name)))
	return err == nil
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	workspaces, err := listWorkspaces(".")
	if err != nil {
		return err
	}

	current := currentWorkspace(".")
	for _, ws := range workspaces {
		if ws == current {
			fmt.Fprintf(cmd.OutOrStdout(), "* %s\n", ws)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", ws)
		}
	}
	return nil
}

func runWorkspaceNew(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == defaultWorkspace {
		return fmt.Errorf("cannot create a workspace named 'default' - it already exists")
	}
	if !funcSafeName(name) {
		return fmt.Errorf("invalid workspace name %q", name)
	}
	if workspaceExists(".", name) {
		return fmt.Errorf("workspace %q already exists", name)
	}

	// An empty state document gives the workspace its own lineage.
	mgr := state.NewManager(workspaceStateFile(name))
	if err := mgr.Write(cmd.Context(), ir.NewState()); err != nil {
		return fmt.Errorf("failed to create workspace state: %w", err)
	}

	if err := os.WriteFile(workspaceFile("."), []byte(name), 0644); err != nil {
		return fmt.Errorf("failed to switch workspace: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created and switched to workspace %q\n", name)
	return nil
}

func runWorkspaceSelect(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !workspaceExists(".", name) {
		return fmt.Errorf("workspace %q does not exist", name)
	}

	if err := os.MkdirAll(dataDir(), 0755); err != nil {
		return fmt.Errorf("failed to switch workspace: %w", err)
	}
	if err := os.WriteFile(workspaceFile("."), []byte(name), 0644); err != nil {
		return fmt.Errorf("failed to switch workspace: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Switched to workspace %q\n", name)
	return nil
}

func runWorkspaceDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == defaultWorkspace {
		return fmt.Errorf("cannot delete the default workspace")
	}
	if currentWorkspace(".") == name {
		return fmt.Errorf("cannot delete the currently active workspace %q - switch to another workspace first", name)
	}
	if !workspaceExists(".", name) {
		return fmt.Errorf("workspace %q does not exist", name)
	}

	statePath := workspaceStateFile(name)
	s, err := state.NewManager(statePath).Read(cmd.Context())
	if err != nil {
		return err
	}
	if len(s.Instances) > 0 {
		return fmt.Errorf("workspace %q still tracks %d function(s); remove them first", name, len(s.Instances))
	}

	if err := os.Remove(statePath); err != nil {
		return fmt.Errorf("failed to delete workspace state: %w", err)
	}
	_ = os.Remove(statePath + ".lock")

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted workspace %q\n", name)
	return nil
}

func runWorkspaceShow(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), currentWorkspace("."))
	return nil
}

func funcSafeName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
