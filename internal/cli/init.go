package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const initConfig = `# lambdasync configuration
# Each function is reconciled against its record in .lambdasync/state.json.

functions:
  - name: hello
    description: Example function
    handler: index.handler
    runtime: nodejs20.x
    code: ./src
    memorySize: 128
    timeout: 10
    environment:
      STAGE: dev
`

const initHandler = `exports.handler = async () => ({ statusCode: 200, body: "hello" });
`

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new lambdasync project",
	Long:  `Creates lambdasync.yaml, an example handler and the state directory.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	if err := os.MkdirAll(filepath.Join(dir, dataDir()), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dataDir(), err)
	}

	files := []struct{ path, content string }{
		{filepath.Join(dir, "lambdasync.yaml"), initConfig},
		{filepath.Join(dir, "src", "index.js"), initHandler},
		{filepath.Join(dir, dataDir(), ".gitignore"), "*.lock\n*.tmp\n"},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(f.path), err)
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", f.path, err)
		}
		fmt.Fprintf(out, "Created %s\n", f.path)
	}

	fmt.Fprintln(out, "\nlambdasync initialized successfully!")
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Edit lambdasync.yaml to describe your functions")
	fmt.Fprintln(out, "  2. Run 'lambdasync plan' to see what will be deployed")
	fmt.Fprintln(out, "  3. Run 'lambdasync deploy' to deploy them")
	return nil
}
