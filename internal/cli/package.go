package cli

import (
	"fmt"
	"os"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/packager"
	"github.com/spf13/cobra"
)

var (
	packageOutput   string
	packageExcludes []string
)

var packageCmd = &cobra.Command{
	Use:   "package <dir> [extra-file...]",
	Short: "Build a deployment archive and print its fingerprint",
	Long: `Packages a code directory the same way deploy does. Extra files are
placed at the archive root by base name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPackage,
}

func init() {
	packageCmd.Flags().StringVarP(&packageOutput, "out", "o", "", "Copy the archive to this file")
	packageCmd.Flags().StringSliceVarP(&packageExcludes, "exclude", "x", nil, "Additional glob patterns to exclude")
}

func runPackage(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	art, err := packager.New().Pack(cmd.Context(), ir.NewCodeLocation(args), packageExcludes)
	if err != nil {
		return err
	}

	path := art.Path
	if packageOutput != "" {
		if err := os.WriteFile(packageOutput, art.Bytes, 0644); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
		_ = os.Remove(art.Path)
		path = packageOutput
	}

	fmt.Fprintf(out, "fingerprint: %s\n", art.Fingerprint)
	fmt.Fprintf(out, "archive:     %s (%d bytes)\n", path, len(art.Bytes))
	return nil
}
