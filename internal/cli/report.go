package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-timetable-engine/internal/app"
)

func newReportCmd() *cobra.Command {
	var (
		schoolID string
		format   string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the curriculum consistency report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				file, err := c.Curriculum.ExportConsistencyReport(cmd.Context(), schoolID, format)
				if err != nil {
					return err
				}
				target := out
				if target == "" {
					target = file.Filename
				} else if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
					target = filepath.Join(target, file.Filename)
				}
				if err := os.WriteFile(target, file.Data, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", target, len(file.Data))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&schoolID, "school", "", "Restrict the report to one school")
	cmd.Flags().StringVar(&format, "format", "csv", "csv, pdf or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "Output file or directory")
	return cmd
}
