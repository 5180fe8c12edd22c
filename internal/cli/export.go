package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func exportCommand(s *session) *cobra.Command {
	var (
		out      string
		register bool
	)
	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Write the job's detections and reconciliation to an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("job_id", args[0])
			if err != nil {
				return err
			}
			content, err := s.app.Exporter.JobReportXLSX(cmd.Context(), id)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("job-%s.xlsx", id)
			}
			if err := os.WriteFile(out, content, 0o644); err != nil {
				return err
			}
			if register {
				key := filepath.Base(out)
				if _, err := s.app.Exporter.RegisterReport(cmd.Context(), id, s.app.Config.Storage.BucketResults, key); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default job-<id>.xlsx)")
	cmd.Flags().BoolVar(&register, "register", false, "Record the workbook as the job's result artifact")
	return cmd
}
