package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/pipeline"
)

func processCommand(s *session) *cobra.Command {
	var (
		jobID   string
		test    bool
		marking bool
	)
	cmd := &cobra.Command{
		Use:   "process <key>...",
		Short: "Recognize uploaded artifacts and reconcile the job",
		Long: "Runs one recognition round per key for --job, or a single round over every key in a new " +
			"TEST job when --test is set.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if test {
				if !cmd.Flags().Changed("marking") {
					marking = s.app.Config.Pipeline.SearchMarking
				}
				report, err := s.app.Processor.ProcessTestBatch(cmd.Context(), args, marking)
				if report != nil {
					_ = printJSON(cmd.OutOrStdout(), report)
				}
				return err
			}

			id, err := parseUUID("job_id", jobID)
			if err != nil {
				return err
			}
			reports := make([]*pipeline.Report, 0, len(args))
			for _, key := range args {
				report, err := s.app.Processor.ProcessArtifact(cmd.Context(), id, key)
				if report != nil {
					reports = append(reports, report)
				}
				if err != nil {
					_ = printJSON(cmd.OutOrStdout(), reports)
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), reports)
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "Job id the keys belong to")
	cmd.Flags().BoolVar(&test, "test", false, "Process the keys as one round of a new TEST job")
	cmd.Flags().BoolVar(&marking, "marking", false, "Look up markings of recognized tools in TEST rounds (default SEARCH_MARKING)")
	cmd.MarkFlagsMutuallyExclusive("job", "test")
	cmd.MarkFlagsOneRequired("job", "test")
	return cmd
}

func reconcileCommand(s *session) *cobra.Command {
	var detectionsFile string
	cmd := &cobra.Command{
		Use:   "reconcile <job-id>",
		Short: "Compare the job's merged detections with its order and update the status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("job_id", args[0])
			if err != nil {
				return err
			}
			if detectionsFile != "" {
				detections, err := readDetections(detectionsFile)
				if err != nil {
					return err
				}
				if err := s.app.Engine.RecordDetections(cmd.Context(), id, detections); err != nil {
					return err
				}
			}
			res, err := s.app.Engine.Reconcile(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&detectionsFile, "detections", "", "JSON file of detections replacing the stored ones first")
	return cmd
}

func readDetections(path string) ([]entity.Detection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, badArg("read detections: %v", err)
	}
	var detections []entity.Detection
	if err := json.Unmarshal(raw, &detections); err != nil {
		return nil, badArg("decode detections %s: %v", path, err)
	}
	return detections, nil
}
