package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/tools-tracker/constants"
)

func jobCommand(s *session) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Create and inspect reconciliation jobs",
	}
	jobCmd.AddCommand(
		jobCreateCommand(s),
		jobTestCommand(s),
		jobStatusCommand(s),
		jobSetStatusCommand(s),
		jobDeleteCommand(s),
	)
	return jobCmd
}

func jobCreateCommand(s *session) *cobra.Command {
	var orderID, action string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job for an order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseUUID("order_id", orderID)
			if err != nil {
				return err
			}
			kind, ok := constants.ParseActionKind(action)
			if !ok {
				return badArg("unknown action %q", action)
			}
			job, err := s.app.Engine.CreateJob(cmd.Context(), id, kind)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	cmd.Flags().StringVar(&orderID, "order", "", "Order id")
	cmd.Flags().StringVar(&action, "action", string(constants.ActionIssuance), "ISSUANCE or RETURN")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func jobTestCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Create a TEST job that is not tied to an order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := s.app.Engine.CreateTestJob(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func jobStatusCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the job status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("job_id", args[0])
			if err != nil {
				return err
			}
			st, err := s.app.Engine.GetStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func jobSetStatusCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <job-id> <status>",
		Short: "Override the job status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("job_id", args[0])
			if err != nil {
				return err
			}
			st, ok := constants.ParseJobStatus(args[1])
			if !ok {
				return badArg("unknown status %q", args[1])
			}
			if err := s.app.Engine.SetStatus(cmd.Context(), id, st); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func jobDeleteCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job with its detections and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("job_id", args[0])
			if err != nil {
				return err
			}
			return s.app.Engine.DeleteJob(cmd.Context(), id)
		},
	}
}
