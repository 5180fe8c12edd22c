package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

func toolCommand(s *session) *cobra.Command {
	toolCmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage the tool catalog",
	}
	toolCmd.AddCommand(toolAddCommand(s), toolListCommand(s), toolResolveCommand(s))
	return toolCmd
}

func toolAddCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Add a tool to the catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseToolID(args[0])
			if err != nil {
				return err
			}
			tool, err := s.app.Catalog.Add(cmd.Context(), entity.Tool{ID: id, Name: args[1]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tool)
		},
	}
}

func toolListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, err := s.app.Catalog.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", t.ID, t.Name)
			}
			return nil
		},
	}
}

func toolResolveCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <label>",
		Short: "Resolve a recognizer label to a catalog tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := s.app.Catalog.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func parseToolID(s string) (entity.ToolID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, badArg("invalid tool id %q", s)
	}
	return entity.ToolID(n), nil
}
