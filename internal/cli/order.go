package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/tools-tracker/internal/ledger"
)

func orderCommand(s *session) *cobra.Command {
	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Manage orders and their expected tools",
	}
	orderCmd.AddCommand(
		orderCreateCommand(s),
		orderShowCommand(s),
		orderExpectedCommand(s),
		orderShrinkCommand(s),
		orderDeleteCommand(s),
	)
	return orderCmd
}

func orderCreateCommand(s *session) *cobra.Command {
	var (
		employeeID  int64
		description string
		items       []string
	)
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an order",
		Example: "  tools-tracker order create --employee 7 --item 1 --item 2:AB-12",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reqs, err := parseItems(items)
			if err != nil {
				return err
			}
			req := ledger.OrderRequest{EmployeeID: employeeID, Items: reqs}
			if description != "" {
				req.Description = &description
			}
			order, err := s.app.Ledger.CreateOrder(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), order)
		},
	}
	cmd.Flags().Int64Var(&employeeID, "employee", 0, "Employee id")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().StringArrayVar(&items, "item", nil, "Item as <tool-id>[:<marking>], repeatable")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func orderShowCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Print an order with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("order_id", args[0])
			if err != nil {
				return err
			}
			order, err := s.app.Ledger.GetOrder(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), order)
		},
	}
}

func orderExpectedCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "expected <order-id>",
		Short: "Print the sorted tool ids the order expects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("order_id", args[0])
			if err != nil {
				return err
			}
			ids, err := s.app.Ledger.ExpectedMultiset(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ids)
		},
	}
}

func orderShrinkCommand(s *session) *cobra.Command {
	var items []string
	cmd := &cobra.Command{
		Use:   "shrink <order-id>",
		Short: "Reduce the order to the given items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("order_id", args[0])
			if err != nil {
				return err
			}
			reqs, err := parseItems(items)
			if err != nil {
				return err
			}
			removed, err := s.app.Ledger.ShrinkItems(cmd.Context(), id, reqs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), removed)
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "Remaining item as <tool-id>[:<marking>], repeatable")
	return cmd
}

func orderDeleteCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <order-id>",
		Short: "Delete an order that no job references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("order_id", args[0])
			if err != nil {
				return err
			}
			return s.app.Ledger.DeleteOrder(cmd.Context(), id)
		},
	}
}

// parseItems reads "<tool-id>" or "<tool-id>:<marking>" values.
func parseItems(values []string) ([]ledger.ItemRequest, error) {
	out := make([]ledger.ItemRequest, 0, len(values))
	for _, v := range values {
		idPart, marking, hasMarking := strings.Cut(v, ":")
		id, err := parseToolID(idPart)
		if err != nil {
			return nil, err
		}
		item := ledger.ItemRequest{ToolID: id}
		if hasMarking && marking != "" {
			m := marking
			item.Marking = &m
		}
		out = append(out, item)
	}
	return out, nil
}
