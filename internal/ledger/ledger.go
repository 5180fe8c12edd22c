// Package ledger keeps the ordered tool multisets that recognized tools are compared against.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/internal/aggregate"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

// ItemRequest names one ordered tool.
type ItemRequest struct {
	ToolID  entity.ToolID `json:"tool_id"`
	Marking *string       `json:"marking,omitempty"`
}

// OrderRequest wraps parameters for creating an order.
type OrderRequest struct {
	ID          uuid.UUID     `json:"id"`
	EmployeeID  int64         `json:"employee_id"`
	Description *string       `json:"description,omitempty"`
	Items       []ItemRequest `json:"items"`
}

type Ledger struct {
	drv    *entsql.Driver
	orders repository.OrderRepository
	tools  repository.ToolRepository
	links  repository.AccountingRepository
	jobs   repository.JobRepository
	logger *slog.Logger
}

func New(drv *entsql.Driver, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		drv:    drv,
		orders: repository.NewOrderRepository(drv, logger),
		tools:  repository.NewToolRepository(drv, logger),
		links:  repository.NewAccountingRepository(drv, logger),
		jobs:   repository.NewJobRepository(drv, logger),
		logger: logger,
	}
}

// CreateOrder stores the order and its items. Items naming tools that are not in the catalog
// are skipped with a warning; the order is still created.
func (l *Ledger) CreateOrder(ctx context.Context, req OrderRequest) (*entity.Order, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	v := common.NewValidator().Field("employee_id", req.EmployeeID, common.Positive)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	var order *entity.Order
	err := repository.WithTx(ctx, l.drv, func(ctx context.Context) error {
		known, err := l.tools.ExistingIDs(ctx, toolIDs(req.Items))
		if err != nil {
			return err
		}

		o := entity.Order{ID: req.ID, EmployeeID: req.EmployeeID, Description: req.Description}
		for _, it := range req.Items {
			if !known[it.ToolID] {
				l.logger.Warn("ledger.order.unknown_tool_skipped", "order_id", req.ID, "tool_id", it.ToolID)
				continue
			}
			o.Items = append(o.Items, entity.OrderItem{
				ID:       uuid.New(),
				OrderID:  req.ID,
				ToolID:   it.ToolID,
				Marking:  it.Marking,
				Position: len(o.Items),
			})
		}
		if err := l.orders.Create(ctx, o); err != nil {
			return err
		}
		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (l *Ledger) GetOrder(ctx context.Context, orderID uuid.UUID) (*entity.Order, error) {
	return l.orders.Get(ctx, orderID)
}

func (l *Ledger) ListItems(ctx context.Context, orderID uuid.UUID) ([]entity.OrderItem, error) {
	if err := l.requireOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return l.orders.ListItems(ctx, orderID)
}

// ExpectedMultiset returns the order's tool identities sorted ascending, duplicates kept.
func (l *Ledger) ExpectedMultiset(ctx context.Context, orderID uuid.UUID) ([]entity.ToolID, error) {
	items, err := l.ListItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ids := make([]entity.ToolID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ToolID)
	}
	return aggregate.Sorted(ids), nil
}

// AddItem appends one item to the order.
func (l *Ledger) AddItem(ctx context.Context, orderID uuid.UUID, req ItemRequest) (*entity.OrderItem, error) {
	var item *entity.OrderItem
	err := repository.WithTx(ctx, l.drv, func(ctx context.Context) error {
		items, err := l.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		known, err := l.tools.ExistingIDs(ctx, []entity.ToolID{req.ToolID})
		if err != nil {
			return err
		}
		if !known[req.ToolID] {
			return common.NewAppError("UNKNOWN_TOOL", fmt.Sprintf("tool %d is not in the catalog", req.ToolID), common.ErrInvalidInput)
		}

		pos := 0
		for _, it := range items {
			pos = max(pos, it.Position+1)
		}
		it := entity.OrderItem{ID: uuid.New(), OrderID: orderID, ToolID: req.ToolID, Marking: req.Marking, Position: pos}
		if err := l.orders.InsertItems(ctx, []entity.OrderItem{it}); err != nil {
			return err
		}
		item = &it
		return l.orders.Touch(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes one item of the order by id.
func (l *Ledger) RemoveItem(ctx context.Context, orderID, itemID uuid.UUID) error {
	return repository.WithTx(ctx, l.drv, func(ctx context.Context) error {
		items, err := l.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		if !slices.ContainsFunc(items, func(it entity.OrderItem) bool { return it.ID == itemID }) {
			return common.NewAppError("NOT_FOUND", fmt.Sprintf("item %s not found in order %s", itemID, orderID), common.ErrNotFound)
		}
		if _, err := l.orders.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		return l.orders.Touch(ctx, orderID)
	})
}

// ShrinkItems reconciles the stored items against a smaller edited list: for every surplus
// occurrence of a tool in the stored multiset exactly one stored item of that tool is deleted,
// latest position first. A request holding tools the order does not have is rejected.
func (l *Ledger) ShrinkItems(ctx context.Context, orderID uuid.UUID, smaller []ItemRequest) ([]entity.OrderItem, error) {
	var removed []entity.OrderItem
	err := repository.WithTx(ctx, l.drv, func(ctx context.Context) error {
		items, err := l.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		stored := make([]entity.ToolID, 0, len(items))
		for _, it := range items {
			stored = append(stored, it.ToolID)
		}
		requested := toolIDs(smaller)
		if extra := aggregate.Diff(requested, stored); len(extra) > 0 {
			return common.NewAppError("NOT_A_SUBSET",
				fmt.Sprintf("edited list holds tools the order lacks: %v", extra), common.ErrInvalidInput)
		}

		surplus := aggregate.Diff(stored, requested)
		for i := len(items) - 1; i >= 0; i-- {
			it := items[i]
			if surplus[it.ToolID] == 0 {
				continue
			}
			if _, err := l.orders.DeleteItem(ctx, it.ID); err != nil {
				return err
			}
			surplus[it.ToolID]--
			removed = append(removed, it)
		}
		if len(removed) > 0 {
			if err := l.orders.Touch(ctx, orderID); err != nil {
				return err
			}
		}
		l.logger.Info("ledger.order.shrunk", "order_id", orderID, "removed", len(removed), "remaining", len(items)-len(removed))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteOrder removes the order together with its jobs (and their artifacts and detections),
// accounting links and items.
func (l *Ledger) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	return repository.WithTx(ctx, l.drv, func(ctx context.Context) error {
		if err := l.requireOrder(ctx, orderID); err != nil {
			return err
		}
		links, err := l.links.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, link := range links {
			if err := l.jobs.Delete(ctx, link.JobID); err != nil {
				return err
			}
		}
		if err := l.orders.Delete(ctx, orderID); err != nil {
			return err
		}
		l.logger.Info("ledger.order.deleted", "order_id", orderID, "jobs", len(links))
		return nil
	})
}

func (l *Ledger) requireOrder(ctx context.Context, orderID uuid.UUID) error {
	ok, err := l.orders.Exists(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewAppError("ORDER_NOT_FOUND", fmt.Sprintf("order %s not found", orderID), common.ErrNotFound)
	}
	return nil
}

func toolIDs(items []ItemRequest) []entity.ToolID {
	ids := make([]entity.ToolID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ToolID)
	}
	return ids
}
