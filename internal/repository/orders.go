package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

type OrderRepository interface {
	Create(ctx context.Context, order entity.Order) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Touch(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error

	ListItems(ctx context.Context, orderID uuid.UUID) ([]entity.OrderItem, error)
	InsertItems(ctx context.Context, items []entity.OrderItem) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) (bool, error)
}

type orderRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewOrderRepository(drv *entsql.Driver, logger *slog.Logger) OrderRepository {
	return &orderRepository{
		drv:    drv,
		logger: logger,
	}
}

var (
	orderColumns     = []string{"id", "employee_id", "description", "created_at", "last_modified"}
	orderItemColumns = []string{"id", "order_id", "tool_id", "marking", "position"}
)

func scanOrder(rows *entsql.Rows) (entity.Order, error) {
	var o entity.Order
	var desc sql.NullString
	if err := rows.Scan(&o.ID, &o.EmployeeID, &desc, &o.CreatedAt, &o.LastModified); err != nil {
		return o, err
	}
	o.Description = stringPtr(desc)
	return o, nil
}

func scanOrderItem(rows *entsql.Rows) (entity.OrderItem, error) {
	var it entity.OrderItem
	var toolID int64
	var marking sql.NullString
	if err := rows.Scan(&it.ID, &it.OrderID, &toolID, &marking, &it.Position); err != nil {
		return it, err
	}
	it.ToolID = entity.ToolID(toolID)
	it.Marking = stringPtr(marking)
	return it, nil
}

// Create inserts the order row and its items. Callers wanting atomicity run it under WithTx.
func (r *orderRepository) Create(ctx context.Context, order entity.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.LastModified.IsZero() {
		order.LastModified = now
	}
	q := build(r.drv).Insert("orders").
		Columns(orderColumns...).
		Values(order.ID, order.EmployeeID, nullString(order.Description), order.CreatedAt, order.LastModified)
	if _, err := execQuery(ctx, conn(ctx, r.drv), q); err != nil {
		r.logger.Error("failed to create order", "order_id", order.ID, "error", err)
		return dbError("create order", err)
	}
	if err := r.InsertItems(ctx, order.Items); err != nil {
		return err
	}
	r.logger.Info("order created", "order_id", order.ID, "employee_id", order.EmployeeID, "items", len(order.Items))
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	q := build(r.drv).Select(orderColumns...).
		From(entsql.Table("orders")).
		Where(entsql.EQ("id", id))
	order, ok, err := queryOne(ctx, conn(ctx, r.drv), q, scanOrder)
	if err != nil {
		return nil, dbError("get order", err)
	}
	if !ok {
		return nil, notFound("order", id)
	}
	items, err := r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *orderRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	q := build(r.drv).Select("id").
		From(entsql.Table("orders")).
		Where(entsql.EQ("id", id))
	_, ok, err := queryOne(ctx, conn(ctx, r.drv), q, func(rows *entsql.Rows) (uuid.UUID, error) {
		var got uuid.UUID
		err := rows.Scan(&got)
		return got, err
	})
	if err != nil {
		return false, dbError("check order", err)
	}
	return ok, nil
}

// Touch bumps last_modified.
func (r *orderRepository) Touch(ctx context.Context, id uuid.UUID) error {
	q := build(r.drv).Update("orders").
		Set("last_modified", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	n, err := execQuery(ctx, conn(ctx, r.drv), q)
	if err != nil {
		return dbError("touch order", err)
	}
	if n == 0 {
		return notFound("order", id)
	}
	return nil
}

// Delete removes the order; items and links go with it through ON DELETE CASCADE.
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := build(r.drv).Delete("orders").Where(entsql.EQ("id", id))
	n, err := execQuery(ctx, conn(ctx, r.drv), q)
	if err != nil {
		r.logger.Error("failed to delete order", "order_id", id, "error", err)
		return dbError("delete order", err)
	}
	if n == 0 {
		return notFound("order", id)
	}
	r.logger.Info("order deleted", "order_id", id)
	return nil
}

// ListItems returns the order's items in insertion order.
func (r *orderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]entity.OrderItem, error) {
	q := build(r.drv).Select(orderItemColumns...).
		From(entsql.Table("order_items")).
		Where(entsql.EQ("order_id", orderID)).
		OrderBy("position", "id")
	items, err := queryAll(ctx, conn(ctx, r.drv), q, scanOrderItem)
	if err != nil {
		return nil, dbError("list order items", err)
	}
	return items, nil
}

func (r *orderRepository) InsertItems(ctx context.Context, items []entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	ins := build(r.drv).Insert("order_items").Columns(orderItemColumns...)
	for _, it := range items {
		ins = ins.Values(it.ID, it.OrderID, int64(it.ToolID), nullString(it.Marking), it.Position)
	}
	if _, err := execQuery(ctx, conn(ctx, r.drv), ins); err != nil {
		r.logger.Error("failed to insert order items", "count", len(items), "error", err)
		return dbError("insert order items", err)
	}
	return nil
}

func (r *orderRepository) DeleteItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	q := build(r.drv).Delete("order_items").Where(entsql.EQ("id", itemID))
	n, err := execQuery(ctx, conn(ctx, r.drv), q)
	if err != nil {
		return false, dbError("delete order item", err)
	}
	return n > 0, nil
}
