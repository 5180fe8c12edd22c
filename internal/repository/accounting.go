package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

type AccountingRepository interface {
	Create(ctx context.Context, link entity.AccountingLink) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.AccountingLink, error)
	GetByJob(ctx context.Context, jobID uuid.UUID) (*entity.AccountingLink, error)
}

type accountingRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewAccountingRepository(drv *entsql.Driver, logger *slog.Logger) AccountingRepository {
	return &accountingRepository{
		drv:    drv,
		logger: logger,
	}
}

var linkColumns = []string{"id", "order_id", "job_id", "action_kind", "created_at"}

func scanLink(rows *entsql.Rows) (entity.AccountingLink, error) {
	var l entity.AccountingLink
	var kind string
	if err := rows.Scan(&l.ID, &l.OrderID, &l.JobID, &kind, &l.CreatedAt); err != nil {
		return l, err
	}
	l.ActionKind = constants.ActionKind(kind)
	return l, nil
}

func (r *accountingRepository) Create(ctx context.Context, link entity.AccountingLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	q := build(r.drv).Insert("accounting_links").
		Columns(linkColumns...).
		Values(link.ID, link.OrderID, link.JobID, string(link.ActionKind), link.CreatedAt)
	if _, err := execQuery(ctx, conn(ctx, r.drv), q); err != nil {
		r.logger.Error("failed to create accounting link", "order_id", link.OrderID, "job_id", link.JobID, "action", link.ActionKind, "error", err)
		return dbError("create accounting link", err)
	}
	return nil
}

func (r *accountingRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.AccountingLink, error) {
	q := build(r.drv).Select(linkColumns...).
		From(entsql.Table("accounting_links")).
		Where(entsql.EQ("order_id", orderID)).
		OrderBy("created_at")
	links, err := queryAll(ctx, conn(ctx, r.drv), q, scanLink)
	if err != nil {
		return nil, dbError("list accounting links", err)
	}
	return links, nil
}

func (r *accountingRepository) GetByJob(ctx context.Context, jobID uuid.UUID) (*entity.AccountingLink, error) {
	q := build(r.drv).Select(linkColumns...).
		From(entsql.Table("accounting_links")).
		Where(entsql.EQ("job_id", jobID))
	link, ok, err := queryOne(ctx, conn(ctx, r.drv), q, scanLink)
	if err != nil {
		return nil, dbError("get accounting link", err)
	}
	if !ok {
		return nil, notFound("accounting link for job", jobID)
	}
	return &link, nil
}
