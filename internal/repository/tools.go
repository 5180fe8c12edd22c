package repository

import (
	"context"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

type ToolRepository interface {
	List(ctx context.Context) ([]entity.Tool, error)
	Get(ctx context.Context, id entity.ToolID) (*entity.Tool, error)
	Create(ctx context.Context, tool entity.Tool) (*entity.Tool, error)
	ExistingIDs(ctx context.Context, ids []entity.ToolID) (map[entity.ToolID]bool, error)
}

type toolRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewToolRepository(drv *entsql.Driver, logger *slog.Logger) ToolRepository {
	return &toolRepository{
		drv:    drv,
		logger: logger,
	}
}

var toolColumns = []string{"id", "name"}

func scanTool(rows *entsql.Rows) (entity.Tool, error) {
	var t entity.Tool
	var id int64
	if err := rows.Scan(&id, &t.Name); err != nil {
		return t, err
	}
	t.ID = entity.ToolID(id)
	return t, nil
}

func (r *toolRepository) List(ctx context.Context) ([]entity.Tool, error) {
	q := build(r.drv).Select(toolColumns...).
		From(entsql.Table("tools")).
		OrderBy("id")
	tools, err := queryAll(ctx, conn(ctx, r.drv), q, scanTool)
	if err != nil {
		r.logger.Error("failed to list tools", "error", err)
		return nil, dbError("list tools", err)
	}
	return tools, nil
}

func (r *toolRepository) Get(ctx context.Context, id entity.ToolID) (*entity.Tool, error) {
	q := build(r.drv).Select(toolColumns...).
		From(entsql.Table("tools")).
		Where(entsql.EQ("id", int64(id)))
	tool, ok, err := queryOne(ctx, conn(ctx, r.drv), q, scanTool)
	if err != nil {
		return nil, dbError("get tool", err)
	}
	if !ok {
		return nil, notFound("tool", id)
	}
	return &tool, nil
}

func (r *toolRepository) Create(ctx context.Context, tool entity.Tool) (*entity.Tool, error) {
	q := build(r.drv).Insert("tools").
		Columns(toolColumns...).
		Values(int64(tool.ID), tool.Name)
	if _, err := execQuery(ctx, conn(ctx, r.drv), q); err != nil {
		r.logger.Error("failed to create tool", "tool_id", tool.ID, "name", tool.Name, "error", err)
		return nil, dbError("create tool", err)
	}
	r.logger.Info("tool created", "tool_id", tool.ID, "name", tool.Name)
	return &tool, nil
}

// ExistingIDs reports which of ids are present in the catalog.
func (r *toolRepository) ExistingIDs(ctx context.Context, ids []entity.ToolID) (map[entity.ToolID]bool, error) {
	found := make(map[entity.ToolID]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, int64(id))
	}
	q := build(r.drv).Select("id").
		From(entsql.Table("tools")).
		Where(entsql.In("id", args...))
	existing, err := queryAll(ctx, conn(ctx, r.drv), q, func(rows *entsql.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, dbError("check tool ids", err)
	}
	for _, id := range existing {
		found[entity.ToolID(id)] = true
	}
	return found, nil
}
