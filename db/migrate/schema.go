// Package migrate declares the relational schema and applies it with ent's migrator.
package migrate

import (
	"context"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var textType = map[string]string{dialect.Postgres: "text"}

var (
	// ToolsColumns holds the columns for the "tools" table.
	ToolsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64},
		{Name: "name", Type: field.TypeString, Unique: true, SchemaType: textType},
	}
	ToolsTable = &schema.Table{
		Name:       "tools",
		Columns:    ToolsColumns,
		PrimaryKey: []*schema.Column{ToolsColumns[0]},
	}

	// OrdersColumns holds the columns for the "orders" table.
	OrdersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "employee_id", Type: field.TypeInt64},
		{Name: "description", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "last_modified", Type: field.TypeTime},
	}
	OrdersTable = &schema.Table{
		Name:       "orders",
		Columns:    OrdersColumns,
		PrimaryKey: []*schema.Column{OrdersColumns[0]},
	}

	// OrderItemsColumns holds the columns for the "order_items" table.
	OrderItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "marking", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "position", Type: field.TypeInt},
		{Name: "order_id", Type: field.TypeUUID},
		{Name: "tool_id", Type: field.TypeInt64},
	}
	OrderItemsTable = &schema.Table{
		Name:       "order_items",
		Columns:    OrderItemsColumns,
		PrimaryKey: []*schema.Column{OrderItemsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "order_items_orders_items",
				Columns:    []*schema.Column{OrderItemsColumns[3]},
				RefColumns: []*schema.Column{OrdersColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "order_items_tools_items",
				Columns:    []*schema.Column{OrderItemsColumns[4]},
				RefColumns: []*schema.Column{ToolsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "orderitem_order_id_position",
				Unique:  false,
				Columns: []*schema.Column{OrderItemsColumns[3], OrderItemsColumns[2]},
			},
		},
	}

	// JobsColumns holds the columns for the "jobs" table.
	JobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "status", Type: field.TypeString, SchemaType: textType},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "last_modified", Type: field.TypeTime},
	}
	JobsTable = &schema.Table{
		Name:       "jobs",
		Columns:    JobsColumns,
		PrimaryKey: []*schema.Column{JobsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "job_status",
				Unique:  false,
				Columns: []*schema.Column{JobsColumns[1]},
			},
		},
	}

	// AccountingLinksColumns holds the columns for the "accounting_links" table.
	AccountingLinksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "action_kind", Type: field.TypeString, SchemaType: textType},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "order_id", Type: field.TypeUUID},
		{Name: "job_id", Type: field.TypeUUID, Unique: true},
	}
	AccountingLinksTable = &schema.Table{
		Name:       "accounting_links",
		Columns:    AccountingLinksColumns,
		PrimaryKey: []*schema.Column{AccountingLinksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "accounting_links_orders_links",
				Columns:    []*schema.Column{AccountingLinksColumns[3]},
				RefColumns: []*schema.Column{OrdersColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "accounting_links_jobs_link",
				Columns:    []*schema.Column{AccountingLinksColumns[4]},
				RefColumns: []*schema.Column{JobsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "accountinglink_order_id_action_kind",
				Unique:  true,
				Columns: []*schema.Column{AccountingLinksColumns[3], AccountingLinksColumns[1]},
			},
		},
	}

	// ArtifactsColumns holds the columns for the "artifacts" table.
	ArtifactsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "role", Type: field.TypeString, SchemaType: textType},
		{Name: "bucket", Type: field.TypeString},
		{Name: "path", Type: field.TypeString, SchemaType: textType},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "job_id", Type: field.TypeUUID},
	}
	ArtifactsTable = &schema.Table{
		Name:       "artifacts",
		Columns:    ArtifactsColumns,
		PrimaryKey: []*schema.Column{ArtifactsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "artifacts_jobs_artifacts",
				Columns:    []*schema.Column{ArtifactsColumns[5]},
				RefColumns: []*schema.Column{JobsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "artifact_bucket_path",
				Unique:  true,
				Columns: []*schema.Column{ArtifactsColumns[2], ArtifactsColumns[3]},
			},
			{
				Name:    "artifact_job_id",
				Unique:  false,
				Columns: []*schema.Column{ArtifactsColumns[5]},
			},
		},
	}

	// DetectionsColumns holds the columns for the "detections" table.
	DetectionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "label", Type: field.TypeString, SchemaType: textType},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "marking", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "bbox", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "position", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "job_id", Type: field.TypeUUID},
		{Name: "tool_id", Type: field.TypeInt64, Nullable: true},
		{Name: "processed_artifact_id", Type: field.TypeUUID},
		{Name: "original_artifact_id", Type: field.TypeUUID},
	}
	DetectionsTable = &schema.Table{
		Name:       "detections",
		Columns:    DetectionsColumns,
		PrimaryKey: []*schema.Column{DetectionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "detections_jobs_detections",
				Columns:    []*schema.Column{DetectionsColumns[7]},
				RefColumns: []*schema.Column{JobsColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "detections_tools_detections",
				Columns:    []*schema.Column{DetectionsColumns[8]},
				RefColumns: []*schema.Column{ToolsColumns[0]},
				OnDelete:   schema.SetNull,
			},
			{
				Symbol:     "detections_artifacts_processed",
				Columns:    []*schema.Column{DetectionsColumns[9]},
				RefColumns: []*schema.Column{ArtifactsColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "detections_artifacts_original",
				Columns:    []*schema.Column{DetectionsColumns[10]},
				RefColumns: []*schema.Column{ArtifactsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "detection_job_id_position",
				Unique:  false,
				Columns: []*schema.Column{DetectionsColumns[7], DetectionsColumns[5]},
			},
		},
	}

	// Tables holds all the tables in the schema, parents before children.
	Tables = []*schema.Table{
		ToolsTable,
		OrdersTable,
		OrderItemsTable,
		JobsTable,
		AccountingLinksTable,
		ArtifactsTable,
		DetectionsTable,
	}
)

func init() {
	OrderItemsTable.ForeignKeys[0].RefTable = OrdersTable
	OrderItemsTable.ForeignKeys[1].RefTable = ToolsTable
	AccountingLinksTable.ForeignKeys[0].RefTable = OrdersTable
	AccountingLinksTable.ForeignKeys[1].RefTable = JobsTable
	ArtifactsTable.ForeignKeys[0].RefTable = JobsTable
	DetectionsTable.ForeignKeys[0].RefTable = JobsTable
	DetectionsTable.ForeignKeys[1].RefTable = ToolsTable
	DetectionsTable.ForeignKeys[2].RefTable = ArtifactsTable
	DetectionsTable.ForeignKeys[3].RefTable = ArtifactsTable
}

// Create runs the schema migration against the driver. It is additive: existing tables
// gain missing columns and indexes, nothing is dropped.
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return err
	}
	return m.Create(ctx, Tables...)
}
