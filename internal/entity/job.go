package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/tools-tracker/constants"
)

// Job represents a processing/reconciliation run for data transfer between layers.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	Status       constants.JobStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	LastModified time.Time           `json:"last_modified"`
}

// AccountingLink ties a job to an order with the action it performs.
type AccountingLink struct {
	ID         uuid.UUID            `json:"id"`
	OrderID    uuid.UUID            `json:"order_id"`
	JobID      uuid.UUID            `json:"job_id"`
	ActionKind constants.ActionKind `json:"action_kind"`
	CreatedAt  time.Time            `json:"created_at"`
}
