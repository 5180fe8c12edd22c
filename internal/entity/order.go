package entity

import (
	"time"

	"github.com/google/uuid"
)

// Order is a request for a multiset of tools.
type Order struct {
	ID           uuid.UUID   `json:"id"`
	EmployeeID   int64       `json:"employee_id"`
	Description  *string     `json:"description,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastModified time.Time   `json:"last_modified"`
	Items        []OrderItem `json:"items,omitempty"`
}

// OrderItem is one ordered tool; Marking disambiguates during manual mapping.
type OrderItem struct {
	ID       uuid.UUID `json:"id"`
	OrderID  uuid.UUID `json:"order_id"`
	ToolID   ToolID    `json:"tool_id"`
	Marking  *string   `json:"marking,omitempty"`
	Position int       `json:"position"`
}
