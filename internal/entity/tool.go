package entity

// ToolID is the catalog identity of a tool. Merged and expected multisets are compared as
// sorted sequences of ToolID.
type ToolID int64

// Tool represents a catalog entry for data transfer between layers.
type Tool struct {
	ID   ToolID `json:"id"`
	Name string `json:"name"`
}
