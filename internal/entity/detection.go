package entity

import (
	"time"

	"github.com/google/uuid"
)

// Detection is one tool assertion for one (processed, original raw) artifact pair of a job.
// ToolID is nil when the recognizer's label matched no catalog entry; the row is kept for audit.
type Detection struct {
	ID                  uuid.UUID `json:"id"`
	JobID               uuid.UUID `json:"job_id"`
	ToolID              *ToolID   `json:"tool_id,omitempty"`
	Label               string    `json:"label"`
	ProcessedArtifactID uuid.UUID `json:"processed_artifact_id"`
	OriginalArtifactID  uuid.UUID `json:"original_artifact_id"`
	Confidence          float64   `json:"confidence"`
	Marking             *string   `json:"marking,omitempty"`
	BBox                []float64 `json:"bbox,omitempty"`
	Position            int       `json:"position"`
	CreatedAt           time.Time `json:"created_at"`
}

// Known reports whether the detection resolved to a catalog tool.
func (d Detection) Known() bool { return d.ToolID != nil }

// DetectionGroup holds the detections originating from one raw artifact, ordered by tool.
type DetectionGroup struct {
	OriginalArtifactID uuid.UUID   `json:"original_artifact_id"`
	Detections         []Detection `json:"detections"`
}

// MatchResult is the outcome of comparing a job's merged detections with its order.
type MatchResult struct {
	JobID        uuid.UUID   `json:"job_id"`
	OrderID      uuid.UUID   `json:"order_id"`
	Merged       []ToolID    `json:"merged"`
	Expected     []ToolID    `json:"expected"`
	Unrecognized int         `json:"unrecognized"`
	Detections   []Detection `json:"detections,omitempty"`
	Matched      bool        `json:"matched"`
}
