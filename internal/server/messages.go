package server

import (
	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/ledger"
	"github.com/joseph-ayodele/tools-tracker/internal/pipeline"
)

type Empty struct{}

type JobRequest struct {
	JobID string `json:"job_id"`
}

type CreateJobRequest struct {
	OrderID    string `json:"order_id"`
	ActionKind string `json:"action_kind"`
}

type JobResponse struct {
	Job *entity.Job `json:"job"`
}

type SetStatusRequest struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type StatusResponse struct {
	JobID  string              `json:"job_id"`
	Status constants.JobStatus `json:"status"`
}

type RecordDetectionsRequest struct {
	JobID      string             `json:"job_id"`
	Detections []entity.Detection `json:"detections"`
}

type RecordDetectionsResponse struct {
	Stored int `json:"stored"`
}

type ReconcileResponse struct {
	Result *entity.MatchResult `json:"result"`
	Status constants.JobStatus `json:"status"`
}

type ProcessArtifactRequest struct {
	JobID string `json:"job_id"`
	Key   string `json:"key"`
	Async bool   `json:"async,omitempty"`
}

type ProcessArtifactResponse struct {
	Queued bool             `json:"queued,omitempty"`
	Report *pipeline.Report `json:"report,omitempty"`
}

type ExportJobResponse struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

type OrderRequest struct {
	OrderID string `json:"order_id"`
}

type CreateOrderRequest = ledger.OrderRequest

type OrderResponse struct {
	Order *entity.Order `json:"order"`
}

type ShrinkItemsRequest struct {
	OrderID string               `json:"order_id"`
	Items   []ledger.ItemRequest `json:"items"`
}

type ItemsResponse struct {
	Items []entity.OrderItem `json:"items"`
}

type ExpectedToolsResponse struct {
	OrderID string          `json:"order_id"`
	Tools   []entity.ToolID `json:"tools"`
}

type ToolsResponse struct {
	Tools []entity.Tool `json:"tools"`
}

type ResolveLabelRequest struct {
	Label string `json:"label"`
}

type ResolveLabelResponse struct {
	ToolID entity.ToolID `json:"tool_id"`
}
