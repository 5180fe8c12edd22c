// Package inference talks to the external preprocess and inference services that turn raw
// photos and videos into labelled tool detections.
package inference

import (
	"context"
	"sort"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
)

// ErrNoDetections is returned by Recognize when the recognizer found nothing in the image.
var ErrNoDetections = common.NewAppError("NO_DETECTIONS", "recognizer found no tools in the image", common.ErrNotFound)

// RecognizedObject is one region the recognizer cut out of a raw image.
type RecognizedObject struct {
	MicroClass string    `json:"microClass"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// RecognizeResult maps each processed object key to what was recognized in it.
type RecognizeResult struct {
	Status  string                      `json:"status"`
	Results map[string]RecognizedObject `json:"results"`
}

// Keys returns the processed object keys in ascending order.
func (r RecognizeResult) Keys() []string {
	keys := make([]string, 0, len(r.Results))
	for k := range r.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CutResult maps frame names (frame_0, frame_1, ...) to the raw keys of the extracted frames.
type CutResult struct {
	Status  string            `json:"status"`
	Results map[string]string `json:"results"`
	Size    int               `json:"size"`
	Message string            `json:"message,omitempty"`
}

// EnrichRequest asks the inference service for the marking printed on a tool.
type EnrichRequest struct {
	RawFileKey       string `json:"raw_file_key"`
	ProcessedFileKey string `json:"processed_file_key"`
}

type EnrichResponse struct {
	Marking *string `json:"marking"`
}

// Recognizer is the interface the pipeline depends on.
type Recognizer interface {
	Recognize(ctx context.Context, rawKey string) (RecognizeResult, error)
	CutVideo(ctx context.Context, rawKey string) (CutResult, error)
	Enrich(ctx context.Context, req EnrichRequest) (*string, error)
}
