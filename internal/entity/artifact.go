package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/tools-tracker/constants"
)

// Artifact references one stored file. The bytes live in object storage.
type Artifact struct {
	ID        uuid.UUID              `json:"id"`
	JobID     uuid.UUID              `json:"job_id"`
	Role      constants.ArtifactRole `json:"role"`
	Bucket    string                 `json:"bucket"`
	Path      string                 `json:"path"`
	CreatedAt time.Time              `json:"created_at"`
}
