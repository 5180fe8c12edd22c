// Package ingest turns files dropped into a mounted raw bucket into processing tasks.
//
// The watched root mirrors the raw bucket. Uploads for a job live under a top-level directory
// named by the job id, so <root>/<job-id>/shelf/a.jpg becomes the object key
// "<job-id>/shelf/a.jpg" of that job.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/pipeline"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task pipeline.Task) error
}

// DropDir feeds watcher events into a processing queue.
type DropDir struct {
	root   string
	queue  Enqueuer
	logger *slog.Logger
}

func NewDropDir(root string, queue Enqueuer, logger *slog.Logger) *DropDir {
	if logger == nil {
		logger = slog.Default()
	}
	return &DropDir{root: filepath.Clean(root), queue: queue, logger: logger}
}

// KeyFor maps a file under the root to its job and object key.
func (d *DropDir) KeyFor(path string) (uuid.UUID, string, error) {
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return uuid.Nil, "", err
	}
	key := filepath.ToSlash(rel)
	jobPart, rest, ok := strings.Cut(key, "/")
	if !ok || rest == "" {
		return uuid.Nil, "", common.NewAppError("BAD_DROP_PATH",
			fmt.Sprintf("%s is not under a job directory", key), common.ErrInvalidInput)
	}
	jobID, err := uuid.Parse(jobPart)
	if err != nil {
		return uuid.Nil, "", common.NewAppError("BAD_DROP_PATH",
			fmt.Sprintf("directory %q is not a job id", jobPart), common.ErrInvalidInput)
	}
	v := common.NewValidator().Field("key", key, common.ObjectKey, common.AllowedUpload)
	if err := common.ValidateAndReturnError(v); err != nil {
		return uuid.Nil, "", err
	}
	return jobID, key, nil
}

// Run enqueues a task per event until events closes or ctx ends. Paths that do not map to a
// job are logged and skipped.
func (d *DropDir) Run(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-events:
			if !ok {
				return
			}
			d.handle(ctx, path)
		}
	}
}

func (d *DropDir) handle(ctx context.Context, path string) {
	jobID, key, err := d.KeyFor(path)
	if err != nil {
		d.logger.Warn("ingest.path.skipped", "path", path, "error", err)
		return
	}
	task := pipeline.Task{
		JobID:       jobID,
		RawKey:      key,
		SubmittedAt: time.Now(),
		RequestID:   uuid.NewString(),
	}
	if err := d.queue.Enqueue(ctx, task); err != nil {
		d.logger.Error("ingest.enqueue.failed", "job_id", jobID, "key", key, "error", err)
		return
	}
	d.logger.Info("ingest.enqueued", "job_id", jobID, "key", key)
}

// IsHidden reports whether the last element of path starts with a dot.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func acceptable(path string) bool {
	if IsHidden(path) {
		return false
	}
	_, ok := constants.AllowedExtensions[constants.ExtOf(path)]
	return ok
}
