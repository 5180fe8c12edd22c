package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

// insertChunk bounds the rows per INSERT statement to stay clear of placeholder limits.
const insertChunk = 100

type DetectionRepository interface {
	// ReplaceAll atomically swaps the job's detection set for the given batch.
	ReplaceAll(ctx context.Context, jobID uuid.UUID, detections []entity.Detection) error
	// ListGroupedByOriginalArtifact returns the job's detections grouped by originating raw
	// artifact. Groups appear in order of first appearance in the tool-sorted row list.
	ListGroupedByOriginalArtifact(ctx context.Context, jobID uuid.UUID) ([]entity.DetectionGroup, error)
	// ListByJob returns the job's detections in insertion order.
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.Detection, error)
}

type detectionRepository struct {
	drv       *entsql.Driver
	jobs      JobRepository
	artifacts ArtifactRepository
	logger    *slog.Logger
}

func NewDetectionRepository(drv *entsql.Driver, logger *slog.Logger) DetectionRepository {
	return &detectionRepository{
		drv:       drv,
		jobs:      NewJobRepository(drv, logger),
		artifacts: NewArtifactRepository(drv, logger),
		logger:    logger,
	}
}

var detectionColumns = []string{
	"id", "job_id", "tool_id", "label", "processed_artifact_id", "original_artifact_id",
	"confidence", "marking", "bbox", "position", "created_at",
}

func scanDetection(rows *entsql.Rows) (entity.Detection, error) {
	var d entity.Detection
	var toolID sql.NullInt64
	var marking, bbox sql.NullString
	err := rows.Scan(&d.ID, &d.JobID, &toolID, &d.Label, &d.ProcessedArtifactID, &d.OriginalArtifactID,
		&d.Confidence, &marking, &bbox, &d.Position, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if toolID.Valid {
		id := entity.ToolID(toolID.Int64)
		d.ToolID = &id
	}
	d.Marking = stringPtr(marking)
	if bbox.Valid && bbox.String != "" {
		if err := json.Unmarshal([]byte(bbox.String), &d.BBox); err != nil {
			return d, fmt.Errorf("decode bbox of detection %s: %w", d.ID, err)
		}
	}
	return d, nil
}

func (r *detectionRepository) ReplaceAll(ctx context.Context, jobID uuid.UUID, detections []entity.Detection) error {
	err := WithTx(ctx, r.drv, func(ctx context.Context) error {
		if _, err := r.jobs.Get(ctx, jobID); err != nil {
			return err
		}
		if err := r.checkArtifacts(ctx, jobID, detections); err != nil {
			return err
		}

		del := build(r.drv).Delete("detections").Where(entsql.EQ("job_id", jobID))
		removed, err := execQuery(ctx, conn(ctx, r.drv), del)
		if err != nil {
			return dbError("delete detections", err)
		}

		now := time.Now().UTC()
		for start := 0; start < len(detections); start += insertChunk {
			end := min(start+insertChunk, len(detections))
			ins := build(r.drv).Insert("detections").Columns(detectionColumns...)
			for i := start; i < end; i++ {
				d := detections[i]
				if d.ID == uuid.Nil {
					d.ID = uuid.New()
				}
				var toolID sql.NullInt64
				if d.ToolID != nil {
					toolID = sql.NullInt64{Int64: int64(*d.ToolID), Valid: true}
				}
				var bbox sql.NullString
				if len(d.BBox) > 0 {
					b, err := json.Marshal(d.BBox)
					if err != nil {
						return fmt.Errorf("encode bbox: %w", err)
					}
					bbox = sql.NullString{String: string(b), Valid: true}
				}
				ins = ins.Values(d.ID, jobID, toolID, d.Label, d.ProcessedArtifactID, d.OriginalArtifactID,
					d.Confidence, nullString(d.Marking), bbox, i, now)
			}
			if _, err := execQuery(ctx, conn(ctx, r.drv), ins); err != nil {
				return dbError("insert detections", err)
			}
		}

		r.logger.Info("detections replaced", "job_id", jobID, "removed", removed, "inserted", len(detections))
		return nil
	})
	if err != nil {
		r.logger.Error("failed to replace detections", "job_id", jobID, "count", len(detections), "error", err)
	}
	return err
}

// checkArtifacts verifies that every referenced artifact belongs to jobID.
func (r *detectionRepository) checkArtifacts(ctx context.Context, jobID uuid.UUID, detections []entity.Detection) error {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, d := range detections {
		for _, id := range []uuid.UUID{d.ProcessedArtifactID, d.OriginalArtifactID} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	owned, err := r.artifacts.OwnedBy(ctx, jobID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !owned[id] {
			return common.NewAppError("FOREIGN_ARTIFACT",
				fmt.Sprintf("artifact %s does not belong to job %s", id, jobID), common.ErrInvalidInput)
		}
	}
	return nil
}

func (r *detectionRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.Detection, error) {
	q := build(r.drv).Select(detectionColumns...).
		From(entsql.Table("detections")).
		Where(entsql.EQ("job_id", jobID)).
		OrderBy("position")
	out, err := queryAll(ctx, conn(ctx, r.drv), q, scanDetection)
	if err != nil {
		return nil, dbError("list detections", err)
	}
	return out, nil
}

func (r *detectionRepository) ListGroupedByOriginalArtifact(ctx context.Context, jobID uuid.UUID) ([]entity.DetectionGroup, error) {
	rows, err := r.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return GroupByOriginalArtifact(rows), nil
}

// GroupByOriginalArtifact stable-sorts rows by tool identity (unknown tool last), then groups
// them by original artifact in order of first appearance.
func GroupByOriginalArtifact(rows []entity.Detection) []entity.DetectionGroup {
	sorted := make([]entity.Detection, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ToolID, sorted[j].ToolID
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	var groups []entity.DetectionGroup
	index := make(map[uuid.UUID]int)
	for _, d := range sorted {
		i, ok := index[d.OriginalArtifactID]
		if !ok {
			i = len(groups)
			index[d.OriginalArtifactID] = i
			groups = append(groups, entity.DetectionGroup{OriginalArtifactID: d.OriginalArtifactID})
		}
		groups[i].Detections = append(groups[i].Detections, d)
	}
	return groups
}
