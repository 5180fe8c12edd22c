// Package core exposes the reconciliation engine to transports and the pipeline.
package core

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/aggregate"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/jobs"
	"github.com/joseph-ayodele/tools-tracker/internal/metrics"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

// Engine serializes detection replacement and reconciliation per job. Network calls happen
// outside of it; only the storage and comparison steps run under the job lock.
type Engine struct {
	drv        *entsql.Driver
	machine    *jobs.Machine
	detections repository.DetectionRepository
	locks      common.KeyedMutex[uuid.UUID]
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewEngine(drv *entsql.Driver, machine *jobs.Machine, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		drv:        drv,
		machine:    machine,
		detections: repository.NewDetectionRepository(drv, logger),
		metrics:    m,
		logger:     logger,
	}
}

func (e *Engine) lock(ctx context.Context, jobID uuid.UUID) (func(), error) {
	start := time.Now()
	unlock, err := e.locks.Lock(ctx, jobID)
	e.metrics.RecordLockWait(time.Since(start))
	return unlock, err
}

func (e *Engine) CreateJob(ctx context.Context, orderID uuid.UUID, kind constants.ActionKind) (*entity.Job, error) {
	return e.machine.CreateJob(ctx, orderID, kind)
}

func (e *Engine) CreateTestJob(ctx context.Context) (*entity.Job, error) {
	return e.machine.CreateTestJob(ctx)
}

func (e *Engine) GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	return e.machine.GetJob(ctx, jobID)
}

func (e *Engine) GetStatus(ctx context.Context, jobID uuid.UUID) (constants.JobStatus, error) {
	return e.machine.GetStatus(ctx, jobID)
}

// SetStatus is the manual override; TEST jobs are left unchanged.
func (e *Engine) SetStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus) error {
	unlock, err := e.lock(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()
	return e.machine.SetStatus(ctx, jobID, status)
}

// RecordDetections replaces the job's detection set.
func (e *Engine) RecordDetections(ctx context.Context, jobID uuid.UUID, detections []entity.Detection) error {
	unlock, err := e.lock(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()
	return e.detections.ReplaceAll(ctx, jobID, detections)
}

// Reconcile compares the job's merged detections with its order and applies the outcome.
func (e *Engine) Reconcile(ctx context.Context, jobID uuid.UUID) (*entity.MatchResult, error) {
	unlock, err := e.lock(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := e.machine.ApplyComparisonOutcome(ctx, jobID)
	if res != nil {
		e.metrics.RecordReconciliation(res.Matched, err)
	} else {
		e.metrics.RecordReconciliation(false, err)
	}
	return res, err
}

// CompleteRound stores a finished recognition round and settles the job in one transaction:
// replace detections, mark PREPROCESS_DONE, then (unless the job is a TEST job) compare with
// the order, ending in FINISHED or MANUAL_MAPPING_REQUIRED. TEST jobs get their merge result
// without a comparison.
func (e *Engine) CompleteRound(ctx context.Context, jobID uuid.UUID, detections []entity.Detection) (*entity.MatchResult, error) {
	unlock, err := e.lock(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res *entity.MatchResult
	err = repository.WithTx(ctx, e.drv, func(ctx context.Context) error {
		job, err := e.machine.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if err := e.detections.ReplaceAll(ctx, jobID, detections); err != nil {
			return err
		}

		if job.Status == constants.JobStatusTest {
			res, err = e.mergeOnly(ctx, jobID)
			return err
		}

		if err := e.machine.SetStatus(ctx, jobID, constants.JobStatusPreprocessDone); err != nil {
			return err
		}
		res, err = e.machine.ApplyComparisonOutcome(ctx, jobID)
		if err != nil {
			return err
		}
		if res.Matched {
			return e.machine.SetStatus(ctx, jobID, constants.JobStatusFinished)
		}
		return nil
	})
	if err != nil {
		e.metrics.RecordReconciliation(false, err)
		e.logger.Error("engine.round.failed", "job_id", jobID, "error", err)
		return nil, err
	}
	if res.OrderID != uuid.Nil {
		e.metrics.RecordReconciliation(res.Matched, nil)
	}
	e.logger.Info("engine.round.done", "job_id", jobID, "detections", len(detections), "matched", res.Matched)
	return res, nil
}

// MarkFailed moves the job to FAILED unless it is a TEST job.
func (e *Engine) MarkFailed(ctx context.Context, jobID uuid.UUID, cause error) error {
	unlock, err := e.lock(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()
	e.logger.Warn("engine.job.failed", "job_id", jobID, "cause", cause)
	return e.machine.SetStatus(ctx, jobID, constants.JobStatusFailed)
}

// DeleteJob removes the job once no round is running for it.
func (e *Engine) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	unlock, err := e.lock(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()
	return e.machine.Delete(ctx, jobID)
}

func (e *Engine) mergeOnly(ctx context.Context, jobID uuid.UUID) (*entity.MatchResult, error) {
	groups, err := e.detections.ListGroupedByOriginalArtifact(ctx, jobID)
	if err != nil {
		return nil, err
	}
	merged := aggregate.Merge(groups)
	ids, unknown := aggregate.ToolIDs(merged)
	return &entity.MatchResult{
		JobID:        jobID,
		Merged:       ids,
		Unrecognized: unknown,
		Detections:   merged,
	}, nil
}
