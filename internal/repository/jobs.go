package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	// UpdateStatus sets the status of a job that is not in TEST. It reports whether a row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) (bool, error)
	ListByStatus(ctx context.Context, status constants.JobStatus) ([]entity.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type jobRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewJobRepository(drv *entsql.Driver, logger *slog.Logger) JobRepository {
	return &jobRepository{
		drv:    drv,
		logger: logger,
	}
}

var jobColumns = []string{"id", "status", "created_at", "last_modified"}

func scanJob(rows *entsql.Rows) (entity.Job, error) {
	var j entity.Job
	var status string
	if err := rows.Scan(&j.ID, &status, &j.CreatedAt, &j.LastModified); err != nil {
		return j, err
	}
	j.Status = constants.JobStatus(status)
	return j, nil
}

func (r *jobRepository) Create(ctx context.Context, job entity.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.LastModified.IsZero() {
		job.LastModified = now
	}
	q := build(r.drv).Insert("jobs").
		Columns(jobColumns...).
		Values(job.ID, string(job.Status), job.CreatedAt, job.LastModified)
	if _, err := execQuery(ctx, conn(ctx, r.drv), q); err != nil {
		r.logger.Error("failed to create job", "job_id", job.ID, "error", err)
		return dbError("create job", err)
	}
	r.logger.Info("job created", "job_id", job.ID, "status", job.Status)
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := build(r.drv).Select(jobColumns...).
		From(entsql.Table("jobs")).
		Where(entsql.EQ("id", id))
	job, ok, err := queryOne(ctx, conn(ctx, r.drv), q, scanJob)
	if err != nil {
		return nil, dbError("get job", err)
	}
	if !ok {
		return nil, notFound("job", id)
	}
	return &job, nil
}

func (r *jobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) (bool, error) {
	q := build(r.drv).Update("jobs").
		Set("status", string(status)).
		Set("last_modified", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.NEQ("status", string(constants.JobStatusTest)),
		))
	n, err := execQuery(ctx, conn(ctx, r.drv), q)
	if err != nil {
		r.logger.Error("failed to update job status", "job_id", id, "status", status, "error", err)
		return false, dbError("update job status", err)
	}
	return n > 0, nil
}

func (r *jobRepository) ListByStatus(ctx context.Context, status constants.JobStatus) ([]entity.Job, error) {
	q := build(r.drv).Select(jobColumns...).
		From(entsql.Table("jobs")).
		Where(entsql.EQ("status", string(status))).
		OrderBy("created_at")
	jobs, err := queryAll(ctx, conn(ctx, r.drv), q, scanJob)
	if err != nil {
		return nil, dbError("list jobs by status", err)
	}
	return jobs, nil
}

// Delete removes the job; its link, artifacts and detections cascade.
func (r *jobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := build(r.drv).Delete("jobs").Where(entsql.EQ("id", id))
	n, err := execQuery(ctx, conn(ctx, r.drv), q)
	if err != nil {
		r.logger.Error("failed to delete job", "job_id", id, "error", err)
		return dbError("delete job", err)
	}
	if n == 0 {
		return notFound("job", id)
	}
	r.logger.Info("job deleted", "job_id", id)
	return nil
}
