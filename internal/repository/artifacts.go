package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

type ArtifactRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Artifact, error)
	GetByLocation(ctx context.Context, bucket, path string) (*entity.Artifact, error)
	Create(ctx context.Context, jobID uuid.UUID, role constants.ArtifactRole, bucket, path string) (*entity.Artifact, error)
	// GetOrCreate returns the artifact stored at (bucket, path), registering it for jobID when
	// absent. The bool reports whether it already existed.
	GetOrCreate(ctx context.Context, jobID uuid.UUID, role constants.ArtifactRole, bucket, path string) (*entity.Artifact, bool, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.Artifact, error)
	// OwnedBy returns the subset of ids that belong to jobID.
	OwnedBy(ctx context.Context, jobID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type artifactRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewArtifactRepository(drv *entsql.Driver, logger *slog.Logger) ArtifactRepository {
	return &artifactRepository{
		drv:    drv,
		logger: logger,
	}
}

var artifactColumns = []string{"id", "job_id", "role", "bucket", "path", "created_at"}

func scanArtifact(rows *entsql.Rows) (entity.Artifact, error) {
	var a entity.Artifact
	var role string
	if err := rows.Scan(&a.ID, &a.JobID, &role, &a.Bucket, &a.Path, &a.CreatedAt); err != nil {
		return a, err
	}
	a.Role = constants.ArtifactRole(role)
	return a, nil
}

func (r *artifactRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Artifact, error) {
	q := build(r.drv).Select(artifactColumns...).
		From(entsql.Table("artifacts")).
		Where(entsql.EQ("id", id))
	a, ok, err := queryOne(ctx, conn(ctx, r.drv), q, scanArtifact)
	if err != nil {
		return nil, dbError("get artifact", err)
	}
	if !ok {
		return nil, notFound("artifact", id)
	}
	return &a, nil
}

func (r *artifactRepository) GetByLocation(ctx context.Context, bucket, path string) (*entity.Artifact, error) {
	q := build(r.drv).Select(artifactColumns...).
		From(entsql.Table("artifacts")).
		Where(entsql.And(entsql.EQ("bucket", bucket), entsql.EQ("path", path)))
	a, ok, err := queryOne(ctx, conn(ctx, r.drv), q, scanArtifact)
	if err != nil {
		return nil, dbError("get artifact by location", err)
	}
	if !ok {
		return nil, notFound("artifact", bucket+"/"+path)
	}
	return &a, nil
}

func (r *artifactRepository) Create(ctx context.Context, jobID uuid.UUID, role constants.ArtifactRole, bucket, path string) (*entity.Artifact, error) {
	a := entity.Artifact{
		ID:        uuid.New(),
		JobID:     jobID,
		Role:      role,
		Bucket:    bucket,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}
	q := build(r.drv).Insert("artifacts").
		Columns(artifactColumns...).
		Values(a.ID, a.JobID, string(a.Role), a.Bucket, a.Path, a.CreatedAt)
	if _, err := execQuery(ctx, conn(ctx, r.drv), q); err != nil {
		r.logger.Error("failed to create artifact", "job_id", jobID, "bucket", bucket, "path", path, "error", err)
		return nil, dbError("create artifact", err)
	}
	r.logger.Debug("artifact registered", "artifact_id", a.ID, "job_id", jobID, "role", role, "path", path)
	return &a, nil
}

func (r *artifactRepository) GetOrCreate(ctx context.Context, jobID uuid.UUID, role constants.ArtifactRole, bucket, path string) (*entity.Artifact, bool, error) {
	existing, err := r.GetByLocation(ctx, bucket, path)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}
	a, err := r.Create(ctx, jobID, role, bucket, path)
	if err == nil {
		return a, false, nil
	}
	// a concurrent upload of the same key registered it first
	if common.CodeOf(err) == "CONFLICT" {
		if existing, gerr := r.GetByLocation(ctx, bucket, path); gerr == nil {
			return existing, true, nil
		}
	}
	return nil, false, err
}

func (r *artifactRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.Artifact, error) {
	q := build(r.drv).Select(artifactColumns...).
		From(entsql.Table("artifacts")).
		Where(entsql.EQ("job_id", jobID)).
		OrderBy("created_at", "path")
	out, err := queryAll(ctx, conn(ctx, r.drv), q, scanArtifact)
	if err != nil {
		return nil, dbError("list artifacts", err)
	}
	return out, nil
}

func (r *artifactRepository) OwnedBy(ctx context.Context, jobID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	owned := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return owned, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	q := build(r.drv).Select("id").
		From(entsql.Table("artifacts")).
		Where(entsql.And(entsql.EQ("job_id", jobID), entsql.In("id", args...)))
	found, err := queryAll(ctx, conn(ctx, r.drv), q, func(rows *entsql.Rows) (uuid.UUID, error) {
		var id uuid.UUID
		err := rows.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, dbError("check artifact ownership", err)
	}
	for _, id := range found {
		owned[id] = true
	}
	return owned, nil
}
