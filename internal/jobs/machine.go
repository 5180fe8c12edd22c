// Package jobs owns job status and the accounting links between jobs and orders.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/aggregate"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/metrics"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

// ExpectedSource yields the sorted tool multiset an order expects.
type ExpectedSource interface {
	ExpectedMultiset(ctx context.Context, orderID uuid.UUID) ([]entity.ToolID, error)
}

type Machine struct {
	drv        *entsql.Driver
	jobs       repository.JobRepository
	links      repository.AccountingRepository
	orders     repository.OrderRepository
	detections repository.DetectionRepository
	expected   ExpectedSource
	orderLocks common.KeyedMutex[uuid.UUID]
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewMachine(drv *entsql.Driver, expected ExpectedSource, m *metrics.Metrics, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		drv:        drv,
		jobs:       repository.NewJobRepository(drv, logger),
		links:      repository.NewAccountingRepository(drv, logger),
		orders:     repository.NewOrderRepository(drv, logger),
		detections: repository.NewDetectionRepository(drv, logger),
		expected:   expected,
		metrics:    m,
		logger:     logger,
	}
}

// CreateJob creates a job in PREPROCESSING linked to the order with the given action. Creation
// is serialized per order and nothing is written when a precondition fails.
func (m *Machine) CreateJob(ctx context.Context, orderID uuid.UUID, kind constants.ActionKind) (*entity.Job, error) {
	if kind != constants.ActionIssuance && kind != constants.ActionReturn {
		return nil, ErrUnknownActionKind
	}

	unlock, err := m.orderLocks.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	job := entity.Job{ID: uuid.New(), Status: constants.JobStatusPreprocessing}
	err = repository.WithTx(ctx, m.drv, func(ctx context.Context) error {
		exists, err := m.orders.Exists(ctx, orderID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrOrderNotFound
		}

		links, err := m.links.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkNewLink(links, kind); err != nil {
			return err
		}

		if err := m.jobs.Create(ctx, job); err != nil {
			return err
		}
		return m.links.Create(ctx, entity.AccountingLink{
			ID:         uuid.New(),
			OrderID:    orderID,
			JobID:      job.ID,
			ActionKind: kind,
		})
	})
	if err != nil {
		m.logger.Warn("jobs.create.rejected", "order_id", orderID, "action", kind, "error", err)
		return nil, err
	}
	m.metrics.RecordStatusChange(string(job.Status))
	m.logger.Info("jobs.create.done", "job_id", job.ID, "order_id", orderID, "action", kind)
	return m.jobs.Get(ctx, job.ID)
}

func checkNewLink(links []entity.AccountingLink, kind constants.ActionKind) error {
	hasIssuance := false
	for _, l := range links {
		if l.ActionKind == constants.ActionIssuance {
			hasIssuance = true
		}
	}
	switch {
	case kind == constants.ActionReturn && !hasIssuance:
		return ErrReturnWithoutIssuance
	case len(links) >= constants.MaxAccountingLinks:
		return ErrAccountingLimit
	case kind == constants.ActionIssuance && hasIssuance:
		return ErrDuplicateIssuance
	}
	for _, l := range links {
		if l.ActionKind == kind {
			return ErrAccountingLimit
		}
	}
	return nil
}

// CreateTestJob replaces any existing TEST job with a fresh one. Test jobs have no order.
func (m *Machine) CreateTestJob(ctx context.Context) (*entity.Job, error) {
	job := entity.Job{ID: uuid.New(), Status: constants.JobStatusTest}
	err := repository.WithTx(ctx, m.drv, func(ctx context.Context) error {
		previous, err := m.jobs.ListByStatus(ctx, constants.JobStatusTest)
		if err != nil {
			return err
		}
		for _, p := range previous {
			if err := m.jobs.Delete(ctx, p.ID); err != nil {
				return err
			}
			m.logger.Info("jobs.test.replaced", "job_id", p.ID)
		}
		return m.jobs.Create(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return m.jobs.Get(ctx, job.ID)
}

func (m *Machine) GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	return m.jobs.Get(ctx, jobID)
}

func (m *Machine) GetStatus(ctx context.Context, jobID uuid.UUID) (constants.JobStatus, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// SetStatus moves the job to status. Jobs in TEST keep their status; the call is then a no-op.
func (m *Machine) SetStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	changed, err := m.jobs.UpdateStatus(ctx, jobID, status)
	if err != nil {
		return err
	}
	if changed {
		m.metrics.RecordStatusChange(string(status))
		m.logger.Info("jobs.status.changed", "job_id", jobID, "status", status)
		return nil
	}
	// nothing changed: either the job is missing or it is a TEST job
	if _, err := m.jobs.Get(ctx, jobID); err != nil {
		return err
	}
	m.logger.Debug("jobs.status.test_immune", "job_id", jobID, "requested", status)
	return nil
}

// Compare merges the job's stored detections and compares the known tools against the linked
// order's expected multiset. It changes nothing.
func (m *Machine) Compare(ctx context.Context, jobID uuid.UUID) (*entity.MatchResult, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	link, err := m.links.GetByJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		if job.Status == constants.JobStatusTest {
			return nil, fmt.Errorf("%w: job %s", ErrTestJobWithoutOrder, jobID)
		}
		return nil, fmt.Errorf("%w: job %s", ErrNoLinkedOrder, jobID)
	}

	groups, err := m.detections.ListGroupedByOriginalArtifact(ctx, jobID)
	if err != nil {
		return nil, err
	}
	merged := aggregate.Merge(groups)
	ids, unknown := aggregate.ToolIDs(merged)

	expected, err := m.expected.ExpectedMultiset(ctx, link.OrderID)
	if err != nil {
		return nil, err
	}

	return &entity.MatchResult{
		JobID:        jobID,
		OrderID:      link.OrderID,
		Merged:       ids,
		Expected:     expected,
		Unrecognized: unknown,
		Detections:   merged,
		Matched:      aggregate.EqualMultiset(ids, expected),
	}, nil
}

// ApplyComparisonOutcome runs Compare and moves a mismatching job to MANUAL_MAPPING_REQUIRED.
// A match forces no status change. TEST jobs keep their status either way.
func (m *Machine) ApplyComparisonOutcome(ctx context.Context, jobID uuid.UUID) (*entity.MatchResult, error) {
	res, err := m.Compare(ctx, jobID)
	if err != nil {
		m.logger.Error("jobs.compare.failed", "job_id", jobID, "error", err)
		return nil, err
	}
	if !res.Matched {
		if err := m.SetStatus(ctx, jobID, constants.JobStatusManualMappingRequired); err != nil {
			return nil, err
		}
	}
	m.logger.Info("jobs.compare.done",
		"job_id", jobID,
		"order_id", res.OrderID,
		"matched", res.Matched,
		"merged", len(res.Merged),
		"expected", len(res.Expected),
		"unrecognized", res.Unrecognized)
	return res, nil
}

// Delete removes the job with its link, artifacts and detections.
func (m *Machine) Delete(ctx context.Context, jobID uuid.UUID) error {
	return m.jobs.Delete(ctx, jobID)
}
