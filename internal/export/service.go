// Package export renders a job's detections and reconciliation outcome as an XLSX workbook.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/aggregate"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/jobs"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

const (
	SheetDetections     = "Detections"
	SheetReconciliation = "Reconciliation"
)

// Comparer produces a job's comparison without changing it.
type Comparer interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	Compare(ctx context.Context, jobID uuid.UUID) (*entity.MatchResult, error)
}

type Service struct {
	drv        *entsql.Driver
	comparer   Comparer
	detections repository.DetectionRepository
	artifacts  repository.ArtifactRepository
	tools      repository.ToolRepository
	logger     *slog.Logger
}

func NewService(drv *entsql.Driver, comparer Comparer, detections repository.DetectionRepository,
	artifacts repository.ArtifactRepository, tools repository.ToolRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{drv: drv, comparer: comparer, detections: detections, artifacts: artifacts, tools: tools, logger: logger}
}

type reportData struct {
	job   *entity.Job
	rows  []entity.Detection
	res   *entity.MatchResult
	names map[entity.ToolID]string
	paths map[uuid.UUID]string
}

// JobReportXLSX returns a workbook with every stored detection of the job and, per tool, the
// expected and merged counts. TEST jobs have no order; their expected column stays empty.
func (s *Service) JobReportXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	start := time.Now()

	var d reportData
	err := repository.WithSnapshot(ctx, s.drv, func(ctx context.Context) error {
		var err error
		d, err = s.load(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetDetections); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetReconciliation); err != nil {
		return nil, err
	}

	writeDetections(f, d.rows, d.names, d.paths)
	writeReconciliation(f, d.job, d.res, d.names)

	activeIndex, _ := f.GetSheetIndex(SheetReconciliation)
	f.SetActiveSheet(activeIndex)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"job_id", jobID.String(),
		"rows", len(d.rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// load reads everything a report shows. Run it in one snapshot so the detection sheet and
// the reconciliation come from the same round.
func (s *Service) load(ctx context.Context, jobID uuid.UUID) (reportData, error) {
	var d reportData
	job, err := s.comparer.GetJob(ctx, jobID)
	if err != nil {
		return d, err
	}
	d.job = job
	if d.rows, err = s.detections.ListByJob(ctx, jobID); err != nil {
		return d, fmt.Errorf("query detections: %w", err)
	}
	d.res, err = s.comparer.Compare(ctx, jobID)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrTestJobWithoutOrder):
		merged := aggregate.Merge(repository.GroupByOriginalArtifact(d.rows))
		ids, unknown := aggregate.ToolIDs(merged)
		d.res = &entity.MatchResult{JobID: jobID, Merged: ids, Unrecognized: unknown}
	default:
		return d, err
	}
	if d.names, err = s.toolNames(ctx); err != nil {
		return d, err
	}
	if d.paths, err = s.artifactPaths(ctx, jobID); err != nil {
		return d, err
	}
	return d, nil
}

// RegisterReport records where a rendered report was stored.
func (s *Service) RegisterReport(ctx context.Context, jobID uuid.UUID, bucket, key string) (*entity.Artifact, error) {
	a, _, err := s.artifacts.GetOrCreate(ctx, jobID, constants.RoleResult, bucket, key)
	return a, err
}

func (s *Service) toolNames(ctx context.Context) (map[entity.ToolID]string, error) {
	tools, err := s.tools.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query tools: %w", err)
	}
	names := make(map[entity.ToolID]string, len(tools))
	for _, t := range tools {
		names[t.ID] = t.Name
	}
	return names, nil
}

func (s *Service) artifactPaths(ctx context.Context, jobID uuid.UUID) (map[uuid.UUID]string, error) {
	artifacts, err := s.artifacts.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	paths := make(map[uuid.UUID]string, len(artifacts))
	for _, a := range artifacts {
		paths[a.ID] = a.Bucket + "/" + a.Path
	}
	return paths, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func writeDetections(f *excelize.File, rows []entity.Detection, names map[entity.ToolID]string, paths map[uuid.UUID]string) {
	const sheet = SheetDetections
	writeRow(f, sheet, 1, "#", "Tool ID", "Tool", "Label", "Confidence", "Marking", "Original", "Processed")
	for i, d := range rows {
		var toolID any = ""
		tool := "(unrecognized)"
		if d.ToolID != nil {
			toolID = int64(*d.ToolID)
			tool = names[*d.ToolID]
		}
		marking := ""
		if d.Marking != nil {
			marking = *d.Marking
		}
		writeRow(f, sheet, i+2, d.Position+1, toolID, tool, d.Label, d.Confidence, marking,
			paths[d.OriginalArtifactID], paths[d.ProcessedArtifactID])
	}

	_ = f.SetColWidth(sheet, "A", "B", 8)
	_ = f.SetColWidth(sheet, "C", "D", 28)
	_ = f.SetColWidth(sheet, "E", "F", 14)
	_ = f.SetColWidth(sheet, "G", "H", 48)
}

func writeReconciliation(f *excelize.File, job *entity.Job, res *entity.MatchResult, names map[entity.ToolID]string) {
	const sheet = SheetReconciliation
	writeRow(f, sheet, 1, "Job", job.ID.String())
	writeRow(f, sheet, 2, "Status", string(job.Status))
	if res.OrderID != uuid.Nil {
		writeRow(f, sheet, 3, "Order", res.OrderID.String())
		writeRow(f, sheet, 4, "Matched", res.Matched)
	}
	writeRow(f, sheet, 5, "Unrecognized", res.Unrecognized)

	const header = 7
	writeRow(f, sheet, header, "Tool ID", "Tool", "Expected", "Merged", "Delta")
	expected := counts(res.Expected)
	merged := counts(res.Merged)
	ids := make([]entity.ToolID, 0, len(expected)+len(merged))
	for id := range expected {
		ids = append(ids, id)
	}
	for id := range merged {
		if _, ok := expected[id]; !ok {
			ids = append(ids, id)
		}
	}
	for i, id := range aggregate.Sorted(ids) {
		var exp any = expected[id]
		if res.OrderID == uuid.Nil {
			exp = ""
		}
		writeRow(f, sheet, header+1+i, int64(id), names[id], exp, merged[id], merged[id]-expected[id])
	}

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "B", 38)
	_ = f.SetColWidth(sheet, "C", "E", 10)
}

func counts(ids []entity.ToolID) map[entity.ToolID]int {
	out := make(map[entity.ToolID]int, len(ids))
	for _, id := range ids {
		out[id]++
	}
	return out
}
