// Package pipeline drives one recognition round for a job: raw uploads go through the
// external recognizer, recognized labels are resolved against the catalog, and the collected
// detections are handed to the engine for storage and reconciliation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/catalog"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/inference"
	"github.com/joseph-ayodele/tools-tracker/internal/metrics"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

// ErrAllArtifactsFailed is returned when not a single artifact of a round was recognized.
var ErrAllArtifactsFailed = common.NewAppError("ALL_ARTIFACTS_FAILED", "no artifact of the round could be recognized", common.ErrUnavailable)

// ErrArtifactInUse is returned when a raw key is already registered to another job.
var ErrArtifactInUse = common.NewAppError("ARTIFACT_IN_USE", "object key is registered to another job", common.ErrPrecondition)

// Rounds is the part of the engine the pipeline drives.
type Rounds interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	CreateTestJob(ctx context.Context) (*entity.Job, error)
	CompleteRound(ctx context.Context, jobID uuid.UUID, detections []entity.Detection) (*entity.MatchResult, error)
	MarkFailed(ctx context.Context, jobID uuid.UUID, cause error) error
}

type Config struct {
	BucketRaw           string
	BucketProcessed     string
	ConfidenceThreshold float64 // detections below are dropped; 0 keeps everything
	SearchMarking       bool
}

// ArtifactOutcome reports what happened to one raw artifact of a round.
type ArtifactOutcome struct {
	Key        string `json:"key"`
	Detections int    `json:"detections"`
	Unknown    int    `json:"unknown"`
	Dropped    int    `json:"dropped"`
	Error      string `json:"error,omitempty"`
}

func (o ArtifactOutcome) Failed() bool { return o.Error != "" }

// Report summarizes a round.
type Report struct {
	JobID     uuid.UUID           `json:"job_id"`
	Artifacts []ArtifactOutcome   `json:"artifacts"`
	Result    *entity.MatchResult `json:"result,omitempty"`
	Status    constants.JobStatus `json:"status,omitempty"`
}

// Succeeded counts the artifacts that were recognized.
func (r *Report) Succeeded() int {
	n := 0
	for _, a := range r.Artifacts {
		if !a.Failed() {
			n++
		}
	}
	return n
}

type Processor struct {
	cfg        Config
	rounds     Rounds
	recognizer inference.Recognizer
	resolver   catalog.Resolver
	artifacts  repository.ArtifactRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewProcessor(cfg Config, rounds Rounds, recognizer inference.Recognizer, resolver catalog.Resolver,
	artifacts repository.ArtifactRepository, m *metrics.Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BucketRaw == "" {
		cfg.BucketRaw = "raw"
	}
	if cfg.BucketProcessed == "" {
		cfg.BucketProcessed = "processed"
	}
	return &Processor{
		cfg:        cfg,
		rounds:     rounds,
		recognizer: recognizer,
		resolver:   resolver,
		artifacts:  artifacts,
		metrics:    m,
		logger:     logger,
	}
}

// ProcessArtifact runs a full round for one upload of jobID. Videos are cut into frames and
// every frame is recognized on its own. Failing frames are skipped. When the video cannot be
// cut or no frame succeeds the job is marked FAILED and its stored detections are kept.
func (p *Processor) ProcessArtifact(ctx context.Context, jobID uuid.UUID, rawKey string) (*Report, error) {
	if _, err := p.rounds.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	report := &Report{JobID: jobID}
	detections, err := p.collect(ctx, report, rawKey, p.cfg.SearchMarking)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			return nil, err
		}
		if ctx.Err() != nil || errors.Is(err, ErrArtifactInUse) {
			return report, err
		}
		p.logger.Error("pipeline.round.failed", "job_id", jobID, "key", rawKey, "error", err)
		return report, p.fail(ctx, jobID, err)
	}
	return report, p.complete(ctx, report, detections)
}

// ProcessTestBatch creates a fresh TEST job and runs every key through it as one round.
// Per-key failures are logged and reported. The TEST job never leaves its status.
func (p *Processor) ProcessTestBatch(ctx context.Context, rawKeys []string, searchMarking bool) (*Report, error) {
	job, err := p.rounds.CreateTestJob(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{JobID: job.ID}
	var detections []entity.Detection
	for _, key := range rawKeys {
		before := len(report.Artifacts)
		dets, err := p.collect(ctx, report, key, searchMarking)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			p.logger.Warn("pipeline.test.key_failed", "job_id", job.ID, "key", key, "error", err)
			if len(report.Artifacts) == before {
				report.Artifacts = append(report.Artifacts, ArtifactOutcome{Key: key, Error: err.Error()})
			}
			continue
		}
		detections = append(detections, dets...)
	}
	return report, p.complete(ctx, report, detections)
}

// collect recognizes every raw artifact behind rawKey, appending outcomes to report. It fails
// when the key is invalid, a video cannot be cut, or no artifact was recognized.
func (p *Processor) collect(ctx context.Context, report *Report, rawKey string, searchMarking bool) ([]entity.Detection, error) {
	v := common.NewValidator().Field("key", rawKey, common.Required, common.ObjectKey, common.AllowedUpload)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	jobID := report.JobID
	logger := p.logger.With("job_id", jobID, "key", rawKey)

	upload, err := p.registerRaw(ctx, jobID, rawKey)
	if err != nil {
		return nil, err
	}

	raws := []*entity.Artifact{upload}
	if constants.IsVideo(rawKey) {
		frames, err := p.cutVideo(ctx, rawKey)
		if err != nil {
			logger.Error("pipeline.cut.failed", "error", err)
			return nil, err
		}
		raws = raws[:0]
		for _, key := range frames {
			a, err := p.registerRaw(ctx, jobID, key)
			if err != nil {
				return nil, err
			}
			raws = append(raws, a)
		}
		logger.Info("pipeline.cut.ok", "frames", len(raws))
	}

	var detections []entity.Detection
	succeeded := 0
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dets, outcome := p.recognize(ctx, jobID, raw, searchMarking)
		report.Artifacts = append(report.Artifacts, outcome)
		if !outcome.Failed() {
			succeeded++
		}
		detections = append(detections, dets...)
	}

	if succeeded == 0 {
		logger.Error("pipeline.round.all_failed", "artifacts", len(raws))
		return nil, fmt.Errorf("%w: %s", ErrAllArtifactsFailed, summarize(report.Artifacts[len(report.Artifacts)-len(raws):]))
	}
	return detections, nil
}

// complete hands the collected detections to the engine and records the outcome on report.
func (p *Processor) complete(ctx context.Context, report *Report, detections []entity.Detection) error {
	res, err := p.rounds.CompleteRound(ctx, report.JobID, detections)
	if err != nil {
		return err
	}
	report.Result = res
	if job, err := p.rounds.GetJob(ctx, report.JobID); err == nil {
		report.Status = job.Status
	}
	p.logger.Info("pipeline.round.ok",
		"job_id", report.JobID,
		"artifacts", len(report.Artifacts),
		"succeeded", report.Succeeded(),
		"detections", len(detections),
		"matched", res.Matched,
	)
	return nil
}

func (p *Processor) registerRaw(ctx context.Context, jobID uuid.UUID, key string) (*entity.Artifact, error) {
	a, _, err := p.artifacts.GetOrCreate(ctx, jobID, constants.RoleRaw, p.cfg.BucketRaw, key)
	if err != nil {
		return nil, err
	}
	if a.JobID != jobID {
		return nil, fmt.Errorf("%w: %s", ErrArtifactInUse, key)
	}
	return a, nil
}

// cutVideo returns the frame keys in frame order.
func (p *Processor) cutVideo(ctx context.Context, key string) ([]string, error) {
	res, err := p.recognizer.CutVideo(ctx, key)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Results))
	for name := range res.Results {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return frameIndex(names[i]) < frameIndex(names[j]) ||
			frameIndex(names[i]) == frameIndex(names[j]) && names[i] < names[j]
	})
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = res.Results[name]
	}
	if len(keys) == 0 {
		return nil, common.NewAppError("NO_FRAMES", "video yielded no frames", common.ErrUnavailable)
	}
	return keys, nil
}

func frameIndex(name string) int {
	i := strings.LastIndexByte(name, '_')
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return -1
	}
	return n
}

// recognize turns one raw artifact into detections. Errors are reported in the outcome.
func (p *Processor) recognize(ctx context.Context, jobID uuid.UUID, raw *entity.Artifact, searchMarking bool) ([]entity.Detection, ArtifactOutcome) {
	key := raw.Path
	outcome := ArtifactOutcome{Key: key}
	logger := p.logger.With("job_id", jobID, "key", key)

	res, err := p.recognizer.Recognize(ctx, key)
	if err != nil {
		p.metrics.RecordArtifact(err)
		if errors.Is(err, inference.ErrNoDetections) {
			logger.Warn("pipeline.recognize.no_detections")
		} else {
			logger.Error("pipeline.recognize.failed", "error", err)
		}
		outcome.Error = err.Error()
		return nil, outcome
	}

	var out []entity.Detection
	for _, processedKey := range res.Keys() {
		obj := res.Results[processedKey]
		if p.cfg.ConfidenceThreshold > 0 && obj.Confidence < p.cfg.ConfidenceThreshold {
			outcome.Dropped++
			continue
		}

		processed, _, err := p.artifacts.GetOrCreate(ctx, jobID, constants.RoleProcessed, p.cfg.BucketProcessed, processedKey)
		if err == nil && processed.JobID != jobID {
			err = fmt.Errorf("%w: %s", ErrArtifactInUse, processedKey)
		}
		if err != nil {
			p.metrics.RecordArtifact(err)
			logger.Error("pipeline.processed.register_failed", "processed_key", processedKey, "error", err)
			outcome.Error = err.Error()
			return nil, outcome
		}

		d := entity.Detection{
			JobID:               jobID,
			Label:               obj.MicroClass,
			ProcessedArtifactID: processed.ID,
			OriginalArtifactID:  raw.ID,
			Confidence:          obj.Confidence,
			BBox:                obj.BBox,
		}
		toolID, err := p.resolver.Resolve(ctx, obj.MicroClass)
		switch {
		case err == nil:
			d.ToolID = &toolID
		case errors.Is(err, catalog.ErrToolNotFound):
			outcome.Unknown++
			logger.Warn("pipeline.label.unknown", "label", obj.MicroClass)
		default:
			p.metrics.RecordArtifact(err)
			logger.Error("pipeline.label.resolve_failed", "label", obj.MicroClass, "error", err)
			outcome.Error = err.Error()
			return nil, outcome
		}

		if searchMarking {
			d.Marking = p.marking(ctx, logger, key, processedKey)
		}
		out = append(out, d)
	}

	outcome.Detections = len(out)
	p.metrics.RecordArtifact(nil)
	p.metrics.RecordDetections(len(out)-outcome.Unknown, outcome.Unknown)
	logger.Info("pipeline.recognize.ok", "detections", len(out), "unknown", outcome.Unknown, "dropped", outcome.Dropped)
	return out, outcome
}

func (p *Processor) marking(ctx context.Context, logger *slog.Logger, rawKey, processedKey string) *string {
	m, err := p.recognizer.Enrich(ctx, inference.EnrichRequest{RawFileKey: rawKey, ProcessedFileKey: processedKey})
	if err != nil {
		logger.Warn("pipeline.enrich.failed", "processed_key", processedKey, "error", err)
		return nil
	}
	return m
}

// fail marks the job FAILED and returns cause, or the marking error joined with it.
func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	if err := p.rounds.MarkFailed(ctx, jobID, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func summarize(outcomes []ArtifactOutcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, o.Key+": "+o.Error)
	}
	return strings.Join(parts, "; ")
}
