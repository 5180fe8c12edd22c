package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/catalog"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/core"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/inference"
	"github.com/joseph-ayodele/tools-tracker/internal/jobs"
	"github.com/joseph-ayodele/tools-tracker/internal/ledger"
	"github.com/joseph-ayodele/tools-tracker/internal/testutil"
)

const (
	screwdriver entity.ToolID = 1
	pliers      entity.ToolID = 2
	wrench      entity.ToolID = 3
)

type fakeRecognizer struct {
	mu        sync.Mutex
	recognize map[string]inference.RecognizeResult
	failures  map[string]error
	cuts      map[string]inference.CutResult
	markings  map[string]string
	calls     []string
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		recognize: map[string]inference.RecognizeResult{},
		failures:  map[string]error{},
		cuts:      map[string]inference.CutResult{},
		markings:  map[string]string{},
	}
}

func (f *fakeRecognizer) objects(rawKey string, objs map[string]inference.RecognizedObject) {
	f.recognize[rawKey] = inference.RecognizeResult{Status: "ok", Results: objs}
}

func (f *fakeRecognizer) Recognize(_ context.Context, rawKey string) (inference.RecognizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawKey)
	if err, ok := f.failures[rawKey]; ok {
		return inference.RecognizeResult{}, err
	}
	res, ok := f.recognize[rawKey]
	if !ok {
		return inference.RecognizeResult{}, inference.ErrNoDetections
	}
	return res, nil
}

func (f *fakeRecognizer) CutVideo(_ context.Context, rawKey string) (inference.CutResult, error) {
	if err, ok := f.failures[rawKey]; ok {
		return inference.CutResult{}, err
	}
	return f.cuts[rawKey], nil
}

func (f *fakeRecognizer) Enrich(_ context.Context, req inference.EnrichRequest) (*string, error) {
	m, ok := f.markings[req.ProcessedFileKey]
	if !ok {
		return nil, errors.New("enrich unavailable")
	}
	return &m, nil
}

type fixture struct {
	proc   *Processor
	engine *core.Engine
	ledger *ledger.Ledger
	repos  *testutil.Repos
	rec    *fakeRecognizer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := testutil.NewRepos(t)
	for id, name := range map[entity.ToolID]string{
		screwdriver: "Отвертка «-»",
		pliers:      "Пассатижи",
		wrench:      "Ключ рожковый",
	} {
		_, err := repos.Tools.Create(ctx, entity.Tool{ID: id, Name: name})
		require.NoError(t, err)
	}

	logger := testutil.Logger(t)
	l := ledger.New(repos.Driver, logger)
	engine := core.NewEngine(repos.Driver, jobs.NewMachine(repos.Driver, l, nil, logger), nil, logger)
	rec := newFakeRecognizer()
	cat := catalog.New(repos.Tools, 0, nil, logger)

	return &fixture{
		proc:   NewProcessor(cfg, engine, rec, cat, repos.Artifacts, nil, logger),
		engine: engine,
		ledger: l,
		repos:  repos,
		rec:    rec,
	}
}

func (f *fixture) job(t *testing.T, tools ...entity.ToolID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	items := make([]ledger.ItemRequest, len(tools))
	for i, id := range tools {
		items[i] = ledger.ItemRequest{ToolID: id}
	}
	o, err := f.ledger.CreateOrder(ctx, ledger.OrderRequest{EmployeeID: 7, Items: items})
	require.NoError(t, err)
	job, err := f.engine.CreateJob(ctx, o.ID, constants.ActionIssuance)
	require.NoError(t, err)
	return job.ID
}

func (f *fixture) status(t *testing.T, jobID uuid.UUID) constants.JobStatus {
	t.Helper()
	st, err := f.engine.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	return st
}

func obj(label string, confidence float64) inference.RecognizedObject {
	return inference.RecognizedObject{MicroClass: label, Confidence: confidence, BBox: []float64{0, 0, 10, 10}}
}

func TestProcessImageFinished(t *testing.T) {
	f := newFixture(t, Config{})
	jobID := f.job(t, screwdriver, pliers)
	f.rec.objects("raw/bench.jpg", map[string]inference.RecognizedObject{
		"processed/bench_1.jpg": obj("Отвертка «-»", 0.9),
		"processed/bench_0.jpg": obj("Пасса тижи", 0.8),
	})

	report, err := f.proc.ProcessArtifact(context.Background(), jobID, "raw/bench.jpg")
	require.NoError(t, err)

	require.NotNil(t, report.Result)
	assert.True(t, report.Result.Matched)
	assert.Equal(t, []entity.ToolID{screwdriver, pliers}, report.Result.Merged)
	assert.Equal(t, constants.JobStatusFinished, report.Status)
	assert.Equal(t, constants.JobStatusFinished, f.status(t, jobID))

	stored, err := f.repos.Detections.ListByJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Пасса тижи", stored[0].Label)
	assert.Equal(t, []float64{0, 0, 10, 10}, stored[0].BBox)
}

func TestProcessVideoSkipsFailedFrames(t *testing.T) {
	f := newFixture(t, Config{})
	jobID := f.job(t, wrench, wrench)
	f.rec.cuts["raw/walk.mp4"] = inference.CutResult{
		Status: "ok",
		Size:   3,
		Results: map[string]string{
			"frame_10": "raw/walk_10.jpg",
			"frame_2":  "raw/walk_2.jpg",
			"frame_1":  "raw/walk_1.jpg",
		},
	}
	f.rec.objects("raw/walk_1.jpg", map[string]inference.RecognizedObject{
		"processed/walk_1_a.jpg": obj("Ключ рожковый", 0.7),
	})
	f.rec.failures["raw/walk_2.jpg"] = common.NewAppError("INFERENCE_UNAVAILABLE", "boom", common.ErrUnavailable)
	f.rec.objects("raw/walk_10.jpg", map[string]inference.RecognizedObject{
		"processed/walk_10_a.jpg": obj("Ключ рожковый", 0.7),
		"processed/walk_10_b.jpg": obj("Ключ рожковый", 0.6),
	})

	report, err := f.proc.ProcessArtifact(context.Background(), jobID, "raw/walk.mp4")
	require.NoError(t, err)

	assert.Equal(t, []string{"raw/walk_1.jpg", "raw/walk_2.jpg", "raw/walk_10.jpg"}, f.rec.calls)
	require.Len(t, report.Artifacts, 3)
	assert.True(t, report.Artifacts[1].Failed())
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, []entity.ToolID{wrench, wrench}, report.Result.Merged)
	assert.Equal(t, constants.JobStatusFinished, f.status(t, jobID))
}

func TestProcessAllFailedKeepsDetections(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	jobID := f.job(t, pliers)
	f.rec.objects("raw/first.jpg", map[string]inference.RecognizedObject{
		"processed/first_0.jpg": obj("Пассатижи", 0.9),
	})
	_, err := f.proc.ProcessArtifact(ctx, jobID, "raw/first.jpg")
	require.NoError(t, err)

	report, err := f.proc.ProcessArtifact(ctx, jobID, "raw/blurry.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllArtifactsFailed)
	require.Len(t, report.Artifacts, 1)
	assert.Contains(t, report.Artifacts[0].Error, "NO_DETECTIONS")

	assert.Equal(t, constants.JobStatusFailed, f.status(t, jobID))
	stored, err := f.repos.Detections.ListByJob(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestProcessCutFailureMarksFailed(t *testing.T) {
	f := newFixture(t, Config{})
	jobID := f.job(t, pliers)
	f.rec.failures["raw/broken.mp4"] = common.NewAppError("INFERENCE_UNAVAILABLE", "cannot cut", common.ErrUnavailable)

	_, err := f.proc.ProcessArtifact(context.Background(), jobID, "raw/broken.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnavailable)
	assert.Equal(t, constants.JobStatusFailed, f.status(t, jobID))
}

func TestProcessUnknownLabelStoredWithoutTool(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	jobID := f.job(t, pliers)
	f.rec.objects("raw/mixed.png", map[string]inference.RecognizedObject{
		"processed/mixed_0.png": obj("Пассатижи", 0.9),
		"processed/mixed_1.png": obj("Молоток", 0.9),
	})

	report, err := f.proc.ProcessArtifact(ctx, jobID, "raw/mixed.png")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Artifacts[0].Unknown)
	assert.Equal(t, 1, report.Result.Unrecognized)
	assert.True(t, report.Result.Matched)

	stored, err := f.repos.Detections.ListByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Nil(t, stored[1].ToolID)
	assert.Equal(t, "Молоток", stored[1].Label)
}

func TestProcessConfidenceThreshold(t *testing.T) {
	f := newFixture(t, Config{ConfidenceThreshold: 0.5})
	jobID := f.job(t, pliers, pliers)
	f.rec.objects("raw/dim.jpg", map[string]inference.RecognizedObject{
		"processed/dim_0.jpg": obj("Пассатижи", 0.9),
		"processed/dim_1.jpg": obj("Пассатижи", 0.3),
	})

	report, err := f.proc.ProcessArtifact(context.Background(), jobID, "raw/dim.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Artifacts[0].Dropped)
	assert.False(t, report.Result.Matched)
	assert.Equal(t, constants.JobStatusManualMappingRequired, f.status(t, jobID))
}

func TestProcessMarkings(t *testing.T) {
	f := newFixture(t, Config{SearchMarking: true})
	ctx := context.Background()
	jobID := f.job(t, pliers, wrench)
	f.rec.objects("raw/marked.jpg", map[string]inference.RecognizedObject{
		"processed/marked_0.jpg": obj("Пассатижи", 0.9),
		"processed/marked_1.jpg": obj("Ключ рожковый", 0.9),
	})
	f.rec.markings["processed/marked_0.jpg"] = "INV-0042"

	_, err := f.proc.ProcessArtifact(ctx, jobID, "raw/marked.jpg")
	require.NoError(t, err)

	stored, err := f.repos.Detections.ListByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.NotNil(t, stored[0].Marking)
	assert.Equal(t, "INV-0042", *stored[0].Marking)
	assert.Nil(t, stored[1].Marking)
}

func TestProcessRejectsUnsupportedKey(t *testing.T) {
	f := newFixture(t, Config{})
	jobID := f.job(t, pliers)

	for _, key := range []string{"raw/scan.gif", "", "raw/../secret.jpg"} {
		_, err := f.proc.ProcessArtifact(context.Background(), jobID, key)
		require.Error(t, err, key)
		assert.ErrorIs(t, err, common.ErrValidation, key)
	}
	assert.Equal(t, constants.JobStatusPreprocessing, f.status(t, jobID))
	assert.Empty(t, f.rec.calls)
}

func TestProcessUnknownJob(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.proc.ProcessArtifact(context.Background(), uuid.New(), "raw/a.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcessKeyOwnedByAnotherJob(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	first := f.job(t, pliers)
	second := f.job(t, pliers)
	f.rec.objects("raw/shared.jpg", map[string]inference.RecognizedObject{
		"processed/shared_0.jpg": obj("Пассатижи", 0.9),
	})
	_, err := f.proc.ProcessArtifact(ctx, first, "raw/shared.jpg")
	require.NoError(t, err)

	_, err = f.proc.ProcessArtifact(ctx, second, "raw/shared.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactInUse)
	assert.Equal(t, constants.JobStatusPreprocessing, f.status(t, second))
}

func TestProcessTestBatch(t *testing.T) {
	f := newFixture(t, Config{})
	f.rec.objects("raw/t1.jpg", map[string]inference.RecognizedObject{
		"processed/t1_0.jpg": obj("Пассатижи", 0.9),
		"processed/t1_1.jpg": obj("Пассатижи", 0.8),
	})
	f.rec.objects("raw/t2.jpg", map[string]inference.RecognizedObject{
		"processed/t2_0.jpg": obj("Пассатижи", 0.9),
		"processed/t2_1.jpg": obj("Отвертка «-»", 0.8),
	})

	report, err := f.proc.ProcessTestBatch(context.Background(), []string{"raw/t1.jpg", "raw/none.jpg", "raw/t2.jpg", "raw/bad.txt"}, false)
	require.NoError(t, err)

	require.Len(t, report.Artifacts, 4)
	assert.True(t, report.Artifacts[1].Failed())
	assert.True(t, report.Artifacts[3].Failed())
	require.NotNil(t, report.Result)
	assert.Equal(t, []entity.ToolID{screwdriver, pliers, pliers}, report.Result.Merged)
	assert.Equal(t, constants.JobStatusTest, f.status(t, report.JobID))
}
