package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/jobs"
	"github.com/joseph-ayodele/tools-tracker/internal/ledger"
	"github.com/joseph-ayodele/tools-tracker/internal/metrics"
	"github.com/joseph-ayodele/tools-tracker/internal/testutil"
)

type fixture struct {
	engine *Engine
	ledger *ledger.Ledger
	repos  *testutil.Repos
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	for _, id := range []entity.ToolID{3, 5, 7, 9} {
		_, err := repos.Tools.Create(ctx, entity.Tool{ID: id, Name: fmt.Sprintf("tool %d", id)})
		require.NoError(t, err)
	}
	logger := testutil.Logger(t)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	l := ledger.New(repos.Driver, logger)
	machine := jobs.NewMachine(repos.Driver, l, m, logger)
	return &fixture{
		engine: NewEngine(repos.Driver, machine, m, logger),
		ledger: l,
		repos:  repos,
	}
}

func (f *fixture) job(t *testing.T, tools ...entity.ToolID) uuid.UUID {
	t.Helper()
	items := make([]ledger.ItemRequest, len(tools))
	for i, id := range tools {
		items[i] = ledger.ItemRequest{ToolID: id}
	}
	ctx := context.Background()
	o, err := f.ledger.CreateOrder(ctx, ledger.OrderRequest{EmployeeID: 1, Items: items})
	require.NoError(t, err)
	job, err := f.engine.CreateJob(ctx, o.ID, constants.ActionIssuance)
	require.NoError(t, err)
	return job.ID
}

// batch builds detections for one frame per entry of frames.
func (f *fixture) batch(t *testing.T, jobID uuid.UUID, frames ...[]entity.ToolID) []entity.Detection {
	t.Helper()
	ctx := context.Background()
	var out []entity.Detection
	for _, tools := range frames {
		raw, err := f.repos.Artifacts.Create(ctx, jobID, constants.RoleRaw, "raw", uuid.NewString()+".jpg")
		require.NoError(t, err)
		for _, id := range tools {
			tool := id
			out = append(out, entity.Detection{
				ToolID: &tool, Label: fmt.Sprintf("tool %d", id),
				ProcessedArtifactID: raw.ID, OriginalArtifactID: raw.ID, Confidence: 0.75,
			})
		}
	}
	return out
}

func TestCompleteRoundFinished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobID := f.job(t, 5, 5, 7, 9)

	res, err := f.engine.CompleteRound(ctx, jobID, f.batch(t, jobID, []entity.ToolID{5, 5, 7}, []entity.ToolID{5, 9}))
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, []entity.ToolID{5, 5, 7, 9}, res.Merged)

	status, err := f.engine.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFinished, status)
}

func TestCompleteRoundManualMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobID := f.job(t, 5, 7, 9, 9)

	res, err := f.engine.CompleteRound(ctx, jobID, f.batch(t, jobID, []entity.ToolID{5, 5, 7}, []entity.ToolID{5, 9}))
	require.NoError(t, err)
	assert.False(t, res.Matched)

	status, err := f.engine.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusManualMappingRequired, status)
}

func TestCompleteRoundTestJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.engine.CreateTestJob(ctx)
	require.NoError(t, err)

	res, err := f.engine.CompleteRound(ctx, job.ID, f.batch(t, job.ID, []entity.ToolID{7, 3}))
	require.NoError(t, err)
	assert.Equal(t, []entity.ToolID{3, 7}, res.Merged)
	assert.False(t, res.Matched)

	status, err := f.engine.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusTest, status)
}

func TestReconcileScenarios(t *testing.T) {
	tests := []struct {
		name       string
		expected   []entity.ToolID
		frames     [][]entity.ToolID
		wantMerged []entity.ToolID
		wantMatch  bool
		wantStatus constants.JobStatus
	}{
		{
			name:       "order matches merge",
			expected:   []entity.ToolID{5, 5, 7, 9},
			frames:     [][]entity.ToolID{{5, 5, 7}, {5, 9}},
			wantMerged: []entity.ToolID{5, 5, 7, 9},
			wantMatch:  true,
			wantStatus: constants.JobStatusPreprocessing,
		},
		{
			name:       "order differs in counts",
			expected:   []entity.ToolID{5, 7, 9, 9},
			frames:     [][]entity.ToolID{{5, 5, 7}, {5, 9}},
			wantMerged: []entity.ToolID{5, 5, 7, 9},
			wantMatch:  false,
			wantStatus: constants.JobStatusManualMappingRequired,
		},
		{
			name:       "no detections",
			expected:   []entity.ToolID{3},
			wantMerged: []entity.ToolID{},
			wantMatch:  false,
			wantStatus: constants.JobStatusManualMappingRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			jobID := f.job(t, tt.expected...)
			if len(tt.frames) > 0 {
				require.NoError(t, f.engine.RecordDetections(ctx, jobID, f.batch(t, jobID, tt.frames...)))
			}

			res, err := f.engine.Reconcile(ctx, jobID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMerged, res.Merged)
			assert.Equal(t, tt.wantMatch, res.Matched)

			status, err := f.engine.GetStatus(ctx, jobID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestReconcileTestStatusKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobID := f.job(t, 5, 7, 9, 9)
	require.NoError(t, f.engine.SetStatus(ctx, jobID, constants.JobStatusTest))
	require.NoError(t, f.engine.RecordDetections(ctx, jobID, f.batch(t, jobID, []entity.ToolID{5, 5, 7}, []entity.ToolID{5, 9})))

	res, err := f.engine.Reconcile(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, res.Matched)

	status, err := f.engine.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusTest, status)
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobID := f.job(t, 5)

	require.NoError(t, f.engine.MarkFailed(ctx, jobID, assert.AnError))
	status, err := f.engine.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, status)
}

func TestConcurrentRoundsNeverObservePartialSets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobID := f.job(t, 5)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// every batch is one frame of a single tool, so a whole batch merges to its own size
	sizes := []int{1, 3, 6, 10}
	batches := make([][]entity.Detection, len(sizes))
	for i, n := range sizes {
		tools := make([]entity.ToolID, n)
		for j := range tools {
			tools[j] = 5
		}
		batches[i] = f.batch(t, jobID, tools)
	}
	valid := map[int]bool{0: true}
	for _, n := range sizes {
		valid[n] = true
	}

	var wg sync.WaitGroup
	for round := 0; round < 5; round++ {
		for i := range batches {
			wg.Add(2)
			go func(b []entity.Detection) {
				defer wg.Done()
				assert.NoError(t, f.engine.RecordDetections(ctx, jobID, b))
			}(batches[i])
			go func() {
				defer wg.Done()
				res, err := f.engine.Reconcile(ctx, jobID)
				if assert.NoError(t, err) {
					assert.True(t, valid[len(res.Merged)], "partial merge of %d", len(res.Merged))
				}
			}()
		}
	}
	wg.Wait()
	assert.Zero(t, f.engine.locks.Len())
}

func TestLockedCallsHonorContext(t *testing.T) {
	f := newFixture(t)
	jobID := f.job(t, 5)

	unlock, err := f.engine.locks.Lock(context.Background(), jobID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.engine.Reconcile(ctx, jobID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcileUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Reconcile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
