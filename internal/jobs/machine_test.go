package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tools-tracker/constants"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/ledger"
	"github.com/joseph-ayodele/tools-tracker/internal/testutil"
)

type fixture struct {
	machine *Machine
	ledger  *ledger.Ledger
	repos   *testutil.Repos
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	for _, id := range []entity.ToolID{3, 5, 7, 9} {
		_, err := repos.Tools.Create(ctx, entity.Tool{ID: id, Name: fmt.Sprintf("tool %d", id)})
		require.NoError(t, err)
	}
	l := ledger.New(repos.Driver, testutil.Logger(t))
	return &fixture{
		machine: NewMachine(repos.Driver, l, nil, testutil.Logger(t)),
		ledger:  l,
		repos:   repos,
	}
}

func (f *fixture) order(t *testing.T, tools ...entity.ToolID) uuid.UUID {
	t.Helper()
	items := make([]ledger.ItemRequest, len(tools))
	for i, id := range tools {
		items[i] = ledger.ItemRequest{ToolID: id}
	}
	o, err := f.ledger.CreateOrder(context.Background(), ledger.OrderRequest{EmployeeID: 1, Items: items})
	require.NoError(t, err)
	return o.ID
}

// frames stores one raw artifact per frame with the given tool ids as its detections.
func (f *fixture) frames(t *testing.T, jobID uuid.UUID, frames ...[]entity.ToolID) {
	t.Helper()
	ctx := context.Background()
	var batch []entity.Detection
	for i, tools := range frames {
		raw, err := f.repos.Artifacts.Create(ctx, jobID, constants.RoleRaw, "raw", fmt.Sprintf("%s/frame_%d.jpg", jobID, i))
		require.NoError(t, err)
		for j, id := range tools {
			proc, err := f.repos.Artifacts.Create(ctx, jobID, constants.RoleProcessed, "processed", fmt.Sprintf("%s/frame_%d_%d.jpg", jobID, i, j))
			require.NoError(t, err)
			tool := id
			batch = append(batch, entity.Detection{
				ToolID: &tool, Label: fmt.Sprintf("tool %d", id),
				ProcessedArtifactID: proc.ID, OriginalArtifactID: raw.ID, Confidence: 0.9,
			})
		}
	}
	require.NoError(t, f.repos.Detections.ReplaceAll(ctx, jobID, batch))
}

func TestApplyComparisonOutcomeMatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, 5, 5, 7, 9)
	job, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
	require.NoError(t, err)
	f.frames(t, job.ID, []entity.ToolID{5, 5, 7}, []entity.ToolID{5, 9})

	res, err := f.machine.ApplyComparisonOutcome(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, []entity.ToolID{5, 5, 7, 9}, res.Merged)
	assert.Equal(t, orderID, res.OrderID)

	status, err := f.machine.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPreprocessing, status)
}

func TestApplyComparisonOutcomeMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, 5, 7, 9, 9)
	job, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
	require.NoError(t, err)
	f.frames(t, job.ID, []entity.ToolID{5, 5, 7}, []entity.ToolID{5, 9})

	res, err := f.machine.ApplyComparisonOutcome(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, []entity.ToolID{5, 5, 7, 9}, res.Merged)
	assert.Equal(t, []entity.ToolID{5, 7, 9, 9}, res.Expected)

	status, err := f.machine.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusManualMappingRequired, status)
}

func TestApplyComparisonOutcomeNoDetections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, 3)
	job, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
	require.NoError(t, err)

	res, err := f.machine.ApplyComparisonOutcome(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, res.Merged)
	assert.Equal(t, []entity.ToolID{3}, res.Expected)
}

func TestApplyComparisonOutcomeLeavesTestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, 5, 7, 9, 9)
	job, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
	require.NoError(t, err)
	require.NoError(t, f.machine.SetStatus(ctx, job.ID, constants.JobStatusTest))
	f.frames(t, job.ID, []entity.ToolID{5, 7, 9})

	res, err := f.machine.ApplyComparisonOutcome(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, res.Matched)

	status, err := f.machine.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusTest, status)

	require.NoError(t, f.machine.SetStatus(ctx, job.ID, constants.JobStatusFinished))
	status, err = f.machine.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusTest, status)
}

func TestUnknownToolsDoNotCauseMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, 5)
	job, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
	require.NoError(t, err)

	raw, err := f.repos.Artifacts.Create(ctx, job.ID, constants.RoleRaw, "raw", "u.jpg")
	require.NoError(t, err)
	five := entity.ToolID(5)
	require.NoError(t, f.repos.Detections.ReplaceAll(ctx, job.ID, []entity.Detection{
		{ToolID: &five, Label: "tool 5", ProcessedArtifactID: raw.ID, OriginalArtifactID: raw.ID},
		{Label: "mystery", ProcessedArtifactID: raw.ID, OriginalArtifactID: raw.ID},
	}))

	res, err := f.machine.ApplyComparisonOutcome(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, 1, res.Unrecognized)
	assert.Len(t, res.Detections, 2)
}

func TestCompareIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, 5)
	job, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
	require.NoError(t, err)
	f.frames(t, job.ID, []entity.ToolID{9, 5}, []entity.ToolID{5, 5}, []entity.ToolID{7})

	first, err := f.machine.Compare(ctx, job.ID)
	require.NoError(t, err)
	second, err := f.machine.Compare(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []entity.ToolID{5, 5, 7, 9}, first.Merged)
}

func TestCreateJobInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("return without issuance", func(t *testing.T) {
		orderID := f.order(t, 5)
		_, err := f.machine.CreateJob(ctx, orderID, constants.ActionReturn)
		assert.ErrorIs(t, err, ErrReturnWithoutIssuance)
		assert.True(t, common.IsDomainError(err))

		links, err := f.repos.Links.ListByOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Empty(t, links)
		jobs, err := f.repos.Jobs.ListByStatus(ctx, constants.JobStatusPreprocessing)
		require.NoError(t, err)
		for _, j := range jobs {
			_, err := f.repos.Links.GetByJob(ctx, j.ID)
			assert.NoError(t, err, "orphan job %s", j.ID)
		}
	})

	t.Run("duplicate issuance", func(t *testing.T) {
		orderID := f.order(t, 5)
		_, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
		require.NoError(t, err)
		_, err = f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
		assert.ErrorIs(t, err, ErrDuplicateIssuance)
	})

	t.Run("third link", func(t *testing.T) {
		orderID := f.order(t, 5)
		_, err := f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
		require.NoError(t, err)
		_, err = f.machine.CreateJob(ctx, orderID, constants.ActionReturn)
		require.NoError(t, err)

		_, err = f.machine.CreateJob(ctx, orderID, constants.ActionReturn)
		assert.ErrorIs(t, err, ErrAccountingLimit)
		_, err = f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
		assert.ErrorIs(t, err, ErrAccountingLimit)

		links, err := f.repos.Links.ListByOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Len(t, links, 2)
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := f.machine.CreateJob(ctx, uuid.New(), constants.ActionIssuance)
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := f.machine.CreateJob(ctx, f.order(t), constants.ActionKind("LEND"))
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}

func TestCreateJobConcurrentIssuance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, 5)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.machine.CreateJob(ctx, orderID, constants.ActionIssuance)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateIssuance)
	}
	assert.Equal(t, 1, ok)
}

func TestCompareWithoutLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orphan := uuid.New()
	require.NoError(t, f.repos.Jobs.Create(ctx, entity.Job{ID: orphan, Status: constants.JobStatusPreprocessing}))
	_, err := f.machine.ApplyComparisonOutcome(ctx, orphan)
	assert.ErrorIs(t, err, ErrNoLinkedOrder)
	assert.ErrorIs(t, err, common.ErrIntegrity)
	assert.False(t, common.IsDomainError(err))

	testJob, err := f.machine.CreateTestJob(ctx)
	require.NoError(t, err)
	_, err = f.machine.Compare(ctx, testJob.ID)
	assert.ErrorIs(t, err, ErrTestJobWithoutOrder)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.machine.CreateJob(ctx, f.order(t, 5), constants.ActionIssuance)
	require.NoError(t, err)

	require.NoError(t, f.machine.SetStatus(ctx, job.ID, constants.JobStatusFailed))
	status, err := f.machine.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, status)

	assert.ErrorIs(t, f.machine.SetStatus(ctx, job.ID, constants.JobStatus("DONE")), common.ErrValidation)
	assert.ErrorIs(t, f.machine.SetStatus(ctx, uuid.New(), constants.JobStatusFailed), common.ErrNotFound)
}

func TestCreateTestJobReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.machine.CreateTestJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusTest, first.Status)

	second, err := f.machine.CreateTestJob(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = f.machine.GetJob(ctx, first.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	tests, err := f.repos.Jobs.ListByStatus(ctx, constants.JobStatusTest)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, second.ID, tests[0].ID)
}
