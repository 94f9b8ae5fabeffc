package schedule

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/testutil"
)

type enqueueCall struct {
	taskType string
	subject  *int64
	payload  interface{}
}

type fakeQueue struct {
	calls []enqueueCall
}

func (f *fakeQueue) Enqueue(taskType string, subject *int64, payload interface{}) (*models.Task, error) {
	f.calls = append(f.calls, enqueueCall{taskType, subject, payload})
	return &models.Task{ID: uuid.NewString(), Type: taskType, Status: models.TaskStatusPending}, nil
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeQueue) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	q := &fakeQueue{}
	return New(st, q), st, q
}

func TestExecuteDispatchesScanJob(t *testing.T) {
	svc, st, q := newTestService(t)

	job := &models.ScheduledJob{
		Name:     "scan show",
		JobType:  models.TaskScanReleases,
		CronExpr: "0 3 * * *",
		Enabled:  true,
		Config:   json.RawMessage(`{"anime_id": 42}`),
	}
	require.NoError(t, st.CreateJob(job))

	task, err := svc.Execute(job)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Len(t, q.calls, 1)
	assert.Equal(t, models.TaskScanReleases, q.calls[0].taskType)
	require.NotNil(t, q.calls[0].subject)
	assert.Equal(t, int64(42), *q.calls[0].subject)

	// The run is recorded with a recomputed next-run timestamp.
	stored, err := st.GetJob(job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRunAt)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(*stored.LastRunAt))
}

func TestExecuteRejectsScanJobWithoutTarget(t *testing.T) {
	svc, _, q := newTestService(t)

	job := &models.ScheduledJob{
		ID:       1,
		JobType:  models.TaskScanReleases,
		CronExpr: "0 3 * * *",
	}
	_, err := svc.Execute(job)
	assert.Error(t, err)
	assert.Empty(t, q.calls)
}

func TestExecuteRejectsUnknownJobType(t *testing.T) {
	svc, _, q := newTestService(t)

	job := &models.ScheduledJob{ID: 1, JobType: "defragment-disks", CronExpr: "0 3 * * *"}
	_, err := svc.Execute(job)
	assert.Error(t, err)
	assert.Empty(t, q.calls)
}

func TestDisabledJobDoesNotFire(t *testing.T) {
	svc, st, q := newTestService(t)

	job := &models.ScheduledJob{
		Name:     "paused scan",
		JobType:  models.TaskScanAutoDownload,
		CronExpr: "0 * * * *",
		Enabled:  true,
	}
	require.NoError(t, st.CreateJob(job))

	// Disable after arming; the trigger must re-check the flag.
	job.Enabled = false
	require.NoError(t, st.UpdateJob(job))

	svc.fire(job.ID)
	assert.Empty(t, q.calls)

	job.Enabled = true
	require.NoError(t, st.UpdateJob(job))
	svc.fire(job.ID)
	assert.Len(t, q.calls, 1)
}

func TestEnsureWindowJobIsIdempotent(t *testing.T) {
	svc, st, _ := newTestService(t)
	defer svc.Stop()

	first, err := svc.EnsureWindowJob("refresh 2025 Q3", "0 4 * * *", 3, 2025)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.EnsureWindowJob("refresh 2025 Q3", "0 4 * * *", 3, 2025)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	jobs, err := st.ListJobs(false)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	// A different window is a different job.
	third, err := svc.EnsureWindowJob("refresh 2025 Q4", "0 4 * * *", 4, 2025)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}
