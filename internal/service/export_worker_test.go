package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/queue"
)

// WorkerJobStore methods for the shared fake.

func (f *jobStoreFake) MarkProcessing(ctx context.Context, jobID string) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil
	}
	if j.Status != model.JobStatusAccepted && j.Status != model.JobStatusQueued {
		return nil
	}
	j.Status = model.JobStatusProcessing
	f.jobs[jobID] = j
	return nil
}

func (f *jobStoreFake) MarkCompleted(ctx context.Context, jobID, fileURL string) error {
	if f.completeErrs > 0 {
		f.completeErrs--
		return errors.New("database gone away")
	}
	j := f.jobs[jobID]
	if j.Status == model.JobStatusCompleted || j.Status == model.JobStatusFailed {
		return nil
	}
	j.Status = model.JobStatusCompleted
	j.FileURL = fileURL
	f.jobs[jobID] = j
	return nil
}

type rangeLogsFake struct {
	logs []model.DeviceLog
	err  error
}

func (f *rangeLogsFake) FindRange(ctx context.Context, deviceID uint64, start, end time.Time) ([]model.DeviceLog, error) {
	return f.logs, f.err
}

func workerCfg(t *testing.T) config.ExportConfig {
	t.Helper()
	return config.ExportConfig{
		Dir:     t.TempDir(),
		BaseURL: "http://localhost:8080",
		Delay:   0,
		LockTTL: time.Minute,
	}
}

func exportEvent(jobID string) queue.ExportRequestedEvent {
	return queue.ExportRequestedEvent{
		JobID:     jobID,
		UserID:    7,
		DeviceID:  3,
		StartDate: "2026-01-01",
		EndDate:   "2026-01-31",
		Format:    model.ExportFormatCSV,
	}
}

func TestWorkerCompletesJob(t *testing.T) {
	jobs := newJobStoreFake()
	require.NoError(t, jobs.Create(context.Background(), model.ExportJob{JobID: "job-1", UserID: 7, DeviceID: 3}))
	logs := &rangeLogsFake{logs: []model.DeviceLog{
		{ID: 1, DeviceID: 3, Event: model.EventUnitsConsumed, Value: 2, Timestamp: ts("2026-01-10 09:00")},
	}}
	locks := cache.NewMemory()
	cfg := workerCfg(t)
	w := NewExportWorker(jobs, logs, locks, cfg)

	require.NoError(t, w.Handle(context.Background(), exportEvent("job-1")))

	job := jobs.jobs["job-1"]
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, cfg.BaseURL+"/exports/job-1.csv", job.FileURL)

	body, err := os.ReadFile(filepath.Join(cfg.Dir, "job-1.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "id,device_id,event,value,timestamp")

	// lock released after the run
	ok, err := locks.SetNX(context.Background(), "export:lock:userId=7", "x", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWorkerRequeuesOnLockContention(t *testing.T) {
	jobs := newJobStoreFake()
	require.NoError(t, jobs.Create(context.Background(), model.ExportJob{JobID: "job-2", UserID: 7, DeviceID: 3}))
	locks := cache.NewMemory()

	// another export for the same user is already running
	ok, err := locks.SetNX(context.Background(), "export:lock:userId=7", "other-job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w := NewExportWorker(jobs, &rangeLogsFake{}, locks, workerCfg(t))

	err = w.Handle(context.Background(), exportEvent("job-2"))
	assert.ErrorIs(t, err, queue.ErrRequeue)
	assert.Equal(t, model.JobStatusAccepted, jobs.jobs["job-2"].Status)
}

func TestWorkerLeavesFailedRunRetryable(t *testing.T) {
	jobs := newJobStoreFake()
	require.NoError(t, jobs.Create(context.Background(), model.ExportJob{JobID: "job-3", UserID: 7, DeviceID: 3}))
	logs := &rangeLogsFake{err: errors.New("storage offline")}
	w := NewExportWorker(jobs, logs, cache.NewMemory(), workerCfg(t))

	err := w.Handle(context.Background(), exportEvent("job-3"))
	require.Error(t, err)

	// The job is not failed here: the delivery layer decides whether the
	// run gets another attempt, so the row must stay non-terminal.
	job := jobs.jobs["job-3"]
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Empty(t, job.Error)
}

func TestWorkerCompletesOnRetryAfterTransientError(t *testing.T) {
	jobs := newJobStoreFake()
	require.NoError(t, jobs.Create(context.Background(), model.ExportJob{JobID: "job-6", UserID: 7, DeviceID: 3}))
	jobs.completeErrs = 1
	logs := &rangeLogsFake{logs: []model.DeviceLog{
		{ID: 1, DeviceID: 3, Event: model.EventUnitsConsumed, Value: 2, Timestamp: ts("2026-01-10 09:00")},
	}}
	cfg := workerCfg(t)
	w := NewExportWorker(jobs, logs, cache.NewMemory(), cfg)

	// First run loses the job store right at the completion write.
	require.Error(t, w.Handle(context.Background(), exportEvent("job-6")))
	assert.Equal(t, model.JobStatusProcessing, jobs.jobs["job-6"].Status)

	// The redelivered run re-walks the same steps and lands the job.
	require.NoError(t, w.Handle(context.Background(), exportEvent("job-6")))
	job := jobs.jobs["job-6"]
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, cfg.BaseURL+"/exports/job-6.csv", job.FileURL)
}

func TestWorkerSkipsTerminalJob(t *testing.T) {
	jobs := newJobStoreFake()
	jobs.jobs["job-4"] = model.ExportJob{JobID: "job-4", UserID: 7, DeviceID: 3, Status: model.JobStatusCompleted, FileURL: "http://x/exports/job-4.csv"}
	logs := &rangeLogsFake{err: errors.New("must not be called")}
	w := NewExportWorker(jobs, logs, cache.NewMemory(), workerCfg(t))

	// redelivery of a finished job is a clean no-op
	require.NoError(t, w.Handle(context.Background(), exportEvent("job-4")))
	assert.Equal(t, model.JobStatusCompleted, jobs.jobs["job-4"].Status)
	assert.Equal(t, "http://x/exports/job-4.csv", jobs.jobs["job-4"].FileURL)
}

func TestWorkerProceedsWhenLockStoreDown(t *testing.T) {
	jobs := newJobStoreFake()
	require.NoError(t, jobs.Create(context.Background(), model.ExportJob{JobID: "job-5", UserID: 7, DeviceID: 3}))
	w := NewExportWorker(jobs, &rangeLogsFake{}, brokenLocks{}, workerCfg(t))

	require.NoError(t, w.Handle(context.Background(), exportEvent("job-5")))
	assert.Equal(t, model.JobStatusCompleted, jobs.jobs["job-5"].Status)
}

// brokenLocks fails SetNX, simulating an unreachable lock store.
type brokenLocks struct {
	cache.Store
}

func (brokenLocks) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return false, context.DeadlineExceeded
}
