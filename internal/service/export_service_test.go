package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/queue"
	"github.com/devfleet/iot-device-api/internal/repository"
)

type jobStoreFake struct {
	jobs   map[string]model.ExportJob
	failed map[string]string

	// completeErrs makes the next N MarkCompleted calls fail, simulating a
	// store that comes back after a transient outage.
	completeErrs int
}

func newJobStoreFake() *jobStoreFake {
	return &jobStoreFake{jobs: map[string]model.ExportJob{}, failed: map[string]string{}}
}

func (f *jobStoreFake) Create(ctx context.Context, job model.ExportJob) error {
	job.Status = model.JobStatusAccepted
	f.jobs[job.JobID] = job
	return nil
}

func (f *jobStoreFake) GetByJobID(ctx context.Context, jobID string) (model.ExportJob, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return model.ExportJob{}, repository.ErrNotFound
	}
	return j, nil
}

func (f *jobStoreFake) MarkFailed(ctx context.Context, jobID, msg string) error {
	j := f.jobs[jobID]
	j.Status = model.JobStatusFailed
	j.Error = msg
	f.jobs[jobID] = j
	f.failed[jobID] = msg
	return nil
}

type ownershipFake struct {
	owned map[uint64]uint64 // deviceID -> ownerID
}

func (f *ownershipFake) GetOwned(ctx context.Context, id, ownerID uint64) (model.Device, error) {
	if f.owned[id] != ownerID {
		return model.Device{}, repository.ErrNotFound
	}
	return model.Device{ID: id, OwnerID: ownerID}, nil
}

type publisherFake struct {
	events []queue.ExportRequestedEvent
	err    error
}

func (f *publisherFake) PublishExportRequested(ctx context.Context, ev queue.ExportRequestedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func TestSubmitCreatesBeforePublish(t *testing.T) {
	jobs := newJobStoreFake()
	pub := &publisherFake{}
	svc := NewExportService(jobs, &ownershipFake{owned: map[uint64]uint64{3: 7}}, nil, pub)

	jobID, err := svc.Submit(context.Background(), 7, 3, "2026-01-01", "2026-01-31", "csv")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := jobs.GetByJobID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAccepted, job.Status)
	assert.Equal(t, uint64(7), job.UserID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, jobID, pub.events[0].JobID)
	assert.Equal(t, "csv", pub.events[0].Format)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	svc := NewExportService(newJobStoreFake(), &ownershipFake{owned: map[uint64]uint64{3: 7}}, nil, &publisherFake{})

	cases := []struct {
		name               string
		start, end, format string
	}{
		{"bad format", "2026-01-01", "2026-01-31", "xml"},
		{"bad start", "01-01-2026", "2026-01-31", "json"},
		{"bad end", "2026-01-01", "jan 31", "json"},
		{"inverted window", "2026-02-01", "2026-01-01", "json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), 7, 3, tc.start, tc.end, tc.format)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidExport))
		})
	}
}

func TestSubmitUnownedDevice(t *testing.T) {
	svc := NewExportService(newJobStoreFake(), &ownershipFake{owned: map[uint64]uint64{3: 7}}, nil, &publisherFake{})

	_, err := svc.Submit(context.Background(), 99, 3, "2026-01-01", "2026-01-31", "json")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubmitFailsJobWhenPublishFails(t *testing.T) {
	jobs := newJobStoreFake()
	pub := &publisherFake{err: errors.New("broker down")}
	svc := NewExportService(jobs, &ownershipFake{owned: map[uint64]uint64{3: 7}}, nil, pub)

	_, err := svc.Submit(context.Background(), 7, 3, "2026-01-01", "2026-01-31", "json")
	require.Error(t, err)

	// the orphaned row must be failed, not left accepted forever
	require.Len(t, jobs.failed, 1)
	for _, j := range jobs.jobs {
		assert.Equal(t, model.JobStatusFailed, j.Status)
	}
}

func TestStatusReturnsJob(t *testing.T) {
	jobs := newJobStoreFake()
	require.NoError(t, jobs.Create(context.Background(), model.ExportJob{JobID: "abc", UserID: 7}))
	svc := NewExportService(jobs, &ownershipFake{}, nil, &publisherFake{})

	job, err := svc.Status(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", job.JobID)

	_, err = svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
