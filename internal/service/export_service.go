package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/queue"
)

// ErrInvalidExport marks caller mistakes (bad format, bad window) so the
// handler can keep them apart from infrastructure failures.
var ErrInvalidExport = errors.New("invalid export request")

// JobStore is the slice of the job repository used by the orchestrator.
type JobStore interface {
	Create(ctx context.Context, job model.ExportJob) (err error)
	GetByJobID(ctx context.Context, jobID string) (model.ExportJob, error)
	MarkFailed(ctx context.Context, jobID, msg string) error
}

// ExportPublisher hands a submitted job to the async engine.
type ExportPublisher interface {
	PublishExportRequested(ctx context.Context, ev queue.ExportRequestedEvent) error
}

// RangeLogStore fetches one device's logs inside a window; shared by the
// sync export path and the async worker.
type RangeLogStore interface {
	FindRange(ctx context.Context, deviceID uint64, start, end time.Time) ([]model.DeviceLog, error)
}

// ExportService is the export job orchestrator: it persists the job record
// synchronously, hands execution to the queue, and serves status polls. It
// also carries the small-range synchronous export that bypasses the job
// machinery entirely.
type ExportService struct {
	jobs    JobStore
	devices DeviceOwnershipStore
	logs    RangeLogStore
	pub     ExportPublisher
}

func NewExportService(jobs JobStore, devices DeviceOwnershipStore, logs RangeLogStore, pub ExportPublisher) *ExportService {
	return &ExportService{jobs: jobs, devices: devices, logs: logs, pub: pub}
}

// dateLayout is the caller-supplied day boundary format.
const dateLayout = "2006-01-02"

// parseWindow turns inclusive day boundaries into a [start, end] time
// window covering the whole end day.
func parseWindow(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid startDate %q", ErrInvalidExport, startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid endDate %q", ErrInvalidExport, endDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: endDate precedes startDate", ErrInvalidExport)
	}
	return start, end.Add(24*time.Hour - time.Nanosecond), nil
}

// Submit validates the request, persists a Job in the accepted state and
// publishes the export event. The job id is a random UUID, deliberately
// independent of any storage sequence so it cannot be enumerated. The row
// is written before the publish so a poll that races the handoff already
// sees the job.
func (s *ExportService) Submit(ctx context.Context, userID, deviceID uint64, startDate, endDate, format string) (string, error) {
	if !model.ValidExportFormat(format) {
		return "", fmt.Errorf("%w: invalid format %q", ErrInvalidExport, format)
	}
	if _, _, err := parseWindow(startDate, endDate); err != nil {
		return "", err
	}
	if _, err := s.devices.GetOwned(ctx, deviceID, userID); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	job := model.ExportJob{
		JobID:     jobID,
		UserID:    userID,
		DeviceID:  deviceID,
		StartDate: startDate,
		EndDate:   endDate,
		Format:    format,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", err
	}

	ev := queue.ExportRequestedEvent{
		JobID:     jobID,
		UserID:    userID,
		DeviceID:  deviceID,
		StartDate: startDate,
		EndDate:   endDate,
		Format:    format,
	}
	if err := s.pub.PublishExportRequested(ctx, ev); err != nil {
		// The job row exists but no worker will ever pick it up; fail it
		// so the client is not left polling an accepted job forever.
		if ferr := s.jobs.MarkFailed(ctx, jobID, "failed to dispatch export job"); ferr != nil {
			log.Printf("export: mark failed after publish error: %v", ferr)
		}
		return "", err
	}
	return jobID, nil
}

// Status returns the job row for polling. Pure read, safe at any
// frequency.
func (s *ExportService) Status(ctx context.Context, jobID string) (model.ExportJob, error) {
	return s.jobs.GetByJobID(ctx, jobID)
}

// ExportSync fetches and renders a bounded date range inline, with no job
// record. Returns the payload, content type and attachment filename.
func (s *ExportService) ExportSync(ctx context.Context, userID, deviceID uint64, startDate, endDate, format string) ([]byte, string, string, error) {
	if !model.ValidExportFormat(format) {
		return nil, "", "", fmt.Errorf("%w: invalid format %q", ErrInvalidExport, format)
	}
	start, end, err := parseWindow(startDate, endDate)
	if err != nil {
		return nil, "", "", err
	}
	if _, err := s.devices.GetOwned(ctx, deviceID, userID); err != nil {
		return nil, "", "", err
	}

	logs, err := s.logs.FindRange(ctx, deviceID, start, end)
	if err != nil {
		return nil, "", "", err
	}
	body, err := Render(logs, format)
	if err != nil {
		return nil, "", "", err
	}
	return body, ContentTypeFor(format), ExportFilename(deviceID, startDate, endDate, format), nil
}
