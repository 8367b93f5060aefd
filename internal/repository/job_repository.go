package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/devfleet/iot-device-api/internal/model"
)

// JobRepo persists export jobs in the `export_jobs` table. Jobs are never
// deleted; after creation only status, file_url, error and updated_at may
// change, and status transitions are guarded in the UPDATE statements so a
// terminal or out-of-order write is a silent no-op rather than a regression.
type JobRepo struct{ DB *sql.DB }

func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{DB: db} }

const jobCols = "id,job_id,user_id,device_id,start_date,end_date,format,status,COALESCE(file_url,''),COALESCE(error,''),created_at,updated_at"

// Create inserts a job in the accepted state.
func (r *JobRepo) Create(ctx context.Context, job model.ExportJob) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO export_jobs (job_id, user_id, device_id, start_date, end_date, format, status) VALUES (?,?,?,?,?,?,?)",
		job.JobID, job.UserID, job.DeviceID, job.StartDate, job.EndDate, job.Format, model.JobStatusAccepted)
	return err
}

// GetByJobID fetches a job by its client-visible identifier.
func (r *JobRepo) GetByJobID(ctx context.Context, jobID string) (model.ExportJob, error) {
	var j model.ExportJob
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+jobCols+" FROM export_jobs WHERE job_id=? LIMIT 1", jobID).
		Scan(&j.ID, &j.JobID, &j.UserID, &j.DeviceID, &j.StartDate, &j.EndDate,
			&j.Format, &j.Status, &j.FileURL, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExportJob{}, ErrNotFound
	}
	return j, err
}

// MarkProcessing advances a job to processing. Only non-terminal jobs move;
// re-delivery of the same event against a finished job changes nothing.
func (r *JobRepo) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE export_jobs SET status=? WHERE job_id=? AND status IN (?,?)",
		model.JobStatusProcessing, jobID, model.JobStatusAccepted, model.JobStatusQueued)
	return err
}

// MarkCompleted finishes a job with its file URL.
func (r *JobRepo) MarkCompleted(ctx context.Context, jobID, fileURL string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE export_jobs SET status=?, file_url=? WHERE job_id=? AND status NOT IN (?,?)",
		model.JobStatusCompleted, fileURL, jobID, model.JobStatusCompleted, model.JobStatusFailed)
	return err
}

// MarkFailed finishes a job with an error message.
func (r *JobRepo) MarkFailed(ctx context.Context, jobID, msg string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE export_jobs SET status=?, error=? WHERE job_id=? AND status NOT IN (?,?)",
		model.JobStatusFailed, msg, jobID, model.JobStatusCompleted, model.JobStatusFailed)
	return err
}
