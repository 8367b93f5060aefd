package model

import "time"

// Export job lifecycle states. Status only ever advances forward:
// accepted → queued → processing → completed|failed. "queued" is reserved
// for the dispatch layer; the current worker moves jobs straight from
// accepted to processing.
const (
	JobStatusAccepted   = "accepted"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Export output formats.
const (
	ExportFormatJSON = "json"
	ExportFormatCSV  = "csv"
)

// ExportJob mirrors the `export_jobs` table. The JobID is an opaque random
// identifier handed back to the client for polling; it is independent of the
// table's AUTO_INCREMENT key so it cannot be guessed or enumerated.
type ExportJob struct {
	ID        uint64    // export_jobs.id
	JobID     string    // export_jobs.job_id (unique, client-visible)
	UserID    uint64    // export_jobs.user_id
	DeviceID  uint64    // export_jobs.device_id
	StartDate string    // export_jobs.start_date (caller-supplied boundary)
	EndDate   string    // export_jobs.end_date
	Format    string    // export_jobs.format ("json" or "csv")
	Status    string    // export_jobs.status
	FileURL   string    // export_jobs.file_url (set on completion)
	Error     string    // export_jobs.error (set on failure)
	CreatedAt time.Time // export_jobs.created_at
	UpdatedAt time.Time // export_jobs.updated_at
}

// ValidExportFormat reports whether f is a supported export format.
func ValidExportFormat(f string) bool {
	return f == ExportFormatJSON || f == ExportFormatCSV
}
