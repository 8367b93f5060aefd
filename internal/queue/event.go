// Package queue defines message payloads exchanged over the message broker
// along with the publisher and consumer for the export pipeline.
package queue

// ExportRequestedEvent is published when a user submits a large export. It
// carries every job parameter so the worker never has to consult the job
// row to know what to export; the row is only the status projection the
// client polls.
type ExportRequestedEvent struct {
	JobID     string `json:"job_id"`
	UserID    uint64 `json:"user_id"`
	DeviceID  uint64 `json:"device_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Format    string `json:"format"`

	// Attempt counts the handler runs that already failed for this job.
	// It is zero on first publish and bumped on each retry republish.
	Attempt int `json:"attempt,omitempty"`
}
