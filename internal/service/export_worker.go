package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/queue"
)

// WorkerJobStore is the job persistence used while executing an export.
type WorkerJobStore interface {
	GetByJobID(ctx context.Context, jobID string) (model.ExportJob, error)
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID, fileURL string) error
}

// ExportWorker executes export jobs delivered by the queue. Every step is
// idempotent: status updates are guarded forward-only and the output file
// path is derived from the job id, so an at-least-once redelivery re-runs
// the steps without duplicating any effect.
type ExportWorker struct {
	jobs  WorkerJobStore
	logs  RangeLogStore
	locks cache.Store // nil disables the per-user cap
	cfg   config.ExportConfig
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExportWorker(jobs WorkerJobStore, logs RangeLogStore, locks cache.Store, cfg config.ExportConfig) *ExportWorker {
	return &ExportWorker{
		jobs:  jobs,
		logs:  logs,
		locks: locks,
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (w *ExportWorker) lockKey(userID uint64) string {
	return fmt.Sprintf("export:lock:userId=%d", userID)
}

// Handle runs one export event end to end. At most one export runs per
// user at a time: the lock key is claimed with SetNX before any work, and
// a delivery that loses the claim is requeued rather than run concurrently.
// The lock lives in the shared store, not in process memory, so the cap
// holds across multiple worker processes.
func (w *ExportWorker) Handle(ctx context.Context, ev queue.ExportRequestedEvent) error {
	if w.locks != nil {
		ok, err := w.locks.SetNX(ctx, w.lockKey(ev.UserID), ev.JobID, w.cfg.LockTTL)
		if err != nil {
			// Treat an unreachable lock store like the rate limiter treats
			// its counter store: run anyway, but say so.
			log.Printf("export: lock store unreachable for job %s, proceeding: %v", ev.JobID, err)
		} else if !ok {
			return queue.ErrRequeue
		} else {
			defer func() {
				if err := w.locks.Del(context.Background(), w.lockKey(ev.UserID)); err != nil {
					log.Printf("export: release lock for user %d failed: %v", ev.UserID, err)
				}
			}()
		}
	}

	// A redelivered event for an already-finished job is a no-op.
	if job, err := w.jobs.GetByJobID(ctx, ev.JobID); err == nil {
		if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed {
			return nil
		}
	}

	log.Printf("export: started processing job %s for user %d", ev.JobID, ev.UserID)

	if err := w.jobs.MarkProcessing(ctx, ev.JobID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	fileURL, err := w.produceFile(ctx, ev)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-job: leave it processing; redelivery finishes it.
			return ctx.Err()
		}
		// Leave the row in processing. The delivery layer retries the event
		// a bounded number of times and closes the job out as failed once
		// the attempts run out.
		return err
	}

	if err := w.jobs.MarkCompleted(ctx, ev.JobID, fileURL); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	log.Printf("export: completed job %s for user %d, file available at %s", ev.JobID, ev.UserID, fileURL)

	// Notification is best-effort and must never touch the terminal state.
	w.notify(ev, fileURL)
	return nil
}

// produceFile runs the named export steps: find the data, simulate the
// heavy processing delay, and write the output file under a deterministic
// name so a re-run overwrites rather than duplicates.
func (w *ExportWorker) produceFile(ctx context.Context, ev queue.ExportRequestedEvent) (string, error) {
	start, end, err := parseWindow(ev.StartDate, ev.EndDate)
	if err != nil {
		return "", err
	}

	// step: find-data
	logs, err := w.logs.FindRange(ctx, ev.DeviceID, start, end)
	if err != nil {
		return "", fmt.Errorf("find logs: %w", err)
	}

	// step: export-processing, stands in for the minutes-scale workload.
	if err := w.sleep(ctx, w.cfg.Delay); err != nil {
		return "", err
	}

	// step: write-file
	body, err := Render(logs, ev.Format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.cfg.Dir, err)
	}
	name := ev.JobID + "." + ev.Format
	if err := os.WriteFile(filepath.Join(w.cfg.Dir, name), body, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}

	return w.cfg.BaseURL + "/exports/" + name, nil
}

func (w *ExportWorker) notify(ev queue.ExportRequestedEvent, fileURL string) {
	// Simulated email notification.
	log.Printf("export: email sent to user %d with export link %s", ev.UserID, fileURL)
}
