package jobs

import (
	"context"
	"log"
	"time"
)

// BlacklistStore deletes expired revocation rows in batches.
type BlacklistStore interface {
	DeleteExpired(ctx context.Context, now time.Time, batch int) (int, error)
}

// BlacklistCleanup periodically removes blacklist rows whose expiry has
// passed. Lookups already ignore expired rows, so this job is pure garbage
// collection standing in for a store-native TTL index.
type BlacklistCleanup struct {
	store     BlacklistStore
	schedule  time.Duration
	batchSize int
	stopCh    chan struct{}
}

func NewBlacklistCleanup(store BlacklistStore, schedule time.Duration, batchSize int) *BlacklistCleanup {
	if schedule <= 0 {
		schedule = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &BlacklistCleanup{store: store, schedule: schedule, batchSize: batchSize, stopCh: make(chan struct{})}
}

// Start launches the cleanup loop in the background.
func (j *BlacklistCleanup) Start() {
	log.Printf("blacklist-cleanup: starting (schedule=%s batch=%d)", j.schedule, j.batchSize)
	go j.loop()
}

// Stop terminates the loop.
func (j *BlacklistCleanup) Stop() { close(j.stopCh) }

func (j *BlacklistCleanup) loop() {
	ticker := time.NewTicker(j.schedule)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.runOnce()
		case <-j.stopCh:
			log.Printf("blacklist-cleanup: stopped")
			return
		}
	}
}

func (j *BlacklistCleanup) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	total := 0
	for {
		n, err := j.store.DeleteExpired(ctx, time.Now().UTC(), j.batchSize)
		if err != nil {
			log.Printf("blacklist-cleanup: delete failed: %v", err)
			return
		}
		total += n
		if n < j.batchSize {
			break
		}
	}
	if total > 0 {
		log.Printf("blacklist-cleanup: removed %d expired entries", total)
	}
}
