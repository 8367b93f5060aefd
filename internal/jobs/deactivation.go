// Package jobs contains the scheduled background tasks: the daily device
// deactivation sweep and the blacklist garbage collector.
package jobs

import (
	"context"
	"log"
	"time"
)

// DeviceSweeper flips stale devices to inactive.
type DeviceSweeper interface {
	SweepInactive(ctx context.Context, cutoff time.Time) (int, error)
}

// DeactivationSweep periodically deactivates devices whose last heartbeat
// is older than the staleness threshold. Mirrors a daily cron: runs once at
// startup and then on every tick.
type DeactivationSweep struct {
	devices   DeviceSweeper
	staleness time.Duration
	schedule  time.Duration
	stopCh    chan struct{}
}

// NewDeactivationSweep builds the sweep; by default devices are considered
// stale after 24h of silence and the sweep runs daily.
func NewDeactivationSweep(devices DeviceSweeper, staleness, schedule time.Duration) *DeactivationSweep {
	if staleness <= 0 {
		staleness = 24 * time.Hour
	}
	if schedule <= 0 {
		schedule = 24 * time.Hour
	}
	return &DeactivationSweep{
		devices:   devices,
		staleness: staleness,
		schedule:  schedule,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the sweep loop in the background.
func (j *DeactivationSweep) Start() {
	log.Printf("deactivation-sweep: starting (staleness=%s schedule=%s)", j.staleness, j.schedule)
	go j.loop()
}

// Stop terminates the loop.
func (j *DeactivationSweep) Stop() { close(j.stopCh) }

func (j *DeactivationSweep) loop() {
	j.runOnce()

	ticker := time.NewTicker(j.schedule)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.runOnce()
		case <-j.stopCh:
			log.Printf("deactivation-sweep: stopped")
			return
		}
	}
}

func (j *DeactivationSweep) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.staleness)
	n, err := j.devices.SweepInactive(ctx, cutoff)
	if err != nil {
		log.Printf("deactivation-sweep: run failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("deactivation-sweep: deactivated %d stale devices", n)
	}
}
