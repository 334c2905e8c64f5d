package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/notify"
)

// StartInactiveRoomCleanup launches the sweeper goroutine. It runs every sweep
// interval until ctx is cancelled. Only the first call starts a sweeper.
func (r *Registry) StartInactiveRoomCleanup(ctx context.Context) {
	r.sweepOnce.Do(func() {
		go r.runSweeper(ctx)
	})
}

func (r *Registry) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.log.Info("inactive room sweeper started", zap.Duration("interval", r.sweepInterval), zap.Duration("timeout", r.timeout))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("inactive room sweeper stopped")
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Sweep evicts every inactive room idle for longer than the timeout at now,
// notifying remaining passengers first. It returns the number of rooms removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, rm := range r.rooms {
		if rm.Active() || now.Sub(rm.lastActive) <= r.timeout {
			continue
		}
		r.notifier.Fanout(rm.passengerList(), nil, notify.EventRoomClosed, "The room has been permanently closed due to inactivity.")
		r.remove(rm, ReasonTimeout)
		removed++
	}
	if removed > 0 {
		r.metrics.Swept(removed)
		r.log.Info("inactive rooms swept", zap.Int("removed", removed))
	}
	return removed
}
