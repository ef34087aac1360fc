package registration

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper hard-evicts pending registrations past their eviction time.
// Run drives it from a ticker; tests call SweepOnce directly.
type Sweeper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store Store, interval time.Duration, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{store: store, interval: interval, now: now}
}

// SweepOnce removes every record whose eviction time has passed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		slog.Warn("pending registration sweep failed", "err", err)
	}
	if n > 0 {
		slog.Info("evicted pending registrations", "count", n)
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}
