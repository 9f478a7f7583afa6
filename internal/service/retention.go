package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Retention purges tombstones old enough that every device must have pulled
// them. The safety margin on top of the TTL absorbs clock skew and devices
// syncing right at the retention edge.
type Retention struct {
	store    Store
	log      *logrus.Logger
	ttlDays  int
	safety   time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRetention(store Store, log *logrus.Logger, ttlDays int, safety, interval time.Duration) *Retention {
	if ttlDays <= 0 {
		ttlDays = 30
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Retention{store: store, log: log, ttlDays: ttlDays, safety: safety, interval: interval}
}

// Threshold is the purge cutoff for a sweep running at now: tombstones
// deleted at or before it are eligible.
func (r *Retention) Threshold(now time.Time) time.Time {
	return now.Add(-time.Duration(r.ttlDays) * 24 * time.Hour).Add(-r.safety)
}

// SweepOptions override the configured policy for one on-demand sweep.
// Nil fields fall back to the configured values; StaleDays additionally
// purges device registrations not seen for that many days.
type SweepOptions struct {
	TTLDays   *int
	Safety    *time.Duration
	StaleDays *int
}

type SweepResult struct {
	Deleted      int64     `json:"deleted"`
	Threshold    time.Time `json:"threshold"`
	StaleClients *int64    `json:"staleClients,omitempty"`
}

// Sweep purges tombstones older than the effective threshold and, when asked,
// stale device registrations.
func (r *Retention) Sweep(ctx context.Context, now time.Time, opts SweepOptions) (SweepResult, error) {
	ttlDays := r.ttlDays
	if opts.TTLDays != nil && *opts.TTLDays > 0 {
		ttlDays = *opts.TTLDays
	}
	safety := r.safety
	if opts.Safety != nil && *opts.Safety >= 0 {
		safety = *opts.Safety
	}
	threshold := now.Add(-time.Duration(ttlDays) * 24 * time.Hour).Add(-safety)

	purged, err := r.store.PurgeTombstonesBefore(ctx, threshold)
	if err != nil {
		return SweepResult{}, err
	}
	result := SweepResult{Deleted: purged, Threshold: threshold}

	if opts.StaleDays != nil && *opts.StaleDays > 0 {
		cutoff := now.Add(-time.Duration(*opts.StaleDays) * 24 * time.Hour)
		stale, err := r.store.PurgeStaleClients(ctx, cutoff)
		if err != nil {
			return SweepResult{}, err
		}
		result.StaleClients = &stale
	}

	if purged > 0 || (result.StaleClients != nil && *result.StaleClients > 0) {
		r.log.WithFields(logrus.Fields{"purged": purged, "threshold": threshold}).Info("tombstones purged")
		details := fmt.Sprintf(`{"purged":%d,"threshold":%q}`, purged, threshold.Format(time.RFC3339))
		if err := r.store.InsertAudit(ctx, "retention.sweep", nil, nil, details); err != nil {
			r.log.WithError(err).Warn("audit write failed")
		}
	}
	return result, nil
}

// RunOnce performs a single sweep under the configured policy and returns the
// purge count.
func (r *Retention) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.Sweep(ctx, now, SweepOptions{})
	if err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

// Start launches the periodic sweep loop. Stop blocks until the loop exits.
func (r *Retention) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			if _, err := r.RunOnce(ctx, time.Now().UTC()); err != nil {
				r.log.WithError(err).Error("tombstone sweep failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (r *Retention) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
