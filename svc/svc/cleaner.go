package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"lyricbox/metrics"
	"lyricbox/svc/util"

	"github.com/pkg/errors"
)

// CounterPurger drops rate-limit counters whose window has closed. Stores
// with native key expiry do not need one.
type CounterPurger interface {
	PurgeExpiredCounters(ctx context.Context) (int, error)
}

var (
	cleanerOnce    sync.Once
	cleanerRunning atomic.Bool
)

func StartCleaner(ctx context.Context, p CounterPurger, interval time.Duration) error {
	if p == nil {
		return errors.New("cleaner needs a purger")
	}
	if cleanerRunning.Load() {
		return errors.New("cleaner already running")
	}
	cleanerOnce.Do(func() {
		cleanerRunning.Store(true)
		go runCleaner(ctx, p, interval)
	})
	return nil
}

func runCleaner(ctx context.Context, p CounterPurger, interval time.Duration) {
	defer cleanerRunning.Store(false)
	cleanupRequestID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, cleanupRequestID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", cleanupRequestID).
		Dur("interval", interval).
		Msg("counter cleanup worker started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", cleanupRequestID).
				Msg("counter cleanup worker shutting down")
			return
		case <-ticker.C:
			purgeOnce(ctx, p)
		}
	}
}

func purgeOnce(ctx context.Context, p CounterPurger) int {
	metrics.CounterPurges.Inc()
	deleted, err := p.PurgeExpiredCounters(ctx)
	if err != nil {
		util.Error().
			Err(err).
			Str("request_id", util.GetRequestID(ctx)).
			Msg("counter cleanup failed")
		return 0
	}
	if deleted > 0 {
		util.Info().
			Int("deleted", deleted).
			Str("request_id", util.GetRequestID(ctx)).
			Msg("counter cleanup completed")
	}
	return deleted
}
