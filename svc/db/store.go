package db

import (
	"context"
	"time"

	"lyricbox/metrics"
	"lyricbox/pkg/domain"
)

// Store is the list/counter service the board runs on. Indexes follow Redis
// list semantics: 0 is the head (newest), ranges are inclusive and negative
// indexes count from the tail. Failures are reported as *domain.StoreError
// and are never retried.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LPush(ctx context.Context, key, value string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	LSet(ctx context.Context, key string, index int64, value string) error
	Ping(ctx context.Context) error
	Close() error
}

// normalizeRange converts an inclusive Redis-style range over a list of n
// elements into a half-open [lo, hi) slice window. ok is false when the
// range selects nothing.
func normalizeRange(start, stop, n int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}

func normalizeIndex(index, n int64) (int64, bool) {
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return 0, false
	}
	return index, true
}

// Instrumented records latency and failures of every store call.
type Instrumented struct {
	Store
}

func Instrument(s Store) *Instrumented {
	return &Instrumented{Store: s}
}

func observe(op string, start time.Time, err error) {
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (i *Instrumented) Incr(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	v, err := i.Store.Incr(ctx, key)
	observe("incr", start, err)
	return v, err
}
func (i *Instrumented) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := i.Store.Expire(ctx, key, ttl)
	observe("expire", start, err)
	return err
}
func (i *Instrumented) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	t := time.Now()
	v, err := i.Store.LRange(ctx, key, start, stop)
	observe("lrange", t, err)
	return v, err
}
func (i *Instrumented) LPush(ctx context.Context, key, value string) error {
	start := time.Now()
	err := i.Store.LPush(ctx, key, value)
	observe("lpush", start, err)
	return err
}
func (i *Instrumented) LTrim(ctx context.Context, key string, start, stop int64) error {
	t := time.Now()
	err := i.Store.LTrim(ctx, key, start, stop)
	observe("ltrim", t, err)
	return err
}
func (i *Instrumented) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	start := time.Now()
	v, err := i.Store.LRem(ctx, key, count, value)
	observe("lrem", start, err)
	return v, err
}
func (i *Instrumented) LSet(ctx context.Context, key string, index int64, value string) error {
	start := time.Now()
	err := i.Store.LSet(ctx, key, index, value)
	observe("lset", start, err)
	return err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return domain.NewStoreError(op, err)
}
