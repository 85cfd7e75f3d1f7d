package lim

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"lyricbox/metrics"
	"lyricbox/svc/db"
	"lyricbox/svc/util"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

const (
	DefaultMax    = 12
	DefaultWindow = 60 * time.Second
	unknownClient = "unknown"
)

// Limiter is a fixed-window request counter kept in the shared store. It is
// advisory: when the store cannot be reached the request is let through.
type Limiter struct {
	store    db.Store
	max      int64
	window   time.Duration
	prefix   string
	key      []byte
	now      func() time.Time
	warn     rate.Sometimes
	detector *AnomalyDetector
}

type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
	// Skipped is set when the counter could not be consulted.
	Skipped bool
}

// New builds a limiter. store may be nil, in which case every check passes.
func New(store db.Store, max int, window time.Duration, prefix string, key []byte) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	l := &Limiter{
		store:    store,
		max:      int64(max),
		window:   window,
		prefix:   prefix,
		key:      key,
		now:      time.Now,
		warn:     rate.Sometimes{Interval: 30 * time.Second},
		detector: NewAnomalyDetector(),
	}
	l.detector.Start()
	return l
}

func (l *Limiter) Stop() {
	l.detector.Stop()
}
func (l *Limiter) RecordRequest() {
	l.detector.RecordRequest()
}
func (l *Limiter) RecordError() {
	l.detector.RecordError()
}

// counterKey digests the client id so raw addresses never reach the store.
func (l *Limiter) counterKey(clientID string) string {
	h, err := blake2b.New256(l.key)
	if err != nil {
		sum := blake2b.Sum256([]byte(clientID))
		return l.prefix + "rl:" + hex.EncodeToString(sum[:])
	}
	h.Write([]byte(clientID))
	return l.prefix + "rl:" + hex.EncodeToString(h.Sum(nil))
}

func (l *Limiter) Check(ctx context.Context, clientID string) *RateLimitResult {
	reset := l.now().Add(l.window)
	if l.store == nil {
		return &RateLimitResult{Allowed: true, Limit: int(l.max), Remaining: int(l.max), Reset: reset, Skipped: true}
	}
	key := l.counterKey(clientID)
	n, err := l.store.Incr(ctx, key)
	if err != nil {
		return l.skip(err, reset)
	}
	if n == 1 {
		if err := l.store.Expire(ctx, key, l.window); err != nil {
			return l.skip(err, reset)
		}
	}
	remaining := l.max - n
	if remaining < 0 {
		remaining = 0
	}
	if n > l.max {
		if n == l.max+1 {
			// re-arm so a counter whose first Expire failed still resets
			if err := l.store.Expire(ctx, key, l.window); err != nil {
				l.warn.Do(func() {
					util.Warn().Err(err).Msg("rate limit counter expiry failed")
				})
			}
		}
		metrics.RateLimitHits.Inc()
		return &RateLimitResult{Allowed: false, Limit: int(l.max), Remaining: 0, Reset: reset}
	}
	return &RateLimitResult{Allowed: true, Limit: int(l.max), Remaining: int(remaining), Reset: reset}
}

func (l *Limiter) skip(err error, reset time.Time) *RateLimitResult {
	metrics.RateLimitFailures.Inc()
	l.warn.Do(func() {
		util.Warn().Err(err).Msg("rate limit store unavailable, letting request through")
	})
	return &RateLimitResult{Allowed: true, Limit: int(l.max), Remaining: int(l.max), Reset: reset, Skipped: true}
}

// ClientID is the first X-Forwarded-For entry, or "unknown" when absent.
func ClientID(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return unknownClient
	}
	first := xff
	if i := strings.IndexByte(xff, ','); i >= 0 {
		first = xff[:i]
	}
	first = strings.TrimSpace(first)
	if first == "" {
		return unknownClient
	}
	return first
}
