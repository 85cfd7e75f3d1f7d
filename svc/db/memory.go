package db

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Memory is an in-process Store. It backs tests and the "memory" backend
// used for local development.
type Memory struct {
	mu       sync.Mutex
	lists    map[string][]string
	counters map[string]*counter
	now      func() time.Time
}

type counter struct {
	value int64
	exp   time.Time
}

func NewMemory() *Memory {
	return &Memory{
		lists:    make(map[string][]string),
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for counter expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) liveCounter(key string) *counter {
	c, ok := m.counters[key]
	if !ok {
		return nil
	}
	if !c.exp.IsZero() && !m.now().Before(c.exp) {
		delete(m.counters, key)
		return nil
	}
	return c
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("incr", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.liveCounter(key)
	if c == nil {
		c = &counter{}
		m.counters[key] = c
	}
	c.value++
	return c.value, nil
}
func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return storeErr("expire", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.liveCounter(key); c != nil {
		c.exp = m.now().Add(ttl)
	}
	return nil
}
func (m *Memory) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("lrange", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	lo, hi, ok := normalizeRange(start, stop, int64(len(l)))
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo)
	copy(out, l[lo:hi])
	return out, nil
}
func (m *Memory) LPush(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return storeErr("lpush", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append([]string{value}, m.lists[key]...)
	return nil
}
func (m *Memory) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := ctx.Err(); err != nil {
		return storeErr("ltrim", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	lo, hi, ok := normalizeRange(start, stop, int64(len(l)))
	if !ok {
		delete(m.lists, key)
		return nil
	}
	kept := make([]string, hi-lo)
	copy(kept, l[lo:hi])
	m.lists[key] = kept
	return nil
}
func (m *Memory) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("lrem", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	limit := count
	if limit < 0 {
		limit = -limit
	}
	remove := make(map[int]bool)
	if count >= 0 {
		for i := 0; i < len(l); i++ {
			if l[i] == value && (limit == 0 || int64(len(remove)) < limit) {
				remove[i] = true
			}
		}
	} else {
		for i := len(l) - 1; i >= 0; i-- {
			if l[i] == value && int64(len(remove)) < limit {
				remove[i] = true
			}
		}
	}
	if len(remove) == 0 {
		return 0, nil
	}
	kept := make([]string, 0, len(l)-len(remove))
	for i, v := range l {
		if !remove[i] {
			kept = append(kept, v)
		}
	}
	m.lists[key] = kept
	return int64(len(remove)), nil
}
func (m *Memory) LSet(ctx context.Context, key string, index int64, value string) error {
	if err := ctx.Err(); err != nil {
		return storeErr("lset", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok {
		return storeErr("lset", errors.New("ERR no such key"))
	}
	i, ok := normalizeIndex(index, int64(len(l)))
	if !ok {
		return storeErr("lset", errors.New("ERR index out of range"))
	}
	l[i] = value
	return nil
}
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}
func (m *Memory) Close() error {
	return nil
}

// Len reports the length of a list.
func (m *Memory) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}
