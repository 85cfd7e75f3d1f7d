package cache

import (
	"errors"

	"lyricbox/metrics"
	"lyricbox/pkg/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Parsed memoises ParseEntry keyed by the raw stored string. A stored value
// fully determines its parse, so entries never go stale; edits produce a new
// raw string and the old one simply ages out. Callers must treat returned
// entries as read-only.
type Parsed struct {
	c *lru.Cache[string, parsed]
}

type parsed struct {
	entry *domain.Entry
	ok    bool
}

func NewParsed(size int) (*Parsed, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, parsed](size)
	if err != nil {
		return nil, err
	}
	return &Parsed{c: c}, nil
}

// Parse returns the parsed entry for raw, or false when raw is not a valid
// entry. A nil cache parses without memoising.
func (p *Parsed) Parse(raw string) (*domain.Entry, bool) {
	if p == nil {
		return domain.ParseEntry(raw)
	}
	if it, ok := p.c.Get(raw); ok {
		metrics.ParseCacheHits.Inc()
		return it.entry, it.ok
	}
	metrics.ParseCacheMisses.Inc()
	e, ok := domain.ParseEntry(raw)
	p.c.Add(raw, parsed{entry: e, ok: ok})
	return e, ok
}

func (p *Parsed) Len() int {
	if p == nil {
		return 0
	}
	return p.c.Len()
}

func (p *Parsed) Purge() {
	if p != nil {
		p.c.Purge()
	}
}
