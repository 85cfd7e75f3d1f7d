package svc

import (
	"context"

	"lyricbox/pkg/domain"
)

// Found is a located entry. Index is its position in the list at the time of
// the read and goes stale as soon as anyone else writes.
type Found struct {
	Entry *domain.Entry
	Index int64
	Raw   string
}

// Lookup scans the retained window for id. Entries older than the window
// cannot be addressed.
func (b *Board) Lookup(ctx context.Context, id string) (*Found, error) {
	if err := b.configured(); err != nil {
		return nil, err
	}
	raws, err := b.store.LRange(ctx, b.listKey, 0, lookupWindow-1)
	if err != nil {
		return nil, err
	}
	for i, raw := range raws {
		e, ok := b.parsed.Parse(raw)
		if !ok || e.ID != id {
			continue
		}
		return &Found{Entry: e, Index: int64(i), Raw: raw}, nil
	}
	return nil, domain.ErrNotFound
}
