package svc

import (
	"context"
	"time"

	"lyricbox/cfg"
	"lyricbox/metrics"
	"lyricbox/pkg/domain"
	"lyricbox/svc/auth"
	"lyricbox/svc/cache"
	"lyricbox/svc/db"
	"lyricbox/svc/util"

	"github.com/pkg/errors"
)

const (
	listWindow   = 100
	lookupWindow = 200
	maxEntries   = 200
)

// Board runs the box operations against one shared list. Every entry for
// every prompt lives in the same list, newest first.
type Board struct {
	store   db.Store
	listKey string
	parsed  *cache.Parsed
	artists map[string]struct{}
	now     func() time.Time
}

type CreateReq struct {
	PromptID *string `json:"promptId"`
	Name     *string `json:"name"`
	Answer   *string `json:"answer"`
	Artist   *string `json:"artist"`
	Song     *string `json:"song"`
	Lyric    *string `json:"lyric"`
}

type UpdateReq struct {
	DeleteKey string  `json:"deleteKey"`
	Name      *string `json:"name"`
	Answer    *string `json:"answer"`
	Artist    *string `json:"artist"`
	Song      *string `json:"song"`
	Lyric     *string `json:"lyric"`
}

type DeleteReq struct {
	DeleteKey string `json:"deleteKey"`
}

type DeleteResult struct {
	Removed int64 `json:"removed"`
	Admin   bool  `json:"admin"`
}

// NewBoard wires a board. A nil store yields a board whose every operation
// fails with domain.ErrNotConfigured.
func NewBoard(store db.Store, parsed *cache.Parsed, c *cfg.Cfg) *Board {
	artists := make(map[string]struct{}, len(c.AllowedArtists))
	for _, a := range c.AllowedArtists {
		if a = clean(a); a != "" {
			artists[a] = struct{}{}
		}
	}
	listKey := c.ListKey
	if listKey == "" {
		listKey = "box:entries"
	}
	return &Board{
		store:   store,
		listKey: listKey,
		parsed:  parsed,
		artists: artists,
		now:     time.Now,
	}
}

func (b *Board) configured() error {
	if b.store == nil {
		return domain.ErrNotConfigured
	}
	return nil
}

func (b *Board) Configured() bool {
	return b.store != nil
}

func (b *Board) List(ctx context.Context, promptID string) ([]domain.View, error) {
	if err := b.configured(); err != nil {
		return nil, err
	}
	promptID = PromptID(promptID)
	metrics.ListRequests.Inc()
	raws, err := b.store.LRange(ctx, b.listKey, 0, listWindow-1)
	if err != nil {
		return nil, err
	}
	items := make([]domain.View, 0, len(raws))
	for _, raw := range raws {
		e, ok := b.parsed.Parse(raw)
		if !ok || e.PromptID != promptID {
			continue
		}
		items = append(items, e.View())
	}
	return items, nil
}

func (b *Board) Create(ctx context.Context, promptID string, req CreateReq) (*domain.Created, error) {
	if err := b.configured(); err != nil {
		return nil, err
	}
	promptID = PromptID(promptID)
	if req.PromptID != nil {
		if body := clean(*req.PromptID); body != "" && PromptID(body) != promptID {
			return nil, domain.ErrPromptMismatch
		}
	}
	p, err := b.payload(req.Answer, req.Artist, req.Song, req.Lyric)
	if err != nil {
		return nil, err
	}
	now := b.now().UTC()
	id, err := util.NewEntryID(now)
	if err != nil {
		return nil, errors.Wrap(err, "new entry id")
	}
	key, hash, err := auth.IssueDeleteKey()
	if err != nil {
		return nil, err
	}
	e := &domain.Entry{
		ID:            id,
		PromptID:      promptID,
		Name:          displayName(req.Name),
		Payload:       p,
		CreatedAt:     now,
		DeleteKeyHash: hash,
	}
	raw, err := e.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal entry")
	}
	if err := b.store.LPush(ctx, b.listKey, raw); err != nil {
		return nil, err
	}
	if err := b.store.LTrim(ctx, b.listKey, 0, maxEntries-1); err != nil {
		util.Error().Err(err).Str("id", id).Msg("trim after create failed")
		return nil, err
	}
	metrics.EntriesCreated.Inc()
	util.Debug().Str("id", id).Str("kind", string(e.Kind())).Msg("entry created")
	return &domain.Created{View: e.View(), DeleteKey: key}, nil
}

func (b *Board) Delete(ctx context.Context, promptID, id, deleteKey string, admin bool) (*DeleteResult, error) {
	if err := b.configured(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.ErrIDRequired
	}
	promptID = PromptID(promptID)
	found, err := b.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if found.Entry.PromptID != promptID {
		return nil, domain.ErrNotFound
	}
	if !admin {
		if err := b.checkKey(deleteKey, found.Entry, "delete"); err != nil {
			return nil, err
		}
	}
	removed, err := b.store.LRem(ctx, b.listKey, 1, found.Raw)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		actor := "owner"
		if admin {
			actor = "admin"
		}
		metrics.EntriesDeleted.WithLabelValues(actor).Inc()
	}
	util.Debug().Str("id", id).Int64("removed", removed).Bool("admin", admin).Msg("entry deleted")
	return &DeleteResult{Removed: removed, Admin: admin}, nil
}

func (b *Board) Update(ctx context.Context, promptID, id string, req UpdateReq) (*domain.View, error) {
	if err := b.configured(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.ErrIDRequired
	}
	if req.DeleteKey == "" {
		metrics.AuthFailures.WithLabelValues("update").Inc()
		return nil, domain.ErrKeyRequired
	}
	promptID = PromptID(promptID)
	found, err := b.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if found.Entry.PromptID != promptID {
		return nil, domain.ErrNotFound
	}
	if err := b.checkKey(req.DeleteKey, found.Entry, "update"); err != nil {
		return nil, err
	}
	p, err := b.payload(req.Answer, req.Artist, req.Song, req.Lyric)
	if err != nil {
		return nil, err
	}
	if p.Kind() != found.Entry.Kind() {
		return nil, domain.ErrKindChanged
	}
	next := *found.Entry
	next.Payload = p
	if req.Name != nil {
		next.Name = displayName(req.Name)
	}
	now := b.now().UTC()
	next.UpdatedAt = &now
	raw, err := next.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal entry")
	}
	cur, err := b.store.LRange(ctx, b.listKey, found.Index, found.Index)
	if err != nil {
		return nil, err
	}
	if len(cur) != 1 || cur[0] != found.Raw {
		metrics.UpdateConflicts.Inc()
		return nil, domain.ErrConflict
	}
	if err := b.store.LSet(ctx, b.listKey, found.Index, raw); err != nil {
		return nil, err
	}
	metrics.EntriesUpdated.Inc()
	view := next.View()
	return &view, nil
}

func (b *Board) checkKey(key string, e *domain.Entry, op string) error {
	if key == "" {
		metrics.AuthFailures.WithLabelValues(op).Inc()
		return domain.ErrKeyRequired
	}
	if !auth.VerifyDeleteKey(key, e.DeleteKeyHash) {
		metrics.AuthFailures.WithLabelValues(op).Inc()
		return domain.ErrInvalidKey
	}
	return nil
}
