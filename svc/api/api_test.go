package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lyricbox/cfg"
	"lyricbox/svc/auth"
	"lyricbox/svc/cache"
	"lyricbox/svc/db"
	"lyricbox/svc/lim"
	"lyricbox/svc/svc"
	"lyricbox/svc/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "moderator-token"

type testEnv struct {
	srv   *Server
	store *db.Memory
	now   time.Time
}

func testConfig() *cfg.Cfg {
	return &cfg.Cfg{
		Port:           "0",
		Environment:    "test",
		StoreBackend:   cfg.BackendMemory,
		ListKey:        "box:entries",
		KeyPrefix:      "box:",
		RateLimit:      cfg.RateLimitCfg{Max: 8, Window: time.Minute},
		AllowedArtists: []string{"Gum-9"},
		ContextTimeout: 5 * time.Second,
		MaxBodySize:    16 * 1024,
	}
}

func newEnv(t *testing.T, store db.Store) *testEnv {
	t.Helper()
	util.InitLogWriter(&bytes.Buffer{}, "disabled")
	c := testConfig()
	env := &testEnv{now: time.Unix(1700000000, 0)}
	if m, ok := store.(*db.Memory); ok {
		env.store = m
		m.SetClock(func() time.Time { return env.now })
	}
	parsed, err := cache.NewParsed(128)
	require.NoError(t, err)
	board := svc.NewBoard(store, parsed, c)
	l := lim.New(store, c.RateLimit.Max, c.RateLimit.Window, c.KeyPrefix, nil)
	t.Cleanup(l.Stop)
	env.srv = NewServer(c, board, l, auth.NewAdmin(adminToken), store)
	return env
}

type reply struct {
	status int
	header http.Header
	body   map[string]any
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers map[string]string) reply {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	out := reply{status: rec.Code, header: rec.Header()}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.body), rec.Body.String())
	}
	return out
}

func item(t *testing.T, r reply) map[string]any {
	t.Helper()
	it, ok := r.body["item"].(map[string]any)
	require.True(t, ok, "response has no item: %v", r.body)
	return it
}

func TestCreateDeleteScenario(t *testing.T) {
	env := newEnv(t, db.NewMemory())

	res := env.do(t, "POST", "/api/box?promptId=p", map[string]string{"artist": "Gum-9", "song": "X", "lyric": "Y"}, nil)
	require.Equal(t, http.StatusCreated, res.status, res.body)
	assert.Equal(t, true, res.body["ok"])
	it := item(t, res)
	key, _ := it["deleteKey"].(string)
	assert.Regexp(t, `^[0-9a-f]{64}$`, key)
	assert.NotContains(t, it, "deleteKeyHash")
	id := it["id"].(string)

	res = env.do(t, "DELETE", "/api/box?promptId=p&id="+id, map[string]string{"deleteKey": key}, nil)
	require.Equal(t, http.StatusOK, res.status, res.body)
	assert.Equal(t, float64(1), res.body["removed"])
	assert.Equal(t, false, res.body["admin"])

	res = env.do(t, "DELETE", "/api/box?promptId=p&id="+id, map[string]string{"deleteKey": key}, nil)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, false, res.body["ok"])
	assert.Equal(t, "not found", res.body["error"])
}

func TestUnknownArtist(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "POST", "/api/box", map[string]string{"artist": "Unknown Artist", "song": "X", "lyric": "Y"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, map[string]any{"ok": false, "error": "artist required"}, res.body)
}

func TestMalformedBodyIsEmpty(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "POST", "/api/box", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "answer required", res.body["error"])
}

func TestOversizedBody(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	big := `{"answer":"` + strings.Repeat("a", 20*1024) + `"}`
	res := env.do(t, "POST", "/api/box", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.status)
}

func TestListRoundTrip(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "POST", "/api/box?promptId=q1", map[string]string{"name": "zed", "answer": "forty-two"}, nil)
	require.Equal(t, http.StatusCreated, res.status)
	created := item(t, res)

	res = env.do(t, "GET", "/api/box?promptId=q1", nil, nil)
	require.Equal(t, http.StatusOK, res.status)
	items := res.body["items"].([]any)
	require.Len(t, items, 1)
	got := items[0].(map[string]any)
	delete(created, "deleteKey")
	assert.Equal(t, created, got)
	assert.Equal(t, "no-store", res.header.Get("Cache-Control"))

	res = env.do(t, "GET", "/api/box", nil, nil)
	assert.Empty(t, res.body["items"])
}

func TestUpdateFlow(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "POST", "/api/box", map[string]string{"answer": "one"}, nil)
	it := item(t, res)
	id, key := it["id"].(string), it["deleteKey"].(string)

	res = env.do(t, "PUT", "/api/box?id="+id, map[string]string{"deleteKey": key, "answer": "two"}, nil)
	require.Equal(t, http.StatusOK, res.status, res.body)
	assert.Equal(t, "two", item(t, res)["answer"])
	assert.NotEmpty(t, item(t, res)["updatedAt"])

	res = env.do(t, "PUT", "/api/box?id="+id, map[string]string{"deleteKey": "wrong", "answer": "three"}, nil)
	assert.Equal(t, http.StatusForbidden, res.status)

	res = env.do(t, "PUT", "/api/box?id="+id, map[string]string{"deleteKey": key, "artist": "Gum-9", "song": "s", "lyric": "l"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "entry kind cannot change", res.body["error"])

	res = env.do(t, "PUT", "/api/box", map[string]string{"deleteKey": key, "answer": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
}

func TestAdminBypassOnlyOnDelete(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "POST", "/api/box", map[string]string{"answer": "spam"}, nil)
	id := item(t, res)["id"].(string)

	res = env.do(t, "PUT", "/api/box?id="+id, map[string]string{"answer": "edited"}, map[string]string{"x-admin-token": adminToken})
	assert.Equal(t, http.StatusForbidden, res.status)

	res = env.do(t, "DELETE", "/api/box?id="+id, nil, map[string]string{"x-admin-token": "nope"})
	assert.Equal(t, http.StatusForbidden, res.status)

	res = env.do(t, "DELETE", "/api/box?id="+id, nil, map[string]string{"Authorization": "Bearer " + adminToken})
	require.Equal(t, http.StatusOK, res.status, res.body)
	assert.Equal(t, float64(1), res.body["removed"])
	assert.Equal(t, true, res.body["admin"])
}

func TestMethodNotAllowed(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "PATCH", "/api/box", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.status)
	assert.Equal(t, "GET, POST, PUT, DELETE", res.header.Get("Allow"))
	assert.Equal(t, false, res.body["ok"])
}

func TestRateLimitWindow(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	hdr := map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}
	for i := 0; i < 8; i++ {
		res := env.do(t, "GET", "/api/box", nil, hdr)
		require.Equal(t, http.StatusOK, res.status, "request %d", i+1)
	}
	res := env.do(t, "GET", "/api/box", nil, hdr)
	assert.Equal(t, http.StatusTooManyRequests, res.status)
	assert.Equal(t, "rate limited", res.body["error"])
	assert.NotEmpty(t, res.header.Get("Retry-After"))

	res = env.do(t, "GET", "/api/box", nil, map[string]string{"X-Forwarded-For": "198.51.100.4"})
	assert.Equal(t, http.StatusOK, res.status)

	env.now = env.now.Add(61 * time.Second)
	res = env.do(t, "GET", "/api/box", nil, hdr)
	assert.Equal(t, http.StatusOK, res.status)
}

type downStore struct {
	*db.Memory
}

func (downStore) Incr(ctx context.Context, key string) (int64, error) {
	return 0, context.DeadlineExceeded
}

func TestLimiterFailureLetsRequestsThrough(t *testing.T) {
	env := newEnv(t, downStore{db.NewMemory()})
	for i := 0; i < 12; i++ {
		res := env.do(t, "GET", "/api/box", nil, nil)
		require.Equal(t, http.StatusOK, res.status)
	}
}

func TestUnconfiguredStore(t *testing.T) {
	env := newEnv(t, nil)
	for _, m := range []string{"GET", "POST", "PUT", "DELETE"} {
		res := env.do(t, m, "/api/box", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, res.status, m)
		assert.Equal(t, "store not configured", res.body["error"], m)
	}
	res := env.do(t, "GET", "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.status)
}

func TestHealthAndReady(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body["status"])
	res = env.do(t, "GET", "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, true, res.body["ready"])
}

func TestResponseHeaders(t *testing.T) {
	env := newEnv(t, db.NewMemory())
	res := env.do(t, "GET", "/api/box", nil, nil)
	assert.NotEmpty(t, res.header.Get(util.RequestIDHeader))
	assert.Equal(t, "nosniff", res.header.Get("X-Content-Type-Options"))
	assert.Equal(t, "8", res.header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "7", res.header.Get("X-RateLimit-Remaining"))
}

func TestMetricsBasicAuth(t *testing.T) {
	util.InitLogWriter(&bytes.Buffer{}, "disabled")
	c := testConfig()
	c.MetricsUser = "prom"
	c.MetricsPass = cfg.NewSecret("scrape")
	m := NewMw(nil, nil, c)
	h := m.BasicAuthMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.SetBasicAuth("prom", "scrape")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
