package db

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"lyricbox/pkg/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemory() }},
		{"sqlite", func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "box.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"redis", func(t *testing.T) Store {
			m := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
			r := NewRedisFromClient(client, time.Second)
			t.Cleanup(func() { r.Close() })
			return r
		}},
		{"rest", func(t *testing.T) Store {
			srv := httptest.NewServer(fakeREST(NewMemory(), "secret"))
			t.Cleanup(srv.Close)
			r, err := NewREST(srv.URL, "secret", time.Second)
			if err != nil {
				t.Fatalf("open rest: %v", err)
			}
			return r
		}},
	}
}

// fakeREST serves the Upstash command protocol on top of a Memory store.
func fakeREST(m *Memory, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		var args []string
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil || len(args) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "ERR bad command"})
			return
		}
		num := func(i int) int64 {
			n, _ := strconv.ParseInt(args[i], 10, 64)
			return n
		}
		var result any
		var err error
		ctx := r.Context()
		switch strings.ToUpper(args[0]) {
		case "PING":
			result = "PONG"
		case "INCR":
			result, err = m.Incr(ctx, args[1])
		case "EXPIRE":
			err = m.Expire(ctx, args[1], time.Duration(num(2))*time.Second)
			result = 1
		case "LRANGE":
			result, err = m.LRange(ctx, args[1], num(2), num(3))
		case "LPUSH":
			err = m.LPush(ctx, args[1], args[2])
			result = m.Len(args[1])
		case "LTRIM":
			err = m.LTrim(ctx, args[1], num(2), num(3))
			result = "OK"
		case "LREM":
			result, err = m.LRem(ctx, args[1], num(2), args[3])
		case "LSET":
			err = m.LSet(ctx, args[1], num(2), args[3])
			result = "OK"
		default:
			err = fmt.Errorf("ERR unknown command '%s'", args[0])
		}
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			var se *domain.StoreError
			msg := err.Error()
			if errors.As(err, &se) {
				msg = se.Msg
			}
			json.NewEncoder(w).Encode(map[string]string{"error": msg})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": result})
	})
}

func TestStoreListSemantics(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			for _, v := range []string{"a", "b", "c", "d", "e"} {
				if err := s.LPush(ctx, "l", v); err != nil {
					t.Fatalf("lpush: %v", err)
				}
			}
			got, err := s.LRange(ctx, "l", 0, -1)
			if err != nil {
				t.Fatalf("lrange: %v", err)
			}
			if want := []string{"e", "d", "c", "b", "a"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("lrange = %v, want %v", got, want)
			}
			got, _ = s.LRange(ctx, "l", 1, 2)
			if want := []string{"d", "c"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("lrange 1..2 = %v, want %v", got, want)
			}
			got, _ = s.LRange(ctx, "missing", 0, 199)
			if len(got) != 0 {
				t.Fatalf("missing list = %v, want empty", got)
			}
			if err := s.LTrim(ctx, "l", 0, 2); err != nil {
				t.Fatalf("ltrim: %v", err)
			}
			got, _ = s.LRange(ctx, "l", 0, -1)
			if want := []string{"e", "d", "c"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("after ltrim = %v, want %v", got, want)
			}
			if err := s.LSet(ctx, "l", 1, "D"); err != nil {
				t.Fatalf("lset: %v", err)
			}
			if err := s.LSet(ctx, "l", 9, "x"); err == nil {
				t.Fatal("lset out of range should fail")
			}
			n, err := s.LRem(ctx, "l", 1, "D")
			if err != nil || n != 1 {
				t.Fatalf("lrem = %d, %v", n, err)
			}
			n, _ = s.LRem(ctx, "l", 1, "nope")
			if n != 0 {
				t.Fatalf("lrem absent = %d", n)
			}
			got, _ = s.LRange(ctx, "l", 0, -1)
			if want := []string{"e", "c"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("after lrem = %v, want %v", got, want)
			}
		})
	}
}

func TestStoreLRemRemovesFromHead(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			for _, v := range []string{"x", "y", "x", "x"} {
				s.LPush(ctx, "l", v)
			}
			// list is x x y x
			n, err := s.LRem(ctx, "l", 1, "x")
			if err != nil || n != 1 {
				t.Fatalf("lrem = %d, %v", n, err)
			}
			got, _ := s.LRange(ctx, "l", 0, -1)
			if want := []string{"x", "y", "x"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestStoreCounter(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			for i := int64(1); i <= 3; i++ {
				n, err := s.Incr(ctx, "c")
				if err != nil {
					t.Fatalf("incr: %v", err)
				}
				if n != i {
					t.Fatalf("incr = %d, want %d", n, i)
				}
			}
			if err := s.Expire(ctx, "c", time.Minute); err != nil {
				t.Fatalf("expire: %v", err)
			}
			if err := s.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
		})
	}
}

func TestMemoryCounterExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1700000000, 0)
	m.SetClock(func() time.Time { return now })
	ctx := context.Background()
	m.Incr(ctx, "c")
	m.Expire(ctx, "c", time.Minute)
	m.Incr(ctx, "c")
	now = now.Add(61 * time.Second)
	n, _ := m.Incr(ctx, "c")
	if n != 1 {
		t.Fatalf("counter after window = %d, want 1", n)
	}
}

func TestSQLiteCounterExpiryAndPurge(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "box.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	s.Incr(ctx, "c")
	s.Expire(ctx, "c", time.Minute)
	s.Incr(ctx, "other")
	s.Expire(ctx, "other", time.Minute)
	now = now.Add(2 * time.Minute)
	n, err := s.Incr(ctx, "c")
	if err != nil || n != 1 {
		t.Fatalf("incr after expiry = %d, %v", n, err)
	}
	purged, err := s.PurgeExpiredCounters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
}

func TestSQLiteLSetErrorsDoNotTripCircuit(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "box.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	for i := 0; i < maxFailures+1; i++ {
		if err := s.LSet(ctx, "none", 0, "x"); err == nil {
			t.Fatal("lset on missing key should fail")
		}
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping after lset misses: %v", err)
	}
}

func TestStoreErrorsAreTyped(t *testing.T) {
	m := NewMemory()
	err := m.LSet(context.Background(), "none", 0, "x")
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a StoreError", err)
	}
	if se.Op != "lset" {
		t.Fatalf("op = %q", se.Op)
	}
}

func TestRESTErrorStatus(t *testing.T) {
	srv := httptest.NewServer(fakeREST(NewMemory(), "secret"))
	defer srv.Close()
	r, err := NewREST(srv.URL, "wrong", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.LRange(context.Background(), "l", 0, 10)
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if se.Status != http.StatusUnauthorized || se.Msg != "Unauthorized" {
		t.Fatalf("got status %d msg %q", se.Status, se.Msg)
	}
	if domain.Status(err) != http.StatusInternalServerError {
		t.Fatalf("store failures should map to 500")
	}
}

func TestNewRESTRequiresCredentials(t *testing.T) {
	if _, err := NewREST("", "tok", 0); err == nil {
		t.Fatal("expected error without url")
	}
	if _, err := NewREST("https://kv.example", "", 0); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		start, stop, n int64
		lo, hi         int64
		ok             bool
	}{
		{0, 199, 5, 0, 5, true},
		{0, -1, 5, 0, 5, true},
		{-2, -1, 5, 3, 5, true},
		{3, 1, 5, 0, 0, false},
		{0, 10, 0, 0, 0, false},
		{7, 9, 5, 0, 0, false},
	}
	for _, tt := range tests {
		lo, hi, ok := normalizeRange(tt.start, tt.stop, tt.n)
		if lo != tt.lo || hi != tt.hi || ok != tt.ok {
			t.Errorf("normalizeRange(%d,%d,%d) = %d,%d,%v", tt.start, tt.stop, tt.n, lo, hi, ok)
		}
	}
}

func TestInstrumentedPassesThrough(t *testing.T) {
	s := Instrument(NewMemory())
	ctx := context.Background()
	if err := s.LPush(ctx, "l", "a"); err != nil {
		t.Fatal(err)
	}
	got, err := s.LRange(ctx, "l", 0, -1)
	if err != nil || len(got) != 1 {
		t.Fatalf("lrange = %v, %v", got, err)
	}
}
