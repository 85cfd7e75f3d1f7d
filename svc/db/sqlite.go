package db

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	ErrCircuitOpen = errors.New("database circuit breaker open")
	errNoSuchKey   = errors.New("ERR no such key")
	errOutOfRange  = errors.New("ERR index out of range")
)

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const defaultQueryTimeout = 5 * time.Second

// SQLite emulates the list/counter store on a single database file for
// deployments without a Redis service. One connection serialises every
// command, which mirrors how Redis executes them.
type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
	now           func() time.Time
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
		now:          time.Now,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}
func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, errNoSuchKey) ||
		errors.Is(err, errOutOfRange) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}
func (s *SQLite) migrate() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	query := `
	CREATE TABLE IF NOT EXISTS list_items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		list_key TEXT NOT NULL,
		value TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_list_items_key_seq ON list_items(list_key, seq);
	CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		expires_at INTEGER
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// run wraps a command with the circuit breaker and per-query deadline.
func (s *SQLite) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := s.checkCircuit(); err != nil {
		return storeErr(op, err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	err := fn(queryCtx)
	s.recordError(err)
	return storeErr(op, err)
}

func (s *SQLite) length(ctx context.Context, tx *sql.Tx, key string) (int64, error) {
	var n int64
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM list_items WHERE list_key = ?`, key).Scan(&n)
	return n, err
}

func (s *SQLite) Incr(ctx context.Context, key string) (int64, error) {
	var v int64
	err := s.run(ctx, "incr", func(ctx context.Context) error {
		now := s.now().UnixMilli()
		q := `
		INSERT INTO counters (key, value, expires_at) VALUES (?, 1, NULL)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN 1 ELSE value + 1 END,
			expires_at = CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN NULL ELSE expires_at END
		RETURNING value
		`
		return s.db.QueryRowContext(ctx, q, key, now, now).Scan(&v)
	})
	return v, err
}
func (s *SQLite) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.run(ctx, "expire", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE counters SET expires_at = ? WHERE key = ?`,
			s.now().Add(ttl).UnixMilli(), key)
		return err
	})
}
func (s *SQLite) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	out := []string{}
	err := s.run(ctx, "lrange", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		n, err := s.length(ctx, tx, key)
		if err != nil {
			return err
		}
		lo, hi, ok := normalizeRange(start, stop, n)
		if !ok {
			return nil
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT value FROM list_items WHERE list_key = ? ORDER BY seq DESC LIMIT ? OFFSET ?`,
			key, hi-lo, lo)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
func (s *SQLite) LPush(ctx context.Context, key, value string) error {
	return s.run(ctx, "lpush", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO list_items (list_key, value) VALUES (?, ?)`, key, value)
		return err
	})
}
func (s *SQLite) LTrim(ctx context.Context, key string, start, stop int64) error {
	return s.run(ctx, "ltrim", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		n, err := s.length(ctx, tx, key)
		if err != nil {
			return err
		}
		lo, hi, ok := normalizeRange(start, stop, n)
		if !ok {
			_, err = tx.ExecContext(ctx, `DELETE FROM list_items WHERE list_key = ?`, key)
		} else {
			_, err = tx.ExecContext(ctx, `
			DELETE FROM list_items WHERE list_key = ? AND seq NOT IN (
				SELECT seq FROM list_items WHERE list_key = ? ORDER BY seq DESC LIMIT ? OFFSET ?
			)`, key, key, hi-lo, lo)
		}
		if err != nil {
			return err
		}
		return tx.Commit()
	})
}
func (s *SQLite) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	var removed int64
	err := s.run(ctx, "lrem", func(ctx context.Context) error {
		var res sql.Result
		var err error
		switch {
		case count > 0:
			res, err = s.db.ExecContext(ctx, `
			DELETE FROM list_items WHERE seq IN (
				SELECT seq FROM list_items WHERE list_key = ? AND value = ? ORDER BY seq DESC LIMIT ?
			)`, key, value, count)
		case count < 0:
			res, err = s.db.ExecContext(ctx, `
			DELETE FROM list_items WHERE seq IN (
				SELECT seq FROM list_items WHERE list_key = ? AND value = ? ORDER BY seq ASC LIMIT ?
			)`, key, value, -count)
		default:
			res, err = s.db.ExecContext(ctx, `DELETE FROM list_items WHERE list_key = ? AND value = ?`, key, value)
		}
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}
func (s *SQLite) LSet(ctx context.Context, key string, index int64, value string) error {
	return s.run(ctx, "lset", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		n, err := s.length(ctx, tx, key)
		if err != nil {
			return err
		}
		if n == 0 {
			return errNoSuchKey
		}
		i, ok := normalizeIndex(index, n)
		if !ok {
			return errOutOfRange
		}
		if _, err := tx.ExecContext(ctx, `
		UPDATE list_items SET value = ? WHERE seq = (
			SELECT seq FROM list_items WHERE list_key = ? ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`, value, key, i); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// PurgeExpiredCounters drops counters whose window has closed. Incr already
// ignores them; this only keeps the table small.
func (s *SQLite) PurgeExpiredCounters(ctx context.Context) (int, error) {
	var n int64
	err := s.run(ctx, "purge", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM counters WHERE expires_at IS NOT NULL AND expires_at <= ?`,
			s.now().UnixMilli())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}
func (s *SQLite) Close() error {
	return s.db.Close()
}
