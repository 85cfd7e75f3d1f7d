package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lyricbox/pkg/domain"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
)

const maxRESTResponse = 4 * 1024 * 1024

// REST talks to a Redis-compatible HTTP command endpoint (Upstash / Vercel
// KV). Each call is one POST whose body is the command as a JSON array.
type REST struct {
	url     string
	token   string
	client  *http.Client
	timeout time.Duration
}

type restReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewREST(url, token string, timeout time.Duration) (*REST, error) {
	if url == "" || token == "" {
		return nil, errors.New("rest store requires url and token")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return &REST{
		url:     strings.TrimRight(url, "/"),
		token:   token,
		client:  client,
		timeout: timeout,
	}, nil
}

func (r *REST) do(ctx context.Context, op string, args ...string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	body, err := json.Marshal(args)
	if err != nil {
		return nil, storeErr(op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, storeErr(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTResponse))
	if err != nil {
		return nil, storeErr(op, err)
	}
	var reply restReply
	decodeErr := json.Unmarshal(data, &reply)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := reply.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &domain.StoreError{Op: op, Msg: msg, Status: resp.StatusCode}
	}
	if decodeErr != nil {
		return nil, storeErr(op, errors.Wrap(decodeErr, "decode reply"))
	}
	if reply.Error != "" {
		return nil, &domain.StoreError{Op: op, Msg: reply.Error, Status: resp.StatusCode}
	}
	return reply.Result, nil
}

func (r *REST) Incr(ctx context.Context, key string) (int64, error) {
	res, err := r.do(ctx, "incr", "INCR", key)
	if err != nil {
		return 0, err
	}
	return decodeInt("incr", res)
}
func (r *REST) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := r.do(ctx, "expire", "EXPIRE", key, itoa(int64(ttl/time.Second)))
	return err
}
func (r *REST) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	res, err := r.do(ctx, "lrange", "LRANGE", key, itoa(start), itoa(stop))
	if err != nil {
		return nil, err
	}
	var out []string
	if len(res) == 0 || string(res) == "null" {
		return []string{}, nil
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, storeErr("lrange", errors.Wrap(err, "decode result"))
	}
	return out, nil
}
func (r *REST) LPush(ctx context.Context, key, value string) error {
	_, err := r.do(ctx, "lpush", "LPUSH", key, value)
	return err
}
func (r *REST) LTrim(ctx context.Context, key string, start, stop int64) error {
	_, err := r.do(ctx, "ltrim", "LTRIM", key, itoa(start), itoa(stop))
	return err
}
func (r *REST) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	res, err := r.do(ctx, "lrem", "LREM", key, itoa(count), value)
	if err != nil {
		return 0, err
	}
	return decodeInt("lrem", res)
}
func (r *REST) LSet(ctx context.Context, key string, index int64, value string) error {
	_, err := r.do(ctx, "lset", "LSET", key, itoa(index), value)
	return err
}
func (r *REST) Ping(ctx context.Context) error {
	_, err := r.do(ctx, "ping", "PING")
	return err
}
func (r *REST) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func decodeInt(op string, res json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(res, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(res, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, storeErr(op, fmt.Errorf("unexpected result %s", string(res)))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
