package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"lyricbox/cfg"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	// a failed call surfaces to the caller as is
	opt.MaxRetries = -1
	if c.RedisTLS {
		tlsConfig, err := buildRedisTLSConfig(c.Environment)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build Redis TLS config")
		}
		opt.TLSConfig = tlsConfig
	}
	if c.RedisUsername != "" {
		opt.Username = c.RedisUsername
	}
	if !c.RedisPassword.Empty() {
		opt.Password = c.RedisPassword.Value()
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisFromClient(client, c.StoreTimeout), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Redis{client: client, timeout: timeout}
}

func buildRedisTLSConfig(env string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if host := os.Getenv("REDIS_HOSTNAME"); host != "" {
		tlsConfig.ServerName = host
	}
	certPath := os.Getenv("REDIS_TLS_CA_CERT")
	if certPath != "" {
		caCert, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read Redis CA cert: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append Redis CA cert to pool")
		}
		tlsConfig.RootCAs = certPool
	} else {
		systemPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system cert pool: %w", err)
		}
		tlsConfig.RootCAs = systemPool
	}
	if env != "production" {
		if devCertPath := os.Getenv("REDIS_TLS_DEV_CA"); devCertPath != "" {
			devCert, err := os.ReadFile(devCertPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read dev CA cert: %w", err)
			}
			if !tlsConfig.RootCAs.AppendCertsFromPEM(devCert) {
				return nil, fmt.Errorf("failed to append dev CA cert")
			}
		}
	}
	return tlsConfig, nil
}
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Incr(ctx, key).Result()
	return v, storeErr("incr", err)
}
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return storeErr("expire", r.client.Expire(ctx, key, ttl).Err())
}
func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, storeErr("lrange", err)
	}
	return v, nil
}
func (r *Redis) LPush(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return storeErr("lpush", r.client.LPush(ctx, key, value).Err())
}
func (r *Redis) LTrim(ctx context.Context, key string, start, stop int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return storeErr("ltrim", r.client.LTrim(ctx, key, start, stop).Err())
}
func (r *Redis) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.LRem(ctx, key, count, value).Result()
	return v, storeErr("lrem", err)
}
func (r *Redis) LSet(ctx context.Context, key string, index int64, value string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return storeErr("lset", r.client.LSet(ctx, key, index, value).Err())
}
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
