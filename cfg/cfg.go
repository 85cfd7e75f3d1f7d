package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lyricbox/svc/util"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	BackendREST   = "rest"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Empty() bool {
	return len(s.value) == 0
}
func (s Secret) Wipe() {
	util.Wipe(s.value)
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port           string
	Environment    string
	LogLevel       string
	StoreBackend   string
	RESTURL        string
	RESTToken      Secret
	RESTTokenName  string
	RedisURL       string
	RedisTLS       bool
	RedisUsername  string
	RedisPassword  Secret
	StoreTimeout   time.Duration
	DatabasePath   string
	ListKey        string
	KeyPrefix      string
	RateLimit      RateLimitCfg
	AdminToken     Secret
	AdminTokenName string
	AllowedArtists []string
	AllowedOrigins []string
	ParseCacheSize int
	ContextTimeout time.Duration
	MaxBodySize    int64
	MetricsUser    string
	MetricsPass    Secret
	PprofAddr      string
}

type RateLimitCfg struct {
	Max    int
	Window time.Duration
	Key    Secret
}

// Load reads the process environment. A .env file in the working directory
// is applied first when present; real environment variables win.
func Load() (*Cfg, error) {
	_ = godotenv.Load()
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", BackendREST))
	c.RESTURL = firstEnv("KV_REST_API_URL", "UPSTASH_REDIS_REST_URL")
	c.RESTToken = NewSecret(firstEnv("KV_REST_API_TOKEN", "UPSTASH_REDIS_REST_TOKEN"))
	c.RESTTokenName = getEnv("KV_REST_API_TOKEN_SECRET", "")
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	var err error
	c.StoreTimeout, err = getDuration("STORE_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, err
	}
	c.DatabasePath = getEnv("DATABASE_PATH", "lyricbox.db")
	c.ListKey = getEnv("LIST_KEY", "box:entries")
	c.KeyPrefix = getEnv("KEY_PREFIX", "box:")
	c.RateLimit.Max, err = getInt("RATE_LIMIT_MAX", 12)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Window, err = getDuration("RATE_LIMIT_WINDOW", 60*time.Second)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Key = NewSecret(getEnv("RATE_LIMIT_KEY", ""))
	c.AdminToken = NewSecret(getEnv("ADMIN_TOKEN", ""))
	c.AdminTokenName = getEnv("ADMIN_TOKEN_SECRET", "")
	c.AllowedArtists = getSlice("ALLOWED_ARTISTS", []string{"Gum-9"})
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.ParseCacheSize, err = getInt("PARSE_CACHE_SIZE", 1024)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.MaxBodySize, err = getInt64("MAX_BODY_SIZE", 16*1024)
	if err != nil {
		return nil, err
	}
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.PprofAddr = getEnv("PPROF_ADDR", "")
	return c, nil
}

// Validate rejects malformed settings. Missing store credentials are not an
// error here: the board then runs unconfigured and every operation answers
// with a configuration error.
func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	switch c.StoreBackend {
	case BackendREST:
		if c.RESTURL != "" && !strings.HasPrefix(c.RESTURL, "https://") && !strings.HasPrefix(c.RESTURL, "http://") {
			return errors.New("KV_REST_API_URL must start with http:// or https://")
		}
	case BackendRedis:
		if c.RedisURL != "" {
			if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
				return errors.New("REDIS_URL must start with redis:// or rediss://")
			}
			if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
				return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
			}
		}
	case BackendSQLite:
		if c.DatabasePath == "" {
			return errors.New("DATABASE_PATH is required for the sqlite backend")
		}
	case BackendMemory:
		if c.Environment == "production" {
			return errors.New("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.ListKey == "" {
		return errors.New("LIST_KEY is required")
	}
	if c.RateLimit.Max <= 0 {
		return errors.New("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimit.Window < time.Second {
		return errors.New("RATE_LIMIT_WINDOW must be at least 1s")
	}
	if len(c.AllowedArtists) == 0 {
		return errors.New("ALLOWED_ARTISTS must list at least one artist")
	}
	if c.ParseCacheSize <= 0 {
		return errors.New("PARSE_CACHE_SIZE must be positive")
	}
	if c.MaxBodySize <= 0 {
		return errors.New("MAX_BODY_SIZE must be positive")
	}
	if c.MaxBodySize > 1024*1024 {
		return errors.New("MAX_BODY_SIZE cannot exceed 1MB")
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Empty() {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}

// StoreConfigured reports whether the selected backend has what it needs to
// connect.
func (c *Cfg) StoreConfigured() bool {
	switch c.StoreBackend {
	case BackendREST:
		return c.RESTURL != "" && !c.RESTToken.Empty()
	case BackendRedis:
		return c.RedisURL != ""
	case BackendSQLite:
		return c.DatabasePath != ""
	case BackendMemory:
		return true
	}
	return false
}

func (c *Cfg) Wipe() {
	c.RESTToken.Wipe()
	c.RedisPassword.Wipe()
	c.RateLimit.Key.Wipe()
	c.AdminToken.Wipe()
	c.MetricsPass.Wipe()
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
