package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "MOVIEINGEST_"

// envBinding 把一个环境变量绑定到一个字段。
type envBinding struct {
	name string
	set  func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("不是整数：%q", v)
		}
		*dst(cfg) = n
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("不是数字：%q", v)
		}
		*dst(cfg) = f
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("不是布尔值：%q", v)
		}
		*dst(cfg) = b
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("不是时间长度（例如 1.5s）：%q", v)
		}
		*dst(cfg) = d
		return nil
	}
}

func list(dst func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = strings.Split(v, ",")
		return nil
	}
}

var envBindings = []envBinding{
	{"SOURCE", str(func(c *Config) *string { return &c.Source })},
	{"APPLY", boolean(func(c *Config) *bool { return &c.Apply })},
	{"REPORT_DIR", str(func(c *Config) *string { return &c.ReportDir })},

	{"STORE_DRIVER", str(func(c *Config) *string { return &c.Store.Driver })},
	{"STORE_DSN", str(func(c *Config) *string { return &c.Store.DSN })},
	{"STORE_MAX_OPEN_CONNS", integer(func(c *Config) *int { return &c.Store.MaxOpenConns })},

	{"TMDB_API_KEY", str(func(c *Config) *string { return &c.TMDB.APIKey })},
	{"TMDB_BASE_URL", str(func(c *Config) *string { return &c.TMDB.BaseURL })},
	{"TMDB_RPS", float(func(c *Config) *float64 { return &c.TMDB.RPS })},
	{"IMDB_BASE_URL", str(func(c *Config) *string { return &c.IMDb.BaseURL })},
	{"PROXY_URL", str(func(c *Config) *string { return &c.Proxy.URL })},

	{"INGEST_YEARS_BACK", integer(func(c *Config) *int { return &c.Ingest.YearsBack })},
	{"INGEST_MAX_PAGES_PER_YEAR", integer(func(c *Config) *int { return &c.Ingest.MaxPagesPerYear })},
	{"INGEST_WORKERS", integer(func(c *Config) *int { return &c.Ingest.Workers })},
	{"INGEST_BATCH_SIZE", integer(func(c *Config) *int { return &c.Ingest.BatchSize })},
	{"INGEST_MAX_RETRIES", integer(func(c *Config) *int { return &c.Ingest.MaxRetries })},
	{"INGEST_MIN_DELAY", duration(func(c *Config) *time.Duration { return &c.Ingest.MinDelay })},
	{"INGEST_LISTING_DELAY", duration(func(c *Config) *time.Duration { return &c.Ingest.ListingDelay })},
	{"INGEST_SEGMENT_DELAY", duration(func(c *Config) *time.Duration { return &c.Ingest.SegmentDelay })},
	{"INGEST_RETRY_BASE_DELAY", duration(func(c *Config) *time.Duration { return &c.Ingest.RetryBaseDelay })},
	{"INGEST_MAX_BACKOFF", duration(func(c *Config) *time.Duration { return &c.Ingest.MaxBackoff })},
	{"INGEST_FLUSH_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Ingest.FlushInterval })},
	{"INGEST_RATE_LIMIT_FACTOR", float(func(c *Config) *float64 { return &c.Ingest.RateLimitFactor })},
	{"INGEST_CAST_LIMIT", integer(func(c *Config) *int { return &c.Ingest.CastLimit })},

	{"CACHE_DRIVER", str(func(c *Config) *string { return &c.Cache.Driver })},
	{"CACHE_DIR", str(func(c *Config) *string { return &c.Cache.Dir })},
	{"CACHE_TTL", duration(func(c *Config) *time.Duration { return &c.Cache.TTL })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.Cache.Redis.Addr })},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.Cache.Redis.Password })},
	{"REDIS_DB", integer(func(c *Config) *int { return &c.Cache.Redis.DB })},

	{"KAFKA_BROKERS", list(func(c *Config) *[]string { return &c.Kafka.Brokers })},
	{"KAFKA_TOPIC", str(func(c *Config) *string { return &c.Kafka.Topic })},
	{"METRICS_ADDR", str(func(c *Config) *string { return &c.Metrics.Addr })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
	{"SERVER_LISTEN", str(func(c *Config) *string { return &c.Server.Listen })},
}

// applyEnv 叠加 MOVIEINGEST_* 环境变量；空值视为未设置。
// 另外兼容不带前缀的 TMDB_API_KEY（优先级低于 MOVIEINGEST_TMDB_API_KEY）。
func applyEnv(cfg *Config, env LookupEnv) error {
	if v, ok := env("TMDB_API_KEY"); ok && strings.TrimSpace(v) != "" {
		cfg.TMDB.APIKey = v
	}
	for _, b := range envBindings {
		name := envPrefix + b.name
		v, ok := env(name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return &Error{Code: ErrCodeInvalid, Path: "env:" + name, Err: err}
		}
	}
	return nil
}
