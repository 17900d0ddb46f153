package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件（--config / MOVIEINGEST_CONFIG）不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或合并后的字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是 cwd 下自动发现的配置文件名（可选）。
const FileName = "movieingest.yaml"

// Config 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
//
// 覆盖优先级（固定）：CLI flag > 环境变量 MOVIEINGEST_* > 配置文件 > 内置默认。
type Config struct {
	// Source：tmdb|imdb；为空时有 TMDB API key 则用 tmdb，否则 imdb。
	Source string `yaml:"source" validate:"omitempty,oneof=tmdb imdb"`
	// Apply=false（默认）为 dry-run：写内存存储，不写数据库/缓存/报告。
	Apply     bool   `yaml:"apply"`
	ReportDir string `yaml:"report_dir" validate:"required"`

	Store   StoreConfig   `yaml:"store"`
	TMDB    TMDBConfig    `yaml:"tmdb"`
	IMDb    IMDbConfig    `yaml:"imdb"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Cache   CacheConfig   `yaml:"cache"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`

	// Path 是实际读取的配置文件（未读取任何文件时为空）。
	Path string `yaml:"-"`
}

type StoreConfig struct {
	Driver          string        `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	DSN             string        `yaml:"dsn" validate:"required_unless=Driver memory"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0s"`
}

type TMDBConfig struct {
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url" validate:"omitempty,http_url"`
	RPS     float64 `yaml:"rps" validate:"gte=0"`
}

type IMDbConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,http_url"`
}

type ProxyConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// IngestConfig 对应调度参数（时间字段使用 Go duration 字面量，例如 "1.5s"）。
type IngestConfig struct {
	YearsBack       int           `yaml:"years_back" validate:"gte=1,lte=100"`
	MaxPagesPerYear int           `yaml:"max_pages_per_year" validate:"gte=1"`
	Workers         int           `yaml:"workers" validate:"gte=1,lte=64"`
	BatchSize       int           `yaml:"batch_size" validate:"gte=1,lte=1000"`
	MaxRetries      int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	MinDelay        time.Duration `yaml:"min_delay" validate:"gte=0s"`
	ListingDelay    time.Duration `yaml:"listing_delay" validate:"gte=0s"`
	SegmentDelay    time.Duration `yaml:"segment_delay" validate:"gte=0s"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay" validate:"gte=0s"`
	MaxBackoff      time.Duration `yaml:"max_backoff" validate:"gte=0s"`
	FlushInterval   time.Duration `yaml:"flush_interval" validate:"gte=0s"`
	RateLimitFactor float64       `yaml:"rate_limit_factor" validate:"gte=0"`
	CastLimit       int           `yaml:"cast_limit" validate:"gte=0"`
}

type CacheConfig struct {
	Driver string        `yaml:"driver" validate:"oneof=off file redis"`
	Dir    string        `yaml:"dir" validate:"required_if=Driver file"`
	TTL    time.Duration `yaml:"ttl" validate:"gte=0s"`
	Redis  RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	PoolSize int    `yaml:"pool_size" validate:"gte=0"`
}

// KafkaConfig：Brokers 为空时不发布事件。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" validate:"dive,hostname_port"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// MetricsConfig：Addr 为空时 CLI 不单独起 /metrics 端口（serve 模式始终挂在 API 上）。
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required"`
}

// Default 返回内置默认值。
func Default() Config {
	return Config{
		ReportDir: "reports",
		Store: StoreConfig{
			Driver:          "sqlite",
			DSN:             "movieingest.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		TMDB: TMDBConfig{RPS: 20},
		Ingest: IngestConfig{
			YearsBack:       5,
			MaxPagesPerYear: 5,
			Workers:         10,
			BatchSize:       50,
			MaxRetries:      2,
			MinDelay:        1500 * time.Millisecond,
			ListingDelay:    2 * time.Second,
			SegmentDelay:    2 * time.Second,
			RetryBaseDelay:  time.Second,
			MaxBackoff:      30 * time.Second,
			FlushInterval:   5 * time.Second,
			RateLimitFactor: 10,
			CastLimit:       10,
		},
		Cache: CacheConfig{
			Driver: "file",
			Dir:    ".movieingest-cache",
			TTL:    7 * 24 * time.Hour,
			Redis:  RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		},
		Kafka:   KafkaConfig{Topic: "movieingest.events"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Listen: ":8080"},
	}
}

// ResolvedSource 返回实际使用的列表来源。
func (c Config) ResolvedSource() string {
	if c.Source != "" {
		return c.Source
	}
	if c.TMDB.APIKey != "" {
		return "tmdb"
	}
	return "imdb"
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LookupEnv 与 os.LookupEnv 同签名（测试注入用）。
type LookupEnv func(key string) (string, bool)

// LoadEffective 发现并读取配置文件，依次叠加环境变量与 CLI 参数，最后校验。
//
// 发现规则（固定）：
// 1) --config 或 MOVIEINGEST_CONFIG 指定了文件：必须存在
// 2) 否则尝试 <cwd>/movieingest.yaml（可选）
//
// 相对路径（report_dir、cache.dir、sqlite dsn）以 cwd 为基准转为绝对路径。
func LoadEffective(cwd string, cli CLIArgs, env LookupEnv) (Config, error) {
	if env == nil {
		env = os.LookupEnv
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfg := Default()

	cfgPath, required := strings.TrimSpace(cli.ConfigPath), true
	if cfgPath == "" {
		if v, ok := env(envPrefix + "CONFIG"); ok && strings.TrimSpace(v) != "" {
			cfgPath = strings.TrimSpace(v)
		} else {
			cfgPath, required = FileName, false
		}
	}
	cfgPath = absCleanFrom(cwdAbs, cfgPath)

	exists, err := readFileConfig(cfgPath, &cfg)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && required {
		return Config{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if exists {
		cfg.Path = cfgPath
	}

	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}
	cli.apply(&cfg)

	normalize(&cfg, cwdAbs)
	if err := validate(cfg); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cfg.Path, Err: err}
	}
	return cfg, nil
}

func normalize(cfg *Config, cwd string) {
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Cache.Driver = strings.ToLower(strings.TrimSpace(cfg.Cache.Driver))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.TMDB.APIKey = strings.TrimSpace(cfg.TMDB.APIKey)
	cfg.Proxy.URL = strings.TrimSpace(cfg.Proxy.URL)

	cfg.ReportDir = absCleanFrom(cwd, cfg.ReportDir)
	if cfg.Cache.Driver == "file" {
		cfg.Cache.Dir = absCleanFrom(cwd, cfg.Cache.Dir)
	}
	if cfg.Store.Driver == "sqlite" && isPlainPath(cfg.Store.DSN) {
		cfg.Store.DSN = absCleanFrom(cwd, cfg.Store.DSN)
	}

	brokers := cfg.Kafka.Brokers[:0:0]
	for _, b := range cfg.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Kafka.Brokers = brokers
}

// isPlainPath 判断 sqlite DSN 是否是普通文件路径（而不是 ":memory:" 或 "file:" URI）。
func isPlainPath(dsn string) bool {
	dsn = strings.TrimSpace(dsn)
	return dsn != "" && !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:")
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取 YAML 并叠加到 cfg 上（文件中未出现的字段保留默认值）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string, cfg *Config) (exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return true, err
	}
	return true, nil
}
