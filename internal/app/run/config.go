package run

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/John-Robertt/movieingest/internal/infra/cache"
	"github.com/John-Robertt/movieingest/internal/provider"
	"github.com/John-Robertt/movieingest/internal/store"
)

// Config 是一次摄取运行的调度参数（由 config.Effective 映射而来）。
type Config struct {
	// Source 写入报告；为空时取 Lister.Name()。
	Source string

	YearsBack       int
	MaxPagesPerYear int
	WorkerCount     int
	BatchSize       int
	MaxRetries      int

	// MinDelay：每个 worker 每次外部调用之后的等待（按 worker 计，不是全局）。
	MinDelay time.Duration
	// ListingDelay：每次列表页请求之后的等待。
	ListingDelay time.Duration
	// SegmentDelay：两个分段（年份）之间的等待。
	SegmentDelay   time.Duration
	RetryBaseDelay time.Duration
	MaxBackoff     time.Duration
	// FlushInterval：批次未满时的最长停留时间；<=0 表示只在批满或结束时写入。
	FlushInterval time.Duration
	// RateLimitFactor：限流冷却 = max(RateLimitFactor×MinDelay, Retry-After)。
	RateLimitFactor float64

	DryRun bool
}

// DefaultConfig 返回默认调度参数。
func DefaultConfig() Config {
	return Config{
		YearsBack:       5,
		MaxPagesPerYear: 5,
		WorkerCount:     10,
		BatchSize:       50,
		MaxRetries:      2,
		MinDelay:        1500 * time.Millisecond,
		ListingDelay:    2 * time.Second,
		SegmentDelay:    2 * time.Second,
		RetryBaseDelay:  time.Second,
		MaxBackoff:      30 * time.Second,
		FlushInterval:   5 * time.Second,
		RateLimitFactor: 10,
		DryRun:          true,
	}
}

// ErrInvalidConfig 是 Validate 失败时包裹的哨兵错误。
var ErrInvalidConfig = errors.New("invalid ingestion config")

func (c Config) Validate() error {
	switch {
	case c.YearsBack < 1:
		return fmt.Errorf("%w: years_back 必须 >= 1（实际 %d）", ErrInvalidConfig, c.YearsBack)
	case c.MaxPagesPerYear < 1:
		return fmt.Errorf("%w: max_pages_per_year 必须 >= 1（实际 %d）", ErrInvalidConfig, c.MaxPagesPerYear)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: workers 必须 >= 1（实际 %d）", ErrInvalidConfig, c.WorkerCount)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size 必须 >= 1（实际 %d）", ErrInvalidConfig, c.BatchSize)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries 不能为负（实际 %d）", ErrInvalidConfig, c.MaxRetries)
	case c.MinDelay < 0 || c.ListingDelay < 0 || c.SegmentDelay < 0 || c.RetryBaseDelay < 0 || c.MaxBackoff < 0 || c.FlushInterval < 0:
		return fmt.Errorf("%w: 时间参数不能为负", ErrInvalidConfig)
	case c.RateLimitFactor < 0:
		return fmt.Errorf("%w: rate_limit_factor 不能为负（实际 %v）", ErrInvalidConfig, c.RateLimitFactor)
	}
	return nil
}

// Deps 是运行依赖；Cache/Observer/Logger/Now 可为空。
type Deps struct {
	Lister    provider.Lister
	Detailers provider.Registry
	Store     store.Store
	Cache     cache.Cache
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.Off{}
	}
	if d.Observer == nil {
		d.Observer = Observers()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
