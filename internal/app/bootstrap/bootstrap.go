// Package bootstrap 把 config.Config 装配成一次运行所需的依赖（CLI 与 HTTP 服务共用）。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/config"
	"github.com/John-Robertt/movieingest/internal/infra/cache"
	"github.com/John-Robertt/movieingest/internal/infra/events"
	"github.com/John-Robertt/movieingest/internal/infra/httpx"
	"github.com/John-Robertt/movieingest/internal/infra/metrics"
	"github.com/John-Robertt/movieingest/internal/provider"
	"github.com/John-Robertt/movieingest/internal/provider/idlist"
	"github.com/John-Robertt/movieingest/internal/provider/imdb"
	"github.com/John-Robertt/movieingest/internal/provider/tmdb"
	"github.com/John-Robertt/movieingest/internal/store"
	"github.com/John-Robertt/movieingest/internal/store/sqlstore"
)

// 列表种类（对应 CLI 子命令 / API 请求里的 kind）。
const (
	KindYears  = "years"
	KindRecent = "recent"
	KindTitles = "titles"
)

// App 持有装配好的依赖；Close 释放全部资源。
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Store   store.Store
	Cache   cache.Cache
	HTTP    *http.Client
	Metrics *metrics.Metrics
	// Events 在未配置 kafka.brokers 时为 nil。
	Events *events.Publisher

	detailers provider.Registry
	closers   []func() error
}

// Open 按配置装配依赖。
//
// dry-run（apply=false）：存储替换为内存实现，缓存只读。
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	client, err := httpx.NewClient(httpx.Options{ProxyURL: cfg.Proxy.URL})
	if err != nil {
		return nil, fmt.Errorf("proxy.url 无效：%w", err)
	}
	a.HTTP = client

	if cfg.Apply {
		st, err := OpenStore(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		a.Store = st
	} else {
		a.Store = store.NewMemory()
	}
	a.closers = append(a.closers, a.Store.Close)

	c, closeCache, err := OpenCache(cfg.Cache, !cfg.Apply)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Cache = c
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.Events = events.New(events.Options{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			BatchSize:     100,
			FlushInterval: time.Second,
		}, logger)
		a.closers = append(a.closers, a.Events.Close)
	}

	a.detailers, err = a.buildDetailers()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// OpenStore 按 store 配置打开持久化实现（不受 dry-run 影响，stats 命令直接使用）。
func OpenStore(ctx context.Context, sc config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch sc.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite", "postgres":
		return sqlstore.Open(ctx, sqlstore.Options{
			Driver:          sc.Driver,
			DSN:             sc.DSN,
			MaxOpenConns:    sc.MaxOpenConns,
			MaxIdleConns:    sc.MaxIdleConns,
			ConnMaxLifetime: sc.ConnMaxLifetime,
		}, logger)
	default:
		return nil, fmt.Errorf("未知 store.driver：%q", sc.Driver)
	}
}

// OpenCache 按 cache 配置构造详情缓存；返回的 closer 可能为 nil。
func OpenCache(cc config.CacheConfig, readOnly bool) (cache.Cache, func() error, error) {
	switch cc.Driver {
	case "", "off":
		return cache.Off{}, nil, nil
	case "file":
		return cache.NewFile(cc.Dir, cc.TTL, readOnly), nil, nil
	case "redis":
		r, err := cache.NewRedis(cache.RedisOptions{
			Addr:     cc.Redis.Addr,
			Password: cc.Redis.Password,
			DB:       cc.Redis.DB,
			PoolSize: cc.Redis.PoolSize,
		}, cc.TTL, readOnly)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("未知 cache.driver：%q", cc.Driver)
	}
}

func (a *App) tmdbClient() *tmdb.Client {
	c := tmdb.New(a.Config.TMDB.APIKey, a.Config.TMDB.BaseURL, a.HTTP, a.Config.TMDB.RPS)
	c.CastLimit = a.Config.Ingest.CastLimit
	return c
}

func (a *App) imdbClient() *imdb.Client {
	c := imdb.New(a.Config.IMDb.BaseURL, a.HTTP)
	c.CastLimit = a.Config.Ingest.CastLimit
	return c
}

// buildDetailers：有 TMDB key 时 tmdb 优先（它只认带 tmdb id 的记录），其余交给 imdb。
func (a *App) buildDetailers() (provider.Registry, error) {
	var ds []provider.Detailer
	if a.Config.TMDB.APIKey != "" {
		ds = append(ds, a.tmdbClient())
	}
	ds = append(ds, a.imdbClient())
	return provider.NewRegistry(ds...)
}

// Detailers 返回详情来源注册表。
func (a *App) Detailers() provider.Registry { return a.detailers }

// Lister 按种类构造列表来源；ids 只用于 titles。
func (a *App) Lister(kind string, ids []string) (provider.Lister, error) {
	switch kind {
	case KindYears, "":
		switch a.Config.ResolvedSource() {
		case "tmdb":
			if a.Config.TMDB.APIKey == "" {
				return nil, errors.New("source=tmdb 需要 tmdb.api_key（或环境变量 TMDB_API_KEY）")
			}
			return a.tmdbClient(), nil
		default:
			return imdb.NewSearchLister(a.imdbClient()), nil
		}
	case KindRecent:
		return imdb.NewRecentLister(a.imdbClient()), nil
	case KindTitles:
		l := idlist.New(ids)
		if l.Len() == 0 {
			return nil, errors.New("titles 需要至少一个 IMDb ID")
		}
		return l, nil
	default:
		return nil, fmt.Errorf("未知列表种类：%q", kind)
	}
}

// RunConfig 把 ingest 配置映射为调度参数。
func (a *App) RunConfig() run.Config {
	in := a.Config.Ingest
	return run.Config{
		YearsBack:       in.YearsBack,
		MaxPagesPerYear: in.MaxPagesPerYear,
		WorkerCount:     in.Workers,
		BatchSize:       in.BatchSize,
		MaxRetries:      in.MaxRetries,
		MinDelay:        in.MinDelay,
		ListingDelay:    in.ListingDelay,
		SegmentDelay:    in.SegmentDelay,
		RetryBaseDelay:  in.RetryBaseDelay,
		MaxBackoff:      in.MaxBackoff,
		FlushInterval:   in.FlushInterval,
		RateLimitFactor: in.RateLimitFactor,
		DryRun:          !a.Config.Apply,
	}
}

// Deps 组装一次运行的依赖；extra 追加到内置 observer（metrics、events）之后。
func (a *App) Deps(l provider.Lister, extra ...run.Observer) run.Deps {
	obs := []run.Observer{a.Metrics}
	if a.Events != nil {
		obs = append(obs, a.Events)
	}
	obs = append(obs, extra...)
	return run.Deps{
		Lister:    l,
		Detailers: a.detailers,
		Store:     a.Store,
		Cache:     a.Cache,
		Observer:  run.Observers(obs...),
		Logger:    a.Logger,
	}
}

// Close 按打开的逆序释放资源。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
