package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/movieingest/internal/config"
	"github.com/John-Robertt/movieingest/internal/infra/cache"
	"github.com/John-Robertt/movieingest/internal/infra/logx"
	"github.com/John-Robertt/movieingest/internal/provider/idlist"
	"github.com/John-Robertt/movieingest/internal/provider/imdb"
	"github.com/John-Robertt/movieingest/internal/provider/tmdb"
	"github.com/John-Robertt/movieingest/internal/store"
	"github.com/John-Robertt/movieingest/internal/store/sqlstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.Driver = "off"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "movies.db")
	return cfg
}

func TestOpen_DryRunUsesMemoryStore(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t), logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer a.Close()

	if _, ok := a.Store.(*store.Memory); !ok {
		t.Fatalf("dry-run 应使用内存存储，实际 %T", a.Store)
	}
	if _, ok := a.Cache.(cache.Off); !ok {
		t.Fatalf("cache.driver=off 应为 cache.Off，实际 %T", a.Cache)
	}
	if a.Events != nil {
		t.Fatalf("未配置 kafka 时不应创建 publisher")
	}
	if !a.RunConfig().DryRun {
		t.Fatalf("apply=false 应映射为 DryRun")
	}
}

func TestOpen_ApplyUsesSQLStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Apply = true
	a, err := Open(context.Background(), cfg, logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer a.Close()

	st, ok := a.Store.(*sqlstore.Store)
	if !ok || st.Driver() != "sqlite" {
		t.Fatalf("apply 时应使用 sqlite 存储，实际 %T", a.Store)
	}
}

func TestOpenCache_FileIsReadOnlyInDryRun(t *testing.T) {
	c, closer, err := OpenCache(config.CacheConfig{Driver: "file", Dir: t.TempDir(), TTL: time.Hour}, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if closer != nil {
		t.Fatalf("文件缓存不需要 closer")
	}
	f, ok := c.(*cache.File)
	if !ok || !f.ReadOnly {
		t.Fatalf("dry-run 时文件缓存应只读：%T", c)
	}
	if _, _, err := OpenCache(config.CacheConfig{Driver: "memcached"}, false); err == nil {
		t.Fatalf("未知 driver 应报错")
	}
}

func TestLister_Kinds(t *testing.T) {
	cfg := testConfig(t)
	a, err := Open(context.Background(), cfg, logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer a.Close()

	l, err := a.Lister(KindYears, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok := l.(*imdb.SearchLister); !ok {
		t.Fatalf("没有 API key 时应使用 imdb 搜索，实际 %T", l)
	}
	if l, _ := a.Lister(KindRecent, nil); l.Name() != "imdb" {
		t.Fatalf("recent 应使用 imdb")
	}
	l, err = a.Lister(KindTitles, []string{"tt0133093", "tt0133093"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if il, ok := l.(*idlist.Lister); !ok || il.Len() != 1 {
		t.Fatalf("titles 应去重：%T", l)
	}
	if _, err := a.Lister(KindTitles, nil); err == nil {
		t.Fatalf("空 ID 列表应报错")
	}
	if _, err := a.Lister("weekly", nil); err == nil {
		t.Fatalf("未知种类应报错")
	}
	if got := a.Detailers().Names(); len(got) != 1 || got[0] != "imdb" {
		t.Fatalf("没有 API key 时只注册 imdb：%v", got)
	}
}

func TestLister_TMDBWithKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.TMDB.APIKey = "k"
	cfg.Ingest.CastLimit = 3
	a, err := Open(context.Background(), cfg, logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer a.Close()

	l, err := a.Lister(KindYears, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	c, ok := l.(*tmdb.Client)
	if !ok || c.CastLimit != 3 {
		t.Fatalf("有 API key 时应使用 tmdb 且带 cast_limit：%T", l)
	}
	if got := a.Detailers().Names(); len(got) != 2 || got[0] != "tmdb" {
		t.Fatalf("tmdb 详情应优先：%v", got)
	}

	cfg.TMDB.APIKey = ""
	cfg.Source = "tmdb"
	b, err := Open(context.Background(), cfg, logx.Discard())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer b.Close()
	if _, err := b.Lister(KindYears, nil); err == nil {
		t.Fatalf("source=tmdb 但没有 key 应报错")
	}
}

func TestRunConfigMapping(t *testing.T) {
	cfg := testConfig(t)
	cfg.Apply = true
	cfg.Ingest.Workers = 3
	cfg.Ingest.MinDelay = 100 * time.Millisecond
	a := &App{Config: cfg}
	rc := a.RunConfig()
	if rc.WorkerCount != 3 || rc.MinDelay != 100*time.Millisecond || rc.DryRun {
		t.Fatalf("映射不符合预期：%+v", rc)
	}
	if err := rc.Validate(); err != nil {
		t.Fatalf("默认映射应通过校验：%v", err)
	}
}
