package run

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
	"github.com/John-Robertt/movieingest/internal/store"
)

// stubLister：每个分段按页返回预置条目；条目 body 即 IMDb ID（空 body 表示缺少身份）。
type stubLister struct {
	segs  []provider.ListingQuery
	pages map[string][][]string
	errs  map[string]error // 分段 -> 首页错误

	mu    sync.Mutex
	calls int
}

func (l *stubLister) Name() string { return "stub" }

func (l *stubLister) Segments(int, time.Time) []provider.ListingQuery {
	if len(l.segs) == 0 {
		return []provider.ListingQuery{{Label: "all"}}
	}
	return l.segs
}

func (l *stubLister) FetchListing(_ context.Context, q provider.ListingQuery, token string) (provider.ListingPage, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if err := l.errs[q.String()]; err != nil {
		return provider.ListingPage{}, err
	}
	pages := l.pages[q.String()]
	idx := 0
	if token != "" {
		idx = int(token[0] - '0')
	}
	if idx >= len(pages) {
		return provider.ListingPage{}, nil
	}
	var page provider.ListingPage
	for _, id := range pages[idx] {
		page.Items = append(page.Items, provider.RawListingItem{Source: "stub", Body: []byte(id)})
	}
	if idx+1 < len(pages) {
		page.NextPageToken = string(rune('0' + idx + 1))
	}
	return page, nil
}

func (l *stubLister) ExtractListing(item provider.RawListingItem) (domain.MovieRecord, error) {
	id := string(item.Body)
	if id == "" {
		return domain.MovieRecord{}, provider.MissingIdentity("stub")
	}
	return domain.MovieRecord{IMDbID: id, Title: "Listing " + id}, nil
}

func (l *stubLister) fetches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// stubDetailer：按 id 依次返回预置错误，耗尽后成功。
type stubDetailer struct {
	errs map[string][]error
	// block 非空时，第一次请求会先通知 started 再等待 block 关闭。
	block   chan struct{}
	started chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

func newStubDetailer() *stubDetailer {
	return &stubDetailer{errs: map[string][]error{}, calls: map[string]int{}}
}

func (d *stubDetailer) Name() string { return "detail" }

func (d *stubDetailer) DetailID(rec domain.MovieRecord) (string, bool) {
	return rec.IMDbID, rec.IMDbID != ""
}

func (d *stubDetailer) FetchDetail(_ context.Context, id string) (provider.RawDetail, error) {
	d.mu.Lock()
	n := d.calls[id]
	d.calls[id] = n + 1
	first := d.block != nil && d.started != nil
	if first {
		started := d.started
		d.started = nil
		d.mu.Unlock()
		close(started)
		<-d.block
		d.mu.Lock()
	}
	var err error
	if n < len(d.errs[id]) {
		err = d.errs[id][n]
	}
	d.mu.Unlock()
	if err != nil {
		return provider.RawDetail{}, err
	}
	return provider.RawDetail{Source: "detail", ID: id, Body: []byte(id)}, nil
}

func (d *stubDetailer) ExtractDetail(raw provider.RawDetail) (domain.MovieRecord, error) {
	return domain.MovieRecord{IMDbID: raw.ID, Title: "Detail " + raw.ID, Director: "D"}, nil
}

func (d *stubDetailer) callsFor(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[id]
}

// memCache 是测试用的详情缓存。
type memCache struct {
	mu   sync.Mutex
	m    map[string]provider.RawDetail
	puts int
}

func newMemCache() *memCache { return &memCache{m: map[string]provider.RawDetail{}} }

func (c *memCache) Get(_ context.Context, source, id string) (provider.RawDetail, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.m[source+"/"+id]
	return raw, ok, nil
}

func (c *memCache) Put(_ context.Context, raw provider.RawDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[raw.Source+"/"+raw.ID] = raw
	c.puts++
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.YearsBack = 1
	cfg.MaxPagesPerYear = 2
	cfg.WorkerCount = 3
	cfg.BatchSize = 2
	cfg.MinDelay = 0
	cfg.ListingDelay = 0
	cfg.SegmentDelay = 0
	cfg.RetryBaseDelay = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.FlushInterval = 0
	cfg.DryRun = false
	return cfg
}

func testDeps(t *testing.T, l provider.Lister, st store.Store, dets ...provider.Detailer) Deps {
	t.Helper()
	reg, err := provider.NewRegistry(dets...)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	return Deps{Lister: l, Detailers: reg, Store: st}
}

func transientErr(id string) error {
	return provider.Transient("detail", "detail", "https://detail.test/"+id, errors.New("connection reset"))
}

func findFailure(rep domain.IngestionRun, code string) (domain.ItemResult, bool) {
	for _, f := range rep.Failures {
		if f.ErrorCode == code {
			return f, true
		}
	}
	return domain.ItemResult{}, false
}
