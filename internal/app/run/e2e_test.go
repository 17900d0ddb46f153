package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
	"github.com/John-Robertt/movieingest/internal/store"
)

func TestExecute_EndToEnd(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001", "tt0000002", ""}}}}
	st := store.NewMemory()
	deps := testDeps(t, l, st, newStubDetailer())

	rep, err := Execute(context.Background(), testConfig(), deps)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.ID == "" || rep.Source != "stub" {
		t.Fatalf("id/source 不符合预期：%+v", rep)
	}
	if rep.Requested != 2 {
		t.Fatalf("期望 requested=2（1 分段 × 2 页），实际 %d", rep.Requested)
	}
	if rep.Found != 3 || rep.Saved != 2 || rep.Skipped != 1 || rep.Errored != 0 {
		t.Fatalf("计数不符合预期：%+v", rep)
	}
	if rep.Cancelled || rep.FinishedAt.IsZero() {
		t.Fatalf("不应被取消且应有结束时间：%+v", rep)
	}
	if f, ok := findFailure(rep, domain.ErrCodeMissingIdentity); !ok || f.Status != domain.StatusSkipped {
		t.Fatalf("缺少身份的条目应为 skipped：%+v", rep.Failures)
	}

	rec, ok := st.Get("tt0000001")
	if !ok {
		t.Fatalf("期望 tt0000001 已写入，实际 keys=%v", st.Keys())
	}
	if rec.Title != "Detail tt0000001" || rec.Director != "D" {
		t.Fatalf("应写入合并后的记录：%+v", rec)
	}
}

func TestExecute_TransientRetriedThenSaved(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	det := newStubDetailer()
	det.errs["tt0000001"] = []error{transientErr("1"), transientErr("1")}
	obs := &recordObserver{}
	deps := testDeps(t, l, store.NewMemory(), det)
	deps.Observer = obs

	rep, err := Execute(context.Background(), testConfig(), deps)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.Saved != 1 || rep.Errored != 0 {
		t.Fatalf("重试后应保存成功：%+v", rep)
	}
	if got := det.callsFor("tt0000001"); got != 3 {
		t.Fatalf("期望 3 次请求，实际 %d", got)
	}
	res := obs.itemResults()
	if len(res) != 1 || res[0].Attempts != 3 || res[0].DetailSource != "detail" {
		t.Fatalf("条目结果不符合预期：%+v", res)
	}
}

func TestExecute_RetriesExhausted(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	det := newStubDetailer()
	det.errs["tt0000001"] = []error{transientErr("1"), transientErr("1"), transientErr("1"), transientErr("1")}

	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, store.NewMemory(), det))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := det.callsFor("tt0000001"); got != 3 {
		t.Fatalf("max_retries=2 时最多 3 次请求，实际 %d", got)
	}
	f, ok := findFailure(rep, domain.ErrCodeFetchFailed)
	if !ok || f.Stage != domain.StageFetching || f.Attempts != 3 {
		t.Fatalf("期望 fetching 阶段 fetch_failed：%+v", rep.Failures)
	}
}

func TestExecute_ThrottledRetried(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	det := newStubDetailer()
	throttled := provider.Transient("detail", "detail", "", errors.New("HTTP 429"))
	throttled.Throttled = true
	det.errs["tt0000001"] = []error{throttled}

	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, store.NewMemory(), det))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.Saved != 1 || det.callsFor("tt0000001") != 2 {
		t.Fatalf("限流后应冷却重试并成功：%+v calls=%d", rep, det.callsFor("tt0000001"))
	}
}

func TestExecute_ThrottledWaitsForCooldownNotBackoff(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	det := newStubDetailer()
	throttled := provider.Transient("detail", "detail", "", errors.New("HTTP 429"))
	throttled.Throttled = true
	throttled.RetryAfter = 60 * time.Millisecond
	det.errs["tt0000001"] = []error{throttled}
	cfg := testConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond

	start := time.Now()
	rep, err := Execute(context.Background(), cfg, testDeps(t, l, store.NewMemory(), det))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.Saved != 1 || det.callsFor("tt0000001") != 2 {
		t.Fatalf("限流后应重试并成功：%+v", rep)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("应按 Retry-After 冷却（>=60ms）而不是普通退避，实际 %v", elapsed)
	}
}

// extractFailDetailer 的详情响应总是无法解析。
type extractFailDetailer struct{ *stubDetailer }

func (extractFailDetailer) ExtractDetail(provider.RawDetail) (domain.MovieRecord, error) {
	return domain.MovieRecord{}, provider.ParseFailure("detail", "detail", "", errors.New("unexpected end of JSON input"))
}

func TestExecute_ParseFailureIsNotRetried(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
		det := newStubDetailer()
		det.errs["tt0000001"] = []error{provider.ParseFailure("detail", "detail", "", errors.New("invalid character '<'"))}

		rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, store.NewMemory(), det))
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if det.callsFor("tt0000001") != 1 {
			t.Fatalf("解析失败不应重试，实际 %d 次", det.callsFor("tt0000001"))
		}
		f, ok := findFailure(rep, domain.ErrCodeParseFailed)
		if !ok || rep.Errored != 1 || f.Stage != domain.StageFetching {
			t.Fatalf("期望 fetching 阶段 parse_failed：%+v", rep.Failures)
		}
	})

	t.Run("extract", func(t *testing.T) {
		l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
		det := extractFailDetailer{newStubDetailer()}
		c := newMemCache()
		deps := testDeps(t, l, store.NewMemory(), det)
		deps.Cache = c

		rep, err := Execute(context.Background(), testConfig(), deps)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if det.callsFor("tt0000001") != 1 {
			t.Fatalf("抽取失败不应重新请求，实际 %d 次", det.callsFor("tt0000001"))
		}
		f, ok := findFailure(rep, domain.ErrCodeParseFailed)
		if !ok || rep.Errored != 1 || f.Stage != domain.StageExtracting {
			t.Fatalf("期望 extracting 阶段 parse_failed：%+v", rep.Failures)
		}
		if c.puts != 0 {
			t.Fatalf("无法抽取的响应不应写入缓存，实际 puts=%d", c.puts)
		}
	})
}

// singlePageLister 每个分段只有一页。
type singlePageLister struct{ stubLister }

func (*singlePageLister) MaxPages() int { return 1 }

func TestExecute_RequestedHonorsListerPageLimit(t *testing.T) {
	l := &singlePageLister{stubLister{
		segs: []provider.ListingQuery{{Label: "a"}, {Label: "b"}},
		pages: map[string][][]string{
			"a": {{"tt0000001"}, {"tt0000002"}},
			"b": {{"tt0000003"}},
		},
	}}
	cfg := testConfig()
	cfg.MaxPagesPerYear = 5

	rep, err := Execute(context.Background(), cfg, testDeps(t, l, store.NewMemory(), newStubDetailer()))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.Requested != 2 {
		t.Fatalf("期望 requested=2（2 分段 × 1 页），实际 %d", rep.Requested)
	}
	if l.fetches() != 2 || rep.Found != 2 {
		t.Fatalf("每个分段只应请求 1 页：fetches=%d found=%d", l.fetches(), rep.Found)
	}
}

func TestExecute_NotFoundIsNotRetried(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	det := newStubDetailer()
	det.errs["tt0000001"] = []error{provider.Permanent("detail", "detail", "", provider.ErrNotFound)}

	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, store.NewMemory(), det))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if det.callsFor("tt0000001") != 1 {
		t.Fatalf("permanent 错误不应重试，实际 %d 次", det.callsFor("tt0000001"))
	}
	if _, ok := findFailure(rep, domain.ErrCodeNotFound); !ok || rep.Errored != 1 {
		t.Fatalf("期望 not_found：%+v", rep)
	}
}

func TestExecute_RerunIsIdempotent(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001", "tt0000002"}}}}
	st := store.NewMemory()
	deps := testDeps(t, l, st, newStubDetailer())

	for i := 0; i < 2; i++ {
		rep, err := Execute(context.Background(), testConfig(), deps)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if rep.Saved != 2 {
			t.Fatalf("第 %d 次运行期望 saved=2，实际 %+v", i+1, rep)
		}
		n, _ := st.Count(context.Background(), store.CountFilter{})
		if n != 2 {
			t.Fatalf("重复运行不应产生重复行，实际 %d", n)
		}
	}
}

func TestExecute_DuplicateWithinRun(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}, {"tt0000001"}}}}
	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, store.NewMemory(), newStubDetailer()))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.Found != 2 || rep.Saved != 1 || rep.Skipped != 1 {
		t.Fatalf("计数不符合预期：%+v", rep)
	}
	if f, ok := findFailure(rep, domain.ErrCodeDuplicate); !ok || f.Key != "tt0000001" {
		t.Fatalf("期望 duplicate：%+v", rep.Failures)
	}
}

func TestExecute_PersistFailureOnlyAffectsItem(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001", "tt0000002"}}}}
	st := store.NewMemory()
	st.FailOn = func(key domain.IdentityKey) error {
		if key == "tt0000002" {
			return errors.New("disk full")
		}
		return nil
	}

	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, st, newStubDetailer()))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.Saved != 1 || rep.Errored != 1 {
		t.Fatalf("计数不符合预期：%+v", rep)
	}
	f, ok := findFailure(rep, domain.ErrCodePersistFailed)
	if !ok || f.Key != "tt0000002" || f.Stage != domain.StagePersisting {
		t.Fatalf("期望 persist_failed：%+v", rep.Failures)
	}
}

func TestExecute_ListingErrorSkipsSegment(t *testing.T) {
	l := &stubLister{
		segs: []provider.ListingQuery{{Year: 2024}, {Year: 2023}},
		pages: map[string][][]string{
			"2023": {{"tt0000003"}},
		},
		errs: map[string]error{
			"2024": provider.Permanent("stub", "listing", "", errors.New("HTTP 500")),
		},
	}
	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, store.NewMemory(), newStubDetailer()))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rep.ListingErrors != 1 || rep.Saved != 1 || rep.Requested != 4 {
		t.Fatalf("失败分段不应影响后续分段：%+v", rep)
	}
}

func TestExecute_NoDetailerPersistsListingRecord(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	st := store.NewMemory()
	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, st))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	rec, ok := st.Get("tt0000001")
	if rep.Saved != 1 || !ok || rec.Title != "Listing tt0000001" {
		t.Fatalf("没有详情来源时应写入列表记录：%+v %+v", rep, rec)
	}
}

type untitledLister struct{ stubLister }

func (l *untitledLister) ExtractListing(item provider.RawListingItem) (domain.MovieRecord, error) {
	return domain.MovieRecord{IMDbID: string(item.Body)}, nil
}

func TestExecute_EmptyTitleIsErrored(t *testing.T) {
	l := &untitledLister{stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}}
	rep, err := Execute(context.Background(), testConfig(), testDeps(t, l, store.NewMemory()))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if f, ok := findFailure(rep, domain.ErrCodeExtractFailed); !ok || rep.Errored != 1 {
		t.Fatalf("缺少标题应为 extract_failed：%+v", rep)
	} else if f.Stage != domain.StageEnriching {
		t.Fatalf("期望 enriching 阶段，实际 %q", f.Stage)
	}
}

func TestExecute_CacheAvoidsRefetch(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	det := newStubDetailer()
	c := newMemCache()
	deps := testDeps(t, l, store.NewMemory(), det)
	deps.Cache = c

	for i := 0; i < 2; i++ {
		if _, err := Execute(context.Background(), testConfig(), deps); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}
	if det.callsFor("tt0000001") != 1 || c.puts != 1 {
		t.Fatalf("第二次运行应命中缓存：calls=%d puts=%d", det.callsFor("tt0000001"), c.puts)
	}
}

func TestExecute_DryRunDoesNotWriteCache(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001"}}}}
	c := newMemCache()
	deps := testDeps(t, l, store.NewMemory(), newStubDetailer())
	deps.Cache = c
	cfg := testConfig()
	cfg.DryRun = true

	rep, err := Execute(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !rep.DryRun || c.puts != 0 {
		t.Fatalf("dry-run 不应写缓存：dry_run=%v puts=%d", rep.DryRun, c.puts)
	}
}

func TestStart_RejectsBadInput(t *testing.T) {
	l := &stubLister{}

	bad := testConfig()
	bad.WorkerCount = 0
	if _, err := Start(context.Background(), bad, testDeps(t, l, store.NewMemory())); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("期望 ErrInvalidConfig，实际 %v", err)
	}
	if _, err := Start(context.Background(), testConfig(), Deps{Lister: l}); err == nil {
		t.Fatalf("缺少 store 时应报错")
	}

	st := store.NewMemory()
	st.PingErr = errors.New("connection refused")
	if _, err := Start(context.Background(), testConfig(), testDeps(t, l, st)); err == nil {
		t.Fatalf("存储不可用时应在启动期报错")
	}
	if l.fetches() != 0 {
		t.Fatalf("启动失败不应发起任何请求")
	}
}

func TestStart_CancelKeepsPartialResult(t *testing.T) {
	l := &stubLister{pages: map[string][][]string{"all": {{"tt0000001", "tt0000002", "tt0000003", "tt0000004", "tt0000005"}}}}
	det := newStubDetailer()
	det.block = make(chan struct{})
	det.started = make(chan struct{})
	started := det.started
	st := store.NewMemory()
	cfg := testConfig()
	cfg.WorkerCount = 1
	cfg.BatchSize = 10

	h, err := Start(context.Background(), cfg, testDeps(t, l, st, det))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	<-started
	h.Cancel()
	close(det.block)
	rep := h.Wait()

	if !rep.Cancelled {
		t.Fatalf("期望 cancelled=true")
	}
	if rep.Saved != 1 {
		t.Fatalf("在途条目应完成并写入，实际 %+v", rep)
	}
	if rep.Processed() >= rep.Found {
		t.Fatalf("取消后应有未处理条目：processed=%d found=%d", rep.Processed(), rep.Found)
	}
	if _, ok := st.Get("tt0000001"); !ok {
		t.Fatalf("暂存记录应在取消后写入")
	}
}
