package run

import (
	"context"
	"errors"
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/enrich"
	"github.com/John-Robertt/movieingest/internal/infra/cache"
	"github.com/John-Robertt/movieingest/internal/provider"
)

// work 从 jobs 取条目处理；ctx 取消后不再取新条目（在途条目照常完成）。
func (r *runner) work(ctx context.Context, jobs <-chan domain.WorkItem, out chan<- stagedRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-jobs:
			if !ok || ctx.Err() != nil {
				return
			}
			r.process(ctx, it, out)
		}
	}
}

// process 推进单个条目：fetching → extracting → enriching → persisting（交给 persister）。
// 没有任何详情来源支持该记录时，跳过 fetching/extracting。失败阶段取自条目当前阶段。
func (r *runner) process(ctx context.Context, it domain.WorkItem, out chan<- stagedRecord) {
	start := time.Now()
	res := domain.ItemResult{
		Key:    string(it.Key),
		Title:  it.Base.Title,
		Source: it.Source,
	}
	failed := func(source string, err error) {
		fail(&res, it.Stage(), source, err)
		r.log.Debug("item failed",
			"key", it.Key,
			"stage", res.Stage,
			"code", res.ErrorCode,
			"error", err,
		)
		r.updates <- update{res: &res, dur: time.Since(start)}
	}
	advance := func(stage string) bool {
		if err := it.Advance(stage); err != nil {
			r.log.Error("invalid stage transition", "key", it.Key, "error", err)
			failed(it.Source, err)
			return false
		}
		return true
	}

	rec := it.Base
	var detail domain.MovieRecord
	det, id, hasDetail := r.deps.Detailers.For(rec)
	if hasDetail {
		name := det.Name()
		res.DetailSource = name

		if !advance(domain.StageFetching) {
			return
		}
		raw, attempts, fresh, err := r.fetchDetail(ctx, det, id)
		res.Attempts = attempts
		if err != nil {
			failed(name, err)
			return
		}

		if !advance(domain.StageExtracting) {
			return
		}
		detail, err = det.ExtractDetail(raw)
		if err != nil {
			failed(name, err)
			return
		}
		// 只缓存能成功抽取的响应；拦截页或损坏的 JSON 不会在下次运行中被复用。
		if fresh {
			r.cachePut(ctx, raw)
		}
	}

	if !advance(domain.StageEnriching) {
		return
	}
	if hasDetail {
		rec = enrich.Merge(rec, detail)
	}
	if rec.Title == "" {
		failed(it.Source, &provider.ExtractionError{Source: it.Source, Err: errMissingTitle})
		return
	}
	// 以合并后的身份写入：详情可能补上 IMDb ID，使 tmdb:<id> 升级为 tt...
	key, ok := rec.Identity()
	if !ok {
		key = it.Key
	}
	res.Key = string(key)
	res.Title = rec.Title

	if !advance(domain.StagePersisting) {
		return
	}
	out <- stagedRecord{key: key, rec: rec, res: res, start: start}
}

type fetched struct {
	raw      provider.RawDetail
	attempts int
	fresh    bool
}

// fetchDetail 先查缓存，未命中再请求；并发的相同 source:id 请求只发一次。
// fresh=true 表示响应来自网络（尚未写入缓存）。
func (r *runner) fetchDetail(ctx context.Context, det provider.Detailer, id string) (provider.RawDetail, int, bool, error) {
	source := det.Name()
	v, err, _ := r.detail.Do(source+":"+id, func() (any, error) {
		raw, hit, err := r.deps.Cache.Get(ctx, source, id)
		if err != nil {
			r.log.Warn("cache read failed", "source", source, "id", id, "error", err)
		}
		if hit {
			r.log.Debug("cache hit", "source", source, "id", id)
			return fetched{raw: raw}, nil
		}

		attempts, err := r.call(ctx, source, "detail", r.cfg.MinDelay, func(c context.Context) error {
			var err error
			raw, err = det.FetchDetail(c, id)
			return err
		})
		if err != nil {
			return fetched{attempts: attempts}, err
		}
		return fetched{raw: raw, attempts: attempts, fresh: true}, nil
	})
	f, _ := v.(fetched)
	return f.raw, f.attempts, f.fresh, err
}

// cachePut 写入详情缓存；dry-run 不写。
func (r *runner) cachePut(ctx context.Context, raw provider.RawDetail) {
	if r.cfg.DryRun {
		return
	}
	if err := r.deps.Cache.Put(context.WithoutCancel(ctx), raw); err != nil && !errors.Is(err, cache.ErrReadOnly) {
		r.log.Warn("cache write failed", "source", raw.Source, "id", raw.ID, "error", err)
	}
}
