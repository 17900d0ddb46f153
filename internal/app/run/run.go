// Package run 调度一次摄取运行：列表 → 详情 → 合并 → 批量写入。
//
// 并发模型：
// - 列表阶段在单个 goroutine 中顺序翻页，产出的条目边抓边投递给 worker 池
// - worker 各自推进条目阶段；详情请求按 source:id 合并（singleflight）并经过缓存
// - 单个 persister 按 BatchSize 成批写入
// - 单个 collector 汇总结果、广播进度；IngestionRun 只由它修改
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

const pingTimeout = 5 * time.Second

// update 是发给 collector 的单条消息。
type update struct {
	found      int
	listingErr bool
	res        *domain.ItemResult
	dur        time.Duration
}

type runner struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	h    *Handle

	// pagesPerSeg 是每个分段实际请求的页数上限。
	pagesPerSeg int

	updates chan update
	detail  singleflight.Group
}

// Start 校验参数、探测存储并在后台启动运行。
// 启动期错误直接返回；启动之后的失败都折叠进条目结果。
func Start(ctx context.Context, cfg Config, deps Deps) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Lister == nil {
		return nil, errors.New("run: lister 不能为空")
	}
	if deps.Store == nil {
		return nil, errors.New("run: store 不能为空")
	}
	deps = deps.withDefaults()

	pingCtx, cancelPing := context.WithTimeout(ctx, pingTimeout)
	err := deps.Store.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return nil, fmt.Errorf("run: 存储不可用：%w", err)
	}

	source := cfg.Source
	if source == "" {
		source = deps.Lister.Name()
	}
	now := deps.Now()
	segs := deps.Lister.Segments(cfg.YearsBack, now)
	perSeg := provider.PagesPerSegment(deps.Lister, cfg.MaxPagesPerYear)

	rep := domain.IngestionRun{
		ID:        uuid.NewString(),
		Source:    source,
		DryRun:    cfg.DryRun,
		Requested: len(segs) * perSeg,
		StartedAt: now,
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &runner{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.With("component", "ingest", "run_id", rep.ID),
		h:       newHandle(rep, cancel),
		updates: make(chan update, cfg.WorkerCount*2),

		pagesPerSeg: perSeg,
	}

	r.log.Info("run started",
		"source", source,
		"segments", len(segs),
		"requested_pages", rep.Requested,
		"workers", cfg.WorkerCount,
		"dry_run", cfg.DryRun,
	)
	deps.Observer.OnStart(rep.Clone(), cfg)

	go r.loop(runCtx, cancel, segs)
	return r.h, nil
}

// Execute 启动一次运行并等待其结束。
func Execute(ctx context.Context, cfg Config, deps Deps) (domain.IngestionRun, error) {
	h, err := Start(ctx, cfg, deps)
	if err != nil {
		return domain.IngestionRun{}, err
	}
	return h.Wait(), nil
}

func (r *runner) loop(ctx context.Context, cancel context.CancelFunc, segs []provider.ListingQuery) {
	defer cancel()

	var collector sync.WaitGroup
	collector.Add(1)
	go func() {
		defer collector.Done()
		r.collect()
	}()

	staged := make(chan stagedRecord, r.cfg.BatchSize)
	persisted := make(chan persistStats, 1)
	go func() { persisted <- r.persist(ctx, staged) }()

	jobs := make(chan domain.WorkItem, r.cfg.WorkerCount)
	var g errgroup.Group
	for i := 0; i < r.cfg.WorkerCount; i++ {
		g.Go(func() error {
			r.work(ctx, jobs, staged)
			return nil
		})
	}
	r.deps.Observer.OnPhaseDone("exec", map[string]any{
		"workers":    r.cfg.WorkerCount,
		"batch_size": r.cfg.BatchSize,
		"segments":   len(segs),
		"detailers":  r.deps.Detailers.Names(),
	}, 0)

	r.list(ctx, segs, jobs)
	close(jobs)
	_ = g.Wait()

	close(staged)
	ps := <-persisted
	r.deps.Observer.OnPhaseDone("persist", map[string]any{
		"batches": ps.batches,
		"saved":   ps.saved,
		"merged":  ps.merged,
		"failed":  ps.failed,
	}, ps.dur)

	close(r.updates)
	collector.Wait()

	cancelled := ctx.Err() != nil
	final := r.h.finish(func(rep *domain.IngestionRun) {
		rep.Cancelled = cancelled
		rep.FinishedAt = r.deps.Now()
		rep.Finalize()
	})
	r.log.Info("run finished",
		"found", final.Found,
		"saved", final.Saved,
		"skipped", final.Skipped,
		"errored", final.Errored,
		"listing_errors", final.ListingErrors,
		"cancelled", final.Cancelled,
		"elapsed", final.FinishedAt.Sub(final.StartedAt),
	)
	r.deps.Observer.OnFinish(final)
	close(r.h.done)
}

// collect 是唯一修改运行结果的 goroutine。
func (r *runner) collect() {
	for u := range r.updates {
		p := r.h.update(func(rep *domain.IngestionRun) {
			rep.Found += u.found
			if u.listingErr {
				rep.ListingErrors++
			}
			if u.res != nil {
				rep.Record(*u.res)
			}
		})
		if u.res != nil {
			r.deps.Observer.OnItemDone(p, *u.res, u.dur)
		}
	}
}
