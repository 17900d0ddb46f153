package run

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/enrich"
)

// stagedRecord 是已完成合并、等待写入的记录。
type stagedRecord struct {
	key   domain.IdentityKey
	rec   domain.MovieRecord
	res   domain.ItemResult
	start time.Time

	// dup 表示该身份已在之前的批次写入过；成功时记为 skipped/duplicate。
	dup bool
	// merged 是同一批次内合并进来的同身份记录，结果跟随本条写入。
	merged []stagedRecord
}

type persistStats struct {
	batches int
	saved   int
	merged  int
	failed  int
	dur     time.Duration
}

// persist 把暂存记录按 BatchSize 成批写入；通道关闭时写入剩余部分。
// FlushInterval>0 时，未满的批次最多停留这么久。
//
// 约束：
// - 同一批次内每个 identity key 只有一条写入；同身份的后续记录合并进待写条目
// - 批次串行，因此同一 key 的写入永不并发
// - 每个身份在一次运行中只计一次 saved，其余记为 skipped/duplicate
func (r *runner) persist(ctx context.Context, in <-chan stagedRecord) persistStats {
	var st persistStats
	batch := make([]stagedRecord, 0, r.cfg.BatchSize)
	pending := make(map[domain.IdentityKey]int)
	written := make(map[domain.IdentityKey]struct{})
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(ctx, batch, &st)
		for _, s := range batch {
			written[s.key] = struct{}{}
		}
		batch = batch[:0]
		clear(pending)
	}

	var tick <-chan time.Time
	if r.cfg.FlushInterval > 0 {
		t := time.NewTicker(r.cfg.FlushInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case s, ok := <-in:
			if !ok {
				flush()
				return st
			}
			if i, ok := pending[s.key]; ok {
				head := &batch[i]
				head.rec = enrich.Merge(head.rec, s.rec)
				head.merged = append(head.merged, s)
				r.log.Debug("merged into pending record", "key", s.key, "source", s.res.Source)
				continue
			}
			_, s.dup = written[s.key]
			pending[s.key] = len(batch)
			batch = append(batch, s)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-tick:
			flush()
		}
	}
}

// flush 并发写入一批（批内 key 互不相同）；单条失败只影响该条及合并进来的记录。
// 写入不跟随 ctx 取消：取消时已暂存的记录仍要落库。
func (r *runner) flush(ctx context.Context, batch []stagedRecord, st *persistStats) {
	start := time.Now()
	wctx := context.WithoutCancel(ctx)
	errs := make([]error, len(batch))

	var g errgroup.Group
	for i, s := range batch {
		g.Go(func() error {
			errs[i] = r.deps.Store.Upsert(wctx, s.key, s.rec)
			return nil
		})
	}
	_ = g.Wait()
	st.batches++
	st.dur += time.Since(start)

	failed := 0
	for i, s := range batch {
		err := errs[i]
		if err != nil {
			failed++
			r.log.Warn("persist failed", "key", s.key, "error", err)
		}
		r.finishStaged(s, s.dup, err)
		for _, m := range s.merged {
			r.finishStaged(m, true, err)
		}
		if err == nil {
			if s.dup {
				st.merged++
			} else {
				st.saved++
			}
			st.merged += len(s.merged)
		} else {
			st.failed += 1 + len(s.merged)
		}
	}

	r.log.Debug("batch flushed",
		"size", len(batch),
		"failed", failed,
		"elapsed", time.Since(start),
	)
}

// finishStaged 发出一条暂存记录的最终结果。
func (r *runner) finishStaged(s stagedRecord, dup bool, err error) {
	res := s.res
	res.Stage = domain.StagePersisting
	switch {
	case err != nil:
		res.Status = domain.StatusErrored
		res.ErrorCode = domain.ErrCodePersistFailed
		res.ErrorMsg = err.Error()
	case dup:
		res.Status = domain.StatusSkipped
		res.ErrorCode = domain.ErrCodeDuplicate
		res.ErrorMsg = "合并详情后与本次运行中的其他条目身份相同，已合并写入"
	default:
		res.Status = domain.StatusSaved
	}
	r.updates <- update{res: &res, dur: time.Since(s.start)}
}
