package run

import (
	"context"
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

// list 顺序遍历分段与页，把抽取出的条目投递给 worker。
//
// 约束：
// - 每个分段最多 pagesPerSeg 页（MaxPagesPerYear 与 Lister 自身上限取小）；某页失败（重试耗尽）时计一次 listing error 并放弃该分段剩余页
// - 运行内按 identity key 去重，后出现的记为 skipped/duplicate
// - ctx 取消后不再翻页、不再投递
func (r *runner) list(ctx context.Context, segs []provider.ListingQuery, jobs chan<- domain.WorkItem) {
	start := time.Now()
	lister := r.deps.Lister
	seen := make(map[domain.IdentityKey]struct{})
	seq := 0
	pages, found := 0, 0

segments:
	for i, q := range segs {
		if i > 0 && !sleep(ctx, r.cfg.SegmentDelay) {
			break
		}
		token := ""
		for page := 1; page <= r.pagesPerSeg; page++ {
			if ctx.Err() != nil {
				break segments
			}
			var lp provider.ListingPage
			_, err := r.call(ctx, lister.Name(), "listing", r.cfg.ListingDelay, func(c context.Context) error {
				var err error
				lp, err = lister.FetchListing(c, q, token)
				return err
			})
			if err != nil {
				r.log.Warn("listing page failed",
					"segment", q.String(),
					"page", page,
					"error", err,
				)
				r.updates <- update{listingErr: true}
				break
			}
			pages++
			found += len(lp.Items)
			r.log.Debug("listing page",
				"segment", q.String(),
				"page", page,
				"items", len(lp.Items),
			)

			for _, raw := range lp.Items {
				seq++
				it, ok := r.admit(raw, seq, seen)
				if !ok {
					continue
				}
				select {
				case jobs <- it:
				case <-ctx.Done():
					break segments
				}
			}

			if lp.NextPageToken == "" {
				break
			}
			token = lp.NextPageToken
		}
	}

	r.deps.Observer.OnPhaseDone("listing", map[string]any{
		"segments": len(segs),
		"pages":    pages,
		"found":    found,
	}, time.Since(start))
}

// admit 把列表条目计入 found 并抽取基础记录；无法进入 worker 的条目直接得出结果。
func (r *runner) admit(raw provider.RawListingItem, seq int, seen map[domain.IdentityKey]struct{}) (domain.WorkItem, bool) {
	source := r.deps.Lister.Name()
	r.updates <- update{found: 1}

	rec, err := r.deps.Lister.ExtractListing(raw)
	if err != nil {
		res := domain.ItemResult{Source: source}
		fail(&res, domain.StageExtracting, source, err)
		r.updates <- update{res: &res}
		return domain.WorkItem{}, false
	}
	key, ok := rec.Identity()
	if !ok {
		res := domain.ItemResult{Title: rec.Title, Source: source}
		fail(&res, domain.StageExtracting, source, provider.MissingIdentity(source))
		r.updates <- update{res: &res}
		return domain.WorkItem{}, false
	}
	if _, dup := seen[key]; dup {
		r.updates <- update{res: &domain.ItemResult{
			Key:       string(key),
			Title:     rec.Title,
			Source:    source,
			Status:    domain.StatusSkipped,
			Stage:     domain.StagePending,
			ErrorCode: domain.ErrCodeDuplicate,
			ErrorMsg:  "本次运行中重复出现的条目",
		}}
		return domain.WorkItem{}, false
	}
	seen[key] = struct{}{}
	return domain.WorkItem{Seq: seq, Source: source, Key: key, Base: rec}, true
}
