package domain

import "fmt"

// 条目在一次运行中的阶段。只允许向前推进。
const (
	StagePending    = "pending"
	StageFetching   = "fetching"
	StageExtracting = "extracting"
	StageEnriching  = "enriching"
	StagePersisting = "persisting"
)

var stageRank = map[string]int{
	StagePending:    0,
	StageFetching:   1,
	StageExtracting: 2,
	StageEnriching:  3,
	StagePersisting: 4,
}

// WorkItem 是列表阶段产出、交给 worker 处理的单个条目。
type WorkItem struct {
	Seq    int // 在列表中的出现顺序（用于稳定输出）
	Source string
	Key    IdentityKey
	Base   MovieRecord

	stage string
}

// Stage 返回当前阶段；零值条目处于 pending。
func (w *WorkItem) Stage() string {
	if w.stage == "" {
		return StagePending
	}
	return w.stage
}

// Advance 推进到下一阶段；跳过中间阶段是允许的（例如没有 detail 来源时直接 persisting），回退不允许。
func (w *WorkItem) Advance(to string) error {
	next, ok := stageRank[to]
	if !ok {
		return fmt.Errorf("未知阶段：%q", to)
	}
	if next <= stageRank[w.Stage()] {
		return fmt.Errorf("阶段不能回退：%s -> %s", w.Stage(), to)
	}
	w.stage = to
	return nil
}
