package run

import (
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 实现必须并发安全：OnFetch 来自多个 worker；其余事件来自单个 goroutine
// - 实现不得阻塞（慢消费者会拖慢整个运行）
type Observer interface {
	// OnStart 在运行开始、任何网络请求之前调用。
	OnStart(run domain.IngestionRun, cfg Config)
	// OnPhaseDone 在阶段结束/就绪时调用（exec / listing / persist）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnFetch 在每次外部调用（含重试）之后调用；err 为 nil 表示成功。
	OnFetch(source, op string, attempt int, err error, dur time.Duration)
	// OnItemDone 在条目得出最终结果后调用。
	OnItemDone(p domain.Progress, res domain.ItemResult, dur time.Duration)
	// OnFinish 在运行结束（含取消）后调用，run 已 Finalize。
	OnFinish(run domain.IngestionRun)
}

type multiObserver []Observer

// Observers 把多个 Observer 合并为一个；nil 会被忽略。
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multiObserver) OnStart(run domain.IngestionRun, cfg Config) {
	for _, o := range m {
		o.OnStart(run, cfg)
	}
}

func (m multiObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	for _, o := range m {
		o.OnPhaseDone(name, fields, dur)
	}
}

func (m multiObserver) OnFetch(source, op string, attempt int, err error, dur time.Duration) {
	for _, o := range m {
		o.OnFetch(source, op, attempt, err, dur)
	}
}

func (m multiObserver) OnItemDone(p domain.Progress, res domain.ItemResult, dur time.Duration) {
	for _, o := range m {
		o.OnItemDone(p, res, dur)
	}
}

func (m multiObserver) OnFinish(run domain.IngestionRun) {
	for _, o := range m {
		o.OnFinish(run)
	}
}
