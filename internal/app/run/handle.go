package run

import (
	"context"
	"sync"

	"github.com/John-Robertt/movieingest/internal/domain"
)

// Handle 是一次已启动运行的句柄：订阅进度、等待结束、读取快照、取消。
type Handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	run  domain.IngestionRun // 只由 collector 修改
	subs []chan domain.Progress
	last domain.Progress
	fin  bool
}

func newHandle(run domain.IngestionRun, cancel context.CancelFunc) *Handle {
	return &Handle{
		id:     run.ID,
		cancel: cancel,
		done:   make(chan struct{}),
		run:    run,
		last:   run.Progress(false),
	}
}

func (h *Handle) ID() string { return h.id }

// Cancel 请求取消运行；已暂存的记录仍会写入。
func (h *Handle) Cancel() { h.cancel() }

// Done 在运行结束（结果已 Finalize）后关闭。
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait 阻塞到运行结束并返回最终结果。
func (h *Handle) Wait() domain.IngestionRun {
	<-h.done
	return h.Snapshot()
}

// Snapshot 返回当前计数的副本（运行中也可调用）。
func (h *Handle) Snapshot() domain.IngestionRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run.Clone()
}

// Subscribe 返回一个“只保留最新值”的进度流：
// 慢消费者会丢掉中间快照，但一定能收到 Done=true 的最后一条，之后通道关闭。
func (h *Handle) Subscribe() <-chan domain.Progress {
	ch := make(chan domain.Progress, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	ch <- h.last
	if h.fin {
		close(ch)
		return ch
	}
	h.subs = append(h.subs, ch)
	return ch
}

// update 在锁内修改运行结果并广播新的进度。
func (h *Handle) update(fn func(r *domain.IngestionRun)) domain.Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.run)
	h.last = h.run.Progress(false)
	for _, ch := range h.subs {
		offer(ch, h.last)
	}
	return h.last
}

// finish 写入最终结果，发出 Done 进度并关闭所有订阅。done 由调用方在 OnFinish 之后关闭。
func (h *Handle) finish(fn func(r *domain.IngestionRun)) domain.IngestionRun {
	h.mu.Lock()
	fn(&h.run)
	h.last = h.run.Progress(true)
	for _, ch := range h.subs {
		offer(ch, h.last)
		close(ch)
	}
	h.subs = nil
	h.fin = true
	out := h.run.Clone()
	h.mu.Unlock()
	return out
}

// offer 向容量为 1 的通道写入最新值；满时先丢掉旧值。
// 只有持锁的单一写者调用，循环最多两轮。
func offer(ch chan domain.Progress, p domain.Progress) {
	for {
		select {
		case ch <- p:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
