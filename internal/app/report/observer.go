package report

import (
	"log/slog"
	"time"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/domain"
)

var _ run.Observer = (*Observer)(nil)

// Observer 在运行结束时保存汇总（serve 模式使用；CLI 直接调用 Save 以便决定退出码）。
type Observer struct {
	Dir    string
	Logger *slog.Logger
}

func (o *Observer) OnStart(domain.IngestionRun, run.Config) {}
func (o *Observer) OnPhaseDone(string, map[string]any, time.Duration) {}
func (o *Observer) OnFetch(string, string, int, error, time.Duration) {}
func (o *Observer) OnItemDone(domain.Progress, domain.ItemResult, time.Duration) {}

func (o *Observer) OnFinish(r domain.IngestionRun) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p, err := Save(o.Dir, r)
	if err != nil {
		logger.Error("save run report failed", "run_id", r.ID, "error", err)
		return
	}
	logger.Info("run report saved", "run_id", r.ID, "path", p)
}
