package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/John-Robertt/movieingest/internal/config"
	"github.com/John-Robertt/movieingest/internal/domain"
)

// emitSummary：stdout 非 TTY 时必须且仅输出一个 IngestionRun JSON（摘要走 stderr）。
func (c *cli) emitSummary(rep domain.IngestionRun) {
	if c.stdoutTTY {
		fmt.Fprintln(c.stdout, summaryLine(rep))
		for _, it := range rep.Failures {
			key := it.Key
			if key == "" {
				key = "<unknown>"
			}
			fmt.Fprintf(c.stderr, "%s %s %s: %s\n", key, it.Status, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rep)
	fmt.Fprintln(c.stderr, summaryLine(rep))
}

func summaryLine(rep domain.IngestionRun) string {
	s := fmt.Sprintf("完成：found=%d saved=%d skipped=%d errored=%d listing_errors=%d",
		rep.Found, rep.Saved, rep.Skipped, rep.Errored, rep.ListingErrors,
	)
	if rep.Cancelled {
		s += " (已取消)"
	}
	return s
}

// summaryForConfigError 让配置错误也遵守 stdout 只输出一个 JSON 的约定。
func summaryForConfigError(cli config.CLIArgs, err error) domain.IngestionRun {
	now := time.Now().UTC()
	rep := domain.IngestionRun{
		DryRun:     !(cli.Apply != nil && *cli.Apply),
		StartedAt:  now,
		FinishedAt: now,
	}
	rep.Record(domain.ItemResult{
		Status:    domain.StatusErrored,
		Stage:     domain.StagePending,
		ErrorCode: config.Code(err),
		ErrorMsg:  err.Error(),
	})
	rep.Finalize()
	return rep
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
