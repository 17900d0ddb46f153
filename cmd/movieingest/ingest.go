package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/John-Robertt/movieingest/internal/app/bootstrap"
	"github.com/John-Robertt/movieingest/internal/app/report"
	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/config"
	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/infra/logx"
	"github.com/John-Robertt/movieingest/internal/provider/idlist"
)

// ingestCmd 实现 run / recent / titles。
func (c *cli) ingestCmd(ctx context.Context, kind string, args []string) int {
	f := newFlags(kind, c.stderr).withStore().withIngest()
	var idFile string
	if kind == bootstrap.KindTitles {
		f.fs.StringVar(&idFile, "file", "", "IMDb ID 文件（每行一个或多个，# 为注释；- 表示 stdin）")
	}
	if err := f.parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	var ids []string
	if kind == bootstrap.KindTitles {
		var err error
		ids, err = collectIDs(f.fs.Args(), idFile)
		if err != nil {
			fmt.Fprintf(c.stderr, "读取 ID 列表失败：%v\n", err)
			return exitUsage
		}
		if len(ids) == 0 {
			fmt.Fprintln(c.stderr, "参数错误：titles 需要至少一个 IMDb ID（位置参数或 --file）")
			return exitUsage
		}
	} else if f.fs.NArg() > 0 {
		fmt.Fprintf(c.stderr, "参数错误：多余的参数 %q\n", f.fs.Args())
		return exitUsage
	}

	overrides := f.cliArgs()
	cfg, err := config.LoadEffective(c.cwd, overrides, c.env)
	if err != nil {
		c.emitSummary(summaryForConfigError(overrides, err))
		return exitFail
	}
	logger := logx.SetupTo(c.stderr, cfg.Logging.Level, cfg.Logging.Format)

	app, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(c.stderr, "初始化失败：%v\n", err)
		return exitFail
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close resources failed", "error", err)
		}
	}()

	if cfg.Metrics.Addr != "" {
		shutdown := app.Metrics.StartServer(cfg.Metrics.Addr, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	lister, err := app.Lister(kind, ids)
	if err != nil {
		fmt.Fprintf(c.stderr, "初始化列表来源失败：%v\n", err)
		return exitFail
	}

	var extra []run.Observer
	if c.progress != nil {
		extra = append(extra, newProgressUI(c.progress, cfg))
	}

	h, err := run.Start(ctx, app.RunConfig(), app.Deps(lister, extra...))
	if err != nil {
		fmt.Fprintf(c.stderr, "启动失败：%v\n", err)
		return exitFail
	}
	rep := h.Wait()

	// apply：写 <report_dir>/runs/<id>.json；dry-run 不落盘。
	if cfg.Apply {
		p, err := report.Save(cfg.ReportDir, rep)
		if err != nil {
			fmt.Fprintf(c.stderr, "写入运行汇总失败：%v\n", err)
			c.emitSummary(rep)
			return exitFail
		}
		logger.Debug("run report saved", slog.String("path", p))
	}

	c.emitSummary(rep)
	if c.progress != nil && cfg.Apply {
		fmt.Fprintf(c.progress, "report: %s\n", report.Path(cfg.ReportDir, rep.ID))
	}
	return exitCodeFor(rep)
}

func exitCodeFor(rep domain.IngestionRun) int {
	if rep.Errored == 0 && rep.ListingErrors == 0 && !rep.Cancelled {
		return exitOK
	}
	return exitFail
}

func collectIDs(args []string, file string) ([]string, error) {
	ids := append([]string(nil), args...)
	if file == "" {
		return ids, nil
	}
	r := os.Stdin
	if file != "-" {
		fh, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		r = fh
	}
	more, err := idlist.ReadIDs(r)
	if err != nil {
		return nil, err
	}
	return append(ids, more...), nil
}
