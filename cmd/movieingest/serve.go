package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/John-Robertt/movieingest/internal/api"
	"github.com/John-Robertt/movieingest/internal/app/bootstrap"
	"github.com/John-Robertt/movieingest/internal/app/report"
	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/config"
	"github.com/John-Robertt/movieingest/internal/infra/logx"
)

func (c *cli) serveCmd(ctx context.Context, args []string) int {
	f := newFlags("serve", c.stderr).withStore().withIngest().withListen()
	if err := f.parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if f.fs.NArg() > 0 {
		fmt.Fprintf(c.stderr, "参数错误：多余的参数 %q\n", f.fs.Args())
		return exitUsage
	}

	cfg, err := config.LoadEffective(c.cwd, f.cliArgs(), c.env)
	if err != nil {
		fmt.Fprintf(c.stderr, "配置错误[%s]：%v\n", config.Code(err), err)
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

	srv := api.New(api.Options{
		Launch:  launcher(app),
		Store:   app.Store,
		Metrics: app.Metrics.Handler(),
		Logger:  logger,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Listen, "apply", cfg.Apply)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", "error", err)
			return exitFail
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// 先结束运行（SSE 连接随 done 事件关闭），再关 HTTP。
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("active run did not finish in time", "error", err)
	}
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
		return exitFail
	}
	return exitOK
}

// launcher 把 API 请求映射为一次运行；apply 时运行结束后保存汇总。
func launcher(app *bootstrap.App) api.Launcher {
	return func(ctx context.Context, req api.IngestRequest) (*run.Handle, error) {
		l, err := app.Lister(req.Kind, req.IDs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", api.ErrRejected, err)
		}
		cfg := app.RunConfig()
		if req.YearsBack > 0 {
			cfg.YearsBack = req.YearsBack
		}
		if req.MaxPagesPerYear > 0 {
			cfg.MaxPagesPerYear = req.MaxPagesPerYear
		}
		var extra []run.Observer
		if app.Config.Apply {
			extra = append(extra, &report.Observer{Dir: app.Config.ReportDir, Logger: app.Logger.With(slog.String("component", "report"))})
		}
		return run.Start(ctx, cfg, app.Deps(l, extra...))
	}
}
