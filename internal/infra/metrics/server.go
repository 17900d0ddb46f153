package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// StartServer 在 addr 上单独暴露 /metrics（CLI 一次性运行时使用；serve 模式挂在 API 路由上）。
// 返回的函数用于优雅关闭。
func (m *Metrics) StartServer(addr string, logger *slog.Logger) (shutdown func(context.Context) error) {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
