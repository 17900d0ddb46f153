package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// handleIngestionEvents 以 SSE 推送进度：
// 每个快照一条 "progress" 事件，运行结束后发一条携带最终汇总的 "done" 事件并关闭连接。
func (s *Server) handleIngestionEvents(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "ingestion not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		s.logger.Error("sse flush failed", "error", err)
		return
	}

	logger := s.logger.With("run_id", h.ID(), slog.String("request_id", middleware.GetReqID(r.Context())))
	sub := h.Subscribe()

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case p, ok := <-sub:
			if !ok {
				if err := sendEvent(w, rc, "done", h.Wait()); err != nil {
					logger.Debug("client disconnected before done", "error", err)
				}
				return
			}
			if err := sendEvent(w, rc, "progress", p); err != nil {
				logger.Debug("client disconnected", "error", err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func sendEvent(w http.ResponseWriter, rc *http.ResponseController, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	return rc.Flush()
}
