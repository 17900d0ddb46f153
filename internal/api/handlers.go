package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.opts.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartIngestion(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	// 空请求体等同于 {}：按配置的默认来源跑一次年份列表。
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	// 持锁启动：并发请求最多只有一个成功。
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && !isDone(s.active) {
		writeError(w, http.StatusConflict, "run_in_progress", "run "+s.active.ID()+" is still running")
		return
	}
	h, err := s.opts.Launch(s.ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrRejected), errors.Is(err, run.ErrInvalidConfig):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			s.logger.Error("start ingestion failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "start_failed", err.Error())
		}
		return
	}
	s.active = h
	s.remember(h)
	s.logger.Info("ingestion started", "run_id", h.ID(), "kind", req.Kind)

	w.Header().Set("Location", "/api/v1/ingestions/"+h.ID())
	writeJSON(w, http.StatusAccepted, h.Snapshot())
}

func (s *Server) handleListIngestions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]domain.IngestionRun, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if h, ok := s.runs[s.order[i]]; ok {
			out = append(out, h.Snapshot())
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleGetIngestion(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "ingestion not found")
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

func (s *Server) handleCancelIngestion(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "ingestion not found")
		return
	}
	h.Cancel()
	writeJSON(w, http.StatusAccepted, h.Snapshot())
}

func (s *Server) handleCountMovies(w http.ResponseWriter, r *http.Request) {
	var f store.CountFilter
	for name, dst := range map[string]*bool{
		"with_poster":      &f.WithPoster,
		"with_description": &f.WithDescription,
		"with_cast":        &f.WithCast,
	} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", name+" must be a boolean")
			return
		}
		*dst = b
	}
	n, err := s.opts.Store.Count(r.Context(), f)
	if err != nil {
		s.logger.Error("count movies failed", "error", err)
		writeError(w, http.StatusInternalServerError, "persist_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n, "filter": f})
}
