// Package api 以 HTTP 暴露摄取运行：启动、查询、进度流（SSE）、入库统计与健康检查。
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/store"
)

// ErrRejected 由 Launcher 包装“请求本身不可执行”的错误（映射为 400）。
var ErrRejected = errors.New("request rejected")

// IngestRequest 是 POST /api/v1/ingestions 的请求体。
type IngestRequest struct {
	Kind            string   `json:"kind" validate:"omitempty,oneof=years recent titles"`
	IDs             []string `json:"ids" validate:"required_if=Kind titles,max=1000,dive,required"`
	YearsBack       int      `json:"years_back" validate:"omitempty,gte=1,lte=100"`
	MaxPagesPerYear int      `json:"max_pages_per_year" validate:"omitempty,gte=1,lte=1000"`
}

// Launcher 启动一次运行。ctx 的生命周期是服务器而不是请求。
type Launcher func(ctx context.Context, req IngestRequest) (*run.Handle, error)

// Options 配置 Server。
type Options struct {
	Launch  Launcher
	Store   store.Store
	Metrics http.Handler // nil 时不挂载 /metrics
	Logger  *slog.Logger

	// Heartbeat 是 SSE 心跳间隔；<=0 取 15s。
	Heartbeat time.Duration
	// History 是保留的运行句柄数；<=0 取 50。
	History int
}

// Server 同一时刻只允许一个运行。
type Server struct {
	router   chi.Router
	opts     Options
	logger   *slog.Logger
	validate *validator.Validate

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active *run.Handle
	runs   map[string]*run.Handle
	order  []string
}

// New 创建 Server 并注册路由。
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.History <= 0 {
		opts.History = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:   chi.NewRouter(),
		opts:     opts,
		logger:   opts.Logger.With("component", "api"),
		validate: newValidator(),
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*run.Handle),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/ingestions", func(r chi.Router) {
			r.Post("/", s.handleStartIngestion)
			r.Get("/", s.handleListIngestions)
			r.Get("/{id}", s.handleGetIngestion)
			r.Delete("/{id}", s.handleCancelIngestion)
			r.Get("/{id}/events", s.handleIngestionEvents)
		})
		r.Get("/movies/count", s.handleCountMovies)
	})
}

// ServeHTTP 实现 http.Handler。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown 取消进行中的运行并等待其结束（已暂存的记录仍会写入）。
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) lookup(id string) (*run.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.runs[id]
	return h, ok
}

// remember 记录句柄；超出 History 时淘汰最旧且已结束的运行。调用方持锁。
func (s *Server) remember(h *run.Handle) {
	s.runs[h.ID()] = h
	s.order = append(s.order, h.ID())
	for len(s.order) > s.opts.History {
		old := s.runs[s.order[0]]
		if old != nil && !isDone(old) {
			break
		}
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func isDone(h *run.Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

// requestLogger 用 slog 记录每个请求（chi 自带的 Logger 只支持标准 log）。
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
