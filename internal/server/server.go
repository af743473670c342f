// HTTP API 服务
// 同步估值接口直接调用估值核心，长流程交给 Temporal 工作流
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/biovalue-ai/fairvalue/internal/activity"
	"github.com/biovalue-ai/fairvalue/internal/repository"
	"github.com/biovalue-ai/fairvalue/pkg/config"
	"github.com/biovalue-ai/fairvalue/pkg/metrics"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// Options 服务依赖
type Options struct {
	Config   config.ServerConfig
	Logger   *zap.Logger
	Defaults activity.EngineDefaults
	Repo     repository.Repository
	Runs     Runner
	// Ready 就绪检查 (Redis 等外部依赖)，为空时总是就绪
	Ready func(ctx context.Context) error
}

// Server HTTP 服务
type Server struct {
	router   *chi.Mux
	server   *http.Server
	logger   *zap.Logger
	defaults activity.EngineDefaults
	repo     repository.Repository
	runs     Runner
	ready    func(ctx context.Context) error
}

// New 创建 HTTP 服务
func New(opts Options) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   opts.Logger.With(zap.String("component", "server")),
		defaults: opts.Defaults,
		repo:     opts.Repo,
		runs:     opts.Runs,
		ready:    opts.Ready,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         opts.Config.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.observe)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/valuations", func(r chi.Router) {
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/sensitivity", s.handleSensitivity)
			r.Post("/scenarios", s.handleScenarios)
			r.Post("/montecarlo", s.handleMonteCarlo)

			r.Post("/runs", s.handleStartRun)
			r.Get("/runs/{id}/progress", s.handleRunProgress)
		})

		r.Route("/saved", func(r chi.Router) {
			r.Get("/", s.handleListSaved)
			r.Post("/", s.handleSave)
			r.Get("/{id}", s.handleGetSaved)
			r.Delete("/{id}", s.handleDeleteSaved)
		})
	})
}

// Handler 返回路由 (测试与嵌入使用)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，阻塞直到关闭
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// observe 请求日志与时长指标，按路由模式聚合
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(duration.Seconds())

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", duration),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
