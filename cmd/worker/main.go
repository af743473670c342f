// FairValue Worker 入口
// 启动 Temporal Worker、HTTP API 与 gRPC 健康检查
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/biovalue-ai/fairvalue/internal/activity"
	"github.com/biovalue-ai/fairvalue/internal/repository"
	"github.com/biovalue-ai/fairvalue/internal/server"
	"github.com/biovalue-ai/fairvalue/internal/workflow"
	"github.com/biovalue-ai/fairvalue/pkg/cache"
	"github.com/biovalue-ai/fairvalue/pkg/config"
	"github.com/biovalue-ai/fairvalue/pkg/logging"
	"github.com/biovalue-ai/fairvalue/pkg/tracing"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger, err := logging.NewLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化 Tracing
	if cfg.System.Version != "" {
		tracing.Version = cfg.System.Version
	}
	tp, err := tracing.InitTracer(cfg.Observability.Tracing, cfg.System.ServiceName)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	// 启动 Metrics 服务器
	if cfg.Observability.Metrics.Enabled {
		go startMetricsServer(cfg.Observability.Metrics, logger)
	}

	// Redis: 估值缓存 + 已保存估值
	redisCache, err := cache.NewRedisCache(cfg.Storage.Redis)
	if err != nil {
		logger.Fatal("Failed to create Redis cache", logging.ErrorFields(err)...)
	}
	defer redisCache.Close()
	repo := repository.NewRedisRepository(redisCache)

	// 创建 Temporal 客户端
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	// 创建 Worker
	activities := activity.New(cfg, logger, redisCache, repo)
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.Worker.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.Worker.MaxConcurrentWorkflows,
	})

	// 注册工作流
	w.RegisterWorkflow(workflow.FairValueWorkflow)
	w.RegisterWorkflow(workflow.RiskAnalysisWorkflow) // 风险分析子工作流

	// 注册活动
	w.RegisterActivity(activities)

	// gRPC 健康检查
	grpcServer, health := server.NewHealthServer()
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		logger.Fatal("Failed to listen for gRPC health", zap.Error(err))
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC health server failed", zap.Error(err))
		}
	}()

	// HTTP API
	api := server.New(server.Options{
		Config:   cfg.Server,
		Logger:   logger,
		Defaults: activity.NewEngineDefaults(cfg.Engine),
		Repo:     repo,
		Runs:     server.NewTemporalRunner(c, cfg.Temporal.TaskQueue),
		Ready:    redisCache.Ping,
	})
	go func() {
		if err := api.Start(); err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// 启动 Worker
	logger.Info("Starting FairValue Worker",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("env", cfg.System.Env),
		zap.String("http_addr", cfg.Server.HTTPAddr),
	)
	if err := w.Start(); err != nil {
		logger.Fatal("Worker failed to start", zap.Error(err))
	}
	server.SetServing(health, true)

	// 优雅关闭
	<-worker.InterruptCh()
	logger.Info("Received shutdown signal, gracefully stopping...")
	server.SetServing(health, false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.System.ShutdownTimeout)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	grpcServer.GracefulStop()
	w.Stop()

	logger.Info("Worker stopped")
}

func startMetricsServer(cfg config.MetricsConfig, logger *zap.Logger) {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting metrics server", zap.String("addr", addr), zap.String("path", path))

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}
