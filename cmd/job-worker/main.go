// Package main 后台任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"novel-orchestrator/internal/config"
	einoobs "novel-orchestrator/internal/observability/eino"
	"novel-orchestrator/internal/wire"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    "job-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	einoobs.Init()
	logger.Debug(ctx, "eino callbacks registered", "registered", einoobs.Registered())

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := worker.Queue.Start(runCtx); err != nil {
		logger.Fatal(ctx, "failed to start consumers", err)
	}
	logger.Info(ctx, "job-worker started", "env", cfg.App.Env)

	<-runCtx.Done()
	logger.Info(ctx, "shutting down job-worker...")
	worker.Queue.Stop()
	logger.Info(ctx, "job-worker exited")
}
