// Package main API 网关入口：对外 HTTP 接口，按配置在进程内运行后台任务
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"novel-orchestrator/internal/config"
	einoobs "novel-orchestrator/internal/observability/eino"
	"novel-orchestrator/internal/wire"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/tracer"
)

// 构建时通过 -ldflags 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	if err := run(cfg); err != nil {
		logger.Fatal(context.Background(), "api-gateway exited with error", err)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	logger.Info(ctx, "starting api-gateway", "version", Version, "build_time", BuildTime, "env", cfg.App.Env)

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn(ctx, "tracer shutdown failed", "error", err.Error())
		}
	}()

	einoobs.Init()
	logger.Debug(ctx, "eino callbacks registered", "registered", einoobs.Registered())

	app, cleanup, err := wire.InitializeApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer cleanup()

	httpCfg := cfg.Server.HTTP
	srv := &http.Server{
		Addr:         net.JoinHostPort(httpCfg.Host, strconv.Itoa(httpCfg.Port)),
		Handler:      app.Engine(),
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
		IdleTimeout:  httpCfg.IdleTimeout,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if httpCfg.RunWorkers {
		if err := app.Queue.Start(sigCtx); err != nil {
			return fmt.Errorf("start background workers: %w", err)
		}
		logger.Info(ctx, "background workers started")
	}

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info(ctx, "http server starting", "addr", srv.Addr, "mode", app.Orchestrator.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down api-gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "http server forced to shutdown", "error", err.Error())
		}
		if err := app.Orchestrator.Wait(shutdownCtx); err != nil {
			logger.Warn(ctx, "in-flight generations did not finish", "error", err.Error())
		}
		if httpCfg.RunWorkers {
			app.Queue.Stop()
		}
		return nil
	})

	err = g.Wait()
	logger.Info(ctx, "api-gateway exited")
	return err
}
