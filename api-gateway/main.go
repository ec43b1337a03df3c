// api-gateway/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"translator-api-scalable/shared"
)

func main() {
	shared.LoadDotEnv(log.NewNopLogger())
	cfg := shared.LoadConfig()
	logger := log.With(shared.NewLogger(cfg.LogLevel, cfg.LogFormat), "service", "api-gateway")

	if err := run(cfg, logger); err != nil {
		level.Error(logger).Log("msg", "api gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *shared.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := shared.OpenBackends(ctx, cfg, "gateway", logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	var processor *shared.Processor
	if cfg.EmbeddedWorker {
		processor = shared.NewProcessor(backends.DB, backends.Queue, backends.Store, backends.Translator,
			log.With(logger, "component", "embedded-worker"),
			shared.ProcessorOptions{
				MaxWorkers:    cfg.MaxWorkers,
				BatchMaxChars: cfg.BatchMaxChars,
				PublicBaseURL: cfg.PublicAPIBaseURL,
			})
	} else if cfg.SharedInProcess() {
		level.Warn(logger).Log("msg", "in-memory job store or queue without EMBEDDED_WORKER; a separate worker process will not see these jobs")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := newServer(cfg, backends, shared.NewRateLimiter(cfg.RateLimitRPM, backends.Redis), processor, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.APIGatewayPort,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		level.Info(logger).Log("msg", "api gateway listening", "addr", httpServer.Addr, "embedded_worker", cfg.EmbeddedWorker)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		level.Info(logger).Log("msg", "shutting down api gateway")
		return httpServer.Shutdown(shutdownCtx)
	})
	if processor != nil {
		g.Go(func() error {
			return processor.Run(gctx)
		})
	}
	return g.Wait()
}
