// worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
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
	logger := log.With(shared.NewLogger(cfg.LogLevel, cfg.LogFormat), "service", "worker")

	if err := run(cfg, logger); err != nil {
		level.Error(logger).Log("msg", "worker stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *shared.Config, logger log.Logger) error {
	if cfg.SharedInProcess() {
		return errors.New("a standalone worker needs a shared JOB_STORE and QUEUE_BACKEND; use EMBEDDED_WORKER=true on the gateway for in-memory mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := shared.OpenBackends(ctx, cfg, "worker", logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	processor := shared.NewProcessor(backends.DB, backends.Queue, backends.Store, backends.Translator, logger,
		shared.ProcessorOptions{
			MaxWorkers:    cfg.MaxWorkers,
			BatchMaxChars: cfg.BatchMaxChars,
			PublicBaseURL: cfg.PublicAPIBaseURL,
		})

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              ":" + cfg.WorkerPort,
		Handler:           healthRouter(processor),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := processor.Run(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("queue consumer stopped unexpectedly")
		}
		return nil
	})
	g.Go(func() error {
		level.Info(logger).Log("msg", "worker health endpoint listening", "addr", httpServer.Addr, "max_workers", processor.MaxWorkers())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// healthRouter exposes the Worker Service health check
func healthRouter(processor *shared.Processor) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		message := "Worker Service is healthy and consuming from queue."
		if processor.Active() == processor.MaxWorkers() {
			message = "Worker Service is healthy but all workers are currently busy."
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"message":        message,
			"active_workers": fmt.Sprintf("%d/%d", processor.Active(), processor.MaxWorkers()),
		})
	})
	return router
}
