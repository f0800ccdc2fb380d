package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trajectorie/inference-queue/internal/api"
	"github.com/trajectorie/inference-queue/internal/config"
	"github.com/trajectorie/inference-queue/internal/platform/gemini"
	"github.com/trajectorie/inference-queue/internal/platform/logger"
	"github.com/trajectorie/inference-queue/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)

	invoker, err := gemini.NewInvoker(context.Background(), log, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create inference invoker: %w", err)
	}

	engine := queue.New(invoker, queue.Config{
		Bound:              cfg.Queue.Bound,
		DefaultMaxAttempts: cfg.Queue.DefaultMaxAttempts,
		Retry: queue.RetryPolicy{
			BaseDelay: time.Duration(cfg.Queue.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:  time.Duration(cfg.Queue.RetryMaxDelayMs) * time.Millisecond,
			Jitter:    cfg.Queue.RetryJitter,
		},
		SeedServiceTime: time.Duration(cfg.Queue.SeedServiceTimeMs) * time.Millisecond,
	}, log)
	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start queue engine: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(engine, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	log.Info("server listening", "port", cfg.Server.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		engine.Stop()
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	// settle in-flight inference calls before exiting
	engine.Stop()
	log.Info("shutdown complete")
	return nil
}
