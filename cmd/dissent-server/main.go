// Command dissent-server runs the debate pipeline behind an HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/richardspicer/questionable-ai/internal/telemetry"
	"github.com/richardspicer/questionable-ai/pkg/dissent"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	addr := flag.String("addr", "", "Listen address (default: configured server port).")
	configPath := flag.String("config", "", "Path to a config file.")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("questionable-ai", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	opts := []dissent.Option{dissent.WithLogger(logger)}
	if *configPath != "" {
		opts = append(opts, dissent.WithConfigFile(*configPath))
	}
	if *addr != "" {
		opts = append(opts, dissent.WithListenAddr(*addr))
	}
	app, err := dissent.New(opts...)
	if err != nil {
		log.Fatalf("Failed to assemble pipeline: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	case <-sigCh:
	}

	logger.Info("shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
