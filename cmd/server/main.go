// Command server serves co-host and guest turns over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koscakluka/ema-duet/core/ratelimit"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/internal/config"
	"github.com/koscakluka/ema-duet/internal/providers"
	"github.com/koscakluka/ema-duet/internal/server"
	"github.com/koscakluka/ema-duet/internal/telemetry"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const sweepInterval = time.Minute

var logger = otelslog.NewLogger("github.com/koscakluka/ema-duet/cmd/server")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var logs io.Writer = os.Stdout
	if cfg.Telemetry.LogFile != "" {
		file, err := os.OpenFile(cfg.Telemetry.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer file.Close()
		logs = file
	}
	shutdownTelemetry, err := telemetry.Setup(ctx, "ema-duet-server", cfg.Telemetry.OTLPEndpoint, logs)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "failed to flush telemetry:", err)
		}
	}()

	store := sessions.New(
		sessions.WithTTL(cfg.Session.TTL()),
		sessions.WithMaxHistory(cfg.Session.MaxHistory),
		sessions.WithMaxSessions(cfg.Session.MaxSessions),
	)
	limiter := ratelimit.New(
		ratelimit.WithWindow(cfg.RateLimit.Window()),
		ratelimit.WithMaxRequests(cfg.RateLimit.MaxRequests),
	)
	go store.Run(ctx, sweepInterval)
	go limiter.Run(ctx, sweepInterval)

	srv := server.New(providers.NewPipeline(cfg, store), store, limiter)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(fmt.Sprintf(":%d", cfg.Port))
	}()
	logger.Info("server started",
		"port", cfg.Port,
		"transcription", cfg.Transcription.Provider,
		"tts", cfg.TTSProvider,
		"cohost", cfg.CoHost.Provider,
		"guest", cfg.Guest.Provider,
	)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
