// Command server runs the ByteBox execution backend.
//
// It serves POST /run/{language} backed by per-language docker runner images,
// the language registry, health and metrics endpoints, and a WebSocket
// workspace at /api/workspace.
//
// Usage:
//
//	BYTEBOX_ADDR=:5000 go run ./cmd/server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/mariozechner/bytebox/pkg/config"
	"github.com/mariozechner/bytebox/pkg/language"
	"github.com/mariozechner/bytebox/pkg/sandbox/docker"
	"github.com/mariozechner/bytebox/pkg/server"
)

func main() {
	cfg := config.Load()

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	slog.SetDefault(slog.New(handler))
	slog.Info("Logging initialized", "level", cfg.LogLevel)

	languages := language.Default()
	if !languages.Has(cfg.Language) {
		slog.Error("Unknown default language", "language", cfg.Language, "available", languages.IDs())
		os.Exit(1)
	}

	sb, err := docker.New(
		docker.WithImages(cfg.ImagesWith(docker.DefaultImages)),
		docker.WithTimeout(cfg.SandboxTimeout),
	)
	if err != nil {
		slog.Error("Failed to initialize sandbox manager", "error", err)
		os.Exit(1)
	}
	defer sb.Close()

	srv := server.New(sb, languages,
		server.WithRateLimit(rate.Every(cfg.RateInterval), cfg.RateBurst),
		server.WithTrustProxy(cfg.TrustProxy),
		server.WithExecutor(server.NewSandboxExecutor(sb).WithTimeout(cfg.RunTimeout)),
		server.WithDefaultLanguage(cfg.Language),
	)

	go func() {
		if err := srv.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}
