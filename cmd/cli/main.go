// ByteBox terminal workspace.
//
// Edit code in several files, pick a language and run the active file on a
// ByteBox execution backend.
//
// Usage:
//
//	export BYTEBOX_RUNNER_URL="http://localhost:5000"
//	go run ./cmd/cli
//
// Logs go to BYTEBOX_LOG_FILE (default bytebox.log) at LOG_LEVEL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mariozechner/bytebox/pkg/config"
	"github.com/mariozechner/bytebox/pkg/execution"
	"github.com/mariozechner/bytebox/pkg/language"
	"github.com/mariozechner/bytebox/pkg/runner"
	"github.com/mariozechner/bytebox/pkg/workspace"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Setup Logging
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	defer f.Close()

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.LogLevel})
	slog.SetDefault(slog.New(handler))
	slog.Info("Logging initialized", "level", cfg.LogLevel)

	// 2. Workspace
	ws, err := workspace.New(language.Default(), cfg.Language)
	if err != nil {
		slog.Error("Failed to create workspace", "error", err)
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	// 3. Execution backend
	client := execution.NewClient(cfg.RunnerURL, execution.WithTimeout(cfg.RunTimeout))
	slog.Info("Using execution backend", "url", cfg.RunnerURL, "timeout", cfg.RunTimeout)

	rn := runner.New(ws, client)

	p := tea.NewProgram(initialModel(ctx, rn, client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("Error running program", "error", err)
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
