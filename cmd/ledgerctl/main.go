package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/backoffice/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/backoffice/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		slog.Default().Error("init jobs cli", slog.Any("error", err))
		os.Exit(1)
	}
	code := jobsCLI.Run(ctx, os.Args[1:], cli.Options{})
	if err := jobsCLI.Close(); err != nil {
		slog.Default().Warn("close jobs cli", slog.Any("error", err))
	}
	os.Exit(code)
}
