package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

func main() {
	down := flag.Int("down", 0, "roll back N migrations instead of applying")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if *down > 0 {
		err = db.MigrateDown(cfg.PGDSN, *down, logger)
	} else {
		err = db.Migrate(cfg.PGDSN, logger)
	}
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
}
