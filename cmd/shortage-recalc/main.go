// Package main пересчитывает недостачи всех заказов по сохранённым подтверждениям.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gioigioi124/elanAI/internal/config"
	"github.com/gioigioi124/elanAI/internal/repository"
	"github.com/gioigioi124/elanAI/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Errorw("configuration error", "error", err.Error())
		return 1
	}
	if cfg.DatabaseURI == "" {
		sugar.Error("DATABASE_URI is required")
		return 1
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Errorw("database initialization error", "error", err.Error())
		return 1
	}

	svc := service.NewService(repo, logger)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := svc.RecalculateAll(ctx)
	if err != nil {
		sugar.Errorw("recalculation aborted", "error", err)
		return 1
	}

	sugar.Infow("recalculation finished",
		"scanned", summary.Scanned,
		"changed", summary.Changed,
		"failed", len(summary.Failures),
	)
	if len(summary.Failures) > 0 {
		return 1
	}
	return 0
}
