// Package main запускает HTTP-сервер сервиса учёта недостач и дозаказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gioigioi124/elanAI/internal/config"
	"github.com/gioigioi124/elanAI/internal/debt"
	"github.com/gioigioi124/elanAI/internal/events"
	"github.com/gioigioi124/elanAI/internal/handler"
	"github.com/gioigioi124/elanAI/internal/middleware"
	"github.com/gioigioi124/elanAI/internal/repository"
	"github.com/gioigioi124/elanAI/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is not set, using in-memory store")
		repo = repository.NewMemoryRepository()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []service.Option{
		service.WithPublisher(events.New(cfg.KafkaBrokers, cfg.KafkaTopic)),
		service.WithMetrics(registry),
	}
	if cfg.DebtServiceAddress != "" {
		opts = append(opts, service.WithDebtChecker(debt.NewClient(cfg.DebtServiceAddress, logger)))
	} else {
		sugar.Warn("DEBT_SERVICE_ADDRESS is not set, debt limit checks are disabled")
	}

	svc := service.NewService(repo, logger, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("service close error", "error", err)
		}
	}()

	if cfg.UsesDefaultSecret() {
		sugar.Warn("AUTH_SECRET is not set, using development secret")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware,
		handler.WithMetrics(registry),
		handler.WithCORSOrigins(cfg.CORSOrigins),
	)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting fulfillment server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
