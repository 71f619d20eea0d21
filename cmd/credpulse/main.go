// Package main запускает HTTP-сервер платформы вознаграждений credpulse.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/credpulse-system/internal/config"
	"github.com/mmeshcher/credpulse-system/internal/dispatch"
	"github.com/mmeshcher/credpulse-system/internal/handler"
	"github.com/mmeshcher/credpulse-system/internal/middleware"
	"github.com/mmeshcher/credpulse-system/internal/paypal"
	"github.com/mmeshcher/credpulse-system/internal/repository"
	"github.com/mmeshcher/credpulse-system/internal/service"
)

func main() {
	// Локальный .env необязателен
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	paypalClient := paypal.NewClient(cfg.PayPalAPIBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
	dispatcher := dispatch.NewDispatcher(repo, paypalClient, logger, cfg.DispatchBatchSize)

	svc := service.NewService(repo)
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is not set, using a random key: sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, dispatcher, logger, authMiddleware, cfg.StaleProcessingAfter)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск периодической отправки одобренных выплат
	if cfg.PayPalAPIBaseURL != "" && cfg.DispatchInterval > 0 {
		g.Go(func() error {
			sugar.Infow("starting payout dispatcher", "interval", cfg.DispatchInterval.String())
			return dispatcher.StartScheduler(ctx, cfg.DispatchInterval)
		})
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting credpulse server", "addr", cfg.RunAddress)
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
