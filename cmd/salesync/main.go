// Package main запускает HTTP-сервер сервиса синхронизации котировок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/salesync-system/internal/config"
	"github.com/mmeshcher/salesync-system/internal/gateway"
	"github.com/mmeshcher/salesync-system/internal/handler"
	"github.com/mmeshcher/salesync-system/internal/hubspot"
	"github.com/mmeshcher/salesync-system/internal/repository"
	"github.com/mmeshcher/salesync-system/internal/service"
	"github.com/mmeshcher/salesync-system/internal/shopify"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	if cfg.HubspotToken == "" {
		sugar.Fatalw("configuration error", "error", "HubSpot token is required")
	}
	if cfg.ShopifyBaseURL == "" || cfg.ShopifyToken == "" {
		sugar.Fatalw("configuration error", "error", "Shopify address and token are required")
	}

	var runs service.RunRepository
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer repo.Close()
		runs = repo
	} else {
		sugar.Info("database URI is empty, sync run history disabled")
	}

	gw := gateway.New(cfg.HubspotBaseURL, cfg.HubspotToken, cfg.GatewayPool, logger)
	if cfg.GatewayMinGap > 0 {
		gw.SetMinGap(cfg.GatewayMinGap)
	}

	crm := hubspot.NewClient(gw, logger)
	commerce := shopify.NewClient(cfg.ShopifyBaseURL, cfg.ShopifyToken, logger)

	svc := service.NewService(crm, commerce, runs, logger)

	h := handler.NewHandler(svc, logger)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting salesync server", "addr", cfg.RunAddress)
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
