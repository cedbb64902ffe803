// Package main запускает HTTP-сервер сервиса sponsorpay.
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

	"github.com/mmeshcher/sponsorpay-system/internal/config"
	"github.com/mmeshcher/sponsorpay-system/internal/gateway"
	"github.com/mmeshcher/sponsorpay-system/internal/handler"
	"github.com/mmeshcher/sponsorpay-system/internal/mandate"
	"github.com/mmeshcher/sponsorpay-system/internal/repository"
	"github.com/mmeshcher/sponsorpay-system/internal/service"
	"github.com/mmeshcher/sponsorpay-system/internal/tracking"
)

// stripeAuthorizer адаптирует клиент платёжного шлюза к контракту
// авторизатора хранилища мандатов.
type stripeAuthorizer struct {
	client *gateway.Client
}

func (a *stripeAuthorizer) OpenAuthorization(ctx context.Context, req mandate.AuthorizationRequest) (*mandate.Authorization, error) {
	intent, err := a.client.CreatePaymentIntent(ctx, req.AmountCents, req.Currency, req.Description, req.Metadata)
	if err != nil {
		return nil, err
	}
	return &mandate.Authorization{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo tracking.Repository
	if cfg.DatabaseURI != "" {
		pgRepo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pgRepo
	} else {
		repo = repository.NewFileRepository(cfg.TrackingFile)
	}

	ledger := tracking.NewLedger(repo)

	var store *mandate.Store
	if cfg.PaymentProvider == config.ProviderStripe {
		client := gateway.NewClient(cfg.StripeAddress, cfg.StripeSecretKey)
		store = mandate.NewGatewayStore(&stripeAuthorizer{client: client})
	} else {
		store = mandate.NewMockStore()
	}

	svc := service.NewService(store, ledger, cfg.BaseURL)
	defer svc.Close()

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
		sugar.Infow("starting sponsorpay server",
			"addr", cfg.RunAddress,
			"provider", cfg.PaymentProvider,
		)
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
