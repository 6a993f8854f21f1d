// Package entitlement собирает HTTP-приложение сервиса: вебхук платежей,
// read-only API статусов и квот, метрики и документацию.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/iqstocker/entitlement-service/internal/cache"
	"github.com/iqstocker/entitlement-service/internal/config"
	appjwt "github.com/iqstocker/entitlement-service/internal/lib/jwt"
	"github.com/iqstocker/entitlement-service/internal/migrations"
	entitlementservice "github.com/iqstocker/entitlement-service/internal/services/entitlement"
	groupaccessservice "github.com/iqstocker/entitlement-service/internal/services/groupaccess"
	paymentservice "github.com/iqstocker/entitlement-service/internal/services/payment"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
	"github.com/iqstocker/entitlement-service/internal/telegram"
)

// App HTTP-приложение сервиса.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
}

// New собирает приложение: хранилище, миграции, кэш, сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	tgClient, err := telegram.New(cfg.Telegram)
	if err != nil {
		return nil, err
	}

	maker := appjwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	paymentSvc := paymentservice.New(db, cacheRedis, logger, cfg.RenewalPeriodDays)
	groupAccessSvc := groupaccessservice.New(db, tgClient, logger,
		cfg.RemovalGracePeriod, cfg.RemovalNotificationEnabled)
	entitlementSvc := entitlementservice.New(db, cacheRedis, groupAccessSvc, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, maker, paymentSvc, entitlementSvc, db, cfg.WebhookSecret)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает HTTP-сервер и ждет отмены контекста или ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", slog.Any("err", closeErr))
		}
		return err
	}
}
