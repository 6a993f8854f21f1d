package entitlement

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/iqstocker/entitlement-service/internal/http/handlers/entitlement/events"
	"github.com/iqstocker/entitlement-service/internal/http/handlers/entitlement/limits"
	"github.com/iqstocker/entitlement-service/internal/http/handlers/entitlement/status"
	"github.com/iqstocker/entitlement-service/internal/http/handlers/health"
	"github.com/iqstocker/entitlement-service/internal/http/handlers/paymentwebhook"
	"github.com/iqstocker/entitlement-service/internal/http/middlewarectx"
	appjwt "github.com/iqstocker/entitlement-service/internal/lib/jwt"
	entitlementservice "github.com/iqstocker/entitlement-service/internal/services/entitlement"
	paymentservice "github.com/iqstocker/entitlement-service/internal/services/payment"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, maker appjwt.Maker,
	paymentSvc *paymentservice.Service, entitlementSvc *entitlementservice.Service,
	db *repository.Storage, webhookSecret string) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Вебхук аутентифицируется подписью тела, без JWT.
		r.Post("/payments/webhook",
			paymentwebhook.New(logger, paymentSvc, webhookSecret).ServeHTTP)

		// Read-only API для бота и админки.
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/users/{telegram_id}/entitlement", status.New(logger, entitlementSvc))
			r.Get("/users/{telegram_id}/limits", limits.New(logger, entitlementSvc))
			r.Get("/users/{telegram_id}/group-events", events.New(logger, entitlementSvc))
		})
	})

	r.Get("/health", health.New(logger, db))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
