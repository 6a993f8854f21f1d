package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/iqstocker/entitlement-service/internal/http/response"
	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	entitlementsvc "github.com/iqstocker/entitlement-service/internal/services/entitlement"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
)

// Service описывает методы сервиса статусов подписки.
type Service interface {
	GetEntitlement(ctx context.Context, telegramID int64) (*entitlementsvc.Entitlement, error)
	IsEntitled(ctx context.Context, telegramID int64, feature entitlementsvc.Feature) (bool, error)
}

// Query параметры запроса статуса подписки.
type Query struct {
	Feature string `validate:"omitempty,oneof=analytics themes top_themes vip_group"`
}

// @Summary Получить статус подписки пользователя
// @Description Возвращает тариф, активность и срок подписки. С параметром feature дополнительно проверяет доступ к возможности
// @Tags entitlement
// @Produce json
// @Param telegram_id path int true "Telegram ID пользователя"
// @Param feature query string false "Возможность: analytics, themes, top_themes, vip_group"
// @Success 200 {object} map[string]interface{} "статус подписки"
// @Failure 400 {object} map[string]interface{} "Некорректный telegram_id"
// @Failure 404 {object} map[string]interface{} "Пользователь не найден"
// @Failure 422 {object} map[string]interface{} "Ошибка валидации параметров"
// @Router /users/{telegram_id}/entitlement [get]
// @Security BearerAuth
func New(log *slog.Logger, service Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.entitlement.status"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		telegramID, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
		if err != nil {
			log.Error("invalid telegram_id", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid telegram_id"))
			return
		}

		query := Query{Feature: r.URL.Query().Get("feature")}
		if err := validate.Struct(query); err != nil {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
			return
		}

		ent, err := service.GetEntitlement(r.Context(), telegramID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error("user not found"))
				return
			}
			log.Error("failed to get entitlement", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
			return
		}

		data := map[string]interface{}{
			"telegram_id": ent.TelegramID,
			"tier":        ent.Tier,
			"active":      ent.Active,
			"blocked":     ent.Blocked,
		}
		if ent.ExpiresAt != nil {
			data["expires_at"] = ent.ExpiresAt
		}

		if query.Feature != "" {
			entitled, err := service.IsEntitled(r.Context(), telegramID,
				entitlementsvc.Feature(query.Feature))
			if err != nil {
				log.Error("failed to check feature", sl.Err(err),
					slog.String("feature", query.Feature))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal error"))
				return
			}
			data["feature"] = query.Feature
			data["entitled"] = entitled
		}

		render.JSON(w, r, response.StatusOKWithData(data))
	}
}
