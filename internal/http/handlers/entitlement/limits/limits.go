package limits

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/iqstocker/entitlement-service/internal/http/response"
	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/models"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
)

// Service описывает методы сервиса квот.
type Service interface {
	GetLimits(ctx context.Context, telegramID int64) (*models.Limits, error)
}

// @Summary Получить остатки квот пользователя
// @Description Возвращает выданные и израсходованные квоты по всем видам
// @Tags entitlement
// @Produce json
// @Param telegram_id path int true "Telegram ID пользователя"
// @Success 200 {object} map[string]interface{} "квоты пользователя"
// @Failure 400 {object} map[string]interface{} "Некорректный telegram_id"
// @Failure 404 {object} map[string]interface{} "Пользователь не найден"
// @Router /users/{telegram_id}/limits [get]
// @Security BearerAuth
func New(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.entitlement.limits"

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

		userLimits, err := service.GetLimits(r.Context(), telegramID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error("user not found"))
				return
			}
			log.Error("failed to get limits", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
			return
		}

		render.JSON(w, r, response.StatusOKWithData(map[string]interface{}{
			"analytics": map[string]int{
				"total":     userLimits.AnalyticsTotal,
				"used":      userLimits.AnalyticsUsed,
				"remaining": userLimits.Remaining(models.QuotaAnalytics),
			},
			"themes": map[string]int{
				"total":     userLimits.ThemesTotal,
				"used":      userLimits.ThemesUsed,
				"remaining": userLimits.Remaining(models.QuotaThemes),
			},
			"top_themes": map[string]int{
				"total":     userLimits.TopThemesTotal,
				"used":      userLimits.TopThemesUsed,
				"remaining": userLimits.Remaining(models.QuotaTopThemes),
			},
			"theme_cooldown_days": userLimits.ThemeCooldownDays,
		}))
	}
}
