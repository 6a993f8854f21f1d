package events

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/iqstocker/entitlement-service/internal/http/response"
	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/models"
)

const defaultLimit = 20

// Service описывает методы сервиса журнала событий VIP-группы.
type Service interface {
	GetGroupEvents(ctx context.Context, telegramID int64, limit int) ([]*models.GroupEvent, error)
}

// Query параметры запроса журнала событий.
type Query struct {
	Limit int `validate:"min=1,max=500"`
}

// @Summary Получить события участия пользователя в VIP-группе
// @Description Возвращает последние записи журнала событий: вступления, удаления, разбаны
// @Tags entitlement
// @Produce json
// @Param telegram_id path int true "Telegram ID пользователя"
// @Param limit query int false "Максимум записей, по умолчанию 20"
// @Success 200 {object} map[string]interface{} "events_count: число, events: массив событий"
// @Failure 400 {object} map[string]interface{} "Некорректный telegram_id"
// @Failure 422 {object} map[string]interface{} "Ошибка валидации параметров"
// @Router /users/{telegram_id}/group-events [get]
// @Security BearerAuth
func New(log *slog.Logger, service Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.entitlement.events"

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

		query := Query{Limit: defaultLimit}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error("invalid limit"))
				return
			}
			query.Limit = parsed
		}
		if err := validate.Struct(query); err != nil {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
			return
		}

		groupEvents, err := service.GetGroupEvents(r.Context(), telegramID, query.Limit)
		if err != nil {
			log.Error("failed to list group events", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
			return
		}

		render.JSON(w, r, response.StatusOKWithData(map[string]interface{}{
			"events_count": len(groupEvents),
			"events":       groupEvents,
		}))
	}
}
