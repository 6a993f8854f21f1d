// Package health отдает состояние сервиса и его зависимостей.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/iqstocker/entitlement-service/internal/http/response"
	"github.com/iqstocker/entitlement-service/internal/lib/sl"
)

// Pinger описывает проверку доступности хранилища.
type Pinger interface {
	Ping() error
}

// @Summary Проверка состояния сервиса
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{} "сервис работает"
// @Failure 503 {object} map[string]interface{} "хранилище недоступно"
// @Router /health [get]
func New(log *slog.Logger, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.health"

		if err := db.Ping(); err != nil {
			log.Error("storage is not available", slog.String("op", op), sl.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("storage unavailable"))
			return
		}
		render.JSON(w, r, response.StatusOKWithData(map[string]interface{}{
			"status": "ok",
		}))
	}
}
