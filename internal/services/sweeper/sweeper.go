// Package sweeper содержит фоновую задачу перевода пользователей
// с истекшей подпиской на тариф FREE.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/metrics"
	"github.com/iqstocker/entitlement-service/internal/models"
)

// Repository описывает методы хранилища, нужные для сверки сроков подписок.
type Repository interface {
	FindExpiredUsers(ctx context.Context, now time.Time) ([]*models.User, error)
	DowngradeToFree(ctx context.Context, userID int64, now time.Time) (bool, error)
}

// Cache описывает инвалидацию кэша после смены тарифа.
type Cache interface {
	InvalidateUser(telegramID int64) error
}

// Service периодически находит истекшие подписки и понижает тариф.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Run запускает периодическую сверку. Первый проход выполняется сразу,
// дальше по тикеру до отмены контекста.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Service) runSweep(ctx context.Context) {
	s.log.Info("starting expired subscriptions sweep")
	downgraded, err := s.Sweep(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("sweep failed", sl.Err(err))
		return
	}
	s.log.Info("sweep finished", "downgraded", downgraded)
}

// Sweep понижает всех пользователей с истекшей подпиской до FREE и
// возвращает количество понижений. Каждый пользователь обрабатывается
// отдельной транзакцией: гонка с параллельным продлением разрешается
// повторной проверкой срока под блокировкой, такие пользователи
// пропускаются без ошибки.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	const op = "services.sweeper.Sweep"

	users, err := s.repo.FindExpiredUsers(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(users) == 0 {
		return 0, nil
	}

	var downgraded int
	for _, user := range users {
		ok, err := s.repo.DowngradeToFree(ctx, user.ID, now)
		if err != nil {
			s.log.Error("failed to downgrade user", sl.Err(err),
				slog.Int64("telegram_id", user.TelegramID))
			continue
		}
		if !ok {
			// Подписку успели продлить между выборкой и блокировкой.
			continue
		}

		downgraded++
		metrics.UsersDowngraded.Inc()

		if err := s.cache.InvalidateUser(user.TelegramID); err != nil {
			s.log.Warn("failed to invalidate cache", sl.Err(err),
				slog.Int64("telegram_id", user.TelegramID))
		}
	}
	return downgraded, nil
}
