// Package payment применяет платежи из вебхуков провайдера к подпискам.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/metrics"
	"github.com/iqstocker/entitlement-service/internal/models"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
)

// ErrInvalidCommand платеж не прошел валидацию и не может быть применен.
var ErrInvalidCommand = errors.New("invalid payment command")

// Repository операции хранилища, нужные сервису платежей.
type Repository interface {
	ApplyPayment(ctx context.Context, cmd models.ApplyPaymentCommand, now time.Time, renewalDays int) (*models.ApplyPaymentResult, error)
}

// Cache инвалидация кэшированных ответов read-only API.
type Cache interface {
	InvalidateUser(telegramID int64) error
}

// Service применяет платежи и поддерживает кэш в согласованном состоянии.
type Service struct {
	repo        Repository
	cache       Cache
	log         *slog.Logger
	renewalDays int
}

// New создает сервис платежей.
func New(repo Repository, cache Cache, log *slog.Logger, renewalDays int) *Service {
	return &Service{
		repo:        repo,
		cache:       cache,
		log:         log,
		renewalDays: renewalDays,
	}
}

// Apply валидирует и применяет платеж. Платеж за неизвестного пользователя
// отклоняется: учетные записи создает только сам бот при /start, вебхук
// провайдера новых пользователей не заводит. Повторная доставка того же
// платежа возвращает результат со статусом PaymentAlreadyProcessed.
func (s *Service) Apply(ctx context.Context, cmd models.ApplyPaymentCommand) (*models.ApplyPaymentResult, error) {
	const op = "services.payment.Apply"
	log := s.log.With(slog.String("op", op), slog.String("payment_id", cmd.PaymentID))

	if err := validate(cmd); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	result, err := s.repo.ApplyPayment(ctx, cmd, now, s.renewalDays)
	if errors.Is(err, repository.ErrUserNotFound) {
		metrics.PaymentsRejected.WithLabelValues("user-not-found").Inc()
		log.Warn("payment for unknown user rejected",
			slog.Int64("telegram_id", cmd.TelegramID))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch result.Status {
	case models.PaymentAlreadyProcessed:
		metrics.PaymentsDuplicate.Inc()
		log.Info("duplicate payment delivery ignored")
	case models.PaymentApplied:
		metrics.PaymentsApplied.WithLabelValues(string(cmd.Tier)).Inc()
		log.Info("payment applied",
			slog.Int64("telegram_id", cmd.TelegramID),
			slog.String("tier", string(cmd.Tier)),
			slog.Bool("renewal", result.Renewal))
		if err := s.cache.InvalidateUser(cmd.TelegramID); err != nil {
			log.Warn("failed to invalidate cache", sl.Err(err))
		}
	}

	return result, nil
}

func validate(cmd models.ApplyPaymentCommand) error {
	switch {
	case cmd.PaymentID == "":
		return fmt.Errorf("%w: empty payment id", ErrInvalidCommand)
	case cmd.TelegramID == 0:
		return fmt.Errorf("%w: empty telegram id", ErrInvalidCommand)
	case !cmd.Tier.IsPaid():
		return fmt.Errorf("%w: tier %q is not payable", ErrInvalidCommand, cmd.Tier)
	case cmd.AmountEUR < 0:
		return fmt.Errorf("%w: negative amount", ErrInvalidCommand)
	}
	return nil
}
