// Package referral начисляет бонус рефереру после первого платежа
// приглашенного пользователя.
package referral

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iqstocker/entitlement-service/internal/metrics"
	"github.com/iqstocker/entitlement-service/internal/models"
)

// Repository описывает начисление бонуса в хранилище.
type Repository interface {
	AwardReferralBonus(ctx context.Context, userID int64, points int, now time.Time) (*models.ReferralAwardResult, error)
}

// Service сервис реферальных начислений.
type Service struct {
	repo   Repository
	log    *slog.Logger
	points int
}

// New создает новый экземпляр Service. points — размер бонуса за
// первый платеж приглашенного.
func New(repo Repository, log *slog.Logger, points int) *Service {
	return &Service{
		repo:   repo,
		log:    log,
		points: points,
	}
}

// AwardIfEligible начисляет бонус рефереру плательщика, если он положен.
// Повторный вызов по тому же плательщику безопасен: бонус платится один раз.
func (s *Service) AwardIfEligible(ctx context.Context, payerID int64) (*models.ReferralAwardResult, error) {
	const op = "services.referral.AwardIfEligible"

	result, err := s.repo.AwardReferralBonus(ctx, payerID, s.points, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch result.Status {
	case models.ReferralAwarded:
		metrics.ReferralAwards.Inc()
		s.log.Info("referral bonus awarded",
			slog.Int64("payer_id", payerID),
			slog.Int64("referrer_telegram_id", result.ReferrerTelegramID),
			slog.Int("points", s.points))
	case models.ReferralSkipped:
		s.log.Debug("referral bonus skipped",
			slog.Int64("payer_id", payerID),
			slog.String("reason", result.Reason))
	}
	return result, nil
}
