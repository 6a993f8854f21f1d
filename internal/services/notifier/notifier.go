// Package notifier отправляет пользователям уведомления из очередей
// RabbitMQ: о смене тарифа, реферальном бонусе и удалении из VIP-группы.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/models"
)

// Messenger описывает отправку личных сообщений в Telegram.
type Messenger interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
}

// Service сервис отправки уведомлений.
type Service struct {
	messenger Messenger
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(messenger Messenger, log *slog.Logger) *Service {
	return &Service{
		messenger: messenger,
		log:       log,
	}
}

// SendTransitionNotice уведомляет пользователя о переводе на тариф FREE.
func (s *Service) SendTransitionNotice(body []byte) error {
	var notice models.TransitionNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		s.log.Error("failed to unmarshal transition notice", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	text := fmt.Sprintf(
		"Срок вашей подписки %s истек, вы переведены на тариф FREE.\n\n"+
			"Продлите подписку, чтобы вернуть расширенные лимиты и доступ к VIP-группе.",
		notice.FromTier)
	if notice.ToTier != models.SubscriptionFree {
		text = fmt.Sprintf("Ваш тариф изменен: %s → %s.", notice.FromTier, notice.ToTier)
	}

	return s.send(notice.TelegramID, text)
}

// SendReferralNotice уведомляет реферера о начислении бонуса.
func (s *Service) SendReferralNotice(body []byte) error {
	var notice models.ReferralNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		s.log.Error("failed to unmarshal referral notice", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	text := fmt.Sprintf(
		"Приглашенный вами пользователь оформил подписку!\n\n"+
			"Вам начислено %d баллов, текущий баланс: %d.",
		notice.Points, notice.Balance)

	return s.send(notice.ReferrerTelegramID, text)
}

// SendRemovalNotice уведомляет пользователя об удалении из VIP-группы.
func (s *Service) SendRemovalNotice(body []byte) error {
	var notice models.RemovalNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		s.log.Error("failed to unmarshal removal notice", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	text := "Доступ к VIP-группе приостановлен: подписка истекла.\n\n" +
		"Оформите подписку заново, и доступ вернется автоматически."

	return s.send(notice.TelegramID, text)
}

func (s *Service) send(telegramID int64, text string) error {
	if err := s.messenger.SendMessage(context.Background(), telegramID, text); err != nil {
		s.log.Error("failed to send notification", sl.Err(err),
			slog.Int64("telegram_id", telegramID))
		return err
	}
	s.log.Info("notification sent", slog.Int64("telegram_id", telegramID))
	return nil
}
