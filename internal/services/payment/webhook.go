package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iqstocker/entitlement-service/internal/http/handlers/paymentwebhook"
	"github.com/iqstocker/entitlement-service/internal/models"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
	"github.com/iqstocker/entitlement-service/internal/tierresolver"
)

// События Tribute, которые сервис умеет обрабатывать.
const (
	EventNewSubscription       = "new_subscription"
	EventCancelledSubscription = "cancelled_subscription"
	EventNewDigitalProduct     = "new_digital_product"
)

// Курсы конвертации в евро. Все суммы в журнале хранятся в евро.
const (
	usdToEurRate = 0.92
	rubToEurRate = 0.01
)

// ProcessWebhookEvent разбирает событие Tribute и применяет платеж.
// Отмена подписки не трогает состояние: доступ отбирается по истечении
// оплаченного срока фоновой задачей. Неизвестное событие с данными
// пользователя обрабатывается как подписка — провайдер менял имена
// событий, терять платежи из-за этого нельзя.
func (s *Service) ProcessWebhookEvent(ctx context.Context, payload *paymentwebhook.Payload) error {
	const op = "services.payment.ProcessWebhookEvent"
	log := s.log.With(slog.String("op", op), slog.String("event", payload.EventName()))

	switch payload.EventName() {
	case EventNewSubscription:
		return s.applyFromWebhook(ctx, payload, true)
	case EventNewDigitalProduct:
		return s.applyFromWebhook(ctx, payload, false)
	case EventCancelledSubscription:
		log.Info("subscription cancelled by provider",
			slog.Int64("telegram_id", telegramID(payload)))
		return nil
	default:
		if telegramID(payload) != 0 {
			log.Warn("unknown event with user data, treating as subscription")
			return s.applyFromWebhook(ctx, payload, true)
		}
		log.Info("ignored webhook event")
		return nil
	}
}

func (s *Service) applyFromWebhook(ctx context.Context, payload *paymentwebhook.Payload, isSubscription bool) error {
	const op = "services.payment.applyFromWebhook"

	userID := telegramID(payload)
	if userID == 0 {
		return fmt.Errorf("%w: missing telegram user id", paymentwebhook.ErrRejected)
	}

	amountMinor := payload.Data.Amount
	if amountMinor == 0 {
		amountMinor = payload.Amount
	}
	if amountMinor == 0 {
		return fmt.Errorf("%w: missing amount", paymentwebhook.ErrRejected)
	}

	currency := strings.ToLower(payload.Data.Currency)
	if currency == "" {
		currency = strings.ToLower(payload.Currency)
	}

	tier, err := tierresolver.Resolve(payload.Data.SubscriptionName,
		payload.Data.ProductName, payload.Data.Name, payload.Data.Title)
	if errors.Is(err, tierresolver.ErrUnresolved) {
		return fmt.Errorf("%w: %w", paymentwebhook.ErrRejected, err)
	}

	cmd := models.ApplyPaymentCommand{
		PaymentID:  paymentID(payload, isSubscription),
		TelegramID: userID,
		AmountEUR:  amountToEUR(amountMinor, currency),
		Tier:       tier,
	}

	if isSubscription && payload.Data.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, payload.Data.ExpiresAt)
		if err == nil {
			expiresAt = expiresAt.UTC()
			cmd.ExpiresAt = &expiresAt
		} else {
			s.log.Warn("failed to parse expires_at, falling back to renewal period",
				slog.String("op", op), slog.String("expires_at", payload.Data.ExpiresAt))
		}
	}

	if _, err := s.Apply(ctx, cmd); err != nil {
		// Неизвестный пользователь — терминальный отказ: вебхук учетные
		// записи не создает, повторная доставка исход не изменит.
		if errors.Is(err, ErrInvalidCommand) || errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("%w: %w", paymentwebhook.ErrRejected, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func telegramID(payload *paymentwebhook.Payload) int64 {
	for _, id := range []int64{payload.Data.TelegramUserID, payload.Data.UserID,
		payload.TelegramUserID, payload.UserID} {
		if id != 0 {
			return id
		}
	}
	return 0
}

// paymentID выбирает идентификатор платежа в зависимости от типа события,
// при отсутствии синтезирует его: пустой payment_id сломал бы идемпотентность.
func paymentID(payload *paymentwebhook.Payload, isSubscription bool) string {
	var candidates []string
	if isSubscription {
		candidates = []string{payload.Data.SubscriptionID.String(), payload.ID.String()}
	} else {
		candidates = []string{payload.Data.OrderID.String(), payload.Data.ProductID.String(), payload.ID.String()}
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "generated_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func amountToEUR(amountMinor int64, currency string) float64 {
	amount := float64(amountMinor) / 100
	switch currency {
	case "usd":
		return amount * usdToEurRate
	case "rub":
		return amount * rubToEurRate
	default:
		// eur, пустая или неизвестная валюта трактуются как евро
		return amount
	}
}
