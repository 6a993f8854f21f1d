package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iqstocker/entitlement-service/internal/models"
	"github.com/iqstocker/entitlement-service/internal/tariff"
)

// ApplyPayment применяет платеж к подписке пользователя в одной транзакции
// с блокировкой его строки. Повторная доставка платежа с тем же payment_id
// возвращает PaymentAlreadyProcessed и ничего не меняет. Продление того же
// тарифа прибавляет квоты, смена тарифа заменяет их и обнуляет used.
// Побочные эффекты (проверка реферала, возврат доступа в группу, уведомление
// о смене тарифа) записываются в outbox той же транзакцией.
func (s *Storage) ApplyPayment(ctx context.Context, cmd models.ApplyPaymentCommand, now time.Time, renewalDays int) (*models.ApplyPaymentResult, error) {
	const op = "storage.ApplyPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1 FOR UPDATE`
	user, err := scanUser(tx.QueryRowContext(ctx, query, cmd.TelegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Проверка payment_id идет после блокировки строки пользователя:
	// конкурентные доставки одного платежа сериализуются на ней, и вторая
	// увидит запись первой вместо нарушения UNIQUE.
	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM subscriptions WHERE payment_id = $1`, cmd.PaymentID).Scan(&existingID)
	if err == nil {
		// Платеж уже применен: at-least-once доставка, возвращаем успех без мутаций.
		return &models.ApplyPaymentResult{Status: models.PaymentAlreadyProcessed}, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := now.AddDate(0, 0, renewalDays)
	if cmd.ExpiresAt != nil {
		expiresAt = *cmd.ExpiresAt
	}

	limits, err := s.getLimitsForUpdate(ctx, tx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	renewal := user.SubscriptionType == cmd.Tier
	if renewal {
		tariff.Renew(limits, cmd.Tier)
	} else {
		tariff.Replace(limits, cmd.Tier, now)
	}
	if err = s.updateLimits(ctx, tx, limits, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Маркеры уведомлений сбрасываются: после оплаты следующий переход
	// на FREE должен снова уведомлять и снова получать грейс-период.
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET subscription_type = $1, subscription_expires_at = $2,
			 transition_notified_at = NULL, removal_notified_at = NULL, updated_at = $3
		 WHERE id = $4`,
		cmd.Tier, expiresAt, now, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, subscription_type, started_at, expires_at,
			 payment_id, amount, discount_percent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, cmd.Tier, now, expiresAt, cmd.PaymentID, cmd.AmountEUR, cmd.DiscountPercent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = s.enqueuePaymentEffects(ctx, tx, user, cmd.Tier, renewal); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.ApplyPaymentResult{
		Status:    models.PaymentApplied,
		UserID:    user.ID,
		Renewal:   renewal,
		FromTier:  user.SubscriptionType,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Storage) enqueuePaymentEffects(ctx context.Context, tx *sql.Tx, user *models.User, tier models.SubscriptionType, renewal bool) error {
	readmit, err := json.Marshal(models.ReadmitCommand{TelegramID: user.TelegramID})
	if err != nil {
		return err
	}
	if err = insertOutboxTx(ctx, tx, models.OutboxGroupReadmit, readmit); err != nil {
		return err
	}

	award, err := json.Marshal(models.ReferralAwardRequest{UserID: user.ID})
	if err != nil {
		return err
	}
	if err = insertOutboxTx(ctx, tx, models.OutboxReferralAward, award); err != nil {
		return err
	}

	if !renewal && !user.SubscriptionType.IsPaid() {
		notice, err := json.Marshal(models.TransitionNotice{
			TelegramID: user.TelegramID,
			FromTier:   user.SubscriptionType,
			ToTier:     tier,
		})
		if err != nil {
			return err
		}
		if err = insertOutboxTx(ctx, tx, models.OutboxNotifyTransition, notice); err != nil {
			return err
		}
	}
	return nil
}
