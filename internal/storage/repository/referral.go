package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iqstocker/entitlement-service/internal/models"
)

// AwardReferralBonus начисляет рефереру бонус за первый платеж приглашенного
// пользователя. Флаг referral_bonus_paid берется под блокировкой и служит
// защелкой: бонус за одного пользователя начисляется не более одного раза,
// сколько бы платежей он ни совершил. Уведомление реферера записывается
// в outbox той же транзакцией.
func (s *Storage) AwardReferralBonus(ctx context.Context, userID int64, points int, now time.Time) (*models.ReferralAwardResult, error) {
	const op = "storage.AwardReferralBonus"
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

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	user, err := scanUser(tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.ReferrerID == nil {
		return &models.ReferralAwardResult{Status: models.ReferralSkipped, Reason: "no-referrer"}, nil
	}
	if user.ReferralBonusPaid {
		return &models.ReferralAwardResult{Status: models.ReferralSkipped, Reason: "already-paid"}, nil
	}

	markPaid := func() error {
		_, err := tx.ExecContext(ctx,
			`UPDATE users SET referral_bonus_paid = TRUE, updated_at = $1 WHERE id = $2`,
			now, user.ID)
		return err
	}

	refQuery := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	referrer, err := scanUser(tx.QueryRowContext(ctx, refQuery, *user.ReferrerID))
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// Реферер удален. Защелка все равно взводится, чтобы повторные
		// платежи не пытались начислить бонус несуществующему пользователю.
		if err = markPaid(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &models.ReferralAwardResult{Status: models.ReferralSkipped, Reason: "referrer-missing"}, nil
	}

	newBalance := referrer.ReferralBalance + points
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET referral_balance = $1, updated_at = $2 WHERE id = $3`,
		newBalance, now, referrer.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = markPaid(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	notice, err := json.Marshal(models.ReferralNotice{
		ReferrerTelegramID: referrer.TelegramID,
		Points:             points,
		Balance:            newBalance,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = insertOutboxTx(ctx, tx, models.OutboxNotifyReferral, notice); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.ReferralAwardResult{
		Status:             models.ReferralAwarded,
		ReferrerTelegramID: referrer.TelegramID,
		ReferrerBalance:    newBalance,
	}, nil
}
