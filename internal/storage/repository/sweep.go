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

// DowngradeToFree переводит пользователя с истекшей подпиской на FREE.
// Условие истечения перепроверяется под блокировкой: если платеж успел
// продлить подписку между выборкой кандидатов и этим вызовом, перевод
// не выполняется. Возвращает true, если перевод состоялся.
func (s *Storage) DowngradeToFree(ctx context.Context, userID int64, now time.Time) (bool, error) {
	const op = "storage.DowngradeToFree"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	user, err := scanUser(tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	expired := user.SubscriptionType.IsTimeBoxed() &&
		user.SubscriptionExpiresAt != nil &&
		user.SubscriptionExpiresAt.Before(now)
	if !expired {
		return false, nil
	}

	limits, err := s.getLimitsForUpdate(ctx, tx, user.ID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	tariff.Downgrade(limits, now)
	if err = s.updateLimits(ctx, tx, limits, now); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	// transition_notified_at выставляется здесь же: от него отсчитывается
	// грейс-период перед удалением из VIP-группы.
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET subscription_type = $1, subscription_expires_at = NULL,
			 transition_notified_at = COALESCE(transition_notified_at, $2), updated_at = $2
		 WHERE id = $3`,
		models.SubscriptionFree, now, user.ID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	notice, err := json.Marshal(models.TransitionNotice{
		TelegramID: user.TelegramID,
		FromTier:   user.SubscriptionType,
		ToTier:     models.SubscriptionFree,
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = insertOutboxTx(ctx, tx, models.OutboxNotifyTransition, notice); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}
