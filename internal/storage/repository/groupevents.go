package repository

import (
	"context"
	"fmt"

	"github.com/iqstocker/entitlement-service/internal/models"
)

// AddGroupEvent добавляет запись в журнал событий VIP-группы.
func (s *Storage) AddGroupEvent(ctx context.Context, event models.GroupEvent) error {
	const op = "storage.AddGroupEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO vip_group_events (telegram_id, user_id, subscription_type, status, reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.TelegramID, event.UserID, event.SubscriptionType, event.Status, event.Reason)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListGroupEvents возвращает последние события VIP-группы по telegram id,
// новые первыми.
func (s *Storage) ListGroupEvents(ctx context.Context, telegramID int64, limit int) ([]*models.GroupEvent, error) {
	const op = "storage.ListGroupEvents"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, telegram_id, user_id, subscription_type, status, COALESCE(reason, ''), created_at
		 FROM vip_group_events
		 WHERE telegram_id = $1
		 ORDER BY id DESC
		 LIMIT $2`, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.GroupEvent
	for rows.Next() {
		e := &models.GroupEvent{}
		if err = rows.Scan(&e.ID, &e.TelegramID, &e.UserID, &e.SubscriptionType,
			&e.Status, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
