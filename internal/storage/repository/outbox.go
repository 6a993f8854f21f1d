package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iqstocker/entitlement-service/internal/models"
)

func insertOutboxTx(ctx context.Context, tx *sql.Tx, kind models.OutboxKind, payload []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (kind, payload) VALUES ($1, $2)`, kind, payload)
	return err
}

// ListPendingOutbox возвращает недоставленные сообщения outbox в порядке
// создания, не более limit за один вызов.
func (s *Storage) ListPendingOutbox(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	const op = "storage.ListPendingOutbox"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, kind, payload, attempts, COALESCE(last_error, ''), created_at, dispatched_at
		 FROM outbox
		 WHERE dispatched_at IS NULL
		 ORDER BY id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.OutboxMessage
	for rows.Next() {
		m := &models.OutboxMessage{}
		var dispatchedAt sql.NullTime
		if err = rows.Scan(&m.ID, &m.Kind, &m.Payload, &m.Attempts,
			&m.LastError, &m.CreatedAt, &dispatchedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if dispatchedAt.Valid {
			m.DispatchedAt = &dispatchedAt.Time
		}
		result = append(result, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkOutboxDispatched помечает сообщение доставленным.
func (s *Storage) MarkOutboxDispatched(ctx context.Context, id int64, now time.Time) error {
	const op = "storage.MarkOutboxDispatched"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	_, err := s.DB.ExecContext(ctx,
		`UPDATE outbox SET dispatched_at = $1, last_error = NULL WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkOutboxFailed фиксирует неудачную попытку доставки. Сообщение остается
// в очереди и будет переиграно следующим проходом диспетчера.
func (s *Storage) MarkOutboxFailed(ctx context.Context, id int64, cause string) error {
	const op = "storage.MarkOutboxFailed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	_, err := s.DB.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $1 WHERE id = $2`, cause, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
