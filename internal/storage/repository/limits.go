package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iqstocker/entitlement-service/internal/models"
)

const limitsColumns = `id, user_id, analytics_total, analytics_used, themes_total,
	themes_used, top_themes_total, top_themes_used, theme_cooldown_days,
	current_tariff_started_at, last_theme_request_at, created_at, updated_at`

func scanLimits(row interface{ Scan(...any) error }) (*models.Limits, error) {
	l := &models.Limits{}
	var startedAt, lastRequestAt sql.NullTime
	if err := row.Scan(&l.ID, &l.UserID, &l.AnalyticsTotal, &l.AnalyticsUsed,
		&l.ThemesTotal, &l.ThemesUsed, &l.TopThemesTotal, &l.TopThemesUsed,
		&l.ThemeCooldownDays, &startedAt, &lastRequestAt,
		&l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		l.CurrentTariffStartedAt = &startedAt.Time
	}
	if lastRequestAt.Valid {
		l.LastThemeRequestAt = &lastRequestAt.Time
	}
	return l, nil
}

// GetLimits возвращает лимиты пользователя.
func (s *Storage) GetLimits(ctx context.Context, userID int64) (*models.Limits, error) {
	const op = "storage.GetLimits"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + limitsColumns + ` FROM limits WHERE user_id = $1`
	l, err := scanLimits(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}

// getLimitsForUpdate читает лимиты внутри транзакции с блокировкой строки,
// при отсутствии создает пустую строку лимитов.
func (s *Storage) getLimitsForUpdate(ctx context.Context, tx *sql.Tx, userID int64) (*models.Limits, error) {
	query := `SELECT ` + limitsColumns + ` FROM limits WHERE user_id = $1 FOR UPDATE`
	l, err := scanLimits(tx.QueryRowContext(ctx, query, userID))
	if err == nil {
		return l, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	insert := `INSERT INTO limits (user_id) VALUES ($1) RETURNING ` + limitsColumns
	return scanLimits(tx.QueryRowContext(ctx, insert, userID))
}

func (s *Storage) updateLimits(ctx context.Context, tx *sql.Tx, l *models.Limits, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE limits
		 SET analytics_total = $1, analytics_used = $2, themes_total = $3,
			 themes_used = $4, top_themes_total = $5, top_themes_used = $6,
			 theme_cooldown_days = $7, current_tariff_started_at = $8,
			 last_theme_request_at = $9, updated_at = $10
		 WHERE id = $11`,
		l.AnalyticsTotal, l.AnalyticsUsed, l.ThemesTotal, l.ThemesUsed,
		l.TopThemesTotal, l.TopThemesUsed, l.ThemeCooldownDays,
		l.CurrentTariffStartedAt, l.LastThemeRequestAt, now, l.ID)
	return err
}
