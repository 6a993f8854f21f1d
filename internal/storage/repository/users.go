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

const userColumns = `id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''),
	COALESCE(last_name, ''), subscription_type, subscription_expires_at,
	test_pro_started_at, referrer_id, referral_balance, referral_bonus_paid,
	is_blocked, transition_notified_at, removal_notified_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var expiresAt, testProStartedAt, transitionAt, removalAt sql.NullTime
	var referrerID sql.NullInt64
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.SubscriptionType, &expiresAt, &testProStartedAt, &referrerID,
		&u.ReferralBalance, &u.ReferralBonusPaid, &u.IsBlocked,
		&transitionAt, &removalAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		u.SubscriptionExpiresAt = &expiresAt.Time
	}
	if testProStartedAt.Valid {
		u.TestProStartedAt = &testProStartedAt.Time
	}
	if referrerID.Valid {
		u.ReferrerID = &referrerID.Int64
	}
	if transitionAt.Valid {
		u.TransitionNotifiedAt = &transitionAt.Time
	}
	if removalAt.Valid {
		u.RemovalNotifiedAt = &removalAt.Time
	}
	return u, nil
}

// GetUserByTelegramID возвращает пользователя по его telegram id.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUserByTelegramID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CreateUser регистрирует нового пользователя при первом обращении:
// тариф TEST_PRO со сроком из справочника, лимиты пробного тарифа.
// Реферер задается один раз здесь и далее не меняется.
func (s *Storage) CreateUser(ctx context.Context, telegramID int64, username string, referrerID *int64, now time.Time) (*models.User, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	trial := tariff.Limits(models.SubscriptionTestPro)
	expiresAt := now.AddDate(0, 0, trial.TrialDurationDays)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	query := `INSERT INTO users (telegram_id, username, subscription_type,
			      subscription_expires_at, test_pro_started_at, referrer_id)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING ` + userColumns
	u, err := scanUser(tx.QueryRowContext(ctx, query,
		telegramID, username, models.SubscriptionTestPro, expiresAt, now, referrerID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO limits (user_id, analytics_total, themes_total,
			  top_themes_total, theme_cooldown_days, current_tariff_started_at)
		  VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, trial.AnalyticsLimit, trial.ThemesLimit, trial.TopThemesLimit,
		trial.ThemeCooldownDays, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindExpiredUsers возвращает пользователей с истекшим ограниченным по
// времени тарифом. Уже переведенные на FREE под условие не попадают,
// поэтому повторный запуск ничего не находит.
func (s *Storage) FindExpiredUsers(ctx context.Context, now time.Time) ([]*models.User, error) {
	const op = "storage.FindExpiredUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE subscription_type IN ($1, $2, $3)
			    AND subscription_expires_at IS NOT NULL
			    AND subscription_expires_at < $4
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query,
		models.SubscriptionTestPro, models.SubscriptionPro, models.SubscriptionUltra, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindReconcileCandidates возвращает пользователей для сверки VIP-группы:
// активные платные и пробные тарифы плюс FREE — две группы, у которых
// чаще всего расходится внешнее состояние.
func (s *Storage) FindReconcileCandidates(ctx context.Context) ([]*models.User, error) {
	const op = "storage.FindReconcileCandidates"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE subscription_type IN ($1, $2, $3, $4)
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query,
		models.SubscriptionFree, models.SubscriptionTestPro,
		models.SubscriptionPro, models.SubscriptionUltra)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// IsWhitelisted проверяет, входит ли telegram id в whitelist VIP-группы.
func (s *Storage) IsWhitelisted(ctx context.Context, telegramID int64) (bool, error) {
	const op = "storage.IsWhitelisted"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vip_group_whitelist WHERE telegram_id = $1)`,
		telegramID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ClaimRemovalNotification атомарно занимает право на отправку уведомления
// об удалении из группы: выставляет removal_notified_at, только если оно
// еще пусто, и той же транзакцией кладет уведомление в outbox. Маркер и
// сообщение не могут разойтись: либо записаны оба, либо ни одного.
// Возвращает true, если право досталось этому вызову.
func (s *Storage) ClaimRemovalNotification(ctx context.Context, userID, telegramID int64, now time.Time) (bool, error) {
	const op = "storage.ClaimRemovalNotification"
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

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET removal_notified_at = $1, updated_at = $1
		 WHERE id = $2 AND removal_notified_at IS NULL`,
		now, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return false, nil
	}

	notice, err := json.Marshal(models.RemovalNotice{TelegramID: telegramID})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = insertOutboxTx(ctx, tx, models.OutboxNotifyRemoval, notice); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}
