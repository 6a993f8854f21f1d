package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqstocker/entitlement-service/internal/models"
)

func TestStorage_ApplyPayment(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	type args struct {
		cmd         models.ApplyPaymentCommand
		renewalDays int
	}

	tests := []struct {
		name       string
		args       args
		wantStatus models.PaymentStatus
		wantErr    error
		setup      func(t *testing.T, factory *TestDataFactory) int64
		verify     func(t *testing.T, storage *Storage, userID int64)
	}{
		{
			name: "first payment upgrades tier and replaces limits",
			args: args{
				cmd: models.ApplyPaymentCommand{
					PaymentID:  "pay-001",
					TelegramID: 100,
					AmountEUR:  25.0,
					Tier:       models.SubscriptionPro,
				},
				renewalDays: 30,
			},
			wantStatus: models.PaymentApplied,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				userID := factory.CreateUser(t, 100, "payer", models.SubscriptionFree, nil)
				factory.CreateLimits(t, userID, 1, 1, 3, 2, 3, 0)
				return userID
			},
			verify: func(t *testing.T, storage *Storage, userID int64) {
				v := NewTestVerification(storage)
				v.VerifyUserTier(t, userID, models.SubscriptionPro)
				// Смена тарифа: квоты PRO, used обнулен
				v.VerifyLimits(t, userID, 10, 0, 30, 0)
				v.VerifyLedgerCount(t, userID, 1)
				v.VerifyOutboxCount(t, models.OutboxGroupReadmit, 1)
				v.VerifyOutboxCount(t, models.OutboxReferralAward, 1)
				v.VerifyOutboxCount(t, models.OutboxNotifyTransition, 1)
			},
		},
		{
			name: "renewal of same tier adds quotas and keeps used",
			args: args{
				cmd: models.ApplyPaymentCommand{
					PaymentID:  "pay-002",
					TelegramID: 101,
					AmountEUR:  25.0,
					Tier:       models.SubscriptionPro,
				},
				renewalDays: 30,
			},
			wantStatus: models.PaymentApplied,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				expiresAt := now.AddDate(0, 0, 5)
				userID := factory.CreateUser(t, 101, "renewer", models.SubscriptionPro, &expiresAt)
				factory.CreateLimits(t, userID, 10, 4, 30, 12, 30, 1)
				return userID
			},
			verify: func(t *testing.T, storage *Storage, userID int64) {
				v := NewTestVerification(storage)
				v.VerifyUserTier(t, userID, models.SubscriptionPro)
				// Продление прибавляет квоты, used не трогает
				v.VerifyLimits(t, userID, 20, 4, 60, 12)
				// Продление платного тарифа не порождает уведомление о переходе
				v.VerifyOutboxCount(t, models.OutboxNotifyTransition, 0)
			},
		},
		{
			name: "duplicate payment id is a no-op",
			args: args{
				cmd: models.ApplyPaymentCommand{
					PaymentID:  "pay-dup",
					TelegramID: 102,
					AmountEUR:  50.0,
					Tier:       models.SubscriptionUltra,
				},
				renewalDays: 30,
			},
			wantStatus: models.PaymentAlreadyProcessed,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				userID := factory.CreateUser(t, 102, "dupuser", models.SubscriptionPro, nil)
				factory.CreateLimits(t, userID, 10, 2, 30, 5, 30, 0)
				factory.CreateSubscriptionEntry(t, userID, models.SubscriptionPro, "pay-dup", 25.0)
				return userID
			},
			verify: func(t *testing.T, storage *Storage, userID int64) {
				v := NewTestVerification(storage)
				// Состояние не изменилось, тариф и лимиты прежние
				v.VerifyUserTier(t, userID, models.SubscriptionPro)
				v.VerifyLimits(t, userID, 10, 2, 30, 5)
				v.VerifyLedgerCount(t, userID, 1)
				v.VerifyOutboxCount(t, models.OutboxGroupReadmit, 0)
			},
		},
		{
			name: "payment for unknown user fails",
			args: args{
				cmd: models.ApplyPaymentCommand{
					PaymentID:  "pay-003",
					TelegramID: 999999,
					AmountEUR:  25.0,
					Tier:       models.SubscriptionPro,
				},
				renewalDays: 30,
			},
			wantErr: ErrUserNotFound,
			setup:   func(_ *testing.T, _ *TestDataFactory) int64 { return 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userID := tt.setup(t, factory)

			got, err := storage.ApplyPayment(context.Background(), tt.args.cmd, now, tt.args.renewalDays)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.Status)

			if tt.verify != nil {
				tt.verify(t, storage, userID)
			}
		})
	}
}

func TestStorage_ApplyPayment_ProviderExpiry(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	providerExpiry := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 200, "expuser", models.SubscriptionFree, nil)

	got, err := storage.ApplyPayment(context.Background(), models.ApplyPaymentCommand{
		PaymentID:  "pay-exp",
		TelegramID: 200,
		AmountEUR:  50.0,
		Tier:       models.SubscriptionUltra,
		ExpiresAt:  &providerExpiry,
	}, now, 30)
	require.NoError(t, err)

	// Дата провайдера имеет приоритет над расчетной
	assert.True(t, got.ExpiresAt.Equal(providerExpiry))
}

func TestStorage_ApplyPayment_ClearsNotificationMarkers(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	factory := NewTestDataFactory(storage)
	userID := factory.CreateUser(t, 201, "markeduser", models.SubscriptionFree, nil)
	_, err := storage.DB.Exec(
		`UPDATE users SET transition_notified_at = $1, removal_notified_at = $1 WHERE id = $2`,
		now.AddDate(0, 0, -10), userID)
	require.NoError(t, err)

	_, err = storage.ApplyPayment(context.Background(), models.ApplyPaymentCommand{
		PaymentID:  "pay-mark",
		TelegramID: 201,
		AmountEUR:  25.0,
		Tier:       models.SubscriptionPro,
	}, now, 30)
	require.NoError(t, err)

	user, err := storage.GetUserByTelegramID(context.Background(), 201)
	require.NoError(t, err)
	assert.Nil(t, user.TransitionNotifiedAt)
	assert.Nil(t, user.RemovalNotifiedAt)
}

func TestStorage_DowngradeToFree(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		wantDowngraded bool
		setup          func(t *testing.T, factory *TestDataFactory) int64
		verify         func(t *testing.T, storage *Storage, userID int64)
	}{
		{
			name:           "expired pro user moves to free and keeps used counters",
			wantDowngraded: true,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				expiredAt := now.AddDate(0, 0, -1)
				userID := factory.CreateUser(t, 300, "expired", models.SubscriptionPro, &expiredAt)
				factory.CreateLimits(t, userID, 10, 7, 30, 15, 30, 2)
				return userID
			},
			verify: func(t *testing.T, storage *Storage, userID int64) {
				v := NewTestVerification(storage)
				v.VerifyUserTier(t, userID, models.SubscriptionFree)
				// Квоты FREE, история использования сохранена
				v.VerifyLimits(t, userID, 1, 7, 3, 15)
				v.VerifyOutboxCount(t, models.OutboxNotifyTransition, 1)

				user, err := storage.GetUserByTelegramID(context.Background(), 300)
				require.NoError(t, err)
				require.NotNil(t, user.TransitionNotifiedAt)
				assert.Nil(t, user.SubscriptionExpiresAt)
			},
		},
		{
			name:           "user renewed between sweep and downgrade is untouched",
			wantDowngraded: false,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				stillActive := now.AddDate(0, 0, 20)
				userID := factory.CreateUser(t, 301, "renewed", models.SubscriptionPro, &stillActive)
				factory.CreateLimits(t, userID, 10, 1, 30, 2, 30, 0)
				return userID
			},
			verify: func(t *testing.T, storage *Storage, userID int64) {
				v := NewTestVerification(storage)
				v.VerifyUserTier(t, userID, models.SubscriptionPro)
				v.VerifyOutboxCount(t, models.OutboxNotifyTransition, 0)
			},
		},
		{
			name:           "free user is not downgraded again",
			wantDowngraded: false,
			setup: func(t *testing.T, factory *TestDataFactory) int64 {
				userID := factory.CreateUser(t, 302, "alreadyfree", models.SubscriptionFree, nil)
				factory.CreateLimits(t, userID, 1, 0, 3, 0, 3, 0)
				return userID
			},
			verify: func(t *testing.T, storage *Storage, userID int64) {
				v := NewTestVerification(storage)
				v.VerifyOutboxCount(t, models.OutboxNotifyTransition, 0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userID := tt.setup(t, factory)

			downgraded, err := storage.DowngradeToFree(context.Background(), userID, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDowngraded, downgraded)

			if tt.verify != nil {
				tt.verify(t, storage, userID)
			}
		})
	}
}

func TestStorage_DowngradeToFree_KeepsExistingTransitionMarker(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.AddDate(0, 0, -3)

	factory := NewTestDataFactory(storage)
	expiredAt := now.AddDate(0, 0, -1)
	userID := factory.CreateUser(t, 310, "marked", models.SubscriptionTestPro, &expiredAt)
	_, err := storage.DB.Exec(`UPDATE users SET transition_notified_at = $1 WHERE id = $2`, earlier, userID)
	require.NoError(t, err)

	downgraded, err := storage.DowngradeToFree(context.Background(), userID, now)
	require.NoError(t, err)
	require.True(t, downgraded)

	// Якорь грейс-периода не переписывается более поздней датой
	user, err := storage.GetUserByTelegramID(context.Background(), 310)
	require.NoError(t, err)
	require.NotNil(t, user.TransitionNotifiedAt)
	assert.True(t, user.TransitionNotifiedAt.Equal(earlier))
}

func TestStorage_FindExpiredUsers(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expired := now.AddDate(0, 0, -2)
	active := now.AddDate(0, 0, 10)

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 400, "expired-pro", models.SubscriptionPro, &expired)
	factory.CreateUser(t, 401, "expired-trial", models.SubscriptionTestPro, &expired)
	factory.CreateUser(t, 402, "active-pro", models.SubscriptionPro, &active)
	factory.CreateUser(t, 403, "free", models.SubscriptionFree, nil)
	factory.CreateUser(t, 404, "no-expiry-ultra", models.SubscriptionUltra, nil)

	got, err := storage.FindExpiredUsers(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(400), got[0].TelegramID)
	assert.Equal(t, int64(401), got[1].TelegramID)
}

func TestStorage_AwardReferralBonus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		points     int
		wantStatus models.ReferralAwardStatus
		wantReason string
		setup      func(t *testing.T, factory *TestDataFactory, storage *Storage) int64
		verify     func(t *testing.T, storage *Storage)
	}{
		{
			name:       "first payment of invited user awards bonus once",
			points:     100,
			wantStatus: models.ReferralAwarded,
			setup: func(t *testing.T, factory *TestDataFactory, _ *Storage) int64 {
				referrerID := factory.CreateUser(t, 500, "referrer", models.SubscriptionPro, nil)
				return factory.CreateUserWithReferrer(t, 501, "invited", models.SubscriptionPro, referrerID)
			},
			verify: func(t *testing.T, storage *Storage) {
				referrer, err := storage.GetUserByTelegramID(context.Background(), 500)
				require.NoError(t, err)
				assert.Equal(t, 100, referrer.ReferralBalance)

				invited, err := storage.GetUserByTelegramID(context.Background(), 501)
				require.NoError(t, err)
				assert.True(t, invited.ReferralBonusPaid)

				v := NewTestVerification(storage)
				v.VerifyOutboxCount(t, models.OutboxNotifyReferral, 1)
			},
		},
		{
			name:       "user without referrer is skipped",
			points:     100,
			wantStatus: models.ReferralSkipped,
			wantReason: "no-referrer",
			setup: func(t *testing.T, factory *TestDataFactory, _ *Storage) int64 {
				return factory.CreateUser(t, 502, "organic", models.SubscriptionPro, nil)
			},
		},
		{
			name:       "second payment does not award twice",
			points:     100,
			wantStatus: models.ReferralSkipped,
			wantReason: "already-paid",
			setup: func(t *testing.T, factory *TestDataFactory, storage *Storage) int64 {
				referrerID := factory.CreateUser(t, 503, "referrer2", models.SubscriptionPro, nil)
				userID := factory.CreateUserWithReferrer(t, 504, "invited2", models.SubscriptionPro, referrerID)
				_, err := storage.AwardReferralBonus(context.Background(), userID, 100, now)
				require.NoError(t, err)
				return userID
			},
			verify: func(t *testing.T, storage *Storage) {
				// Баланс реферера начислен ровно один раз
				referrer, err := storage.GetUserByTelegramID(context.Background(), 503)
				require.NoError(t, err)
				assert.Equal(t, 100, referrer.ReferralBalance)
			},
		},
		{
			name:       "deleted referrer marks bonus paid without award",
			points:     100,
			wantStatus: models.ReferralSkipped,
			wantReason: "referrer-missing",
			setup: func(t *testing.T, factory *TestDataFactory, storage *Storage) int64 {
				referrerID := factory.CreateUser(t, 505, "gone", models.SubscriptionFree, nil)
				userID := factory.CreateUserWithReferrer(t, 506, "orphan", models.SubscriptionPro, referrerID)
				// referrer_id остается, сам реферер исчезает: эмулируем ON DELETE
				// через прямое обновление, чтобы FK не обнулил ссылку
				_, err := storage.DB.Exec(`ALTER TABLE users DROP CONSTRAINT users_referrer_id_fkey`)
				require.NoError(t, err)
				_, err = storage.DB.Exec(`DELETE FROM users WHERE id = $1`, referrerID)
				require.NoError(t, err)
				return userID
			},
			verify: func(t *testing.T, storage *Storage) {
				orphan, err := storage.GetUserByTelegramID(context.Background(), 506)
				require.NoError(t, err)
				assert.True(t, orphan.ReferralBonusPaid)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			factory := NewTestDataFactory(storage)
			userID := tt.setup(t, factory, storage)

			got, err := storage.AwardReferralBonus(context.Background(), userID, tt.points, now)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.Reason)

			if tt.verify != nil {
				tt.verify(t, storage)
			}
		})
	}
}

func TestStorage_OutboxLifecycle(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tx, err := storage.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, insertOutboxTx(ctx, tx, models.OutboxNotifyTransition, []byte(`{"telegram_id":1}`)))
	require.NoError(t, insertOutboxTx(ctx, tx, models.OutboxGroupReadmit, []byte(`{"telegram_id":2}`)))
	require.NoError(t, tx.Commit())

	pending, err := storage.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.OutboxNotifyTransition, pending[0].Kind)
	assert.Equal(t, models.OutboxGroupReadmit, pending[1].Kind)

	// Неудачная попытка оставляет сообщение в очереди
	require.NoError(t, storage.MarkOutboxFailed(ctx, pending[0].ID, "broker unavailable"))
	pending, err = storage.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "broker unavailable", pending[0].LastError)

	// Доставленное сообщение из очереди уходит
	require.NoError(t, storage.MarkOutboxDispatched(ctx, pending[0].ID, now))
	pending, err = storage.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OutboxGroupReadmit, pending[0].Kind)
}

func TestStorage_ClaimRemovalNotification(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	factory := NewTestDataFactory(storage)
	userID := factory.CreateUser(t, 600, "claimuser", models.SubscriptionFree, nil)

	claimed, err := storage.ClaimRemovalNotification(ctx, userID, 600, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Маркер и уведомление пишутся одной транзакцией
	v := NewTestVerification(storage)
	v.VerifyOutboxCount(t, models.OutboxNotifyRemoval, 1)

	// Повторная заявка проигрывает: уведомление уходит не более одного раза
	claimed, err = storage.ClaimRemovalNotification(ctx, userID, 600, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed)
	v.VerifyOutboxCount(t, models.OutboxNotifyRemoval, 1)
}

func TestStorage_CreateUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := storage.CreateUser(ctx, 700, "newcomer", nil, now)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Новый пользователь получает пробный тариф на неделю
	assert.Equal(t, models.SubscriptionTestPro, got.SubscriptionType)
	require.NotNil(t, got.SubscriptionExpiresAt)
	assert.True(t, got.SubscriptionExpiresAt.Equal(now.AddDate(0, 0, 7)))

	limits, err := storage.GetLimits(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, limits.AnalyticsTotal)
	assert.Equal(t, 10, limits.ThemesTotal)
	assert.Equal(t, 10, limits.TopThemesTotal)
}

func TestStorage_IsWhitelisted(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.AddToWhitelist(t, 800, "channel admin")

	ok, err := storage.IsWhitelisted(context.Background(), 800)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = storage.IsWhitelisted(context.Background(), 801)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_AddGroupEvent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	factory := NewTestDataFactory(storage)
	userID := factory.CreateUser(t, 900, "eventuser", models.SubscriptionFree, nil)

	err := storage.AddGroupEvent(ctx, models.GroupEvent{
		TelegramID:       900,
		UserID:           &userID,
		SubscriptionType: models.SubscriptionFree,
		Status:           models.GroupEventRemoved,
		Reason:           "subscription expired",
	})
	require.NoError(t, err)

	err = storage.AddGroupEvent(ctx, models.GroupEvent{
		TelegramID:       900,
		UserID:           &userID,
		SubscriptionType: models.SubscriptionPro,
		Status:           models.GroupEventUnbanned,
		Reason:           "payment received",
	})
	require.NoError(t, err)

	events, err := storage.ListGroupEvents(ctx, 900, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Новые события первыми
	assert.Equal(t, models.GroupEventUnbanned, events[0].Status)
	assert.Equal(t, models.GroupEventRemoved, events[1].Status)
}
