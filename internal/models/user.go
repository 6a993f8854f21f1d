// Package models содержит доменные структуры сервиса: пользователя,
// лимиты, журнал подписок, события VIP-группы и сообщения outbox.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import "time"

// SubscriptionType тариф пользователя.
type SubscriptionType string

// Допустимые тарифы.
const (
	SubscriptionFree    SubscriptionType = "FREE"
	SubscriptionTestPro SubscriptionType = "TEST_PRO"
	SubscriptionPro     SubscriptionType = "PRO"
	SubscriptionUltra   SubscriptionType = "ULTRA"
)

// IsPaid сообщает, является ли тариф платным (приходит из платежного вебхука).
func (s SubscriptionType) IsPaid() bool {
	return s == SubscriptionPro || s == SubscriptionUltra
}

// IsTimeBoxed сообщает, ограничен ли тариф по времени и подлежит ли
// он проверке на истечение.
func (s SubscriptionType) IsTimeBoxed() bool {
	return s == SubscriptionTestPro || s == SubscriptionPro || s == SubscriptionUltra
}

// User представляет пользователя бота.
// Поле SubscriptionExpiresAt может быть nil — подписка без даты окончания.
// ReferrerID выставляется один раз при регистрации и больше не меняется.
type User struct {
	ID                    int64
	TelegramID            int64
	Username              string
	FirstName             string
	LastName              string
	SubscriptionType      SubscriptionType
	SubscriptionExpiresAt *time.Time
	TestProStartedAt      *time.Time
	ReferrerID            *int64
	ReferralBalance       int
	ReferralBonusPaid     bool
	IsBlocked             bool
	// TransitionNotifiedAt — когда пользователю отправлено уведомление
	// о переходе на FREE. Якорь для грейс-периода перед удалением из группы.
	TransitionNotifiedAt *time.Time
	// RemovalNotifiedAt — когда отправлено уведомление об удалении из
	// VIP-группы. Защита от повторных уведомлений.
	RemovalNotifiedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasActiveSubscription проверяет, дает ли текущий тариф доступ
// к платным возможностям на момент now.
func (u *User) HasActiveSubscription(now time.Time) bool {
	if !u.SubscriptionType.IsTimeBoxed() {
		return false
	}
	if u.SubscriptionExpiresAt == nil {
		return true
	}
	return u.SubscriptionExpiresAt.After(now)
}
