package models

import "time"

// SubscriptionEntry строка журнала подписок: одна запись на один
// примененный платеж. PaymentID уникален — это ключ идемпотентности,
// повторная доставка того же платежа не создает вторую запись.
// Записи никогда не изменяются и не удаляются.
type SubscriptionEntry struct {
	ID               int64
	UserID           int64
	SubscriptionType SubscriptionType
	StartedAt        time.Time
	ExpiresAt        *time.Time
	PaymentID        string
	AmountEUR        float64
	DiscountPercent  int
	CreatedAt        time.Time
}
