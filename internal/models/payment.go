package models

import "time"

// ApplyPaymentCommand параметры применения платежа к подписке пользователя.
// ExpiresAt заполняется, если провайдер прислал собственную дату окончания,
// иначе срок считается от момента применения.
type ApplyPaymentCommand struct {
	PaymentID       string
	TelegramID      int64
	AmountEUR       float64
	Tier            SubscriptionType
	DiscountPercent int
	ExpiresAt       *time.Time
}

// PaymentStatus исход применения платежа.
type PaymentStatus string

// Исходы применения платежа.
const (
	// PaymentApplied платеж применен, запись в журнале создана.
	PaymentApplied PaymentStatus = "applied"
	// PaymentAlreadyProcessed платеж с таким payment_id уже применен ранее,
	// состояние не менялось.
	PaymentAlreadyProcessed PaymentStatus = "already_processed"
)

// ApplyPaymentResult результат применения платежа.
type ApplyPaymentResult struct {
	Status    PaymentStatus
	UserID    int64
	Renewal   bool
	FromTier  SubscriptionType
	ExpiresAt time.Time
}

// ReferralAwardStatus исход начисления реферального бонуса.
type ReferralAwardStatus string

// Исходы начисления бонуса.
const (
	ReferralAwarded ReferralAwardStatus = "awarded"
	ReferralSkipped ReferralAwardStatus = "skipped"
)

// ReferralAwardResult результат начисления реферального бонуса.
type ReferralAwardResult struct {
	Status ReferralAwardStatus
	// Reason заполняется при Skipped: no-referrer, already-paid, referrer-missing.
	Reason             string
	ReferrerTelegramID int64
	ReferrerBalance    int
}

// ReconcileStats счетчики одного прохода сверки VIP-группы.
type ReconcileStats struct {
	Checked      int
	Whitelisted  int
	Removed      int
	Unbanned     int
	GraceSkipped int
	Errors       int
}
