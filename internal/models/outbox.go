package models

import "time"

// OutboxKind тип отложенного побочного эффекта.
type OutboxKind string

// Виды сообщений outbox. Уведомления публикуются в RabbitMQ,
// возврат доступа в группу выполняется напрямую через Telegram API.
const (
	OutboxNotifyTransition OutboxKind = "notify.transition"
	OutboxNotifyReferral   OutboxKind = "notify.referral"
	OutboxNotifyRemoval    OutboxKind = "notify.removal"
	OutboxGroupReadmit     OutboxKind = "group.readmit"
	OutboxReferralAward    OutboxKind = "referral.award"
)

// OutboxMessage запись таблицы outbox. Вставляется в той же транзакции,
// что и изменение, которое она сопровождает; доставляется диспетчером
// отдельным проходом, поэтому сбой между коммитом и доставкой не теряет эффект.
type OutboxMessage struct {
	ID           int64
	Kind         OutboxKind
	Payload      []byte
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

// TransitionNotice полезная нагрузка уведомления о переходе на другой тариф.
type TransitionNotice struct {
	TelegramID int64            `json:"telegram_id"`
	FromTier   SubscriptionType `json:"from_tier"`
	ToTier     SubscriptionType `json:"to_tier"`
}

// ReferralNotice полезная нагрузка уведомления реферера о начислении бонуса.
type ReferralNotice struct {
	ReferrerTelegramID int64 `json:"referrer_telegram_id"`
	Points             int   `json:"points"`
	Balance            int   `json:"balance"`
}

// RemovalNotice полезная нагрузка уведомления об удалении из VIP-группы.
type RemovalNotice struct {
	TelegramID int64 `json:"telegram_id"`
}

// ReadmitCommand команда на снятие бана в VIP-группе после оплаты.
type ReadmitCommand struct {
	TelegramID int64 `json:"telegram_id"`
}

// ReferralAwardRequest команда на проверку и начисление реферального
// бонуса после платежа.
type ReferralAwardRequest struct {
	UserID int64 `json:"user_id"`
}
