package models

import "time"

// GroupEventStatus тип события в журнале VIP-группы.
type GroupEventStatus string

// События участия в VIP-группе.
const (
	GroupEventJoined   GroupEventStatus = "JOINED"
	GroupEventLeft     GroupEventStatus = "LEFT"
	GroupEventRemoved  GroupEventStatus = "REMOVED"
	GroupEventUnbanned GroupEventStatus = "UNBANNED"
)

// GroupEvent запись аудита участия пользователя в VIP-группе.
// Журнал только пополняется, записи не изменяются.
type GroupEvent struct {
	ID               int64
	TelegramID       int64
	UserID           *int64
	SubscriptionType SubscriptionType
	Status           GroupEventStatus
	Reason           string
	CreatedAt        time.Time
}

// MembershipStatus фактический статус пользователя в группе по данным Telegram.
type MembershipStatus string

// Статусы участника группы.
const (
	MembershipMember  MembershipStatus = "member"
	MembershipAdmin   MembershipStatus = "administrator"
	MembershipCreator MembershipStatus = "creator"
	MembershipLeft    MembershipStatus = "left"
	MembershipKicked  MembershipStatus = "kicked"
	MembershipUnknown MembershipStatus = "unknown"
)

// IsInGroup сообщает, находится ли пользователь в группе сейчас.
func (m MembershipStatus) IsInGroup() bool {
	return m == MembershipMember || m == MembershipAdmin || m == MembershipCreator
}
