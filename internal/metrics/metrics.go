// Package metrics объявляет счетчики Prometheus сервиса.
// Счетчики отдаются стандартным обработчиком promhttp на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsApplied количество примененных платежей по тарифам.
	PaymentsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_payments_applied_total",
		Help: "Number of successfully applied payments by tier.",
	}, []string{"tier"})

	// PaymentsDuplicate количество повторных доставок уже примененных платежей.
	PaymentsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_payments_duplicate_total",
		Help: "Number of webhook deliveries for already processed payments.",
	})

	// PaymentsRejected количество отклоненных вебхуков по причинам.
	PaymentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_payments_rejected_total",
		Help: "Number of rejected payment webhooks by reason.",
	}, []string{"reason"})

	// UsersDowngraded количество переводов на FREE по истечении подписки.
	UsersDowngraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_users_downgraded_total",
		Help: "Number of users downgraded to FREE by the expiration sweep.",
	})

	// GroupRemovals количество удалений из VIP-группы.
	GroupRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_group_removals_total",
		Help: "Number of users removed from the VIP group.",
	})

	// GroupUnbans количество снятых банов в VIP-группе.
	GroupUnbans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_group_unbans_total",
		Help: "Number of lifted VIP group bans.",
	})

	// ReferralAwards количество начисленных реферальных бонусов.
	ReferralAwards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_referral_awards_total",
		Help: "Number of awarded referral bonuses.",
	})

	// OutboxDispatched количество доставленных сообщений outbox по видам.
	OutboxDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_outbox_dispatched_total",
		Help: "Number of dispatched outbox messages by kind.",
	}, []string{"kind"})

	// OutboxFailed количество неудачных попыток доставки outbox по видам.
	OutboxFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_outbox_failed_total",
		Help: "Number of failed outbox dispatch attempts by kind.",
	}, []string{"kind"})
)
