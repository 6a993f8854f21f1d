package rabbitmq

// QueueConfig описывает очередь и ее ключ маршрутизации в exchange уведомлений.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Ключи маршрутизации уведомлений.
const (
	RoutingKeyTransition = "transition"
	RoutingKeyReferral   = "referral"
	RoutingKeyRemoval    = "removal"
)

// GetNotificationQueues возвращает очереди, которые слушает сервис отправки
// уведомлений в Telegram.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notifications.transition", RoutingKey: RoutingKeyTransition},
		{QueueName: "notifications.referral", RoutingKey: RoutingKeyReferral},
		{QueueName: "notifications.removal", RoutingKey: RoutingKeyRemoval},
	}
}
