package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExchangePublisher публикатор, привязанный к каналу и exchange.
type ExchangePublisher struct {
	ch       *amqp.Channel
	exchange string
}

// NewExchangePublisher создает публикатор для exchange уведомлений.
func NewExchangePublisher(ch *amqp.Channel, exchange string) *ExchangePublisher {
	return &ExchangePublisher{ch: ch, exchange: exchange}
}

// Publish публикует готовое тело сообщения по ключу маршрутизации.
func (p *ExchangePublisher) Publish(routingKey string, body []byte) error {
	return PublishRaw(p.ch, p.exchange, routingKey, body)
}

// PublishRaw публикует уже сериализованное тело сообщения. Используется
// диспетчером outbox, хранящим полезную нагрузку в готовом виде.
func PublishRaw(ch *amqp.Channel, exchange string, routingkey string, body []byte) error {
	const op = "rabbitmq.PublishRaw"

	err := ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
