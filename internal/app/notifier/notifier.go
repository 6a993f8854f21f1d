// Package notifier собирает приложение отправки уведомлений: читает
// очереди RabbitMQ и шлет пользователям личные сообщения в Telegram.
package notifier

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/iqstocker/entitlement-service/internal/config"
	"github.com/iqstocker/entitlement-service/internal/rabbitmq"
	notifierservice "github.com/iqstocker/entitlement-service/internal/services/notifier"
	"github.com/iqstocker/entitlement-service/internal/telegram"
)

// App приложение отправки уведомлений.
type App struct {
	conn            *amqp.Connection
	ch              *amqp.Channel
	notifierService *notifierservice.Service
	logger          *slog.Logger
}

// New собирает приложение: брокер, очереди и Telegram-клиент.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	queues := rabbitmq.GetNotificationQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	tgClient, err := telegram.New(cfg.Telegram)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	notifierService := notifierservice.New(tgClient, logger)

	return &App{
		conn:            conn,
		ch:              ch,
		notifierService: notifierService,
		logger:          logger,
	}, nil
}

// Run подписывается на очереди уведомлений и ждет отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, "notifications.transition",
		a.notifierService.SendTransitionNotice)
	if err != nil {
		a.logger.Error("failed to start transition consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, "notifications.referral",
		a.notifierService.SendReferralNotice)
	if err != nil {
		a.logger.Error("failed to start referral consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, "notifications.removal",
		a.notifierService.SendRemovalNotice)
	if err != nil {
		a.logger.Error("failed to start removal consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("notifier service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
