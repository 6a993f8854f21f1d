// Package scheduler собирает приложение фоновых задач: сверку истекших
// подписок, сверку состава VIP-группы и доставку сообщений outbox.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/iqstocker/entitlement-service/internal/cache"
	"github.com/iqstocker/entitlement-service/internal/config"
	"github.com/iqstocker/entitlement-service/internal/rabbitmq"
	groupaccessservice "github.com/iqstocker/entitlement-service/internal/services/groupaccess"
	outboxservice "github.com/iqstocker/entitlement-service/internal/services/outbox"
	referralservice "github.com/iqstocker/entitlement-service/internal/services/referral"
	sweeperservice "github.com/iqstocker/entitlement-service/internal/services/sweeper"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
	"github.com/iqstocker/entitlement-service/internal/telegram"
)

// App приложение фоновых задач.
type App struct {
	sweeper     *sweeperservice.Service
	groupAccess *groupaccessservice.Service
	dispatcher  *outboxservice.Dispatcher
	conn        *amqp.Connection
	ch          *amqp.Channel
	db          *repository.Storage
	cfg         *config.Config
	logger      *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New собирает приложение планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	queues := rabbitmq.GetNotificationQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	tgClient, err := telegram.New(cfg.Telegram)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("telegram client not initialized: %w", err)
	}

	sweeper := sweeperservice.New(db, cacheRedis, logger)
	groupAccess := groupaccessservice.New(db, tgClient, logger,
		cfg.RemovalGracePeriod, cfg.RemovalNotificationEnabled)
	referral := referralservice.New(db, logger, cfg.ReferralBonusPoints)
	publisher := rabbitmq.NewExchangePublisher(ch, rabbitmq.NotificationsExchange)
	dispatcher := outboxservice.New(db, publisher, tgClient, referral,
		logger, cfg.OutboxBatchSize)

	return &App{
		sweeper:     sweeper,
		groupAccess: groupAccess,
		dispatcher:  dispatcher,
		conn:        conn,
		ch:          ch,
		db:          db,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает фоновые задачи и ждет отмены контекста.
func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx, a.cfg.SweepInterval)
	if a.cfg.VIPGroupCheckEnabled {
		go a.groupAccess.Run(ctx, a.cfg.ReconcileInterval)
	} else {
		a.logger.Info("vip group reconcile disabled by config")
	}
	go a.dispatcher.Run(ctx, a.cfg.OutboxInterval)

	<-ctx.Done()

	a.logger.Info("shutting down scheduler service")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", slog.Any("err", err))
	}
	return nil
}
