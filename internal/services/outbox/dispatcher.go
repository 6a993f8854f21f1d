// Package outbox доставляет отложенные побочные эффекты: уведомления
// уходят в RabbitMQ, возврат доступа в VIP-группу и реферальные начисления
// выполняются напрямую. Сообщения пишутся в таблицу outbox в транзакции
// с изменением, которое они сопровождают, поэтому сбой доставки не теряет
// эффект — он будет переигран следующим проходом.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/metrics"
	"github.com/iqstocker/entitlement-service/internal/models"
	"github.com/iqstocker/entitlement-service/internal/rabbitmq"
)

// Repository описывает методы хранилища для работы с outbox.
type Repository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkOutboxDispatched(ctx context.Context, id int64, now time.Time) error
	MarkOutboxFailed(ctx context.Context, id int64, cause string) error
	AddGroupEvent(ctx context.Context, event models.GroupEvent) error
}

// Publisher описывает публикацию уведомлений в брокер.
type Publisher interface {
	Publish(routingKey string, body []byte) error
}

// GroupClient описывает снятие бана в VIP-группе.
type GroupClient interface {
	LiftBan(ctx context.Context, telegramID int64) error
}

// ReferralAwarder описывает проверку и начисление реферального бонуса.
type ReferralAwarder interface {
	AwardIfEligible(ctx context.Context, payerID int64) (*models.ReferralAwardResult, error)
}

// Dispatcher доставляет сообщения outbox.
type Dispatcher struct {
	repo      Repository
	publisher Publisher
	group     GroupClient
	referral  ReferralAwarder
	log       *slog.Logger
	batchSize int
}

// New создает новый экземпляр Dispatcher.
func New(repo Repository, publisher Publisher, group GroupClient,
	referral ReferralAwarder, log *slog.Logger, batchSize int) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		group:     group,
		referral:  referral,
		log:       log,
		batchSize: batchSize,
	}
}

// Run запускает периодическую доставку до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	d.runDispatch(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runDispatch(ctx)
		}
	}
}

func (d *Dispatcher) runDispatch(ctx context.Context) {
	dispatched, err := d.DispatchPending(ctx)
	if err != nil {
		d.log.Error("outbox dispatch failed", sl.Err(err))
		return
	}
	if dispatched > 0 {
		d.log.Info("outbox dispatched", "count", dispatched)
	}
}

// DispatchPending доставляет очередную партию недоставленных сообщений
// и возвращает число успешных доставок. Ошибка по одному сообщению не
// прерывает партию: сообщение остается в очереди с записанной причиной.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	const op = "services.outbox.DispatchPending"

	messages, err := d.repo.ListPendingOutbox(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var dispatched int
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return dispatched, fmt.Errorf("%s: %w", op, err)
		}

		if err := d.dispatch(ctx, msg); err != nil {
			metrics.OutboxFailed.WithLabelValues(string(msg.Kind)).Inc()
			d.log.Error("failed to dispatch outbox message", sl.Err(err),
				slog.Int64("id", msg.ID), slog.String("kind", string(msg.Kind)))
			if err := d.repo.MarkOutboxFailed(ctx, msg.ID, err.Error()); err != nil {
				d.log.Error("failed to record dispatch failure", sl.Err(err),
					slog.Int64("id", msg.ID))
			}
			continue
		}

		if err := d.repo.MarkOutboxDispatched(ctx, msg.ID, time.Now().UTC()); err != nil {
			// Эффект уже выполнен, пометить не вышло: сообщение будет
			// переиграно. Все эффекты идемпотентны, это безопасно.
			d.log.Error("failed to mark message dispatched", sl.Err(err),
				slog.Int64("id", msg.ID))
			continue
		}
		dispatched++
		metrics.OutboxDispatched.WithLabelValues(string(msg.Kind)).Inc()
	}
	return dispatched, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *models.OutboxMessage) error {
	switch msg.Kind {
	case models.OutboxNotifyTransition:
		return d.publisher.Publish(rabbitmq.RoutingKeyTransition, msg.Payload)
	case models.OutboxNotifyReferral:
		return d.publisher.Publish(rabbitmq.RoutingKeyReferral, msg.Payload)
	case models.OutboxNotifyRemoval:
		return d.publisher.Publish(rabbitmq.RoutingKeyRemoval, msg.Payload)
	case models.OutboxGroupReadmit:
		return d.readmit(ctx, msg.Payload)
	case models.OutboxReferralAward:
		return d.award(ctx, msg.Payload)
	default:
		return fmt.Errorf("unknown outbox kind %q", msg.Kind)
	}
}

func (d *Dispatcher) readmit(ctx context.Context, payload []byte) error {
	var cmd models.ReadmitCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("unmarshal readmit command: %w", err)
	}

	if err := d.group.LiftBan(ctx, cmd.TelegramID); err != nil {
		return err
	}
	metrics.GroupUnbans.Inc()

	if err := d.repo.AddGroupEvent(ctx, models.GroupEvent{
		TelegramID: cmd.TelegramID,
		Status:     models.GroupEventUnbanned,
		Reason:     "payment received",
	}); err != nil {
		d.log.Error("failed to record group event", sl.Err(err),
			slog.Int64("telegram_id", cmd.TelegramID))
	}
	return nil
}

func (d *Dispatcher) award(ctx context.Context, payload []byte) error {
	var req models.ReferralAwardRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("unmarshal referral award request: %w", err)
	}

	_, err := d.referral.AwardIfEligible(ctx, req.UserID)
	return err
}
