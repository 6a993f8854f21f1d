// Package groupaccess сверяет состав VIP-группы с правами пользователей:
// удаляет тех, кто потерял подписку, и разбанивает тех, кто ее вернул.
package groupaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/metrics"
	"github.com/iqstocker/entitlement-service/internal/models"
	"github.com/iqstocker/entitlement-service/internal/storage/repository"
)

// Repository описывает методы хранилища для сверки группы.
type Repository interface {
	FindReconcileCandidates(ctx context.Context) ([]*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	IsWhitelisted(ctx context.Context, telegramID int64) (bool, error)
	AddGroupEvent(ctx context.Context, event models.GroupEvent) error
	ClaimRemovalNotification(ctx context.Context, userID, telegramID int64, now time.Time) (bool, error)
}

// GroupClient описывает операции над VIP-группой через Telegram API.
type GroupClient interface {
	GetMembershipStatus(ctx context.Context, telegramID int64) (models.MembershipStatus, error)
	RemoveNonPermanently(ctx context.Context, telegramID int64) error
	LiftBan(ctx context.Context, telegramID int64) error
}

// Outcome исход сверки одного пользователя.
type Outcome string

// Исходы сверки.
const (
	OutcomeNoop        Outcome = "noop"
	OutcomeWhitelisted Outcome = "whitelisted"
	OutcomeRemoved     Outcome = "removed"
	OutcomeUnbanned    Outcome = "unbanned"
	OutcomeGraceWait   Outcome = "grace-wait"
)

// Service выполняет сверку VIP-группы.
type Service struct {
	repo                Repository
	group               GroupClient
	log                 *slog.Logger
	gracePeriod         time.Duration
	removalNotification bool
}

// New создает новый экземпляр Service.
func New(repo Repository, group GroupClient, log *slog.Logger,
	gracePeriod time.Duration, removalNotification bool) *Service {
	return &Service{
		repo:                repo,
		group:               group,
		log:                 log,
		gracePeriod:         gracePeriod,
		removalNotification: removalNotification,
	}
}

// Run запускает периодическую сверку до отмены контекста.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.runReconcile(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runReconcile(ctx)
		}
	}
}

func (s *Service) runReconcile(ctx context.Context) {
	s.log.Info("starting vip group reconcile")
	stats, err := s.ReconcileAll(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("reconcile failed", sl.Err(err))
		return
	}
	s.log.Info("reconcile finished",
		"checked", stats.Checked,
		"removed", stats.Removed,
		"unbanned", stats.Unbanned,
		"grace_skipped", stats.GraceSkipped,
		"errors", stats.Errors)
}

// DesiredAccess сообщает, положен ли пользователю доступ в VIP-группу:
// whitelist либо активный ограниченный по времени тариф. Заблокированным
// доступ не положен независимо от тарифа.
func (s *Service) DesiredAccess(ctx context.Context, telegramID int64) (bool, error) {
	const op = "services.groupaccess.DesiredAccess"

	whitelisted, err := s.repo.IsWhitelisted(ctx, telegramID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if whitelisted {
		return true, nil
	}

	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if user.IsBlocked {
		return false, nil
	}
	return user.HasActiveSubscription(time.Now().UTC()), nil
}

// ReconcileAll сверяет всех кандидатов. Ошибка по одному пользователю
// не прерывает проход, она попадает в счетчик Errors.
func (s *Service) ReconcileAll(ctx context.Context, now time.Time) (*models.ReconcileStats, error) {
	const op = "services.groupaccess.ReconcileAll"

	users, err := s.repo.FindReconcileCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := &models.ReconcileStats{}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("%s: %w", op, err)
		}

		stats.Checked++
		outcome, err := s.ReconcileOne(ctx, user, now)
		if err != nil {
			stats.Errors++
			s.log.Error("failed to reconcile user", sl.Err(err),
				slog.Int64("telegram_id", user.TelegramID))
			continue
		}
		switch outcome {
		case OutcomeWhitelisted:
			stats.Whitelisted++
		case OutcomeRemoved:
			stats.Removed++
		case OutcomeUnbanned:
			stats.Unbanned++
		case OutcomeGraceWait:
			stats.GraceSkipped++
		}
	}
	return stats, nil
}

// ReconcileOne приводит членство одного пользователя в соответствие
// с его правами на момент now.
func (s *Service) ReconcileOne(ctx context.Context, user *models.User, now time.Time) (Outcome, error) {
	const op = "services.groupaccess.ReconcileOne"

	whitelisted, err := s.repo.IsWhitelisted(ctx, user.TelegramID)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("%s: %w", op, err)
	}
	if whitelisted {
		return OutcomeWhitelisted, nil
	}

	status, err := s.group.GetMembershipStatus(ctx, user.TelegramID)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("%s: %w", op, err)
	}

	desired := !user.IsBlocked && user.HasActiveSubscription(now)

	switch {
	case status.IsInGroup() && !desired:
		// Админов и создателя группы не трогаем.
		if status == models.MembershipAdmin || status == models.MembershipCreator {
			return OutcomeNoop, nil
		}
		return s.remove(ctx, user, now)
	case status == models.MembershipKicked && desired:
		return s.readmit(ctx, user)
	default:
		return OutcomeNoop, nil
	}
}

// remove удаляет пользователя из группы с грейс-периодом от момента
// уведомления о переходе на FREE, чтобы пользователь успел продлить
// подписку до удаления.
func (s *Service) remove(ctx context.Context, user *models.User, now time.Time) (Outcome, error) {
	const op = "services.groupaccess.remove"

	// Без якоря уведомления грейс-период отсчитывать не от чего:
	// ждем, пока sweeper его выставит.
	anchor := user.TransitionNotifiedAt
	if anchor == nil || now.Sub(*anchor) < s.gracePeriod {
		return OutcomeGraceWait, nil
	}

	if err := s.group.RemoveNonPermanently(ctx, user.TelegramID); err != nil {
		return OutcomeNoop, fmt.Errorf("%s: %w", op, err)
	}
	metrics.GroupRemovals.Inc()

	if err := s.repo.AddGroupEvent(ctx, models.GroupEvent{
		TelegramID:       user.TelegramID,
		UserID:           &user.ID,
		SubscriptionType: user.SubscriptionType,
		Status:           models.GroupEventRemoved,
		Reason:           "subscription expired",
	}); err != nil {
		s.log.Error("failed to record group event", sl.Err(err),
			slog.Int64("telegram_id", user.TelegramID))
	}

	if s.removalNotification {
		// Маркер и уведомление пишутся одной транзакцией в хранилище,
		// поэтому уведомление об удалении не может ни задвоиться, ни
		// потеряться между ними.
		if _, err := s.repo.ClaimRemovalNotification(ctx, user.ID, user.TelegramID, now); err != nil {
			return OutcomeRemoved, fmt.Errorf("%s: %w", op, err)
		}
	}
	return OutcomeRemoved, nil
}

func (s *Service) readmit(ctx context.Context, user *models.User) (Outcome, error) {
	const op = "services.groupaccess.readmit"

	if err := s.group.LiftBan(ctx, user.TelegramID); err != nil {
		return OutcomeNoop, fmt.Errorf("%s: %w", op, err)
	}
	metrics.GroupUnbans.Inc()

	if err := s.repo.AddGroupEvent(ctx, models.GroupEvent{
		TelegramID:       user.TelegramID,
		UserID:           &user.ID,
		SubscriptionType: user.SubscriptionType,
		Status:           models.GroupEventUnbanned,
		Reason:           "subscription active",
	}); err != nil {
		s.log.Error("failed to record group event", sl.Err(err),
			slog.Int64("telegram_id", user.TelegramID))
	}
	return OutcomeUnbanned, nil
}
