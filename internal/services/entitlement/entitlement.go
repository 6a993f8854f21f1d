// Package entitlement отвечает на вопросы "что положено пользователю":
// статус подписки, доступ к возможностям и остатки квот. Только чтение,
// ответы кэшируются в Redis.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iqstocker/entitlement-service/internal/cache"
	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/models"
)

// cacheTTL срок жизни кэшированных ответов. Короткий: основная защита
// от рассинхронизации — явная инвалидация при изменении подписки.
const cacheTTL = 5 * time.Minute

// Feature возможность бота, доступ к которой проверяется.
type Feature string

// Проверяемые возможности.
const (
	FeatureAnalytics Feature = "analytics"
	FeatureThemes    Feature = "themes"
	FeatureTopThemes Feature = "top_themes"
	FeatureVIPGroup  Feature = "vip_group"
)

// Entitlement снимок статуса подписки пользователя.
type Entitlement struct {
	TelegramID int64                   `json:"telegram_id"`
	Tier       models.SubscriptionType `json:"tier"`
	Active     bool                    `json:"active"`
	ExpiresAt  *time.Time              `json:"expires_at,omitempty"`
	Blocked    bool                    `json:"blocked"`
}

// Repository описывает методы чтения из хранилища.
type Repository interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetLimits(ctx context.Context, userID int64) (*models.Limits, error)
	ListGroupEvents(ctx context.Context, telegramID int64, limit int) ([]*models.GroupEvent, error)
}

// Cache описывает кэш ответов.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// GroupAccess описывает проверку права на VIP-группу.
type GroupAccess interface {
	DesiredAccess(ctx context.Context, telegramID int64) (bool, error)
}

// Service read-only сервис статусов и квот.
type Service struct {
	repo        Repository
	cache       Cache
	groupAccess GroupAccess
	log         *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, c Cache, groupAccess GroupAccess, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		cache:       c,
		groupAccess: groupAccess,
		log:         log,
	}
}

// GetEntitlement возвращает снимок статуса подписки пользователя.
func (s *Service) GetEntitlement(ctx context.Context, telegramID int64) (*Entitlement, error) {
	const op = "services.entitlement.GetEntitlement"

	key := cache.EntitlementKey(telegramID)
	var cached Entitlement
	found, err := s.cache.Get(key, &cached)
	if err != nil {
		s.log.Warn("cache read failed", sl.Err(err), slog.Int64("telegram_id", telegramID))
	}
	if found {
		return &cached, nil
	}

	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ent := &Entitlement{
		TelegramID: user.TelegramID,
		Tier:       user.SubscriptionType,
		Active:     user.HasActiveSubscription(time.Now().UTC()),
		ExpiresAt:  user.SubscriptionExpiresAt,
		Blocked:    user.IsBlocked,
	}
	if err := s.cache.Set(key, ent, cacheTTL); err != nil {
		s.log.Warn("cache write failed", sl.Err(err), slog.Int64("telegram_id", telegramID))
	}
	return ent, nil
}

// IsEntitled проверяет доступ пользователя к возможности.
// Заблокированным доступ закрыт независимо от тарифа и квот.
func (s *Service) IsEntitled(ctx context.Context, telegramID int64, feature Feature) (bool, error) {
	const op = "services.entitlement.IsEntitled"

	if feature == FeatureVIPGroup {
		allowed, err := s.groupAccess.DesiredAccess(ctx, telegramID)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return allowed, nil
	}

	ent, err := s.GetEntitlement(ctx, telegramID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if ent.Blocked || !ent.Active {
		return false, nil
	}

	quota, ok := quotaForFeature(feature)
	if !ok {
		return false, fmt.Errorf("%s: unknown feature %q", op, feature)
	}
	remaining, err := s.RemainingQuota(ctx, telegramID, quota)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return remaining > 0, nil
}

// RemainingQuota возвращает остаток по квоте пользователя.
func (s *Service) RemainingQuota(ctx context.Context, telegramID int64, quota models.QuotaKind) (int, error) {
	const op = "services.entitlement.RemainingQuota"

	limits, err := s.getLimits(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return limits.Remaining(quota), nil
}

// GetLimits возвращает все счетчики квот пользователя.
func (s *Service) GetLimits(ctx context.Context, telegramID int64) (*models.Limits, error) {
	const op = "services.entitlement.GetLimits"

	limits, err := s.getLimits(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return limits, nil
}

// GetGroupEvents возвращает последние события участия пользователя в VIP-группе.
func (s *Service) GetGroupEvents(ctx context.Context, telegramID int64, limit int) ([]*models.GroupEvent, error) {
	const op = "services.entitlement.GetGroupEvents"

	events, err := s.repo.ListGroupEvents(ctx, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

func (s *Service) getLimits(ctx context.Context, telegramID int64) (*models.Limits, error) {
	key := cache.LimitsKey(telegramID)
	var cached models.Limits
	found, err := s.cache.Get(key, &cached)
	if err != nil {
		s.log.Warn("cache read failed", sl.Err(err), slog.Int64("telegram_id", telegramID))
	}
	if found {
		return &cached, nil
	}

	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	limits, err := s.repo.GetLimits(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(key, limits, cacheTTL); err != nil {
		s.log.Warn("cache write failed", sl.Err(err), slog.Int64("telegram_id", telegramID))
	}
	return limits, nil
}

func quotaForFeature(feature Feature) (models.QuotaKind, bool) {
	switch feature {
	case FeatureAnalytics:
		return models.QuotaAnalytics, true
	case FeatureThemes:
		return models.QuotaThemes, true
	case FeatureTopThemes:
		return models.QuotaTopThemes, true
	default:
		return "", false
	}
}
