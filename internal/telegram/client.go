// Package telegram оборачивает Telegram Bot API для управления VIP-группой:
// проверка членства, удаление без вечного бана, снятие бана и отправка
// личных сообщений. Все вызовы проходят через общий rate limiter,
// чтобы не упираться в лимиты Telegram.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/iqstocker/entitlement-service/internal/config"
	"github.com/iqstocker/entitlement-service/internal/models"
)

// Client обертка над ботом с привязкой к VIP-группе.
type Client struct {
	bot     *bot.Bot
	groupID int64
	limiter *rate.Limiter
}

// New создает клиента Telegram по настройкам из конфига.
func New(cfg config.Telegram) (*Client, error) {
	const op = "telegram.New"

	b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	mps := cfg.MessagesPerSecond
	if mps <= 0 {
		mps = 20
	}

	return &Client{
		bot:     b,
		groupID: cfg.VIPGroupID,
		limiter: rate.NewLimiter(rate.Limit(mps), 1),
	}, nil
}

// GetMembershipStatus возвращает фактический статус пользователя в VIP-группе.
// Для пользователя, которого Telegram не знает в контексте группы,
// возвращается MembershipLeft.
func (c *Client) GetMembershipStatus(ctx context.Context, telegramID int64) (models.MembershipStatus, error) {
	const op = "telegram.GetMembershipStatus"

	if err := c.limiter.Wait(ctx); err != nil {
		return models.MembershipUnknown, fmt.Errorf("%s: %w", op, err)
	}

	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: c.groupID,
		UserID: telegramID,
	})
	if err != nil {
		if isMissingMemberError(err) {
			return models.MembershipLeft, nil
		}
		return models.MembershipUnknown, fmt.Errorf("%s: %w", op, err)
	}

	switch member.Type {
	case tgmodels.ChatMemberTypeOwner:
		return models.MembershipCreator, nil
	case tgmodels.ChatMemberTypeAdministrator:
		return models.MembershipAdmin, nil
	case tgmodels.ChatMemberTypeMember, tgmodels.ChatMemberTypeRestricted:
		return models.MembershipMember, nil
	case tgmodels.ChatMemberTypeLeft:
		return models.MembershipLeft, nil
	case tgmodels.ChatMemberTypeBanned:
		return models.MembershipKicked, nil
	}
	return models.MembershipUnknown, nil
}

// RemoveNonPermanently удаляет пользователя из VIP-группы без вечного бана:
// until_date в прошлом означает кик, после которого пользователь может
// вернуться по новой ссылке-приглашению.
func (c *Client) RemoveNonPermanently(ctx context.Context, telegramID int64) error {
	const op = "telegram.RemoveNonPermanently"

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err := c.bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID:    c.groupID,
		UserID:    telegramID,
		UntilDate: int(time.Now().Add(-time.Minute).Unix()),
	})
	if err != nil {
		if isMissingMemberError(err) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LiftBan снимает бан с пользователя, если он есть. Вызов для небаненного
// пользователя безвреден благодаря only_if_banned.
func (c *Client) LiftBan(ctx context.Context, telegramID int64) error {
	const op = "telegram.LiftBan"

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err := c.bot.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       c.groupID,
		UserID:       telegramID,
		OnlyIfBanned: true,
	})
	if err != nil {
		if isMissingMemberError(err) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendMessage отправляет личное сообщение пользователю.
func (c *Client) SendMessage(ctx context.Context, telegramID int64, text string) error {
	const op = "telegram.SendMessage"

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: telegramID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// isMissingMemberError распознает ответы Telegram, означающие, что
// пользователя нет в группе или он недоступен боту. Такие ответы не
// считаются сбоями: сверка трактует их как "не в группе".
func isMissingMemberError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"user not found",
		"participant_id_invalid",
		"user_not_participant",
		"chat member not found",
		"user is deactivated",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
