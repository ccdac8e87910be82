// Package filters решает, отвечает ли бот в данном чате данному пользователю.
package filters

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/features/members"
)

// ChatFilter пропускает чат сообщества и личку участников сообщества.
// Забаненным доступ закрыт везде, кроме администраторов из конфигурации.
type ChatFilter struct {
	communityChatID int64
	memberService   *members.Service
	bot             *telego.Bot
	isAdmin         func(userID int64) bool
}

// NewChatFilter создаёт фильтр. isAdmin может быть nil.
func NewChatFilter(communityChatID int64, memberService *members.Service, bot *telego.Bot, isAdmin func(int64) bool) *ChatFilter {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &ChatFilter{
		communityChatID: communityChatID,
		memberService:   memberService,
		bot:             bot,
		isAdmin:         isAdmin,
	}
}

// CheckAccess — можно ли обработать действие пользователя from в чате chat.
func (f *ChatFilter) CheckAccess(ctx context.Context, chat telego.Chat, from *telego.User) bool {
	if from == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   chat.ID,
			"chat_type": chat.Type,
		}).Warn("nil from (service/channel message?)")
		return false
	}
	if f.communityChatID == 0 {
		log.WithField("component", "ChatFilter").Error("communityChatID is 0 (config bug)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component":         "ChatFilter",
		"chat_id":           chat.ID,
		"chat_type":         chat.Type,
		"user_id":           from.ID,
		"community_chat_id": f.communityChatID,
	})

	// 0) Бан действует во всех чатах
	if !f.isAdmin(from.ID) {
		banned, reason, err := f.memberService.BanStatus(ctx, from.ID)
		if err != nil {
			logger.WithError(err).Error("ban check failed (db)")
			return false
		}
		if banned {
			logger.WithField("reason", reason).Info("deny: banned")
			if chat.Type == telego.ChatTypePrivate {
				f.sendBanned(ctx, chat.ID, reason, logger)
			}
			return false
		}
	}

	// 1) Чат сообщества
	if chat.ID == f.communityChatID {
		return true
	}

	// 2) Личка: сначала быстро по БД
	if chat.Type == telego.ChatTypePrivate {
		isMember, err := f.memberService.IsMember(ctx, from.ID)
		if err != nil {
			logger.WithError(err).Error("member check failed (db)")
			return false
		}
		if isMember {
			return true
		}

		// 2.1) БД не знает пользователя: проверяем членство через Telegram API
		cm, err := f.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
			ChatID: tu.ID(f.communityChatID),
			UserID: from.ID,
		})
		if err != nil {
			logger.WithError(err).Error("member check failed (telegram GetChatMember)")
			return false
		}

		status := cm.MemberStatus()
		switch status {
		case telego.MemberStatusCreator, telego.MemberStatusAdministrator,
			telego.MemberStatusMember, telego.MemberStatusRestricted:
			if err := f.memberService.EnsureMember(ctx, from.ID,
				from.Username, from.FirstName, from.LastName,
			); err != nil {
				logger.WithError(err).Warn("failed to backfill member to DB (allowing anyway)")
			}
			logger.WithField("tg_status", status).Info("allow: private (telegram member, backfilled)")
			return true

		default:
			logger.WithField("tg_status", status).Info("deny: private (not a chat member)")
			if _, sendErr := f.bot.SendMessage(ctx,
				tu.Message(tu.ID(chat.ID), "❌ Бот работает только для участников чата сообщества"),
			); sendErr != nil {
				logger.WithError(sendErr).Warn("failed to send deny message")
			}
			return false
		}
	}

	// 3) Остальные чаты игнорируем
	logger.Debug("deny: not community chat and not private")
	return false
}

func (f *ChatFilter) sendBanned(ctx context.Context, chatID int64, reason string, logger *log.Entry) {
	text := "⛔ Вам закрыт доступ к боту"
	if reason != "" {
		text += ": " + reason
	}
	if _, err := f.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		logger.WithError(err).Warn("failed to send ban message")
	}
}
