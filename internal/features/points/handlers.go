// Package points — handlers.go обрабатывает команды:
// !баллы (баланс и уровень), !история (журнал), !топ (рейтинг), !начислить (оценщики).
package points

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
)

// Handler обрабатывает команды баллов.
type Handler struct {
	service       *Service
	memberService *members.Service // Для поиска получателя и проверки роли оценщика
	bot           *telego.Bot
	retries       uint
}

// NewHandler создаёт обработчик команд баллов.
func NewHandler(service *Service, memberService *members.Service, bot *telego.Bot, retries uint) *Handler {
	return &Handler{
		service:       service,
		memberService: memberService,
		bot:           bot,
		retries:       retries,
	}
}

// HandlePoints обрабатывает !баллы.
//
//	💰 Баланс: 150 баллов
//	🏅 Уровень: 0
//	🎯 До «Оценщик»: 350 баллов
func (h *Handler) HandlePoints(ctx context.Context, chatID, userID int64) {
	acc, err := common.RetryValue(ctx, h.retries, func() (*Account, error) {
		return h.service.Account(ctx, userID)
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения баланса")
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(ctx, chatID, h.service.FormatStatus(acc))
}

// HandleHistory обрабатывает !история [страница].
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64, args []string) {
	page := 1
	if len(args) > 0 {
		if p, err := strconv.Atoi(args[0]); err == nil && p > 0 {
			page = p
		}
	}

	entries, err := common.RetryValue(ctx, h.retries, func() ([]*Entry, error) {
		return h.service.History(ctx, userID, page)
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения истории")
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(ctx, chatID, h.service.FormatHistory(entries, page))
}

// HandleTop обрабатывает !топ.
func (h *Handler) HandleTop(ctx context.Context, chatID int64) {
	ranked, err := common.RetryValue(ctx, h.retries, func() ([]*Ranked, error) {
		return h.service.Top(ctx, 10)
	})
	if err != nil {
		log.WithError(err).Error("Ошибка получения рейтинга")
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(ctx, chatID, FormatTop(ranked))
}

// HandleAward обрабатывает !начислить @username 10 [причина].
// Доступно только оценщикам.
func (h *Handler) HandleAward(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(ctx, chatID, "❌ Формат: !начислить @username количество [причина]")
		return
	}

	isScorer, err := h.memberService.IsScorer(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проверки роли оценщика")
		h.sendMessage(ctx, chatID, common.GenericFailure)
		return
	}
	if !isScorer {
		h.sendMessage(ctx, chatID, common.UserMessage(common.ErrNotScorer))
		return
	}

	username := strings.TrimPrefix(args[0], "@")
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		h.sendMessage(ctx, chatID, "❌ Количество должно быть числом")
		return
	}
	reason := strings.Join(args[2:], " ")

	recipient, err := h.memberService.GetByUsername(ctx, username)
	if err != nil {
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}

	res, err := common.RetryValue(ctx, h.retries, func() (*Result, error) {
		return h.service.Award(ctx, userID, recipient.UserID, amount, reason)
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"from": userID, "to": recipient.UserID}).Warn("Начисление отклонено")
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}

	h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s: %s\nБаланс: %s",
		recipient.DisplayName(), common.FormatPointsDelta(amount), common.FormatPoints(res.Balance)))
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
