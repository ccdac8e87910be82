// Package moderation — handlers.go обрабатывает !поддержка и !отмена.
package moderation

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Handler обрабатывает обращения в поддержку.
type Handler struct {
	service *Service
	bot     *telego.Bot
	retries uint
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot *telego.Bot, retries uint) *Handler {
	return &Handler{service: service, bot: bot, retries: retries}
}

// HandleSupport обрабатывает !поддержка [текст].
// Без текста — ждём следующее сообщение.
func (h *Handler) HandleSupport(ctx context.Context, chatID, userID int64, text string) {
	if text == "" {
		h.service.StartSupport(userID)
		h.send(ctx, chatID, "✍️ Напишите сообщение для администраторов (до 500 символов).\n!отмена — отменить")
		return
	}
	h.submit(ctx, chatID, userID, text)
}

// HandleSupportText принимает текст обращения, если его ждали.
// Возвращает false, если сообщение не относится к поддержке.
func (h *Handler) HandleSupportText(ctx context.Context, chatID, userID int64, text string) bool {
	if !h.service.AwaitingSupport(userID) {
		return false
	}
	h.submit(ctx, chatID, userID, text)
	return true
}

// HandleCancel обрабатывает !отмена.
func (h *Handler) HandleCancel(ctx context.Context, chatID, userID int64) {
	if h.service.CancelSupport(userID) {
		h.send(ctx, chatID, "Обращение отменено")
		return
	}
	h.send(ctx, chatID, "Нечего отменять")
}

func (h *Handler) submit(ctx context.Context, chatID, userID int64, text string) {
	err := common.Retry(ctx, h.retries, func() error {
		return h.service.SubmitSupport(ctx, userID, text)
	})
	if err != nil {
		if common.IsRetryable(err) {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка отправки обращения")
		}
		h.send(ctx, chatID, common.UserMessage(err))
		return
	}
	h.send(ctx, chatID, "✅ Сообщение отправлено администраторам")
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
