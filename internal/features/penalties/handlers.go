// Package penalties — handlers.go обрабатывает команду !штрафы.
package penalties

import (
	"context"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Handler обрабатывает команды штрафов.
type Handler struct {
	service *Service
	bot     *telego.Bot
	loc     *time.Location
	retries uint
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot *telego.Bot, loc *time.Location, retries uint) *Handler {
	return &Handler{service: service, bot: bot, loc: loc, retries: retries}
}

// HandleStatus обрабатывает !штрафы.
func (h *Handler) HandleStatus(ctx context.Context, chatID, userID int64) {
	rec, err := common.RetryValue(ctx, h.retries, func() (*Record, error) {
		return h.service.Status(ctx, userID)
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения штрафов")
		h.send(ctx, chatID, common.UserMessage(err))
		return
	}
	h.send(ctx, chatID, h.service.FormatStatus(rec, h.loc))
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
