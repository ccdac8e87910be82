// Package recommendations — handlers.go обрабатывает команды и кнопки:
// !рекомендую <ссылка> <монеты>, !рекомендации и голоса 👍/👎 под карточкой.
package recommendations

import (
	"context"
	"errors"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Handler обрабатывает рекомендации в Telegram.
type Handler struct {
	service         *Service
	bot             *telego.Bot
	communityChatID int64 // Куда публикуются карточки
	retries         uint
}

// NewHandler создаёт обработчик рекомендаций.
func NewHandler(service *Service, bot *telego.Bot, communityChatID int64, retries uint) *Handler {
	return &Handler{
		service:         service,
		bot:             bot,
		communityChatID: communityChatID,
		retries:         retries,
	}
}

// HandleSubmit обрабатывает !рекомендую <ссылка> <монеты>.
// Карточка с кнопками публикуется в чате сообщества.
func (h *Handler) HandleSubmit(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(ctx, chatID, "❌ Формат: !рекомендую <ссылка> <монеты>")
		return
	}
	coins, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		h.sendMessage(ctx, chatID, "❌ Количество монет должно быть числом")
		return
	}

	rec, err := h.service.Submit(ctx, userID, args[0], coins)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Рекомендация отклонена")
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}

	card := &Snapshot{Recommendation: rec}
	msg, err := h.bot.SendMessage(ctx,
		tu.Message(tu.ID(h.communityChatID), h.service.FormatCard(card)).
			WithReplyMarkup(h.keyboard(rec.ID)),
	)
	if err != nil {
		log.WithError(err).WithField("id", rec.ID).Error("Ошибка публикации карточки")
		h.sendMessage(ctx, chatID, "✅ Рекомендация сохранена, но карточку опубликовать не удалось")
		return
	}

	if err := common.Retry(ctx, h.retries, func() error {
		return h.service.AttachMessage(ctx, rec.ID, h.communityChatID, msg.MessageID)
	}); err != nil {
		log.WithError(err).WithField("id", rec.ID).Error("Ошибка сохранения карточки")
	}

	if chatID != h.communityChatID {
		h.sendMessage(ctx, chatID, "✅ Рекомендация #"+strconv.FormatInt(rec.ID, 10)+" опубликована в чате")
	}
}

// HandleList обрабатывает !рекомендации.
func (h *Handler) HandleList(ctx context.Context, chatID int64) {
	snaps, err := common.RetryValue(ctx, h.retries, func() ([]*Snapshot, error) {
		return h.service.ListOpen(ctx, 10)
	})
	if err != nil {
		log.WithError(err).Error("Ошибка получения рекомендаций")
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(ctx, chatID, h.service.FormatList(snaps))
}

// HandleVoteCallback обрабатывает нажатие 👍/👎.
func (h *Handler) HandleVoteCallback(ctx context.Context, query *telego.CallbackQuery) {
	id, approve, ok := ParseVoteData(query.Data)
	if !ok {
		h.answer(ctx, query.ID, "❌ Неизвестная кнопка")
		return
	}

	res, err := common.RetryValue(ctx, h.retries, func() (*VoteResult, error) {
		return h.service.CastVote(ctx, id, query.From.ID, approve)
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"id": id, "voter": query.From.ID}).Debug("Голос отклонён")
		h.answer(ctx, query.ID, common.UserMessage(err))
		return
	}

	h.answer(ctx, query.ID, "✅ Голос учтён")

	if h.service.Revealed(res.Recommendation) {
		h.refreshCard(ctx, &Snapshot{Recommendation: res.Recommendation, Tally: res.Tally})
	}
}

// Reveal раскрывает подсчёт в карточке.
// Если рекомендации или карточки уже нет — тихо ничего не делает.
func (h *Handler) Reveal(ctx context.Context, id int64) error {
	snap, err := h.service.Snapshot(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		log.WithField("id", id).Debug("Раскрытие: рекомендация не найдена")
		return nil
	}
	if err != nil {
		return err
	}
	h.refreshCard(ctx, snap)
	return nil
}

func (h *Handler) refreshCard(ctx context.Context, snap *Snapshot) {
	rec := snap.Recommendation
	if rec.ChatID == nil || rec.MessageID == nil {
		log.WithField("id", rec.ID).Debug("Карточка рекомендации не опубликована")
		return
	}

	params := &telego.EditMessageTextParams{
		ChatID:    tu.ID(*rec.ChatID),
		MessageID: *rec.MessageID,
		Text:      h.service.FormatCard(snap),
	}
	if snap.Tally.Total() < h.service.Config().MaxVotes {
		params.ReplyMarkup = h.keyboard(rec.ID)
	}
	if _, err := h.bot.EditMessageText(ctx, params); err != nil {
		// Карточку могли удалить или текст не изменился
		log.WithError(err).WithField("id", rec.ID).Debug("Не удалось обновить карточку")
	}
}

func (h *Handler) keyboard(id int64) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("👍 Настоящая").WithCallbackData(VoteData(id, true)),
			tu.InlineKeyboardButton("👎 Фейк").WithCallbackData(VoteData(id, false)),
		),
	)
}

func (h *Handler) answer(ctx context.Context, queryID, text string) {
	if err := h.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(queryID).WithText(text)); err != nil {
		log.WithError(err).Debug("Ошибка ответа на callback")
	}
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
