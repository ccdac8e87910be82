// Package admin — handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает через Reply Keyboard в личных сообщениях.
// Поток: аутентификация → клавиатура → выбор действия → одна строка с параметрами.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	bot     *telego.Bot
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, bot *telego.Bot) *Handler {
	return &Handler{service: service, bot: bot}
}

// prompts — подсказка для каждого действия, которое ждёт строку параметров.
var prompts = map[string]struct {
	state  string
	prompt string
}{
	ButtonAward:   {StateAwardInput, "Отправьте: @username количество [причина]\nОтрицательное количество — списание"},
	ButtonReset:   {StateResetInput, "Отправьте: @username [причина]"},
	ButtonBlock:   {StateBlockInput, "Отправьте: @username [часы] [причина]"},
	ButtonUnblock: {StateUnblockInput, "Отправьте: @username"},
	ButtonBan:     {StateBanInput, "Отправьте: @username [причина]\nПользователь потеряет доступ к боту"},
	ButtonUnban:   {StateUnbanInput, "Отправьте: @username"},
}

// HandleAdminMessage обрабатывает любое сообщение от администратора в DM.
// Возвращает false, если сообщение не относится к админке.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool {
	isAdmin, err := h.service.IsAdmin(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проверки прав администратора")
		return false
	}
	if !isAdmin {
		return false
	}

	state := h.service.GetState(userID)

	if state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	isPanelCommand := text == "/login" || strings.EqualFold(text, "админ") || strings.EqualFold(text, "панель")

	if !h.service.HasActiveSession(ctx, userID) {
		if !isPanelCommand && !isButton(text) {
			return false
		}
		h.sendMessage(ctx, chatID, "🔐 Введите пароль для доступа к админ-панели:")
		h.service.SetState(userID, StateAwaitingPassword)
		return true
	}

	h.service.Touch(ctx, userID)

	if state != nil && !isButton(text) {
		h.handleInput(ctx, chatID, userID, state.State, text)
		return true
	}

	switch text {
	case ButtonScorers:
		out, err := h.service.FormatScorers(ctx)
		h.reply(ctx, chatID, out, err)
		h.service.SetState(userID, StateScorerInput)
		return true
	case ButtonWords:
		out, err := h.service.FormatForbiddenWords(ctx)
		h.reply(ctx, chatID, out, err)
		h.service.SetState(userID, StateWordsInput)
		return true
	case ButtonBlocked:
		h.service.ClearState(userID)
		out, err := h.service.FormatBlocked(ctx)
		h.reply(ctx, chatID, out, err)
		return true
	case ButtonReconcile:
		h.service.ClearState(userID)
		out, err := h.service.Reconcile(ctx)
		h.reply(ctx, chatID, out, err)
		return true
	case ButtonLogout:
		if err := h.service.Logout(ctx, userID); err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return true
		}
		h.sendWithMarkup(ctx, chatID, "👋 Сессия завершена", tu.ReplyKeyboardRemove())
		return true
	}

	if p, ok := prompts[text]; ok {
		h.service.SetState(userID, p.state)
		h.sendMessage(ctx, chatID, p.prompt)
		return true
	}

	if isPanelCommand {
		h.showKeyboard(ctx, chatID)
		return true
	}
	return false
}

func isButton(text string) bool {
	switch text {
	case ButtonAward, ButtonReset, ButtonBlock, ButtonUnblock,
		ButtonScorers, ButtonBlocked, ButtonReconcile,
		ButtonBan, ButtonUnban, ButtonWords, ButtonLogout:
		return true
	}
	return false
}

func (h *Handler) handlePasswordInput(ctx context.Context, chatID, userID int64, password string) {
	err := h.service.VerifyPassword(ctx, userID, password)
	h.service.ClearState(userID)
	if err != nil {
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(ctx, chatID, "✅ Аутентификация успешна!")
	h.showKeyboard(ctx, chatID)
}

// handleInput выполняет действие по строке параметров.
func (h *Handler) handleInput(ctx context.Context, chatID, userID int64, state, text string) {
	defer h.service.ClearState(userID)

	switch state {
	case StateAwardInput:
		username, amount, reason, err := ParseAwardInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		target, res, err := h.service.AwardPoints(ctx, userID, username, amount, reason)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s: %s\nБаланс: %s, уровень %d",
			target.DisplayName(), common.FormatPointsDelta(amount), common.FormatPoints(res.Balance), res.Level))

	case StateResetInput:
		username, reason, err := ParseTargetInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		target, res, err := h.service.ResetPoints(ctx, userID, username, reason)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		if !res.Applied {
			h.sendMessage(ctx, chatID, fmt.Sprintf("ℹ️ У %s и так 0 баллов", target.DisplayName()))
			return
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("✅ Баллы %s обнулены (%s)",
			target.DisplayName(), common.FormatPointsDelta(res.Delta)))

	case StateBlockInput:
		username, d, reason, err := ParseBlockInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		target, until, err := h.service.BlockUser(ctx, username, d, reason)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("⛔ %s заблокирован до %s",
			target.DisplayName(), common.FormatDateTime(until, h.service.cfg.Location)))

	case StateUnblockInput:
		username, _, err := ParseTargetInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		target, err := h.service.UnblockUser(ctx, username)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s разблокирован", target.DisplayName()))

	case StateBanInput:
		username, reason, err := ParseTargetInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		target, err := h.service.BanUser(ctx, userID, username, reason)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("🚫 %s больше не может пользоваться ботом", target.DisplayName()))

	case StateUnbanInput:
		username, _, err := ParseTargetInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		target, err := h.service.UnbanUser(ctx, userID, username)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s снова может пользоваться ботом", target.DisplayName()))

	case StateWordsInput:
		word, add, err := ParseWordInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		word, err = h.service.SetForbiddenWord(ctx, word, add)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		if add {
			h.sendMessage(ctx, chatID, fmt.Sprintf("✅ «%s» добавлено в запрещённые", word))
		} else {
			h.sendMessage(ctx, chatID, fmt.Sprintf("✅ «%s» удалено из запрещённых", word))
		}

	case StateScorerInput:
		username, grant, err := ParseScorerInput(text)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		target, err := h.service.SetScorer(ctx, username, grant)
		if err != nil {
			h.sendMessage(ctx, chatID, common.UserMessage(err))
			return
		}
		if grant {
			h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s теперь оценщик", target.DisplayName()))
		} else {
			h.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s больше не оценщик", target.DisplayName()))
		}
	}
}

// showKeyboard отображает клавиатуру админ-панели.
func (h *Handler) showKeyboard(ctx context.Context, chatID int64) {
	keyboard := tu.Keyboard(
		tu.KeyboardRow(tu.KeyboardButton(ButtonAward), tu.KeyboardButton(ButtonReset)),
		tu.KeyboardRow(tu.KeyboardButton(ButtonBlock), tu.KeyboardButton(ButtonUnblock)),
		tu.KeyboardRow(tu.KeyboardButton(ButtonBan), tu.KeyboardButton(ButtonUnban)),
		tu.KeyboardRow(tu.KeyboardButton(ButtonScorers), tu.KeyboardButton(ButtonBlocked)),
		tu.KeyboardRow(tu.KeyboardButton(ButtonWords)),
		tu.KeyboardRow(tu.KeyboardButton(ButtonReconcile), tu.KeyboardButton(ButtonLogout)),
	).WithResizeKeyboard()

	h.sendWithMarkup(ctx, chatID, "✅ Админ-панель открыта", keyboard)
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, err error) {
	if err != nil {
		log.WithError(err).Error("Ошибка админ-действия")
		h.sendMessage(ctx, chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(ctx, chatID, text)
}

func (h *Handler) sendWithMarkup(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithReplyMarkup(markup)); err != nil {
		log.WithError(err).Error("Ошибка отправки клавиатуры")
	}
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
