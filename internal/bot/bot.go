// Package bot содержит главный модуль бота: приём апдейтов и маршрутизацию.
// bot.go получает апдейты через long polling и раздаёт их обработчикам.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/bot/filters"
	"serotonyl.ru/points-bot/internal/bot/middleware"
	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/config"
	"serotonyl.ru/points-bot/internal/features/admin"
	"serotonyl.ru/points-bot/internal/features/daily"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/moderation"
	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/features/recommendations"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *telego.Bot
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	memberHandler  *members.Handler
	pointsHandler  *points.Handler
	recHandler     *recommendations.Handler
	penaltyHandler *penalties.Handler
	adminHandler   *admin.Handler
	supportHandler *moderation.Handler

	memberService *members.Service
	dailyService  *daily.Service

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *telego.Bot,
	cfg *config.Config,
	memberService *members.Service,
	memberHandler *members.Handler,
	dailyService *daily.Service,
	pointsHandler *points.Handler,
	recHandler *recommendations.Handler,
	penaltyHandler *penalties.Handler,
	adminHandler *admin.Handler,
	supportHandler *moderation.Handler,
	chatFilter *filters.ChatFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:            api,
		cfg:            cfg,
		chatFilter:     chatFilter,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		memberHandler:  memberHandler,
		pointsHandler:  pointsHandler,
		recHandler:     recHandler,
		penaltyHandler: penaltyHandler,
		adminHandler:   adminHandler,
		supportHandler: supportHandler,
		memberService:  memberService,
		dailyService:   dailyService,
		parser:         NewCommandParser(),
		inflight:       make(chan struct{}, maxInFlight),
	}
}

// Start получает апдейты до отмены ctx. Возвращается, когда long polling остановлен
// и все начатые обработчики завершились.
func (b *Bot) Start(ctx context.Context) error {
	defer b.rateLimiter.Close()

	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("ошибка запуска long polling: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for update := range updates {
		// лимит параллелизма
		b.inflight <- struct{}{}
		go func(upd telego.Update) {
			defer func() { <-b.inflight }()
			b.handleUpdate(ctx, upd)
		}(update)
	}

	// Ждём обработчики, которые ещё работают
	for i := 0; i < cap(b.inflight); i++ {
		b.inflight <- struct{}{}
	}
	log.Info("Бот остановлен")
	return nil
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic()

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	message := update.Message
	if message == nil {
		return
	}

	// Вступление новых участников в чат сообщества
	if len(message.NewChatMembers) > 0 {
		if message.Chat.ID == b.cfg.CommunityChatID {
			b.memberHandler.HandleNewChatMembers(ctx, message.NewChatMembers)
		}
		return
	}

	if message.Text == "" || message.From == nil || message.From.IsBot {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(ctx, message.Chat, message.From) {
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	// Обычные сообщения не ограничиваем: они только дают ежедневный бонус
	cmd, args, isCommand := b.parser.ParseCommand(message.Text)

	if isCommand && !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	if err := b.memberService.EnsureMember(ctx, userID,
		message.From.Username, message.From.FirstName, message.From.LastName,
	); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureMember failed")
	}

	// В DM проверяем админ-панель и ожидаемое обращение в поддержку
	if message.Chat.Type == telego.ChatTypePrivate {
		if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.Text) {
			return
		}
		if !isCommand && b.supportHandler.HandleSupportText(ctx, chatID, userID, message.Text) {
			return
		}
	}

	if isCommand {
		log.WithFields(log.Fields{"cmd": cmd, "args": args}).Debug("routing command")
		b.routeCommand(ctx, message, cmd, args)
		return
	}

	if chatID == b.cfg.CommunityChatID {
		b.touchDaily(ctx, userID)
	}
}

// handleCallback обрабатывает нажатия inline-кнопок.
func (b *Bot) handleCallback(ctx context.Context, query *telego.CallbackQuery) {
	middleware.LogCallback(query)

	if query.Message == nil || !b.chatFilter.CheckAccess(ctx, query.Message.GetChat(), &query.From) {
		b.answerCallback(ctx, query.ID, "❌ Недоступно")
		return
	}
	if !b.rateLimiter.Allow(query.From.ID) {
		b.answerCallback(ctx, query.ID, "⏳ Слишком часто, подождите")
		return
	}

	if err := b.memberService.EnsureMember(ctx, query.From.ID,
		query.From.Username, query.From.FirstName, query.From.LastName,
	); err != nil {
		log.WithError(err).WithField("user_id", query.From.ID).Warn("EnsureMember failed")
	}

	switch {
	case strings.HasPrefix(query.Data, recommendations.VotePrefix):
		if !b.cfg.FeatureRecommendationsEnabled {
			b.answerCallback(ctx, query.ID, "Голосование временно отключено")
			return
		}
		b.recHandler.HandleVoteCallback(ctx, query)
	default:
		b.answerCallback(ctx, query.ID, "")
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *telego.Message, cmd string, args []string) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start", "help", "помощь":
		b.sendMessage(ctx, chatID, helpText)

	case "login":
		if message.Chat.Type == telego.ChatTypePrivate {
			b.adminHandler.HandleAdminMessage(ctx, chatID, userID, "/login")
		}

	case "баллы", "очки":
		b.pointsHandler.HandlePoints(ctx, chatID, userID)

	case "история":
		b.pointsHandler.HandleHistory(ctx, chatID, userID, args)

	case "топ":
		b.pointsHandler.HandleTop(ctx, chatID)

	case "какзаработать":
		b.sendMessage(ctx, chatID, HowToEarn(b.cfg))

	case "начислить":
		b.pointsHandler.HandleAward(ctx, chatID, userID, args)

	case "рекомендую":
		if !b.cfg.FeatureRecommendationsEnabled {
			b.sendMessage(ctx, chatID, "📣 Рекомендации временно отключены")
			return
		}
		b.recHandler.HandleSubmit(ctx, chatID, userID, args)

	case "рекомендации":
		if b.cfg.FeatureRecommendationsEnabled {
			b.recHandler.HandleList(ctx, chatID)
		}

	case "штрафы":
		b.penaltyHandler.HandleStatus(ctx, chatID, userID)

	case "поддержка", "support":
		if message.Chat.Type != telego.ChatTypePrivate {
			b.sendMessage(ctx, chatID, "✉️ Напишите мне в личные сообщения: !поддержка")
			return
		}
		b.supportHandler.HandleSupport(ctx, chatID, userID, CommandTail(message.Text))

	case "отмена", "cancel":
		if message.Chat.Type == telego.ChatTypePrivate {
			b.supportHandler.HandleCancel(ctx, chatID, userID)
		}
	}
}

// touchDaily начисляет ежедневный бонус за сообщение в чате сообщества.
func (b *Bot) touchDaily(ctx context.Context, userID int64) {
	res, err := common.RetryValue(ctx, b.cfg.RetryMaxTries, func() (*points.Result, error) {
		return b.dailyService.Touch(ctx, userID)
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось начислить ежедневный бонус")
		return
	}
	if res.Applied {
		log.WithFields(log.Fields{"user_id": userID, "balance": res.Balance}).Debug("Ежедневный бонус")
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

func (b *Bot) answerCallback(ctx context.Context, queryID, text string) {
	params := tu.CallbackQuery(queryID)
	if text != "" {
		params = params.WithText(text)
	}
	if err := b.api.AnswerCallbackQuery(ctx, params); err != nil {
		log.WithError(err).Debug("Ошибка ответа на callback")
	}
}

// SetCommands публикует список команд в меню Telegram.
func (b *Bot) SetCommands(ctx context.Context) error {
	return b.api.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "start", Description: "Что умеет бот"},
			{Command: "login", Description: "Вход в админ-панель"},
			{Command: "support", Description: "Написать администраторам"},
			{Command: "cancel", Description: "Отменить обращение"},
		},
	})
}
