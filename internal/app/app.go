// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики,
// фильтры, планировщик, очередь уведомлений и HTTP API.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/points-bot/internal/bot"
	"serotonyl.ru/points-bot/internal/bot/filters"
	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/config"
	"serotonyl.ru/points-bot/internal/db/postgres"
	"serotonyl.ru/points-bot/internal/features/admin"
	"serotonyl.ru/points-bot/internal/features/daily"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/moderation"
	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/features/recommendations"
	"serotonyl.ru/points-bot/internal/httpapi"
	"serotonyl.ru/points-bot/internal/jobs"
	"serotonyl.ru/points-bot/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	Bot        *bot.Bot
	Scheduler  *jobs.Scheduler
	Dispatcher *notify.Dispatcher
	HTTP       *httpapi.Server // nil, если HTTP_ADDR пуст
	DB         *pgxpool.Pool
	BotAPI     *telego.Bot

	recommendations *recommendations.Service
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool, postgres.Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := telego.NewBot(cfg.TelegramBotToken, telego.WithLogger(log.StandardLogger()))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := botAPI.GetMe(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	clock := common.SystemClock{}
	loc := common.LoadLocation(cfg.AppTimezone)

	// === 3. Репозитории ===
	memberRepo := members.NewRepository(pool)
	pointsRepo := points.NewRepository(pool)
	penaltyRepo := penalties.NewRepository(pool)
	recRepo := recommendations.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)
	wordRepo := moderation.NewRepository(pool)

	// === 4. Уведомления ===
	dispatcher := notify.NewDispatcher(notify.NewBotSender(botAPI), cfg.NotifyBuffer, cfg.NotifyPerSecond)

	// === 5. Сервисы ===
	memberService := members.NewService(memberRepo)
	pointsService := points.NewService(pointsRepo, points.Config{
		Thresholds:      cfg.PointsThresholds,
		ScorerMaxAward:  cfg.PointsScorerMaxAward,
		HistoryPageSize: cfg.PointsHistoryPageSize,
		Location:        loc,
	})
	penaltyService := penalties.NewService(penaltyRepo, clock, penalties.Config{
		StrikeCeiling: cfg.PenaltyStrikeCeiling,
		BlockDuration: cfg.PenaltyBlockDuration,
	})
	dailyService := daily.NewService(pointsService, clock, daily.Config{
		Bonus:    cfg.PointsDailyBonus,
		Location: loc,
		Enabled:  cfg.FeatureDailyBonusEnabled,
	})
	recService := recommendations.NewService(recRepo, pointsService, penaltyService, memberService, dispatcher, clock,
		recommendations.Config{
			MinCoins:         cfg.RecommendMinCoins,
			MinVotePoints:    cfg.VoteMinPoints,
			Quorum:           cfg.VoteQuorum,
			MaxVotes:         cfg.VoteCap,
			Policy:           recommendations.PenaltyPolicy(cfg.VotePenaltyPolicy),
			RewardMultiplier: cfg.RewardMultiplier,
			RevealDelay:      cfg.RevealDelay,
			StrikeCeiling:    cfg.PenaltyStrikeCeiling,
			Location:         loc,
		})
	moderationService := moderation.NewService(wordRepo, memberService, dispatcher, clock, moderation.Config{
		AdminIDs: cfg.AdminIDs,
	})
	adminService := admin.NewService(adminRepo, memberService, pointsService, penaltyService, moderationService, clock, admin.Config{
		PasswordHash: cfg.AdminPasswordHash,
		AdminIDs:     cfg.AdminIDs,
		Location:     loc,
	})

	pointsService.OnCrossing(crossingHook(memberService, dispatcher, cfg.PointsScorerThreshold))

	// === 6. Обработчики ===
	memberHandler := members.NewHandler(memberService)
	pointsHandler := points.NewHandler(pointsService, memberService, botAPI, cfg.RetryMaxTries)
	recHandler := recommendations.NewHandler(recService, botAPI, cfg.CommunityChatID, cfg.RetryMaxTries)
	penaltyHandler := penalties.NewHandler(penaltyService, botAPI, loc, cfg.RetryMaxTries)
	adminHandler := admin.NewHandler(adminService, botAPI)
	supportHandler := moderation.NewHandler(moderationService, botAPI, cfg.RetryMaxTries)

	// === 7. Фильтры ===
	chatFilter := filters.NewChatFilter(cfg.CommunityChatID, memberService, botAPI, cfg.IsAdminID)

	// === 8. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		memberService, memberHandler,
		dailyService,
		pointsHandler,
		recHandler,
		penaltyHandler,
		adminHandler,
		supportHandler,
		chatFilter,
	)

	// === 9. Планировщик задач ===
	scheduler := jobs.NewScheduler(recService, pointsService, recHandler.Reveal, clock, jobs.Config{
		Location:       loc,
		SettleSchedule: cfg.SettleSweepSchedule,
		AuditSchedule:  cfg.AuditSchedule,
	})
	recService.SetRevealScheduler(scheduler)

	// === 10. HTTP API ===
	var httpServer *httpapi.Server
	if cfg.HTTPAddr != "" {
		httpServer = httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
			DB:              pool,
			Ledger:          pointsService,
			Recommendations: recService,
			Retries:         cfg.RetryMaxTries,
		})
	}

	return &App{
		Bot:             b,
		Scheduler:       scheduler,
		Dispatcher:      dispatcher,
		HTTP:            httpServer,
		DB:              pool,
		BotAPI:          botAPI,
		recommendations: recService,
	}, nil
}

// Run запускает все компоненты и ждёт отмены ctx.
// Ошибка любого компонента останавливает остальные.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	if _, err := a.Scheduler.RestoreReveals(ctx, a.recommendations); err != nil {
		log.WithError(err).Warn("Не удалось восстановить раскрытия рекомендаций")
	}

	if err := a.Bot.SetCommands(ctx); err != nil {
		log.WithError(err).Warn("Не удалось опубликовать меню команд")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Dispatcher.Run(gctx) })
	g.Go(func() error { return a.Bot.Start(gctx) })
	if a.HTTP != nil {
		g.Go(func() error { return a.HTTP.Run(gctx) })
	}
	return g.Wait()
}

// Close освобождает ресурсы.
func (a *App) Close() {
	a.DB.Close()
}

// crossingHook поздравляет с новым уровнем и выдаёт роль оценщика
// при достижении scorerThreshold.
func crossingHook(memberService *members.Service, n *notify.Dispatcher, scorerThreshold int64) points.CrossingHook {
	return func(ctx context.Context, res *points.Result) {
		n.Notify(res.UserID, points.FormatCrossing(res))

		if scorerThreshold <= 0 || res.Balance < scorerThreshold || res.Balance-res.Delta >= scorerThreshold {
			return
		}
		promoted, err := memberService.PromoteScorer(ctx, res.UserID)
		if err != nil {
			log.WithError(err).WithField("user_id", res.UserID).Error("Не удалось выдать роль оценщика")
			return
		}
		if promoted {
			n.Notify(res.UserID, "🧑‍⚖️ Теперь вы оценщик: можете начислять баллы командой !начислить @username N")
		}
	}
}
