// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: дорасчёт решённых рекомендаций
// и ночную сверку журнала баллов.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/points"
)

// settleBatch — сколько рекомендаций дорасчитываем за один запуск.
const settleBatch = 100

// Settler дорасчитывает решённые рекомендации.
type Settler interface {
	SettlePending(ctx context.Context, limit int) (int, error)
}

// Auditor сверяет журнал баллов с балансами.
type Auditor interface {
	Audit(ctx context.Context) ([]points.Mismatch, error)
}

// RevealFunc раскрывает подсчёт рекомендации.
type RevealFunc func(ctx context.Context, id int64) error

// Config — расписания задач.
type Config struct {
	Location       *time.Location
	SettleSchedule string
	AuditSchedule  string
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	settler Settler
	auditor Auditor
	reveal  RevealFunc
	clock   common.Clock
	cfg     Config

	mu      sync.Mutex
	ctx     context.Context
	reveals map[int64]cron.EntryID // Отложенные раскрытия по id рекомендации
}

// NewScheduler создаёт планировщик задач в часовом поясе приложения.
func NewScheduler(settler Settler, auditor Auditor, reveal RevealFunc, clock common.Clock, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cron.PrintfLogger(log.StandardLogger()))),
	)

	return &Scheduler{
		cron:    c,
		settler: settler,
		auditor: auditor,
		reveal:  reveal,
		clock:   clock,
		cfg:     cfg,
		ctx:     context.Background(),
		reveals: make(map[int64]cron.EntryID),
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.settler != nil && s.cfg.SettleSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SettleSchedule, func() {
			n, err := s.settler.SettlePending(ctx, settleBatch)
			if err != nil {
				log.WithError(err).Error("[CRON] Ошибка дорасчёта рекомендаций")
				return
			}
			if n > 0 {
				log.WithField("settled", n).Info("[CRON] Рекомендации дорасчитаны")
			}
		}); err != nil {
			return fmt.Errorf("некорректное расписание дорасчёта %q: %w", s.cfg.SettleSchedule, err)
		}
	}

	if s.auditor != nil && s.cfg.AuditSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.AuditSchedule, func() {
			log.Info("[CRON] Сверка журнала баллов")
			mismatches, err := s.auditor.Audit(ctx)
			if err != nil {
				log.WithError(err).Error("[CRON] Ошибка сверки")
				return
			}
			if len(mismatches) > 0 {
				log.WithField("mismatches", len(mismatches)).Error("[CRON] Найдены расхождения журнала")
			}
		}); err != nil {
			return fmt.Errorf("некорректное расписание сверки %q: %w", s.cfg.AuditSchedule, err)
		}
	}

	s.cron.Start()
	log.WithField("tz", s.cfg.Location.String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
