package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/features/recommendations"
)

// Once — расписание, срабатывающее один раз в момент at.
type Once struct {
	At time.Time
}

// Next реализует cron.Schedule. После at возвращает нулевое время,
// и cron больше не запускает задачу.
func (o Once) Next(t time.Time) time.Time {
	if t.Before(o.At) {
		return o.At
	}
	return time.Time{}
}

// RevealSource — откуда брать рекомендации для восстановления раскрытий.
type RevealSource interface {
	RevealQueue(ctx context.Context) ([]*recommendations.Recommendation, error)
	RevealAt(rec *recommendations.Recommendation) time.Time
}

// ScheduleReveal планирует раскрытие подсчёта рекомендации id на момент at.
// Повторный вызов для того же id заменяет прежнее раскрытие.
// Если at уже прошёл, раскрытие выполнится сразу.
func (s *Scheduler) ScheduleReveal(id int64, at time.Time) {
	if now := s.clock.Now(); !now.Before(at) {
		at = time.Now().Add(100 * time.Millisecond)
	} else {
		// cron считает по реальным часам
		at = time.Now().Add(at.Sub(now))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.reveals[id]; ok {
		s.cron.Remove(old)
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(Once{At: at}, cron.FuncJob(func() {
		s.fireReveal(id, &entryID)
	}))
	s.reveals[id] = entryID

	log.WithFields(log.Fields{"id": id, "at": at}).Debug("Раскрытие запланировано")
}

// CancelReveal отменяет раскрытие, если оно ещё не выполнено.
func (s *Scheduler) CancelReveal(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.reveals[id]; ok {
		s.cron.Remove(entryID)
		delete(s.reveals, id)
	}
}

// PendingReveals — сколько раскрытий ждёт выполнения.
func (s *Scheduler) PendingReveals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reveals)
}

// RestoreReveals заново планирует раскрытия после перезапуска.
func (s *Scheduler) RestoreReveals(ctx context.Context, src RevealSource) (int, error) {
	recs, err := src.RevealQueue(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		s.ScheduleReveal(rec.ID, src.RevealAt(rec))
	}
	if len(recs) > 0 {
		log.WithField("count", len(recs)).Info("Раскрытия рекомендаций восстановлены")
	}
	return len(recs), nil
}

func (s *Scheduler) fireReveal(id int64, self *cron.EntryID) {
	s.mu.Lock()
	mine := *self
	if s.reveals[id] == mine {
		delete(s.reveals, id)
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.cron.Remove(mine)

	if s.reveal == nil {
		return
	}
	if err := s.reveal(ctx, id); err != nil {
		log.WithError(err).WithField("id", id).Warn("[CRON] Ошибка раскрытия рекомендации")
	}
}
