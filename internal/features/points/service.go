// Package points — service.go содержит бизнес-логику баллов:
// начисления, уровни, историю, рейтинг и сверку журнала.
package points

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Store — хранилище журнала и счетов.
type Store interface {
	Apply(ctx context.Context, d Delta, levelOf func(int64) int) (*Change, error)
	GetAccount(ctx context.Context, userID int64) (*Account, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]*Entry, error)
	SumEntries(ctx context.Context, userID int64) (int64, error)
	Mismatches(ctx context.Context) ([]Mismatch, error)
	Top(ctx context.Context, limit int) ([]*Ranked, error)
}

// CrossingHook вызывается после коммита, если начисление достигло новых порогов.
// Хук не должен блокироваться надолго.
type CrossingHook func(ctx context.Context, res *Result)

// Config — настройки баллов.
type Config struct {
	Thresholds      []Threshold
	ScorerMaxAward  int64
	HistoryPageSize int
	Location        *time.Location // Для отображения дат в истории
}

// Service управляет баллами.
type Service struct {
	store  Store
	levels *Levels
	cfg    Config

	hooksMu sync.RWMutex
	hooks   []CrossingHook
}

// NewService создаёт сервис баллов.
func NewService(store Store, cfg Config) *Service {
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		store:  store,
		levels: NewLevels(cfg.Thresholds),
		cfg:    cfg,
	}
}

// OnCrossing регистрирует хук достижения порога.
func (s *Service) OnCrossing(hook CrossingHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Levels возвращает таблицу порогов.
func (s *Service) Levels() *Levels { return s.levels }

// ApplyDelta изменяет баланс на amount (может быть отрицательным) и пишет запись в журнал.
func (s *Service) ApplyDelta(ctx context.Context, userID, amount int64, kind Kind, reason string) (*Result, error) {
	if amount == 0 {
		return nil, common.ErrInvalidAmount
	}
	return s.apply(ctx, Delta{UserID: userID, Amount: amount, Kind: kind, Reason: reason})
}

// ApplyOnce — ApplyDelta с ключом идемпотентности.
// Повторный вызов с тем же ref возвращает Result с Applied=false.
func (s *Service) ApplyOnce(ctx context.Context, userID, amount int64, kind Kind, reason, ref string) (*Result, error) {
	if amount == 0 {
		return nil, common.ErrInvalidAmount
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: пустой ключ идемпотентности", common.ErrValidation)
	}
	return s.apply(ctx, Delta{UserID: userID, Amount: amount, Kind: kind, Reason: reason, Ref: ref})
}

// GrantOnDay начисляет amount, только если за дату day начисления ещё не было.
// Проверка и отметка даты атомарны с самим начислением.
func (s *Service) GrantOnDay(ctx context.Context, userID, amount int64, reason string, day time.Time) (*Result, error) {
	if amount <= 0 {
		return nil, common.ErrAwardNotPositive
	}
	return s.apply(ctx, Delta{UserID: userID, Amount: amount, Kind: KindDaily, Reason: reason, Day: &day})
}

// Award — начисление баллов оценщиком.
func (s *Service) Award(ctx context.Context, fromUserID, toUserID, amount int64, reason string) (*Result, error) {
	if fromUserID == toUserID {
		return nil, common.ErrSelfAward
	}
	if amount <= 0 {
		return nil, common.ErrAwardNotPositive
	}
	if s.cfg.ScorerMaxAward > 0 && amount > s.cfg.ScorerMaxAward {
		return nil, common.ErrAwardTooLarge
	}
	if reason == "" {
		reason = "начисление оценщиком"
	}
	return s.apply(ctx, Delta{UserID: toUserID, Amount: amount, Kind: KindScorerAward, Reason: reason})
}

// Reset обнуляет баланс. В журнал пишется списание на весь баланс,
// поэтому сумма журнала остаётся равной балансу.
func (s *Service) Reset(ctx context.Context, userID int64, reason string) (*Result, error) {
	return s.apply(ctx, Delta{UserID: userID, Kind: KindAdminReset, Reason: reason, ResetToZero: true})
}

func (s *Service) apply(ctx context.Context, d Delta) (*Result, error) {
	change, err := s.store.Apply(ctx, d, s.levels.Level)
	if err != nil {
		return nil, err
	}

	res := &Result{
		UserID:  d.UserID,
		Applied: change.Applied,
		Delta:   change.NewBalance - change.OldBalance,
		Balance: change.NewBalance,
		Level:   change.NewLevel,
	}
	if !change.Applied {
		return res, nil
	}
	res.Crossed = s.levels.Crossed(change.OldBalance, change.NewBalance)

	log.WithFields(log.Fields{
		"user_id":    d.UserID,
		"delta":      res.Delta,
		"kind":       d.Kind,
		"balance":    res.Balance,
		"user_level": res.Level,
	}).Info("Баллы изменены")

	if len(res.Crossed) > 0 {
		s.hooksMu.RLock()
		hooks := append([]CrossingHook(nil), s.hooks...)
		s.hooksMu.RUnlock()
		for _, hook := range hooks {
			hook(ctx, res)
		}
	}
	return res, nil
}

// Balance возвращает баланс; для неизвестного пользователя — 0.
func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	acc, err := s.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Account возвращает счёт; для неизвестного пользователя — пустой счёт.
func (s *Service) Account(ctx context.Context, userID int64) (*Account, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return &Account{UserID: userID}, nil
	}
	return acc, err
}

// History возвращает страницу истории (page с 1).
func (s *Service) History(ctx context.Context, userID int64, page int) ([]*Entry, error) {
	if page < 1 {
		page = 1
	}
	return s.store.History(ctx, userID, s.cfg.HistoryPageSize, (page-1)*s.cfg.HistoryPageSize)
}

// HistoryRange — история с произвольными limit/offset (для HTTP API).
func (s *Service) HistoryRange(ctx context.Context, userID int64, limit, offset int) ([]*Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = s.cfg.HistoryPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.History(ctx, userID, limit, offset)
}

// Top возвращает первые n мест рейтинга.
func (s *Service) Top(ctx context.Context, n int) ([]*Ranked, error) {
	if n <= 0 {
		n = 10
	}
	return s.store.Top(ctx, n)
}

// Verify сверяет баланс пользователя с суммой его журнала.
func (s *Service) Verify(ctx context.Context, userID int64) (balance, sum int64, err error) {
	balance, err = s.Balance(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	sum, err = s.store.SumEntries(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return balance, sum, nil
}

// Audit ищет расхождения журнала по всем счетам и пишет их в лог.
func (s *Service) Audit(ctx context.Context) ([]Mismatch, error) {
	mismatches, err := s.store.Mismatches(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mismatches {
		log.WithFields(log.Fields{
			"user_id": m.UserID,
			"balance": m.Balance,
			"sum":     m.Sum,
		}).Error("Баланс не совпадает с журналом")
	}
	return mismatches, nil
}

// FormatStatus — текст для команды !баллы.
func (s *Service) FormatStatus(acc *Account) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("💰 Баланс: %s\n", common.FormatPoints(acc.Balance)))
	sb.WriteString(fmt.Sprintf("🏅 Уровень: %d", acc.Level))
	if next, ok := s.levels.Next(acc.Balance); ok {
		sb.WriteString(fmt.Sprintf("\n🎯 До «%s»: %s", next.Label, common.FormatPoints(next.Value-acc.Balance)))
	}
	return sb.String()
}

// FormatHistory — текст страницы истории.
func (s *Service) FormatHistory(entries []*Entry, page int) string {
	if len(entries) == 0 {
		if page > 1 {
			return "📋 На этой странице записей нет"
		}
		return "📋 У вас пока нет начислений"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 История (страница %d):\n\n", page))
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s | %s | %s\n",
			(page-1)*s.cfg.HistoryPageSize+i+1,
			common.FormatDateTime(e.CreatedAt, s.cfg.Location),
			common.FormatPointsDelta(e.Delta),
			e.Reason,
		))
	}
	if len(entries) == s.cfg.HistoryPageSize {
		sb.WriteString(fmt.Sprintf("\nДальше: !история %d", page+1))
	}
	return sb.String()
}

// FormatTop — текст рейтинга.
func FormatTop(ranked []*Ranked) string {
	if len(ranked) == 0 {
		return "🏆 Рейтинг пока пуст"
	}
	medals := []string{"🥇", "🥈", "🥉"}

	var sb strings.Builder
	sb.WriteString("🏆 Топ участников:\n\n")
	for i, r := range ranked {
		place := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			place = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s — %s\n", place, r.DisplayName, common.FormatPoints(r.Balance)))
	}
	return sb.String()
}

// FormatCrossing — текст поздравления с достижением порогов.
func FormatCrossing(res *Result) string {
	labels := make([]string, 0, len(res.Crossed))
	for _, t := range res.Crossed {
		labels = append(labels, fmt.Sprintf("«%s» (%s)", t.Label, common.FormatPoints(t.Value)))
	}
	return fmt.Sprintf("🎉 Новый уровень %d! Достигнуто: %s\nБаланс: %s",
		res.Level, strings.Join(labels, ", "), common.FormatPoints(res.Balance))
}
