// Package penalties — service.go содержит логику страйков и блокировок.
package penalties

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Store — хранилище штрафов.
type Store interface {
	Strike(ctx context.Context, userID int64, source string, ceiling int, blockUntil time.Time) (*StrikeResult, error)
	Get(ctx context.Context, userID int64) (*Record, error)
	SetBlock(ctx context.Context, userID int64, until *time.Time, reason string) error
	ListBlocked(ctx context.Context, now time.Time) ([]*Record, error)
}

// Config — настройки штрафов.
type Config struct {
	StrikeCeiling int           // Сколько страйков до блокировки
	BlockDuration time.Duration // На сколько блокируем
}

// Service управляет штрафами.
type Service struct {
	store Store
	clock common.Clock
	cfg   Config
}

// NewService создаёт сервис штрафов.
func NewService(store Store, clock common.Clock, cfg Config) *Service {
	if cfg.StrikeCeiling <= 0 {
		cfg.StrikeCeiling = 3
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 72 * time.Hour
	}
	return &Service{store: store, clock: clock, cfg: cfg}
}

// Config возвращает настройки.
func (s *Service) Config() Config { return s.cfg }

// Strike начисляет страйк за источник source (например, "recommendation:42").
// Повторный вызов с тем же источником возвращает текущее состояние без изменений.
func (s *Service) Strike(ctx context.Context, userID int64, source string) (*StrikeResult, error) {
	now := s.clock.Now()
	res, err := s.store.Strike(ctx, userID, source, s.cfg.StrikeCeiling, now.Add(s.cfg.BlockDuration))
	if err != nil {
		return nil, err
	}
	if res.Applied {
		entry := log.WithFields(log.Fields{
			"user_id": userID,
			"source":  source,
			"strikes": res.Strikes,
		})
		if res.Blocked {
			entry.WithField("blocked_until", res.BlockedUntil).Warn("Пользователь заблокирован за страйки")
		} else {
			entry.Info("Страйк начислен")
		}
	}
	return res, nil
}

// IsBlocked проверяет блокировку на текущий момент.
func (s *Service) IsBlocked(ctx context.Context, userID int64) (bool, *time.Time, error) {
	return s.IsBlockedAt(ctx, userID, s.clock.Now())
}

// IsBlockedAt проверяет блокировку на момент now.
func (s *Service) IsBlockedAt(ctx context.Context, userID int64, now time.Time) (bool, *time.Time, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	if !rec.IsBlocked(now) {
		return false, nil, nil
	}
	return true, rec.BlockedUntil, nil
}

// Status возвращает штрафы пользователя.
func (s *Service) Status(ctx context.Context, userID int64) (*Record, error) {
	return s.store.Get(ctx, userID)
}

// Block вручную блокирует пользователя на d.
func (s *Service) Block(ctx context.Context, userID int64, d time.Duration, reason string) (time.Time, error) {
	if d <= 0 {
		d = s.cfg.BlockDuration
	}
	until := s.clock.Now().Add(d)
	if err := s.store.SetBlock(ctx, userID, &until, reason); err != nil {
		return time.Time{}, err
	}
	log.WithFields(log.Fields{"user_id": userID, "until": until, "reason": reason}).Warn("Пользователь заблокирован вручную")
	return until, nil
}

// Unblock снимает блокировку. Страйки остаются.
func (s *Service) Unblock(ctx context.Context, userID int64) error {
	if err := s.store.SetBlock(ctx, userID, nil, ""); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Блокировка снята")
	return nil
}

// Blocked возвращает всех заблокированных сейчас.
func (s *Service) Blocked(ctx context.Context) ([]*Record, error) {
	return s.store.ListBlocked(ctx, s.clock.Now())
}

// FormatStatus — текст для !штрафы.
func (s *Service) FormatStatus(rec *Record, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ Страйки: %d из %d", rec.Strikes, s.cfg.StrikeCeiling))
	if rec.IsBlocked(s.clock.Now()) {
		sb.WriteString(fmt.Sprintf("\n⛔ Голосование недоступно до %s", common.FormatDateTime(*rec.BlockedUntil, loc)))
		if rec.BlockReason != nil && *rec.BlockReason != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", *rec.BlockReason))
		}
	}
	return sb.String()
}
