// Package daily — ежедневный бонус за активность в чате.
//
// «Сегодня» считается в одном часовом поясе приложения, а не в поясе пользователя.
// Проверка даты и начисление выполняются в одной транзакции журнала баллов,
// поэтому два одновременных сообщения не дадут двух бонусов.
package daily

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/points"
)

// Reason — причина записи в журнале.
const Reason = "ежедневная активность"

// Granter — то, что умеет начислять не чаще раза в дату.
type Granter interface {
	GrantOnDay(ctx context.Context, userID, amount int64, reason string, day time.Time) (*points.Result, error)
}

// Config — настройки ежедневного бонуса.
type Config struct {
	Bonus    int64
	Location *time.Location
	Enabled  bool
}

// Service выдаёт ежедневный бонус.
type Service struct {
	points Granter
	clock  common.Clock
	cfg    Config
}

// NewService создаёт сервис ежедневного бонуса.
func NewService(granter Granter, clock common.Clock, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Bonus <= 0 {
		cfg.Bonus = 1
	}
	return &Service{points: granter, clock: clock, cfg: cfg}
}

// Today — текущая дата в поясе приложения.
func (s *Service) Today() time.Time {
	return common.ReferenceDate(s.clock.Now(), s.cfg.Location)
}

// MaybeGrant начисляет бонус за дату refDate, если за неё бонуса ещё не было.
// Result.Applied == false означает «уже начислено».
func (s *Service) MaybeGrant(ctx context.Context, userID int64, refDate time.Time) (*points.Result, error) {
	res, err := s.points.GrantOnDay(ctx, userID, s.cfg.Bonus, Reason, refDate)
	if err != nil {
		return nil, err
	}
	if res.Applied {
		log.WithFields(log.Fields{
			"user_id": userID,
			"date":    common.FormatDate(refDate),
			"balance": res.Balance,
		}).Debug("Ежедневный бонус начислен")
	}
	return res, nil
}

// Touch — активность пользователя прямо сейчас.
// Ничего не делает, если бонус выключен.
func (s *Service) Touch(ctx context.Context, userID int64) (*points.Result, error) {
	if !s.cfg.Enabled {
		return &points.Result{UserID: userID}, nil
	}
	return s.MaybeGrant(ctx, userID, s.Today())
}
