// Package recommendations — service.go содержит логику рекомендаций и голосования:
// отправку, проверки голосующего, решение по кворуму и расчёт последствий.
//
// Итог голосования хранится явно (outcome) и после фиксации не меняется.
// Выплата автору идёт с ключом идемпотентности, страйки — с источником
// «recommendation:<id>», поэтому повторный расчёт ничего не дублирует.
package recommendations

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
)

// VotePrefix — префикс callback data кнопок голосования.
const VotePrefix = "vote:"

// Store — хранилище рекомендаций и голосов.
type Store interface {
	Create(ctx context.Context, rec *Recommendation) error
	Get(ctx context.Context, id int64) (*Recommendation, error)
	Snapshot(ctx context.Context, id int64) (*Snapshot, error)
	CastVote(ctx context.Context, v Vote, quorum, maxVotes int, now time.Time) (*VoteOutcome, error)
	Votes(ctx context.Context, id int64) ([]*Vote, error)
	MarkSettled(ctx context.Context, id int64, votes int, now time.Time) error
	Unsettled(ctx context.Context, limit int) ([]*Recommendation, error)
	CreatedSince(ctx context.Context, since time.Time) ([]*Recommendation, error)
	ListOpen(ctx context.Context, maxVotes, limit int) ([]*Snapshot, error)
	AttachMessage(ctx context.Context, id, chatID int64, messageID int) error
}

// Ledger — журнал баллов.
type Ledger interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	ApplyOnce(ctx context.Context, userID, amount int64, kind points.Kind, reason, ref string) (*points.Result, error)
}

// Penalties — журнал штрафов.
type Penalties interface {
	IsBlocked(ctx context.Context, userID int64) (bool, *time.Time, error)
	Strike(ctx context.Context, userID int64, source string) (*penalties.StrikeResult, error)
}

// Directory — имена участников.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Notifier — отправка уведомлений без ожидания доставки.
type Notifier interface {
	Notify(chatID int64, text string)
}

// RevealScheduler — отложенное раскрытие подсчёта.
type RevealScheduler interface {
	ScheduleReveal(id int64, at time.Time)
	CancelReveal(id int64)
}

// Config — настройки голосования.
type Config struct {
	MinCoins         int64 // Минимум монет в рекомендации
	MinVotePoints    int64 // Минимальный баланс для голоса
	Quorum           int
	MaxVotes         int // После стольких голосов голосование закрыто
	Policy           PenaltyPolicy
	RewardMultiplier decimal.Decimal
	RevealDelay      time.Duration
	StrikeCeiling    int // Только для текста уведомлений
	Location         *time.Location
}

// Service управляет рекомендациями и голосованием.
type Service struct {
	store     Store
	ledger    Ledger
	penalties Penalties
	directory Directory
	notifier  Notifier
	clock     common.Clock
	cfg       Config

	revealMu sync.RWMutex
	reveal   RevealScheduler
}

// NewService создаёт сервис рекомендаций.
func NewService(store Store, ledger Ledger, pen Penalties, dir Directory, notifier Notifier, clock common.Clock, cfg Config) *Service {
	if cfg.Policy == "" {
		cfg.Policy = PolicyMinority
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		store:     store,
		ledger:    ledger,
		penalties: pen,
		directory: dir,
		notifier:  notifier,
		clock:     clock,
		cfg:       cfg,
	}
}

// SetRevealScheduler подключает планировщик раскрытия.
// Планировщик сам читает рекомендации через сервис, поэтому подключается после создания.
func (s *Service) SetRevealScheduler(r RevealScheduler) {
	s.revealMu.Lock()
	s.reveal = r
	s.revealMu.Unlock()
}

func (s *Service) revealScheduler() RevealScheduler {
	s.revealMu.RLock()
	defer s.revealMu.RUnlock()
	return s.reveal
}

// Config возвращает настройки.
func (s *Service) Config() Config { return s.cfg }

// Reward — сколько баллов получит автор одобренной рекомендации.
func (s *Service) Reward(coins int64) int64 {
	return decimal.NewFromInt(coins).Mul(s.cfg.RewardMultiplier).Round(0).IntPart()
}

// RevealAt — когда раскрывается подсчёт рекомендации.
func (s *Service) RevealAt(rec *Recommendation) time.Time {
	return rec.CreatedAt.Add(s.cfg.RevealDelay)
}

// Revealed — раскрыт ли уже подсчёт.
func (s *Service) Revealed(rec *Recommendation) bool {
	return !s.clock.Now().Before(s.RevealAt(rec))
}

// Submit сохраняет новую рекомендацию.
func (s *Service) Submit(ctx context.Context, userID int64, rawLink string, coins int64) (*Recommendation, error) {
	link, err := NormalizeLink(rawLink)
	if err != nil {
		return nil, err
	}
	if coins < s.cfg.MinCoins {
		return nil, common.ErrCoinsTooLow
	}

	name, err := s.directory.DisplayName(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec := &Recommendation{
		SubmitterID: userID,
		DisplayName: name,
		Link:        link,
		Coins:       coins,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	if sched := s.revealScheduler(); sched != nil {
		sched.ScheduleReveal(rec.ID, s.RevealAt(rec))
	}

	log.WithFields(log.Fields{
		"id":        rec.ID,
		"submitter": userID,
		"link":      link,
		"coins":     coins,
	}).Info("Новая рекомендация")
	return rec, nil
}

// CastVote записывает голос.
//
// Проверки по порядку: блокировка, баланс, существование, самоголос,
// лимит голосов, повтор. Если голос набрал кворум (или пришёл после решения),
// сразу применяются последствия. Ошибка расчёта не отменяет голос:
// такую рекомендацию дорасчитает периодическая задача.
func (s *Service) CastVote(ctx context.Context, recID, voterID int64, approve bool) (*VoteResult, error) {
	blocked, until, err := s.penalties.IsBlocked(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("%w до %s", common.ErrVoterBlocked, common.FormatDateTime(*until, s.cfg.Location))
	}

	balance, err := s.ledger.Balance(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if balance < s.cfg.MinVotePoints {
		return nil, fmt.Errorf("%w (нужно %s)", common.ErrNotEnoughPoints, common.FormatPoints(s.cfg.MinVotePoints))
	}

	out, err := s.store.CastVote(ctx, Vote{
		RecommendationID: recID,
		VoterID:          voterID,
		Approve:          approve,
	}, s.cfg.Quorum, s.cfg.MaxVotes, s.clock.Now())
	if err != nil {
		return nil, err
	}

	res := &VoteResult{
		Recommendation: out.Recommendation,
		Tally:          out.Tally,
		DecidedNow:     out.DecidedNow,
	}

	fields := log.Fields{
		"id":        recID,
		"voter":     voterID,
		"approve":   approve,
		"positives": out.Tally.Positives,
		"negatives": out.Tally.Negatives,
	}
	if out.DecidedNow {
		log.WithFields(fields).WithField("outcome", out.Recommendation.Outcome).Info("Кворум набран, итог зафиксирован")
	} else {
		log.WithFields(fields).Debug("Голос учтён")
	}

	if out.Recommendation.NeedsSettlement() {
		st, err := s.settle(ctx, out.Recommendation)
		if err != nil {
			log.WithError(err).WithField("id", recID).Warn("Расчёт рекомендации отложен")
		}
		res.Settlement = st
	}
	return res, nil
}

// Settle применяет последствия решения. Повторный вызов ничего не дублирует.
// Для рекомендации без решения возвращает nil.
func (s *Service) Settle(ctx context.Context, id int64) (*Settlement, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Decided() {
		return nil, nil
	}
	return s.settle(ctx, rec)
}

// SettlePending дорасчитывает все решённые рекомендации без отметки о расчёте.
// Возвращает, сколько удалось рассчитать.
func (s *Service) SettlePending(ctx context.Context, limit int) (int, error) {
	recs, err := s.store.Unsettled(ctx, limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if _, err := s.settle(ctx, rec); err != nil {
			log.WithError(err).WithField("id", rec.ID).Error("Не удалось рассчитать рекомендацию")
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *Service) settle(ctx context.Context, rec *Recommendation) (*Settlement, error) {
	votes, err := s.store.Votes(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	st := &Settlement{RecommendationID: rec.ID, Outcome: rec.Outcome}

	if rec.Outcome == OutcomeApproved {
		amount := s.Reward(rec.Coins)
		if amount > 0 {
			res, err := s.ledger.ApplyOnce(ctx, rec.SubmitterID, amount, points.KindRecommendation,
				fmt.Sprintf("рекомендация #%d одобрена", rec.ID), rec.RewardRef())
			if err != nil {
				return nil, err
			}
			if res.Applied {
				st.Reward = res
				s.notify(rec.SubmitterID, fmt.Sprintf("✅ Ваша рекомендация #%d одобрена сообществом: %s\nБаланс: %s",
					rec.ID, common.FormatPointsDelta(amount), common.FormatPoints(res.Balance)))
			}
		}
	}

	for _, voterID := range StrikeTargets(rec, votes, s.cfg.Policy) {
		res, err := s.penalties.Strike(ctx, voterID, rec.Source())
		if err != nil {
			return nil, err
		}
		if !res.Applied {
			continue
		}
		st.Strikes = append(st.Strikes, Strike{VoterID: voterID, Result: res})
		s.notify(voterID, s.formatStrike(rec, res))
	}

	if err := s.store.MarkSettled(ctx, rec.ID, len(votes), s.clock.Now()); err != nil {
		return st, err
	}

	log.WithFields(log.Fields{
		"id":       rec.ID,
		"outcome":  rec.Outcome,
		"rewarded": st.Reward != nil,
		"strikes":  len(st.Strikes),
	}).Info("Рекомендация рассчитана")
	return st, nil
}

// StrikeTargets — кому положен страйк при данном итоге.
// При ничьей и без решения — никому. Если текущий подсчёт голосов
// не подтверждает зафиксированный итог (поздние голоса свели его
// вничью или перевесили), страйков тоже нет.
func StrikeTargets(rec *Recommendation, votes []*Vote, policy PenaltyPolicy) []int64 {
	switch rec.Outcome {
	case OutcomeApproved, OutcomeRejected:
	default:
		return nil
	}

	var tally Tally
	for _, v := range votes {
		if v.Approve {
			tally.Positives++
		} else {
			tally.Negatives++
		}
	}
	if tally.Decide() != rec.Outcome {
		return nil
	}

	if policy == PolicyDecidingVoter {
		if rec.Outcome == OutcomeRejected && rec.DecidingVoterID != nil {
			return []int64{*rec.DecidingVoterID}
		}
		return nil
	}

	majorityApproves := rec.Outcome == OutcomeApproved
	var out []int64
	for _, v := range votes {
		if v.Approve != majorityApproves {
			out = append(out, v.VoterID)
		}
	}
	return out
}

// Get возвращает рекомендацию.
func (s *Service) Get(ctx context.Context, id int64) (*Recommendation, error) {
	return s.store.Get(ctx, id)
}

// Snapshot возвращает рекомендацию с подсчётом.
func (s *Service) Snapshot(ctx context.Context, id int64) (*Snapshot, error) {
	return s.store.Snapshot(ctx, id)
}

// ListOpen возвращает рекомендации, открытые для голосования.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListOpen(ctx, s.cfg.MaxVotes, limit)
}

// AttachMessage запоминает опубликованную карточку.
func (s *Service) AttachMessage(ctx context.Context, id, chatID int64, messageID int) error {
	return s.store.AttachMessage(ctx, id, chatID, messageID)
}

// RevealQueue возвращает рекомендации, чей подсчёт ещё не раскрыт.
// Используется при старте, чтобы заново запланировать раскрытие.
func (s *Service) RevealQueue(ctx context.Context) ([]*Recommendation, error) {
	return s.store.CreatedSince(ctx, s.clock.Now().Add(-s.cfg.RevealDelay))
}

func (s *Service) notify(userID int64, text string) {
	if s.notifier != nil {
		s.notifier.Notify(userID, text)
	}
}

func (s *Service) formatStrike(rec *Recommendation, res *penalties.StrikeResult) string {
	if res.Blocked && res.BlockedUntil != nil {
		return fmt.Sprintf("⛔ Страйк за рекомендацию #%d (%d из %d). Голосование недоступно до %s",
			rec.ID, res.Strikes, s.cfg.StrikeCeiling, common.FormatDateTime(*res.BlockedUntil, s.cfg.Location))
	}
	return fmt.Sprintf("⚠️ Страйк за рекомендацию #%d: ваш голос разошёлся с решением сообщества. Всего %d %s из %d",
		rec.ID, res.Strikes, common.PluralizeStrikes(res.Strikes), s.cfg.StrikeCeiling)
}

// VoteData — callback data кнопки голоса.
func VoteData(id int64, approve bool) string {
	v := 0
	if approve {
		v = 1
	}
	return fmt.Sprintf("%s%d:%d", VotePrefix, id, v)
}

// ParseVoteData разбирает callback data вида "vote:<id>:<1|0>".
func ParseVoteData(data string) (id int64, approve bool, ok bool) {
	rest, found := strings.CutPrefix(data, VotePrefix)
	if !found {
		return 0, false, false
	}
	idPart, flag, found := strings.Cut(rest, ":")
	if !found || (flag != "0" && flag != "1") {
		return 0, false, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, false
	}
	return id, flag == "1", true
}

// FormatCard — текст карточки рекомендации.
// Подсчёт показывается только после раскрытия.
func (s *Service) FormatCard(snap *Snapshot) string {
	rec := snap.Recommendation

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📣 Рекомендация #%d от %s\n", rec.ID, rec.DisplayName))
	sb.WriteString(fmt.Sprintf("🔗 %s\n", rec.Link))
	sb.WriteString(fmt.Sprintf("💰 Монет: %d (награда %s)\n", rec.Coins, common.FormatPoints(s.Reward(rec.Coins))))

	if !s.Revealed(rec) {
		sb.WriteString("\nЭто настоящая промо-ссылка? Голосуйте 👍 или 👎")
		return sb.String()
	}

	total := snap.Tally.Total()
	sb.WriteString(fmt.Sprintf("\n📊 %d %s: 👍 %d / 👎 %d",
		total, common.PluralizeVotes(total), snap.Tally.Positives, snap.Tally.Negatives))
	switch rec.Outcome {
	case OutcomeApproved:
		sb.WriteString("\n✅ Одобрено сообществом")
	case OutcomeRejected:
		sb.WriteString("\n❌ Отклонено сообществом")
	case OutcomeTie:
		sb.WriteString("\n🤝 Ничья")
	default:
		sb.WriteString(fmt.Sprintf("\n⏳ Нужно голосов для решения: %d", s.cfg.Quorum))
	}
	return sb.String()
}

// FormatList — текст для !рекомендации.
func (s *Service) FormatList(snaps []*Snapshot) string {
	if len(snaps) == 0 {
		return "📭 Открытых рекомендаций нет"
	}
	var sb strings.Builder
	sb.WriteString("📣 Открытые рекомендации:\n\n")
	for _, snap := range snaps {
		rec := snap.Recommendation
		sb.WriteString(fmt.Sprintf("#%d %s — %s, %d монет", rec.ID, rec.DisplayName, rec.Link, rec.Coins))
		if s.Revealed(rec) {
			sb.WriteString(fmt.Sprintf(" (👍 %d / 👎 %d)", snap.Tally.Positives, snap.Tally.Negatives))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
