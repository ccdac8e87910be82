// Package recommendations — рекомендации промо-ссылок и голосование сообщества.
// models.go описывает рекомендации, голоса, подсчёт и итоги.
package recommendations

import (
	"fmt"
	"time"

	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
)

// Outcome — итог голосования по рекомендации.
type Outcome string

// Итоги голосования
const (
	OutcomePending  Outcome = "pending"  // Кворум ещё не набран
	OutcomeTie      Outcome = "tie"      // Ничья: ни награды, ни страйков
	OutcomeApproved Outcome = "approved" // Большинство «за»: награда автору
	OutcomeRejected Outcome = "rejected" // Большинство «против»
)

// PenaltyPolicy — кого штрафовать после решения.
type PenaltyPolicy string

// Политики штрафов
const (
	// PolicyMinority — всех, кто проголосовал против итога.
	PolicyMinority PenaltyPolicy = "minority"
	// PolicyDecidingVoter — только того, чей голос набрал кворум, и только при отклонении.
	PolicyDecidingVoter PenaltyPolicy = "deciding_voter"
)

// Recommendation — рекомендация ссылки.
// Пара (SubmitterID, Link) уникальна. Outcome после решения не меняется.
type Recommendation struct {
	ID              int64      `db:"id"`
	SubmitterID     int64      `db:"submitter_id"`
	DisplayName     string     `db:"display_name"` // Имя автора на момент отправки
	Link            string     `db:"link"`
	Coins           int64      `db:"coins"`
	Outcome         Outcome    `db:"outcome"`
	DecidedAt       *time.Time `db:"decided_at"`
	DecidingVoterID *int64     `db:"deciding_voter_id"`
	SettledAt       *time.Time `db:"settled_at"` // nil — награда/штрафы ещё не применены
	ChatID          *int64     `db:"chat_id"`    // Где опубликована карточка
	MessageID       *int       `db:"message_id"`
	CreatedAt       time.Time  `db:"created_at"`
}

// Decided — набран ли кворум.
func (r *Recommendation) Decided() bool {
	return r.Outcome != "" && r.Outcome != OutcomePending
}

// NeedsSettlement — решение есть, но последствия ещё не применены.
func (r *Recommendation) NeedsSettlement() bool {
	return r.Decided() && r.SettledAt == nil
}

// Source — ключ, по которому страйки за эту рекомендацию не дублируются.
func (r *Recommendation) Source() string {
	return fmt.Sprintf("recommendation:%d", r.ID)
}

// RewardRef — ключ идемпотентности выплаты.
func (r *Recommendation) RewardRef() string {
	return fmt.Sprintf("recommendation:%d:reward", r.ID)
}

// Vote — голос. Пара (RecommendationID, VoterID) уникальна.
type Vote struct {
	RecommendationID int64     `db:"recommendation_id"`
	VoterID          int64     `db:"voter_id"`
	Approve          bool      `db:"approve"`
	CreatedAt        time.Time `db:"created_at"`
}

// Tally — подсчёт голосов.
type Tally struct {
	Positives int
	Negatives int
}

// Total — всего голосов.
func (t Tally) Total() int { return t.Positives + t.Negatives }

// Decide — итог по большинству.
func (t Tally) Decide() Outcome {
	switch {
	case t.Positives > t.Negatives:
		return OutcomeApproved
	case t.Negatives > t.Positives:
		return OutcomeRejected
	default:
		return OutcomeTie
	}
}

// Snapshot — рекомендация и подсчёт, прочитанные согласованно.
type Snapshot struct {
	Recommendation *Recommendation
	Tally          Tally
}

// VoteOutcome — что хранилище сделало с голосом.
type VoteOutcome struct {
	Recommendation *Recommendation // Состояние после голоса
	Tally          Tally
	DecidedNow     bool // Этот голос набрал кворум
}

// VoteResult — итог голоса для вызывающего кода.
type VoteResult struct {
	Recommendation *Recommendation
	Tally          Tally
	DecidedNow     bool
	Settlement     *Settlement // nil, пока решения нет
}

// Pending — голос учтён, решения ещё нет.
func (v *VoteResult) Pending() bool {
	return !v.Recommendation.Decided()
}

// Settlement — применённые последствия решения.
type Settlement struct {
	RecommendationID int64
	Outcome          Outcome
	Reward           *points.Result // nil, если выплаты не было
	Strikes          []Strike
}

// Strike — страйк голосующему.
type Strike struct {
	VoterID int64
	Result  *penalties.StrikeResult
}
