// Package penalties — журнал страйков и временных блокировок голосования.
// models.go описывает записи штрафов.
package penalties

import "time"

// Record — штрафы пользователя.
// Strikes только растёт. Блокировка истекает сама: сравнение с «сейчас» при чтении.
type Record struct {
	UserID       int64      `db:"user_id"`
	Strikes      int        `db:"strikes"`
	BlockedUntil *time.Time `db:"blocked_until"`
	BlockReason  *string    `db:"block_reason"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// IsBlocked — действует ли блокировка в момент now.
func (r *Record) IsBlocked(now time.Time) bool {
	return r != nil && r.BlockedUntil != nil && r.BlockedUntil.After(now)
}

// StrikeResult — итог начисления страйка.
type StrikeResult struct {
	UserID       int64
	Strikes      int
	Applied      bool // false — страйк с этим источником уже был
	BlockedUntil *time.Time
	Blocked      bool // этот страйк включил блокировку
}

// Причины блокировки
const (
	ReasonStrikes = "страйки"
)
