// Package points — журнал баллов и уровни.
// models.go описывает счета, записи журнала и результаты начислений.
package points

import (
	"time"

	"serotonyl.ru/points-bot/internal/config"
)

// Threshold — порог баллов с названием награды.
type Threshold = config.Threshold

// Kind — категория записи журнала.
type Kind string

// Категории записей журнала
const (
	KindDaily          Kind = "daily"                 // Ежедневный бонус за активность
	KindRecommendation Kind = "recommendation_reward" // Награда за одобренную рекомендацию
	KindScorerAward    Kind = "scorer_award"          // Начисление оценщиком
	KindAdminAward     Kind = "admin_award"           // Начисление/списание админом
	KindAdminReset     Kind = "admin_reset"           // Обнуление админом
)

// Account — материализованный баланс и уровень пользователя.
// Создаётся при первом начислении, не удаляется.
type Account struct {
	UserID          int64      `db:"user_id"`
	Balance         int64      `db:"balance"`
	Level           int        `db:"level"`            // Сколько порогов достигнуто
	LastInteraction *time.Time `db:"last_interaction"` // Дата последнего ежедневного бонуса
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// Entry — неизменяемая запись журнала.
// Сумма Delta всех записей пользователя всегда равна его балансу.
type Entry struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Delta     int64     `db:"delta"`
	Kind      Kind      `db:"kind"`
	Reason    string    `db:"reason"`
	Ref       *string   `db:"ref"` // Ключ идемпотентности (nil для обычных записей)
	CreatedAt time.Time `db:"created_at"`
}

// Delta — запрос на изменение баланса.
type Delta struct {
	UserID int64
	Amount int64
	Kind   Kind
	Reason string
	// Ref — если задан, повторное применение с тем же ключом ничего не делает.
	Ref string
	// Day — если задан, запись применяется не чаще раза в эту дату
	// и дата сохраняется как last_interaction.
	Day *time.Time
	// ResetToZero — списать весь текущий баланс (Amount игнорируется).
	ResetToZero bool
}

// Change — что сделало хранилище.
type Change struct {
	Applied    bool
	OldBalance int64
	NewBalance int64
	OldLevel   int
	NewLevel   int
	Entry      *Entry
}

// Result — итог начисления для вызывающего кода.
type Result struct {
	UserID  int64
	Applied bool // false — повтор (та же дата или тот же ключ)
	Delta   int64
	Balance int64
	Level   int
	Crossed []Threshold // Пороги, впервые достигнутые этим начислением
}

// Ranked — строка рейтинга.
type Ranked struct {
	UserID      int64
	DisplayName string
	Balance     int64
	Level       int
}

// Mismatch — расхождение баланса и суммы журнала.
type Mismatch struct {
	UserID  int64
	Balance int64
	Sum     int64
}
