// Package admin реализует админ-панель с парольной аутентификацией.
// models.go описывает сессии, попытки входа и состояния диалога.
package admin

import "time"

// AdminSession — активная сессия администратора.
type AdminSession struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// AdminState — состояние диалога с админом (конечный автомат).
// Каждое действие: кнопка → одна строка с параметрами.
type AdminState struct {
	State     string    // Текущее состояние
	ExpiresAt time.Time // Когда состояние истекает
}

// Возможные состояния админ-диалога
const (
	StateNone             = ""                  // Нет активного состояния
	StateAwaitingPassword = "awaiting_password" // Ждём пароль
	StateAwardInput       = "award_input"       // Ждём "@user N [причина]"
	StateResetInput       = "reset_input"       // Ждём "@user [причина]"
	StateBlockInput       = "block_input"       // Ждём "@user [часы] [причина]"
	StateUnblockInput     = "unblock_input"     // Ждём "@user"
	StateScorerInput      = "scorer_input"      // Ждём "+@user" или "-@user"
	StateBanInput         = "ban_input"         // Ждём "@user [причина]"
	StateUnbanInput       = "unban_input"       // Ждём "@user"
	StateWordsInput       = "words_input"       // Ждём "+слово" или "-слово"
)

// Кнопки админ-панели
const (
	ButtonAward     = "Начислить баллы"
	ButtonReset     = "Обнулить баллы"
	ButtonBlock     = "Заблокировать"
	ButtonUnblock   = "Разблокировать"
	ButtonScorers   = "Оценщики"
	ButtonBlocked   = "Заблокированные"
	ButtonReconcile = "Сверка"
	ButtonBan       = "Бан"
	ButtonUnban     = "Снять бан"
	ButtonWords     = "Запрещённые слова"
	ButtonLogout    = "Выйти"
)
