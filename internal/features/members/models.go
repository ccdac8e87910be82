// Package members управляет участниками чата: регистрацией, ролями, флагами.
// models.go описывает структуры данных для работы с таблицей members.
package members

import (
	"fmt"
	"time"
)

// Member представляет участника чата в базе данных.
// Каждый пользователь, вступивший в чат сообщества, автоматически
// создаётся в этой таблице.
type Member struct {
	ID        int64     `db:"id"`         // Автоинкрементный ID записи в БД
	UserID    int64     `db:"user_id"`    // Telegram user ID (уникальный)
	Username  string    `db:"username"`   // @username (может быть пустым)
	FirstName string    `db:"first_name"` // Имя пользователя
	LastName  string    `db:"last_name"`  // Фамилия (может быть пустой)
	IsAdmin   bool      `db:"is_admin"`   // Флаг администратора
	IsScorer  bool      `db:"is_scorer"`  // Оценщик: может начислять баллы другим
	IsBanned  bool      `db:"is_banned"`  // Доступ к боту закрыт
	BanReason string    `db:"ban_reason"` // Причина бана (пусто, если не забанен)
	JoinedAt  time.Time `db:"joined_at"`  // Когда вступил в чат
	CreatedAt time.Time `db:"created_at"` // Когда запись создана в БД
	UpdatedAt time.Time `db:"updated_at"` // Последнее обновление записи
}

// UpdateInfo содержит данные для обновления информации о пользователе.
// Используется, когда пользователь возвращается в чат и его имя/username могли измениться.
type UpdateInfo struct {
	Username  string
	FirstName string
	LastName  string
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username — возвращает его, иначе — имя + фамилию.
func (m *Member) DisplayName() string {
	return FormatName(m.UserID, m.Username, m.FirstName, m.LastName)
}

// FormatName собирает отображаемое имя из частей.
// Если нет ни username, ни имени — "id12345".
func FormatName(userID int64, username, firstName, lastName string) string {
	if username != "" {
		return "@" + username
	}
	name := firstName
	if lastName != "" {
		if name != "" {
			name += " "
		}
		name += lastName
	}
	if name == "" {
		return fmt.Sprintf("id%d", userID)
	}
	return name
}
