// Package moderation ведёт список запрещённых слов и принимает обращения
// в поддержку, которые пересылаются администраторам.
package moderation

import "time"

// ForbiddenWord — слово, которое нельзя отправлять в поддержку.
// Хранится в нижнем регистре.
type ForbiddenWord struct {
	ID        int64     `db:"id"`
	Word      string    `db:"word"`
	CreatedAt time.Time `db:"created_at"`
}

// SupportMaxRunes — максимальная длина обращения в символах.
const SupportMaxRunes = 500
