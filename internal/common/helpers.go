// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: ошибки, повторы, русская плюрализация, работа с временем.
package common

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Clock — источник текущего времени. В тестах подменяется.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает реальное время.
type SystemClock struct{}

// Now возвращает time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock — часы, которые двигаются только вручную.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock создаёт часы, стоящие на моменте t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set переставляет часы.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance сдвигает часы вперёд на d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// LoadLocation загружает часовой пояс. Если tzdata нет в образе — UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).WithField("tz", name).Warn("Не удалось загрузить часовой пояс, используем UTC")
		return time.UTC
	}
	return loc
}

// ReferenceDate возвращает календарную дату момента t в поясе loc (полночь).
// Все «сегодня» в боте считаются только так.
func ReferenceDate(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SameDate — совпадают ли календарные даты (год, месяц, день) без учёта пояса.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatDate форматирует дату для SQL-параметра типа DATE.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04".
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
