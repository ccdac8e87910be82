// Package moderation — service.go: список запрещённых слов, проверка текста
// и пересылка обращений в поддержку.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Store — хранилище запрещённых слов.
type Store interface {
	AddWord(ctx context.Context, word string) (bool, error)
	RemoveWord(ctx context.Context, word string) (bool, error)
	ListWords(ctx context.Context) ([]*ForbiddenWord, error)
}

// Notifier — отправка сообщений без ожидания доставки.
type Notifier interface {
	Notify(chatID int64, text string)
}

// Directory — отображаемые имена.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Config — настройки модерации.
type Config struct {
	AdminIDs []int64       // Кому пересылаются обращения
	StateTTL time.Duration // Сколько ждём текст после !поддержка
}

// Service — запрещённые слова и поддержка.
type Service struct {
	store    Store
	dir      Directory
	notifier Notifier
	clock    common.Clock
	cfg      Config

	awaiting   map[int64]time.Time // user_id → до какого момента ждём текст обращения
	awaitingMu sync.Mutex
}

// NewService создаёт сервис модерации.
func NewService(store Store, dir Directory, notifier Notifier, clock common.Clock, cfg Config) *Service {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	return &Service{
		store:    store,
		dir:      dir,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		awaiting: make(map[int64]time.Time),
	}
}

// NormalizeWord приводит слово к виду, в котором оно хранится.
func NormalizeWord(word string) (string, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" || strings.IndexFunc(word, unicode.IsSpace) >= 0 {
		return "", common.ErrWordInvalid
	}
	return word, nil
}

// AddWord добавляет запрещённое слово и возвращает его нормализованную форму.
func (s *Service) AddWord(ctx context.Context, word string) (string, error) {
	word, err := NormalizeWord(word)
	if err != nil {
		return "", err
	}
	added, err := s.store.AddWord(ctx, word)
	if err != nil {
		return "", err
	}
	if !added {
		return word, common.ErrWordExists
	}
	log.WithField("word", word).Info("Добавлено запрещённое слово")
	return word, nil
}

// RemoveWord удаляет запрещённое слово.
func (s *Service) RemoveWord(ctx context.Context, word string) (string, error) {
	word, err := NormalizeWord(word)
	if err != nil {
		return "", err
	}
	removed, err := s.store.RemoveWord(ctx, word)
	if err != nil {
		return "", err
	}
	if !removed {
		return word, common.ErrWordNotFound
	}
	log.WithField("word", word).Info("Удалено запрещённое слово")
	return word, nil
}

// Words — все запрещённые слова по алфавиту.
func (s *Service) Words(ctx context.Context) ([]string, error) {
	list, err := s.store.ListWords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, w := range list {
		out = append(out, w.Word)
	}
	return out, nil
}

// FindForbidden возвращает первое запрещённое слово, встречающееся в text
// (подстрокой, без учёта регистра).
func (s *Service) FindForbidden(ctx context.Context, text string) (string, bool, error) {
	words, err := s.Words(ctx)
	if err != nil {
		return "", false, err
	}
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return w, true, nil
		}
	}
	return "", false, nil
}

// FormatWords — список слов для админ-панели.
func (s *Service) FormatWords(ctx context.Context) (string, error) {
	words, err := s.Words(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if len(words) == 0 {
		sb.WriteString("Запрещённых слов нет\n")
	} else {
		sb.WriteString("🔤 Запрещённые слова:\n")
		for _, w := range words {
			sb.WriteString("• " + w + "\n")
		}
	}
	sb.WriteString("\nОтправьте +слово чтобы добавить, -слово чтобы удалить")
	return sb.String(), nil
}

// --- Поддержка ---

// StartSupport переводит пользователя в ожидание текста обращения.
func (s *Service) StartSupport(userID int64) {
	s.awaitingMu.Lock()
	defer s.awaitingMu.Unlock()
	s.awaiting[userID] = s.clock.Now().Add(s.cfg.StateTTL)
}

// AwaitingSupport — ждём ли от пользователя текст обращения.
func (s *Service) AwaitingSupport(userID int64) bool {
	s.awaitingMu.Lock()
	defer s.awaitingMu.Unlock()
	until, ok := s.awaiting[userID]
	if !ok {
		return false
	}
	if s.clock.Now().After(until) {
		delete(s.awaiting, userID)
		return false
	}
	return true
}

// CancelSupport отменяет ожидание. false — отменять было нечего.
func (s *Service) CancelSupport(userID int64) bool {
	s.awaitingMu.Lock()
	defer s.awaitingMu.Unlock()
	_, ok := s.awaiting[userID]
	delete(s.awaiting, userID)
	return ok
}

// SubmitSupport проверяет обращение и пересылает его всем администраторам.
// При ошибке проверки ожидание сохраняется: пользователь может прислать текст заново.
func (s *Service) SubmitSupport(ctx context.Context, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return common.ErrSupportEmpty
	}
	if utf8.RuneCountInString(text) > SupportMaxRunes {
		return common.ErrSupportTooLong
	}
	word, found, err := s.FindForbidden(ctx, text)
	if err != nil {
		return err
	}
	if found {
		log.WithFields(log.Fields{"user_id": userID, "word": word}).Info("Обращение отклонено: запрещённое слово")
		return common.ErrSupportForbidden
	}
	if len(s.cfg.AdminIDs) == 0 {
		return common.ErrSupportUnavailable
	}

	name, err := s.dir.DisplayName(ctx, userID)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("📩 Поддержка от %s (id%d):\n%s", name, userID, text)
	for _, adminID := range s.cfg.AdminIDs {
		s.notifier.Notify(adminID, msg)
	}
	s.CancelSupport(userID)

	log.WithFields(log.Fields{"user_id": userID, "admins": len(s.cfg.AdminIDs)}).Info("Обращение в поддержку отправлено")
	return nil
}
