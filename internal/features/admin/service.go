// Package admin — service.go содержит логику аутентификации, управления сессиями,
// state-машину диалога и админ-действия над баллами, штрафами, оценщиками,
// доступом к боту и запрещёнными словами.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
)

// Store — хранилище сессий и попыток входа.
type Store interface {
	CreateSession(ctx context.Context, session *AdminSession) error
	GetActiveSession(ctx context.Context, userID int64, now time.Time) (*AdminSession, error)
	DeactivateSession(ctx context.Context, userID int64) error
	UpdateActivity(ctx context.Context, userID int64) error
	LogAttempt(ctx context.Context, userID int64, success bool) error
	CountFailedAttempts(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Ledger — операции с баллами, доступные админу.
type Ledger interface {
	ApplyDelta(ctx context.Context, userID, amount int64, kind points.Kind, reason string) (*points.Result, error)
	Reset(ctx context.Context, userID int64, reason string) (*points.Result, error)
	Audit(ctx context.Context) ([]points.Mismatch, error)
}

// Penalties — ручные блокировки.
type Penalties interface {
	Block(ctx context.Context, userID int64, d time.Duration, reason string) (time.Time, error)
	Unblock(ctx context.Context, userID int64) error
	Blocked(ctx context.Context) ([]*penalties.Record, error)
}

// Directory — участники.
type Directory interface {
	GetByUserID(ctx context.Context, userID int64) (*members.Member, error)
	GetByUsername(ctx context.Context, username string) (*members.Member, error)
	DisplayName(ctx context.Context, userID int64) (string, error)
	SetScorer(ctx context.Context, userID int64, scorer bool) error
	ListScorers(ctx context.Context) ([]*members.Member, error)
	SetBanned(ctx context.Context, userID int64, banned bool, reason string) error
	ListBanned(ctx context.Context) ([]*members.Member, error)
}

// Words — список запрещённых слов.
type Words interface {
	AddWord(ctx context.Context, word string) (string, error)
	RemoveWord(ctx context.Context, word string) (string, error)
	FormatWords(ctx context.Context) (string, error)
}

// Config — настройки админки.
type Config struct {
	PasswordHash string
	AdminIDs     []int64 // Админы из конфигурации, помимо members.is_admin
	SessionTTL   time.Duration
	StateTTL     time.Duration
	MaxAttempts  int
	Location     *time.Location
}

// Service управляет админ-панелью.
type Service struct {
	repo      Store
	members   Directory
	ledger    Ledger
	penalties Penalties
	words     Words
	clock     common.Clock
	cfg       Config

	states   map[int64]*AdminState // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
}

// NewService создаёт сервис админ-панели.
func NewService(repo Store, dir Directory, ledger Ledger, pen Penalties, words Words, clock common.Clock, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:      repo,
		members:   dir,
		ledger:    ledger,
		penalties: pen,
		words:     words,
		clock:     clock,
		cfg:       cfg,
		states:    make(map[int64]*AdminState),
	}
}

// IsAdmin — администратор ли пользователь (флаг в базе или ADMIN_IDS).
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.isConfiguredAdmin(userID) {
		return true, nil
	}
	m, err := s.members.GetByUserID(ctx, userID)
	if err != nil {
		if common.IsRetryable(err) {
			return false, err
		}
		return false, nil
	}
	return m.IsAdmin, nil
}

func (s *Service) isConfiguredAdmin(userID int64) bool {
	for _, id := range s.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Включает защиту от brute-force: MaxAttempts неудачных попыток = блокировка на 1 час.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	now := s.clock.Now()
	attempts, err := s.repo.CountFailedAttempts(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return err
	}
	if attempts >= s.cfg.MaxAttempts {
		return common.ErrTooManyAttempts
	}

	match := VerifyArgon2id(password, s.cfg.PasswordHash)

	if err := s.repo.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать попытку входа")
	}

	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль админ-панели")
		return common.ErrWrongPassword
	}

	session := &AdminSession{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Вход в админ-панель")
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.repo.GetActiveSession(ctx, userID, s.clock.Now())
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проверки сессии")
		return false
	}
	return session != nil
}

// Touch обновляет активность сессии.
func (s *Service) Touch(ctx context.Context, userID int64) {
	if err := s.repo.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).Debug("Не удалось обновить активность сессии")
	}
}

// Logout завершает сессию.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.repo.DeactivateSession(ctx, userID)
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *AdminState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	if s.clock.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с таймаутом.
func (s *Service) SetState(userID int64, stateName string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &AdminState{
		State:     stateName,
		ExpiresAt: s.clock.Now().Add(s.cfg.StateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Действия ---

// AwardPoints начисляет (или при отрицательном amount списывает) баллы.
func (s *Service) AwardPoints(ctx context.Context, adminID int64, username string, amount int64, reason string) (*members.Member, *points.Result, error) {
	target, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if reason == "" {
		reason = "начисление администратором"
	}
	res, err := s.ledger.ApplyDelta(ctx, target.UserID, amount, points.KindAdminAward, reason)
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(log.Fields{"admin": adminID, "user_id": target.UserID, "amount": amount}).Info("Админ изменил баллы")
	return target, res, nil
}

// ResetPoints обнуляет баланс пользователя.
func (s *Service) ResetPoints(ctx context.Context, adminID int64, username, reason string) (*members.Member, *points.Result, error) {
	target, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if reason == "" {
		reason = "обнуление администратором"
	}
	res, err := s.ledger.Reset(ctx, target.UserID, reason)
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(log.Fields{"admin": adminID, "user_id": target.UserID}).Warn("Админ обнулил баллы")
	return target, res, nil
}

// BlockUser блокирует голосование пользователя.
func (s *Service) BlockUser(ctx context.Context, username string, d time.Duration, reason string) (*members.Member, time.Time, error) {
	target, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		return nil, time.Time{}, err
	}
	if reason == "" {
		reason = "решение администратора"
	}
	until, err := s.penalties.Block(ctx, target.UserID, d, reason)
	if err != nil {
		return nil, time.Time{}, err
	}
	return target, until, nil
}

// UnblockUser снимает блокировку.
func (s *Service) UnblockUser(ctx context.Context, username string) (*members.Member, error) {
	target, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return target, s.penalties.Unblock(ctx, target.UserID)
}

// BanUser закрывает пользователю доступ к боту. Администратора забанить нельзя.
func (s *Service) BanUser(ctx context.Context, adminID int64, username, reason string) (*members.Member, error) {
	target, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if target.IsAdmin || s.isConfiguredAdmin(target.UserID) {
		return nil, common.ErrCannotBanAdmin
	}
	if reason == "" {
		reason = "решение администратора"
	}
	if err := s.members.SetBanned(ctx, target.UserID, true, reason); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"admin": adminID, "user_id": target.UserID, "reason": reason}).Warn("Админ закрыл доступ к боту")
	return target, nil
}

// UnbanUser возвращает доступ к боту.
func (s *Service) UnbanUser(ctx context.Context, adminID int64, username string) (*members.Member, error) {
	target, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.members.SetBanned(ctx, target.UserID, false, ""); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"admin": adminID, "user_id": target.UserID}).Info("Админ вернул доступ к боту")
	return target, nil
}

// SetForbiddenWord добавляет (add=true) или удаляет запрещённое слово.
func (s *Service) SetForbiddenWord(ctx context.Context, word string, add bool) (string, error) {
	if add {
		return s.words.AddWord(ctx, word)
	}
	return s.words.RemoveWord(ctx, word)
}

// FormatForbiddenWords — список запрещённых слов.
func (s *Service) FormatForbiddenWords(ctx context.Context) (string, error) {
	return s.words.FormatWords(ctx)
}

// SetScorer выдаёт или снимает роль оценщика.
func (s *Service) SetScorer(ctx context.Context, username string, scorer bool) (*members.Member, error) {
	target, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return target, s.members.SetScorer(ctx, target.UserID, scorer)
}

// FormatScorers — список оценщиков.
func (s *Service) FormatScorers(ctx context.Context) (string, error) {
	scorers, err := s.members.ListScorers(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if len(scorers) == 0 {
		sb.WriteString("Оценщиков пока нет\n")
	} else {
		sb.WriteString("🧑‍⚖️ Оценщики:\n")
		for i, m := range scorers {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, m.DisplayName()))
		}
	}
	sb.WriteString("\nОтправьте +@username чтобы выдать роль, -@username чтобы снять")
	return sb.String(), nil
}

// FormatBlocked — список заблокированных в голосовании и забаненных.
func (s *Service) FormatBlocked(ctx context.Context) (string, error) {
	records, err := s.penalties.Blocked(ctx)
	if err != nil {
		return "", err
	}
	banned, err := s.members.ListBanned(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 && len(banned) == 0 {
		return "Заблокированных нет", nil
	}
	var sb strings.Builder
	if len(banned) > 0 {
		sb.WriteString("🚫 Нет доступа к боту:\n")
		for _, m := range banned {
			reason := ""
			if m.BanReason != "" {
				reason = " — " + m.BanReason
			}
			sb.WriteString(fmt.Sprintf("• %s%s\n", m.DisplayName(), reason))
		}
	}
	if len(records) == 0 {
		return sb.String(), nil
	}
	sb.WriteString("⛔ Заблокированы в голосовании:\n")
	for _, rec := range records {
		name, err := s.members.DisplayName(ctx, rec.UserID)
		if err != nil {
			return "", err
		}
		reason := ""
		if rec.BlockReason != nil {
			reason = " — " + *rec.BlockReason
		}
		sb.WriteString(fmt.Sprintf("• %s до %s (страйков: %d)%s\n",
			name, common.FormatDateTime(*rec.BlockedUntil, s.cfg.Location), rec.Strikes, reason))
	}
	return sb.String(), nil
}

// Reconcile сверяет журнал и возвращает отчёт.
func (s *Service) Reconcile(ctx context.Context) (string, error) {
	mismatches, err := s.ledger.Audit(ctx)
	if err != nil {
		return "", err
	}
	if len(mismatches) == 0 {
		return "✅ Журнал баллов сходится с балансами", nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ Расхождений: %d\n", len(mismatches)))
	for _, m := range mismatches {
		sb.WriteString(fmt.Sprintf("• id%d: баланс %d, журнал %d\n", m.UserID, m.Balance, m.Sum))
	}
	return sb.String(), nil
}

// --- Разбор ввода ---

// ParseAwardInput разбирает "@user N [причина]".
func ParseAwardInput(text string) (username string, amount int64, reason string, err error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", 0, "", fmt.Errorf("%w: ожидается @username количество [причина]", common.ErrValidation)
	}
	amount, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil || amount == 0 {
		return "", 0, "", common.ErrInvalidAmount
	}
	return fields[0], amount, strings.Join(fields[2:], " "), nil
}

// ParseTargetInput разбирает "@user [причина]".
func ParseTargetInput(text string) (username, reason string, err error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", fmt.Errorf("%w: укажите @username", common.ErrValidation)
	}
	return fields[0], strings.Join(fields[1:], " "), nil
}

// ParseBlockInput разбирает "@user [часы] [причина]". Без часов — 0 (срок по умолчанию).
func ParseBlockInput(text string) (username string, d time.Duration, reason string, err error) {
	username, rest, err := ParseTargetInput(text)
	if err != nil {
		return "", 0, "", err
	}
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		if hours, convErr := strconv.Atoi(fields[0]); convErr == nil {
			if hours <= 0 {
				return "", 0, "", fmt.Errorf("%w: срок должен быть положительным", common.ErrValidation)
			}
			d = time.Duration(hours) * time.Hour
			fields = fields[1:]
		}
	}
	return username, d, strings.Join(fields, " "), nil
}

// ParseScorerInput разбирает "+@user" или "-@user".
func ParseScorerInput(text string) (username string, grant bool, err error) {
	username, grant, err = parseSigned(text, "+@username или -@username")
	if err != nil {
		return "", false, err
	}
	if username == "" {
		return "", false, fmt.Errorf("%w: укажите @username", common.ErrValidation)
	}
	return username, grant, nil
}

// ParseWordInput разбирает "+слово" или "-слово".
func ParseWordInput(text string) (word string, add bool, err error) {
	word, add, err = parseSigned(text, "+слово или -слово")
	if err != nil {
		return "", false, err
	}
	if word == "" {
		return "", false, common.ErrWordInvalid
	}
	return word, add, nil
}

func parseSigned(text, want string) (string, bool, error) {
	text = strings.TrimSpace(text)
	var plus bool
	switch {
	case strings.HasPrefix(text, "+"):
		plus = true
	case strings.HasPrefix(text, "-"):
	default:
		return "", false, fmt.Errorf("%w: ожидается %s", common.ErrValidation, want)
	}
	return strings.TrimSpace(text[1:]), plus, nil
}

// --- Криптографические утилиты ---

// VerifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func VerifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// HashArgon2id строит хеш в формате, который понимает VerifyArgon2id.
func HashArgon2id(password string, salt []byte) string {
	const (
		memory      = 64 * 1024
		iterations  = 3
		parallelism = 2
		keyLen      = 32
	)
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
