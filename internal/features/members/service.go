// Package members — service.go содержит бизнес-логику управления участниками.
// Сервис координирует регистрацию новых участников, проверку членства,
// отображаемые имена и роль оценщика.
package members

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-bot/internal/common"
)

// Store — хранилище участников.
type Store interface {
	Create(ctx context.Context, m *Member) error
	GetByUserID(ctx context.Context, userID int64) (*Member, error)
	GetByUsername(ctx context.Context, username string) (*Member, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	UpdateInfo(ctx context.Context, userID int64, info UpdateInfo) error
	SetScorer(ctx context.Context, userID int64, scorer bool) error
	ListScorers(ctx context.Context) ([]*Member, error)
	SetBanned(ctx context.Context, userID int64, banned bool, reason string) error
	ListBanned(ctx context.Context) ([]*Member, error)
}

// Service управляет участниками чата.
type Service struct {
	repo Store
}

// NewService создаёт новый сервис участников.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// HandleNewMember обрабатывает вступление пользователя в чат.
// Если пользователь уже есть в базе (перезашёл) — обновляет его данные.
func (s *Service) HandleNewMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if existing != nil {
		log.WithField("user_id", userID).Info("Участник перезашёл в чат, обновляем данные")
		return s.repo.UpdateInfo(ctx, userID, UpdateInfo{
			Username:  username,
			FirstName: firstName,
			LastName:  lastName,
		})
	}

	member := &Member{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	}
	if err := s.repo.Create(ctx, member); err != nil {
		return fmt.Errorf("ошибка регистрации нового участника: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"username": username,
	}).Info("Новый участник зарегистрирован")
	return nil
}

// IsMember проверяет, есть ли пользователь в базе.
func (s *Service) IsMember(ctx context.Context, userID int64) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

// GetByUserID возвращает участника по его Telegram user ID.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// GetByUsername возвращает участника по @username (с @ или без).
func (s *Service) GetByUsername(ctx context.Context, username string) (*Member, error) {
	if len(username) > 0 && username[0] == '@' {
		username = username[1:]
	}
	if username == "" {
		return nil, common.ErrUserNotFound
	}
	return s.repo.GetByUsername(ctx, username)
}

// EnsureMember гарантирует, что пользователь есть в базе.
func (s *Service) EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	exists, err := s.repo.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.HandleNewMember(ctx, userID, username, firstName, lastName)
}

// DisplayName возвращает отображаемое имя участника.
// Для неизвестного пользователя — "id12345".
func (s *Service) DisplayName(ctx context.Context, userID int64) (string, error) {
	m, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return FormatName(userID, "", "", ""), nil
	}
	if err != nil {
		return "", err
	}
	return m.DisplayName(), nil
}

// IsScorer — является ли пользователь оценщиком.
func (s *Service) IsScorer(ctx context.Context, userID int64) (bool, error) {
	m, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsScorer, nil
}

// SetScorer выдаёт или снимает роль оценщика.
func (s *Service) SetScorer(ctx context.Context, userID int64, scorer bool) error {
	if err := s.repo.SetScorer(ctx, userID, scorer); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "scorer": scorer}).Info("Роль оценщика изменена")
	return nil
}

// PromoteScorer выдаёт роль оценщика, если её ещё нет.
// Возвращает true, если роль была выдана сейчас.
func (s *Service) PromoteScorer(ctx context.Context, userID int64) (bool, error) {
	isScorer, err := s.IsScorer(ctx, userID)
	if err != nil || isScorer {
		return false, err
	}
	if err := s.SetScorer(ctx, userID, true); err != nil {
		return false, err
	}
	return true, nil
}

// ListScorers возвращает всех оценщиков.
func (s *Service) ListScorers(ctx context.Context) ([]*Member, error) {
	return s.repo.ListScorers(ctx)
}

// SetBanned закрывает (banned=true) или открывает доступ к боту.
func (s *Service) SetBanned(ctx context.Context, userID int64, banned bool, reason string) error {
	if err := s.repo.SetBanned(ctx, userID, banned, reason); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "banned": banned, "reason": reason}).Warn("Доступ к боту изменён")
	return nil
}

// BanStatus — забанен ли пользователь и за что.
// Неизвестный пользователь не забанен.
func (s *Service) BanStatus(ctx context.Context, userID int64) (bool, string, error) {
	m, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return m.IsBanned, m.BanReason, nil
}

// ListBanned возвращает забаненных.
func (s *Service) ListBanned(ctx context.Context) ([]*Member, error) {
	return s.repo.ListBanned(ctx)
}
