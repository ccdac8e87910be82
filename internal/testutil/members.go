package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
)

// MemberStore — members.Store в памяти.
type MemberStore struct {
	mu      sync.Mutex
	members map[int64]*members.Member
	nextID  int64
}

// NewMemberStore создаёт хранилище с участниками ms.
func NewMemberStore(ms ...*members.Member) *MemberStore {
	s := &MemberStore{members: make(map[int64]*members.Member)}
	for _, m := range ms {
		_ = s.Create(context.Background(), m)
	}
	return s
}

func (s *MemberStore) Create(_ context.Context, m *members.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.UserID]; ok {
		return common.ErrDuplicate
	}
	s.nextID++
	cp := *m
	cp.ID = s.nextID
	s.members[m.UserID] = &cp
	m.ID = cp.ID
	return nil
}

func (s *MemberStore) GetByUserID(_ context.Context, userID int64) (*members.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemberStore) GetByUsername(_ context.Context, username string) (*members.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.Username != "" && strings.EqualFold(m.Username, username) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (s *MemberStore) Exists(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[userID]
	return ok, nil
}

func (s *MemberStore) UpdateInfo(_ context.Context, userID int64, info members.UpdateInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	m.Username, m.FirstName, m.LastName = info.Username, info.FirstName, info.LastName
	return nil
}

func (s *MemberStore) SetScorer(_ context.Context, userID int64, scorer bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	m.IsScorer = scorer
	return nil
}

func (s *MemberStore) ListScorers(_ context.Context) ([]*members.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*members.Member
	for _, m := range s.members {
		if m.IsScorer && !m.IsBanned {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstName < out[j].FirstName })
	return out, nil
}

func (s *MemberStore) SetBanned(_ context.Context, userID int64, banned bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	m.IsBanned = banned
	m.BanReason = ""
	if banned {
		m.BanReason = reason
	}
	return nil
}

func (s *MemberStore) ListBanned(_ context.Context) ([]*members.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*members.Member
	for _, m := range s.members {
		if m.IsBanned {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
