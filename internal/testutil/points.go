// Package testutil — хранилища в памяти для тестов сервисов.
// Семантика повторяет репозитории PostgreSQL: та же атомарность,
// те же ошибки и те же правила идемпотентности.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/points"
)

// PointsStore — points.Store в памяти.
type PointsStore struct {
	mu       sync.Mutex
	clock    common.Clock
	accounts map[int64]*points.Account
	entries  []*points.Entry
	refs     map[string]bool
	nextID   int64

	// Fail, если задан, возвращается из Apply вместо записи.
	Fail error
}

// NewPointsStore создаёт пустое хранилище баллов.
func NewPointsStore(clock common.Clock) *PointsStore {
	return &PointsStore{
		clock:    clock,
		accounts: make(map[int64]*points.Account),
		refs:     make(map[string]bool),
	}
}

func (s *PointsStore) Apply(_ context.Context, d points.Delta, levelOf func(int64) int) (*points.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return nil, s.Fail
	}

	now := s.clock.Now()
	acc, ok := s.accounts[d.UserID]
	if !ok {
		acc = &points.Account{UserID: d.UserID, CreatedAt: now, UpdatedAt: now}
		s.accounts[d.UserID] = acc
	}
	change := &points.Change{
		OldBalance: acc.Balance, NewBalance: acc.Balance,
		OldLevel: acc.Level, NewLevel: acc.Level,
	}

	if d.Day != nil && acc.LastInteraction != nil && common.SameDate(*acc.LastInteraction, *d.Day) {
		return change, nil
	}
	if d.Ref != "" && s.refs[d.Ref] {
		return change, nil
	}

	amount := d.Amount
	if d.ResetToZero {
		amount = -acc.Balance
	}
	if amount == 0 {
		return change, nil
	}

	s.nextID++
	entry := &points.Entry{
		ID: s.nextID, UserID: d.UserID, Delta: amount,
		Kind: d.Kind, Reason: d.Reason, CreatedAt: now,
	}
	if d.Ref != "" {
		ref := d.Ref
		entry.Ref = &ref
		s.refs[ref] = true
	}
	s.entries = append(s.entries, entry)

	acc.Balance += amount
	acc.Level = levelOf(acc.Balance)
	acc.UpdatedAt = now
	if d.Day != nil {
		day := *d.Day
		acc.LastInteraction = &day
	}

	change.Applied = true
	change.NewBalance = acc.Balance
	change.NewLevel = acc.Level
	change.Entry = entry
	return change, nil
}

func (s *PointsStore) GetAccount(_ context.Context, userID int64) (*points.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *acc
	return &cp, nil
}

// History — новые записи первыми, как ORDER BY created_at DESC, id DESC.
func (s *PointsStore) History(_ context.Context, userID int64, limit, offset int) ([]*points.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mine []*points.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			mine = append(mine, s.entries[i])
		}
	}
	if offset >= len(mine) {
		return nil, nil
	}
	mine = mine[offset:]
	if len(mine) > limit {
		mine = mine[:limit]
	}
	return mine, nil
}

func (s *PointsStore) SumEntries(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(userID), nil
}

func (s *PointsStore) sumLocked(userID int64) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum
}

func (s *PointsStore) Mismatches(_ context.Context) ([]points.Mismatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []points.Mismatch
	for id, acc := range s.accounts {
		if sum := s.sumLocked(id); sum != acc.Balance {
			out = append(out, points.Mismatch{UserID: id, Balance: acc.Balance, Sum: sum})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *PointsStore) Top(_ context.Context, limit int) ([]*points.Ranked, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*points.Ranked
	for _, acc := range s.accounts {
		if acc.Balance <= 0 {
			continue
		}
		out = append(out, &points.Ranked{
			UserID:      acc.UserID,
			DisplayName: members.FormatName(acc.UserID, "", "", ""),
			Balance:     acc.Balance,
			Level:       acc.Level,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Corrupt меняет баланс в обход журнала (для проверки сверки).
func (s *PointsStore) Corrupt(userID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[userID]; ok {
		acc.Balance = balance
		return
	}
	s.accounts[userID] = &points.Account{UserID: userID, Balance: balance, UpdatedAt: time.Time{}}
}

// Entries возвращает копию журнала.
func (s *PointsStore) Entries() []points.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]points.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}
