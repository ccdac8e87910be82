package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/points-bot/internal/features/penalties"
)

// PenaltyStore — penalties.Store в памяти.
type PenaltyStore struct {
	mu      sync.Mutex
	records map[int64]*penalties.Record
	sources map[int64]map[string]bool
}

// NewPenaltyStore создаёт пустое хранилище штрафов.
func NewPenaltyStore() *PenaltyStore {
	return &PenaltyStore{
		records: make(map[int64]*penalties.Record),
		sources: make(map[int64]map[string]bool),
	}
}

func (s *PenaltyStore) Strike(_ context.Context, userID int64, source string, ceiling int, blockUntil time.Time) (*penalties.StrikeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &penalties.StrikeResult{UserID: userID}
	if s.sources[userID] == nil {
		s.sources[userID] = make(map[string]bool)
	}
	rec := s.records[userID]

	if s.sources[userID][source] {
		if rec != nil {
			res.Strikes = rec.Strikes
			res.BlockedUntil = rec.BlockedUntil
		}
		return res, nil
	}
	s.sources[userID][source] = true

	if rec == nil {
		rec = &penalties.Record{UserID: userID}
		s.records[userID] = rec
	}
	rec.Strikes++
	rec.UpdatedAt = time.Now()
	res.Strikes = rec.Strikes
	res.BlockedUntil = rec.BlockedUntil
	res.Applied = true

	if rec.Strikes >= ceiling {
		until := blockUntil
		reason := penalties.ReasonStrikes
		rec.BlockedUntil = &until
		rec.BlockReason = &reason
		res.BlockedUntil = &until
		res.Blocked = true
	}
	return res, nil
}

func (s *PenaltyStore) Get(_ context.Context, userID int64) (*penalties.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return &penalties.Record{UserID: userID}, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *PenaltyStore) SetBlock(_ context.Context, userID int64, until *time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = &penalties.Record{UserID: userID}
		s.records[userID] = rec
	}
	rec.BlockedUntil = until
	if until != nil {
		r := reason
		rec.BlockReason = &r
	} else {
		rec.BlockReason = nil
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *PenaltyStore) ListBlocked(_ context.Context, now time.Time) ([]*penalties.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*penalties.Record
	for _, rec := range s.records {
		if rec.IsBlocked(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedUntil.Before(*out[j].BlockedUntil) })
	return out, nil
}
