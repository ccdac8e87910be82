package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/recommendations"
)

// RecommendationStore — recommendations.Store в памяти.
// Один мьютекс играет роль FOR UPDATE на строке рекомендации.
type RecommendationStore struct {
	mu     sync.Mutex
	clock  common.Clock
	recs   map[int64]*recommendations.Recommendation
	votes  map[int64][]*recommendations.Vote
	nextID int64

	// FailMarkSettled, если задан, возвращается из MarkSettled.
	FailMarkSettled error
}

// NewRecommendationStore создаёт пустое хранилище рекомендаций.
func NewRecommendationStore(clock common.Clock) *RecommendationStore {
	return &RecommendationStore{
		clock: clock,
		recs:  make(map[int64]*recommendations.Recommendation),
		votes: make(map[int64][]*recommendations.Vote),
	}
}

func (s *RecommendationStore) Create(_ context.Context, rec *recommendations.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recs {
		if r.SubmitterID == rec.SubmitterID && r.Link == rec.Link {
			return common.ErrDuplicateRecommendation
		}
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = s.clock.Now()
	rec.Outcome = recommendations.OutcomePending
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *RecommendationStore) Get(_ context.Context, id int64) (*recommendations.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, common.ErrRecommendationNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *RecommendationStore) Snapshot(_ context.Context, id int64) (*recommendations.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, common.ErrRecommendationNotFound
	}
	cp := *rec
	return &recommendations.Snapshot{Recommendation: &cp, Tally: s.tallyLocked(id)}, nil
}

func (s *RecommendationStore) tallyLocked(id int64) recommendations.Tally {
	var t recommendations.Tally
	for _, v := range s.votes[id] {
		if v.Approve {
			t.Positives++
		} else {
			t.Negatives++
		}
	}
	return t
}

func (s *RecommendationStore) CastVote(_ context.Context, v recommendations.Vote, quorum, maxVotes int, now time.Time) (*recommendations.VoteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[v.RecommendationID]
	if !ok {
		return nil, common.ErrRecommendationNotFound
	}
	if rec.SubmitterID == v.VoterID {
		return nil, common.ErrSelfVote
	}
	tally := s.tallyLocked(rec.ID)
	if tally.Total() >= maxVotes {
		return nil, common.ErrVotingClosed
	}
	for _, existing := range s.votes[rec.ID] {
		if existing.VoterID == v.VoterID {
			return nil, common.ErrDuplicateVote
		}
	}

	v.CreatedAt = now
	s.votes[rec.ID] = append(s.votes[rec.ID], &v)
	if v.Approve {
		tally.Positives++
	} else {
		tally.Negatives++
	}

	out := &recommendations.VoteOutcome{Tally: tally}
	switch {
	case !rec.Decided() && tally.Total() >= quorum:
		rec.Outcome = tally.Decide()
		decidedAt := now
		voter := v.VoterID
		rec.DecidedAt = &decidedAt
		rec.DecidingVoterID = &voter
		rec.SettledAt = nil
		out.DecidedNow = true
	case rec.Decided() && rec.SettledAt != nil:
		rec.SettledAt = nil
	}

	cp := *rec
	out.Recommendation = &cp
	return out, nil
}

func (s *RecommendationStore) Votes(_ context.Context, id int64) ([]*recommendations.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*recommendations.Vote, 0, len(s.votes[id]))
	for _, v := range s.votes[id] {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (s *RecommendationStore) MarkSettled(_ context.Context, id int64, votes int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMarkSettled != nil {
		return s.FailMarkSettled
	}
	rec, ok := s.recs[id]
	if !ok || !rec.Decided() || len(s.votes[id]) != votes {
		return nil
	}
	settledAt := now
	rec.SettledAt = &settledAt
	return nil
}

func (s *RecommendationStore) Unsettled(_ context.Context, limit int) ([]*recommendations.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*recommendations.Recommendation
	for _, rec := range s.recs {
		if rec.NeedsSettlement() {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.Before(*out[j].DecidedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RecommendationStore) CreatedSince(_ context.Context, since time.Time) ([]*recommendations.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*recommendations.Recommendation
	for _, rec := range s.recs {
		if rec.CreatedAt.After(since) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RecommendationStore) ListOpen(_ context.Context, maxVotes, limit int) ([]*recommendations.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*recommendations.Snapshot
	for id, rec := range s.recs {
		tally := s.tallyLocked(id)
		if tally.Total() >= maxVotes {
			continue
		}
		cp := *rec
		out = append(out, &recommendations.Snapshot{Recommendation: &cp, Tally: tally})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Recommendation.ID > out[j].Recommendation.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RecommendationStore) AttachMessage(_ context.Context, id, chatID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return common.ErrRecommendationNotFound
	}
	rec.ChatID = &chatID
	rec.MessageID = &messageID
	return nil
}
