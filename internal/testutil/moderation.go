package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/points-bot/internal/features/moderation"
)

// WordStore — moderation.Store в памяти.
type WordStore struct {
	mu     sync.Mutex
	words  map[string]*moderation.ForbiddenWord
	nextID int64

	// FailList, если задана, возвращается из ListWords.
	FailList error
}

func NewWordStore(words ...string) *WordStore {
	s := &WordStore{words: make(map[string]*moderation.ForbiddenWord)}
	for _, w := range words {
		_, _ = s.AddWord(context.Background(), w)
	}
	return s
}

func (s *WordStore) AddWord(_ context.Context, word string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.words[word]; ok {
		return false, nil
	}
	s.nextID++
	s.words[word] = &moderation.ForbiddenWord{ID: s.nextID, Word: word, CreatedAt: time.Now()}
	return true, nil
}

func (s *WordStore) RemoveWord(_ context.Context, word string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.words[word]; !ok {
		return false, nil
	}
	delete(s.words, word)
	return true, nil
}

func (s *WordStore) ListWords(_ context.Context) ([]*moderation.ForbiddenWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	out := make([]*moderation.ForbiddenWord, 0, len(s.words))
	for _, w := range s.words {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out, nil
}
