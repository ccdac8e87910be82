package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает количество запросов на пользователя.
// У каждого пользователя свой token bucket: limit запросов за window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	every    rate.Limit
	burst    int
	window   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter создаёт лимитер и запускает фоновую очистку.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		limiters: make(map[int64]*userLimiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow — можно ли обработать ещё один запрос пользователя.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = time.Now()
	rl.mu.Unlock()

	return ul.limiter.Allow()
}

// Size — сколько пользователей отслеживается.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now().Add(-rl.window))
		}
	}
}

// evictIdle удаляет лимитеры пользователей, не писавших с cutoff.
// За окно бакет успевает наполниться, поэтому удаление ничего не меняет для пользователя.
func (rl *RateLimiter) evictIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for userID, ul := range rl.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(rl.limiters, userID)
		}
	}
}
