package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTruncateCountsRunes(t *testing.T) {
	require.Equal(t, "привет", Truncate("привет", 6))
	require.Equal(t, "при...", Truncate("привет", 3))
	require.Equal(t, "", Truncate("", 3))
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow(1))
	}
	require.False(t, rl.Allow(1))

	// Лимит считается отдельно для каждого пользователя
	require.True(t, rl.Allow(2))
	require.Equal(t, 2, rl.Size())
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Close()

	rl.Allow(1)
	rl.Allow(2)
	rl.evictIdle(time.Now().Add(time.Second))
	require.Zero(t, rl.Size())
}
