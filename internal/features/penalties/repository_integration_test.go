//go:build integration

package penalties_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/testutil"
)

func TestRepositoryConcurrentStrikeSameSource(t *testing.T) {
	repo := penalties.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()
	until := time.Now().Add(72 * time.Hour)

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.Strike(ctx, 1, "recommendation:1", 3, until)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Applied {
				applied++
			}
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	require.Equal(t, 1, applied)

	rec, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Strikes)
	require.Nil(t, rec.BlockedUntil)
}

func TestRepositoryStrikesReachCeiling(t *testing.T) {
	repo := penalties.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()
	until := time.Now().Add(72 * time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		blocked int
		errs    []error
	)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := repo.Strike(ctx, 2, fmt.Sprintf("recommendation:%d", i), 3, until)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Blocked {
				blocked++
			}
		}(i)
	}
	wg.Wait()
	require.Empty(t, errs)
	require.Equal(t, 1, blocked)

	rec, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Strikes)
	require.NotNil(t, rec.BlockedUntil)
	require.WithinDuration(t, until, *rec.BlockedUntil, time.Millisecond)
	require.NotNil(t, rec.BlockReason)
	require.Equal(t, penalties.ReasonStrikes, *rec.BlockReason)

	list, err := repo.ListBlocked(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(2), list[0].UserID)

	// Ручное снятие блокировки не обнуляет страйки
	require.NoError(t, repo.SetBlock(ctx, 2, nil, ""))
	rec, err = repo.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Strikes)
	require.Nil(t, rec.BlockedUntil)
	require.Nil(t, rec.BlockReason)

	list, err = repo.ListBlocked(ctx, time.Now())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRepositoryManualBlockWithoutStrikes(t *testing.T) {
	repo := penalties.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()

	rec, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, rec.Strikes)

	until := time.Now().Add(time.Hour)
	require.NoError(t, repo.SetBlock(ctx, 3, &until, "флуд"))
	rec, err = repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Zero(t, rec.Strikes)
	require.True(t, rec.IsBlocked(time.Now()))
	require.Equal(t, "флуд", *rec.BlockReason)
	require.False(t, rec.IsBlocked(until.Add(time.Second)))
}
