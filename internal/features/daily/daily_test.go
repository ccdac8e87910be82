package daily_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/daily"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/testutil"
)

func setup(t *testing.T, start time.Time, enabled bool) (*daily.Service, *points.Service, *common.ManualClock) {
	t.Helper()
	clock := common.NewManualClock(start)
	ledger := points.NewService(testutil.NewPointsStore(clock), points.Config{})
	svc := daily.NewService(ledger, clock, daily.Config{Bonus: 1, Location: time.UTC, Enabled: enabled})
	return svc, ledger, clock
}

func TestTouchGrantsOncePerDay(t *testing.T) {
	svc, ledger, clock := setup(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), true)
	ctx := context.Background()

	res, err := svc.Touch(ctx, 1)
	require.NoError(t, err)
	require.True(t, res.Applied)

	clock.Advance(10 * time.Hour)
	res, err = svc.Touch(ctx, 1)
	require.NoError(t, err)
	require.False(t, res.Applied)

	clock.Advance(6 * time.Hour) // 01:00 следующего дня
	res, err = svc.Touch(ctx, 1)
	require.NoError(t, err)
	require.True(t, res.Applied)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), balance)
}

func TestTodayUsesAppTimezone(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	clock := common.NewManualClock(time.Date(2025, 3, 2, 1, 30, 0, 0, time.UTC))
	ledger := points.NewService(testutil.NewPointsStore(clock), points.Config{})
	svc := daily.NewService(ledger, clock, daily.Config{Bonus: 1, Location: loc, Enabled: true})

	// 01:30 UTC — это ещё 1 марта в UTC-3
	today := svc.Today()
	require.Equal(t, 1, today.Day())
	require.Equal(t, time.March, today.Month())
}

func TestMaybeGrantExplicitDates(t *testing.T) {
	svc, ledger, _ := setup(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), true)
	ctx := context.Background()
	d1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := svc.MaybeGrant(ctx, 1, d1)
		require.NoError(t, err)
	}
	res, err := svc.MaybeGrant(ctx, 1, d1.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, res.Applied)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), balance)
}

func TestConcurrentTouchesGrantOnce(t *testing.T) {
	svc, ledger, _ := setup(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), true)
	ctx := context.Background()

	const workers = 20
	applied := make(chan bool, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Touch(ctx, 1)
			errs <- err
			if err == nil {
				applied <- res.Applied
			}
		}()
	}
	wg.Wait()
	close(errs)
	close(applied)

	for err := range errs {
		require.NoError(t, err)
	}
	n := 0
	for a := range applied {
		if a {
			n++
		}
	}
	require.Equal(t, 1, n)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), balance)
}

func TestDisabledDoesNothing(t *testing.T) {
	svc, ledger, _ := setup(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), false)
	ctx := context.Background()

	res, err := svc.Touch(ctx, 1)
	require.NoError(t, err)
	require.False(t, res.Applied)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, balance)
}
