package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/notify"
	"serotonyl.ru/points-bot/internal/testutil"
)

func TestCrossingHookPromotesScorer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := common.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	dir := members.NewService(testutil.NewMemberStore(&members.Member{UserID: 1, Username: "alice"}))
	rec := &testutil.Recorder{}
	dispatcher := notify.NewDispatcher(rec, 16, 0)
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	ledger := points.NewService(testutil.NewPointsStore(clock), points.Config{
		Thresholds: []points.Threshold{{Value: 500, Label: "Оценщик"}, {Value: 1000, Label: "Приз 1 уровня"}},
	})
	ledger.OnCrossing(crossingHook(dir, dispatcher, 500))

	_, err := ledger.ApplyDelta(ctx, 1, 600, points.KindAdminAward, "тест")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return dispatcher.Sent() == 2 }, time.Second, 5*time.Millisecond)

	ok, err := dir.IsScorer(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Следующий порог: поздравление есть, повторного повышения нет
	_, err = ledger.ApplyDelta(ctx, 1, 500, points.KindAdminAward, "тест")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return dispatcher.Sent() == 3 }, time.Second, 5*time.Millisecond)
	require.Len(t, rec.To(1), 3)

	cancel()
	require.NoError(t, <-done)
}
