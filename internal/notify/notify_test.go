package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/notify"
	"serotonyl.ru/points-bot/internal/testutil"
)

func runDispatcher(t *testing.T, d *notify.Dispatcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return cancel, done
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	rec := &testutil.Recorder{}
	d := notify.NewDispatcher(rec, 10, 0)

	d.Notify(1, "первое")
	d.Notify(2, "второе")
	d.Notify(1, "третье")

	cancel, done := runDispatcher(t, d)
	require.Eventually(t, func() bool { return d.Sent() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []string{"первое", "третье"}, rec.To(1))
	require.Equal(t, []string{"второе"}, rec.To(2))
	require.Zero(t, d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	rec := &testutil.Recorder{}
	d := notify.NewDispatcher(rec, 2, 0)

	for i := 0; i < 5; i++ {
		d.Notify(1, "сообщение")
	}
	require.Equal(t, int64(3), d.Dropped())

	cancel, done := runDispatcher(t, d)
	require.Eventually(t, func() bool { return d.Sent() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestDispatcherSurvivesSendErrors(t *testing.T) {
	rec := &testutil.Recorder{Err: errors.New("chat not found")}
	d := notify.NewDispatcher(rec, 10, 0)
	d.Notify(1, "a")
	d.Notify(2, "b")

	cancel, done := runDispatcher(t, d)
	require.Eventually(t, func() bool { return len(rec.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.Zero(t, d.Sent())
}

func TestDispatcherRateLimit(t *testing.T) {
	rec := &testutil.Recorder{}
	d := notify.NewDispatcher(rec, 10, 20)
	for i := 0; i < 4; i++ {
		d.Notify(1, "x")
	}

	start := time.Now()
	cancel, done := runDispatcher(t, d)
	require.Eventually(t, func() bool { return d.Sent() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// Первое сообщение уходит сразу, остальные три — с интервалом 50ms
	require.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}
