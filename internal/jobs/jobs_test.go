package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/features/recommendations"
	"serotonyl.ru/points-bot/internal/jobs"
)

type revealLog struct {
	mu  sync.Mutex
	ids []int64
}

func (r *revealLog) reveal(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *revealLog) get() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

type settler struct {
	mu    sync.Mutex
	calls int
}

func (s *settler) SettlePending(context.Context, int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, nil
}

func (s *settler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type auditor struct{}

func (auditor) Audit(context.Context) ([]points.Mismatch, error) { return nil, nil }

func start(t *testing.T, s *jobs.Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
}

func TestOnceSchedule(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := jobs.Once{At: at}
	require.Equal(t, at, o.Next(at.Add(-time.Minute)))
	require.True(t, o.Next(at).IsZero())
	require.True(t, o.Next(at.Add(time.Second)).IsZero())
}

func TestScheduleRevealFiresOnce(t *testing.T) {
	log := &revealLog{}
	s := jobs.NewScheduler(nil, nil, log.reveal, common.SystemClock{}, jobs.Config{})
	start(t, s)

	s.ScheduleReveal(7, time.Now().Add(50*time.Millisecond))
	require.Equal(t, 1, s.PendingReveals())

	require.Eventually(t, func() bool { return len(log.get()) == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, []int64{7}, log.get())
	require.Eventually(t, func() bool { return s.PendingReveals() == 0 }, time.Second, 10*time.Millisecond)
}

func TestScheduleRevealReplacesAndCancels(t *testing.T) {
	log := &revealLog{}
	clock := common.NewManualClock(time.Now())
	s := jobs.NewScheduler(nil, nil, log.reveal, clock, jobs.Config{})
	start(t, s)

	s.ScheduleReveal(1, clock.Now().Add(time.Hour))
	s.ScheduleReveal(2, clock.Now().Add(time.Hour))
	require.Equal(t, 2, s.PendingReveals())

	s.CancelReveal(2)
	require.Equal(t, 1, s.PendingReveals())

	// Момент в прошлом: раскрытие выполняется сразу и заменяет часовое
	s.ScheduleReveal(1, clock.Now().Add(-time.Minute))
	require.Equal(t, 1, s.PendingReveals())

	require.Eventually(t, func() bool { return len(log.get()) == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, []int64{1}, log.get())
	require.Eventually(t, func() bool { return s.PendingReveals() == 0 }, time.Second, 10*time.Millisecond)
}

type revealSource struct {
	recs  []*recommendations.Recommendation
	delay time.Duration
}

func (r revealSource) RevealQueue(context.Context) ([]*recommendations.Recommendation, error) {
	return r.recs, nil
}

func (r revealSource) RevealAt(rec *recommendations.Recommendation) time.Time {
	return rec.CreatedAt.Add(r.delay)
}

func TestRestoreReveals(t *testing.T) {
	log := &revealLog{}
	s := jobs.NewScheduler(nil, nil, log.reveal, common.SystemClock{}, jobs.Config{})
	start(t, s)

	now := time.Now()
	src := revealSource{
		delay: 6 * time.Minute,
		recs: []*recommendations.Recommendation{
			{ID: 1, CreatedAt: now.Add(-6 * time.Minute)},
			{ID: 2, CreatedAt: now.Add(-time.Minute)},
		},
	}
	n, err := s.RestoreReveals(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Первое уже просрочено и раскрывается сразу, второе ждёт пять минут
	require.Eventually(t, func() bool { return len(log.get()) == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, []int64{1}, log.get())
	require.Equal(t, 1, s.PendingReveals())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := jobs.NewScheduler(&settler{}, auditor{}, nil, common.SystemClock{}, jobs.Config{SettleSchedule: "каждую минуту"})
	require.Error(t, s.Start(context.Background()))
}

func TestSettleJobRuns(t *testing.T) {
	st := &settler{}
	s := jobs.NewScheduler(st, auditor{}, nil, common.SystemClock{}, jobs.Config{
		SettleSchedule: "@every 1s",
		AuditSchedule:  "0 4 * * *",
	})
	start(t, s)

	require.Eventually(t, func() bool { return st.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}
