//go:build integration

package recommendations_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/features/recommendations"
	"serotonyl.ru/points-bot/internal/testutil"
)

func createRecommendation(t *testing.T, repo *recommendations.Repository, link string) *recommendations.Recommendation {
	t.Helper()
	rec := &recommendations.Recommendation{SubmitterID: submitter, DisplayName: "@alice", Link: link, Coins: 5}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestRepositoryConcurrentQuorumCrossing(t *testing.T) {
	repo := recommendations.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()
	rec := createRecommendation(t, repo, "https://br.shp.ee/quorum")

	const (
		quorum   = 3
		maxVotes = 10
		voters   = 12
	)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		decided []int64
		closed  int
		errs    []error
	)
	for id := int64(2); id < 2+voters; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			out, err := repo.CastVote(ctx, recommendations.Vote{RecommendationID: rec.ID, VoterID: id, Approve: true},
				quorum, maxVotes, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, common.ErrVotingClosed):
				closed++
			case err != nil:
				errs = append(errs, err)
			case out.DecidedNow:
				decided = append(decided, id)
			}
		}(id)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, decided, 1)
	require.Equal(t, voters-maxVotes, closed)

	snap, err := repo.Snapshot(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, maxVotes, snap.Tally.Total())
	require.Equal(t, recommendations.OutcomeApproved, snap.Recommendation.Outcome)
	require.NotNil(t, snap.Recommendation.DecidingVoterID)
	require.Equal(t, decided[0], *snap.Recommendation.DecidingVoterID)
	require.NotNil(t, snap.Recommendation.DecidedAt)

	votes, err := repo.Votes(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, votes, maxVotes)
}

func TestRepositoryVoteRules(t *testing.T) {
	repo := recommendations.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()
	rec := createRecommendation(t, repo, "https://br.shp.ee/rules")

	dup := &recommendations.Recommendation{SubmitterID: submitter, DisplayName: "@alice", Link: rec.Link, Coins: 9}
	require.ErrorIs(t, repo.Create(ctx, dup), common.ErrDuplicateRecommendation)

	vote := func(voter int64, approve bool) error {
		_, err := repo.CastVote(ctx, recommendations.Vote{RecommendationID: rec.ID, VoterID: voter, Approve: approve}, 3, 10, time.Now())
		return err
	}
	require.ErrorIs(t, vote(submitter, true), common.ErrSelfVote)
	require.NoError(t, vote(2, true))
	require.ErrorIs(t, vote(2, false), common.ErrDuplicateVote)

	_, err := repo.CastVote(ctx, recommendations.Vote{RecommendationID: rec.ID + 1000, VoterID: 2, Approve: true}, 3, 10, time.Now())
	require.ErrorIs(t, err, common.ErrNotFound)

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, recommendations.OutcomePending, got.Outcome)
}

func TestRepositoryMarkSettledRequiresSameVoteCount(t *testing.T) {
	repo := recommendations.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()
	rec := createRecommendation(t, repo, "https://br.shp.ee/settle")

	for id := int64(2); id <= 4; id++ {
		_, err := repo.CastVote(ctx, recommendations.Vote{RecommendationID: rec.ID, VoterID: id, Approve: id != 4}, 3, 10, time.Now())
		require.NoError(t, err)
	}

	// Расчёт по двум голосам устарел: строка не меняется
	require.NoError(t, repo.MarkSettled(ctx, rec.ID, 2, time.Now()))
	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.NeedsSettlement())

	require.NoError(t, repo.MarkSettled(ctx, rec.ID, 3, time.Now()))
	got, err = repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.False(t, got.NeedsSettlement())

	unsettled, err := repo.Unsettled(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, unsettled)

	// Поздний голос снова требует расчёта
	_, err = repo.CastVote(ctx, recommendations.Vote{RecommendationID: rec.ID, VoterID: 5, Approve: false}, 3, 10, time.Now())
	require.NoError(t, err)
	unsettled, err = repo.Unsettled(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	require.Equal(t, rec.ID, unsettled[0].ID)
	require.Equal(t, recommendations.OutcomeApproved, unsettled[0].Outcome)
}

func newPostgresEnv(t *testing.T, pool *pgxpool.Pool) (*recommendations.Service, *points.Service, *penalties.Service) {
	t.Helper()
	ledger := points.NewService(points.NewRepository(pool), points.Config{})
	pen := penalties.NewService(penalties.NewRepository(pool), common.SystemClock{},
		penalties.Config{StrikeCeiling: 3, BlockDuration: 72 * time.Hour})
	dir := members.NewService(members.NewRepository(pool))
	svc := recommendations.NewService(recommendations.NewRepository(pool), ledger, pen, dir, &testutil.Recorder{},
		common.SystemClock{}, recommendations.Config{
			MinCoins:         5,
			MinVotePoints:    10,
			Quorum:           3,
			MaxVotes:         10,
			Policy:           recommendations.PolicyMinority,
			RewardMultiplier: decimal.NewFromInt(10),
			RevealDelay:      6 * time.Minute,
			StrikeCeiling:    3,
		})
	return svc, ledger, pen
}

func TestServiceConcurrentVotesSettleOnceOnPostgres(t *testing.T) {
	pool := testutil.NewTestPool(t)
	svc, ledger, pen := newPostgresEnv(t, pool)
	ctx := context.Background()

	const dissenter int64 = 2
	voters := []int64{2, 3, 4, 5, 6, 7, 8, 9, 10}
	for _, id := range voters {
		_, err := ledger.ApplyDelta(ctx, id, 10, points.KindAdminAward, "для голосования")
		require.NoError(t, err)
	}

	rec, err := svc.Submit(ctx, submitter, "br.shp.ee/pg", 5)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range voters {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.CastVote(ctx, rec.ID, id, id != dissenter)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	require.Empty(t, errs)

	// Досчитываем то, что могло не успеть отметиться
	_, err = svc.SettlePending(ctx, 10)
	require.NoError(t, err)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, recommendations.OutcomeApproved, got.Outcome)
	require.False(t, got.NeedsSettlement())

	var rewards int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM point_entries WHERE user_id = $1 AND kind = $2`,
		submitter, string(points.KindRecommendation)).Scan(&rewards))
	require.Equal(t, 1, rewards)

	balance, sum, err := ledger.Verify(ctx, submitter)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
	require.Equal(t, balance, sum)

	st, err := pen.Status(ctx, dissenter)
	require.NoError(t, err)
	require.Equal(t, 1, st.Strikes)
	for _, id := range voters[1:] {
		st, err := pen.Status(ctx, id)
		require.NoError(t, err)
		require.Zero(t, st.Strikes, "voter %d", id)
	}
}
