//go:build integration

package members_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/testutil"
)

func TestRepositoryBanRoundTrip(t *testing.T) {
	repo := members.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &members.Member{UserID: 1, Username: "alice", FirstName: "Alice", IsScorer: true}))
	require.NoError(t, repo.SetBanned(ctx, 1, true, "спам"))

	m, err := repo.GetByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.True(t, m.IsBanned)
	require.Equal(t, "спам", m.BanReason)

	banned, err := repo.ListBanned(ctx)
	require.NoError(t, err)
	require.Len(t, banned, 1)
	scorers, err := repo.ListScorers(ctx)
	require.NoError(t, err)
	require.Empty(t, scorers)

	// Повторная регистрация не снимает бан
	require.NoError(t, repo.Create(ctx, &members.Member{UserID: 1, Username: "alice2", FirstName: "Alice"}))
	m, err = repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.True(t, m.IsBanned)

	require.NoError(t, repo.SetBanned(ctx, 1, false, "игнорируется"))
	m, err = repo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.False(t, m.IsBanned)
	require.Empty(t, m.BanReason)

	require.ErrorIs(t, repo.SetBanned(ctx, 99, true, ""), common.ErrUserNotFound)
}
