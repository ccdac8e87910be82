package members_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/testutil"
)

func TestFormatName(t *testing.T) {
	require.Equal(t, "@alice", members.FormatName(1, "alice", "Alice", "Smith"))
	require.Equal(t, "Alice Smith", members.FormatName(1, "", "Alice", "Smith"))
	require.Equal(t, "Smith", members.FormatName(1, "", "", "Smith"))
	require.Equal(t, "id42", members.FormatName(42, "", "", ""))
}

func TestHandleNewMemberUpdatesOnRejoin(t *testing.T) {
	svc := members.NewService(testutil.NewMemberStore())
	ctx := context.Background()

	require.NoError(t, svc.HandleNewMember(ctx, 1, "alice", "Alice", ""))
	require.NoError(t, svc.HandleNewMember(ctx, 1, "alice_new", "Alice", ""))

	m, err := svc.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "alice_new", m.Username)

	_, err = svc.GetByUsername(ctx, "@alice")
	require.ErrorIs(t, err, common.ErrNotFound)
	m, err = svc.GetByUsername(ctx, "@ALICE_NEW")
	require.NoError(t, err)
	require.Equal(t, int64(1), m.UserID)

	_, err = svc.GetByUsername(ctx, "@")
	require.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestEnsureMemberAndDisplayName(t *testing.T) {
	svc := members.NewService(testutil.NewMemberStore())
	ctx := context.Background()

	name, err := svc.DisplayName(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "id7", name)

	require.NoError(t, svc.EnsureMember(ctx, 7, "", "Иван", ""))
	require.NoError(t, svc.EnsureMember(ctx, 7, "ivan", "Иван", ""))

	name, err = svc.DisplayName(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Иван", name)

	ok, err := svc.IsMember(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPromoteScorerOnce(t *testing.T) {
	svc := members.NewService(testutil.NewMemberStore(&members.Member{UserID: 1, Username: "alice"}))
	ctx := context.Background()

	promoted, err := svc.PromoteScorer(ctx, 1)
	require.NoError(t, err)
	require.True(t, promoted)

	promoted, err = svc.PromoteScorer(ctx, 1)
	require.NoError(t, err)
	require.False(t, promoted)

	scorers, err := svc.ListScorers(ctx)
	require.NoError(t, err)
	require.Len(t, scorers, 1)

	require.NoError(t, svc.SetScorer(ctx, 1, false))
	ok, err := svc.IsScorer(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.IsScorer(ctx, 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBanAndUnban(t *testing.T) {
	svc := members.NewService(testutil.NewMemberStore(
		&members.Member{UserID: 1, Username: "alice", IsScorer: true},
		&members.Member{UserID: 2, Username: "bob"},
	))
	ctx := context.Background()

	banned, reason, err := svc.BanStatus(ctx, 1)
	require.NoError(t, err)
	require.False(t, banned)
	require.Empty(t, reason)

	require.NoError(t, svc.SetBanned(ctx, 1, true, "спам"))
	banned, reason, err = svc.BanStatus(ctx, 1)
	require.NoError(t, err)
	require.True(t, banned)
	require.Equal(t, "спам", reason)

	// Забаненный оценщик не попадает в список оценщиков
	scorers, err := svc.ListScorers(ctx)
	require.NoError(t, err)
	require.Empty(t, scorers)

	list, err := svc.ListBanned(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(1), list[0].UserID)

	require.NoError(t, svc.SetBanned(ctx, 1, false, ""))
	banned, reason, err = svc.BanStatus(ctx, 1)
	require.NoError(t, err)
	require.False(t, banned)
	require.Empty(t, reason)

	// Незнакомый пользователь не забанен, а забанить его нельзя
	banned, _, err = svc.BanStatus(ctx, 99)
	require.NoError(t, err)
	require.False(t, banned)
	require.ErrorIs(t, svc.SetBanned(ctx, 99, true, ""), common.ErrUserNotFound)
}
