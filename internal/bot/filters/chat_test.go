package filters_test

import (
	"context"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/bot/filters"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/testutil"
)

const communityChatID int64 = -100500

func community() telego.Chat {
	return telego.Chat{ID: communityChatID, Type: telego.ChatTypeSupergroup}
}

func TestBannedUserDeniedInCommunity(t *testing.T) {
	ctx := context.Background()
	memberService := members.NewService(testutil.NewMemberStore(
		&members.Member{UserID: 1, Username: "alice"},
		&members.Member{UserID: 2, Username: "spammer"},
		&members.Member{UserID: 3, Username: "owner"},
	))
	require.NoError(t, memberService.SetBanned(ctx, 2, true, "спам"))
	require.NoError(t, memberService.SetBanned(ctx, 3, true, "по ошибке"))

	isAdmin := func(id int64) bool { return id == 3 }
	f := filters.NewChatFilter(communityChatID, memberService, nil, isAdmin)

	require.True(t, f.CheckAccess(ctx, community(), &telego.User{ID: 1}))
	require.False(t, f.CheckAccess(ctx, community(), &telego.User{ID: 2}))
	// Администратора из конфигурации бан не останавливает
	require.True(t, f.CheckAccess(ctx, community(), &telego.User{ID: 3}))

	require.NoError(t, memberService.SetBanned(ctx, 2, false, ""))
	require.True(t, f.CheckAccess(ctx, community(), &telego.User{ID: 2}))
}

func TestPrivateChatOfKnownMember(t *testing.T) {
	ctx := context.Background()
	memberService := members.NewService(testutil.NewMemberStore(&members.Member{UserID: 1, Username: "alice"}))
	f := filters.NewChatFilter(communityChatID, memberService, nil, nil)

	require.True(t, f.CheckAccess(ctx, telego.Chat{ID: 1, Type: telego.ChatTypePrivate}, &telego.User{ID: 1}))
	require.False(t, f.CheckAccess(ctx, telego.Chat{ID: -42, Type: telego.ChatTypeGroup}, &telego.User{ID: 1}))
	require.False(t, f.CheckAccess(ctx, community(), nil))
}
