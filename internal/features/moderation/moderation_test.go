package moderation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/moderation"
	"serotonyl.ru/points-bot/internal/testutil"
)

const (
	admin1 int64 = 100
	admin2 int64 = 200
	user   int64 = 1
)

type env struct {
	svc      *moderation.Service
	words    *testutil.WordStore
	notifier *testutil.Recorder
	clock    *common.ManualClock
}

func setup(t *testing.T, adminIDs ...int64) *env {
	t.Helper()
	clock := common.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	words := testutil.NewWordStore("казино")
	dir := members.NewService(testutil.NewMemberStore(&members.Member{UserID: user, Username: "alice", FirstName: "Alice"}))
	notifier := &testutil.Recorder{}
	svc := moderation.NewService(words, dir, notifier, clock, moderation.Config{
		AdminIDs: adminIDs,
		StateTTL: 5 * time.Minute,
	})
	return &env{svc: svc, words: words, notifier: notifier, clock: clock}
}

func TestNormalizeWord(t *testing.T) {
	w, err := moderation.NormalizeWord("  СПАМ ")
	require.NoError(t, err)
	require.Equal(t, "спам", w)

	_, err = moderation.NormalizeWord("   ")
	require.ErrorIs(t, err, common.ErrWordInvalid)
	_, err = moderation.NormalizeWord("два слова")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestWordManagement(t *testing.T) {
	e := setup(t, admin1)
	ctx := context.Background()

	w, err := e.svc.AddWord(ctx, "Ставки")
	require.NoError(t, err)
	require.Equal(t, "ставки", w)

	_, err = e.svc.AddWord(ctx, "СТАВКИ")
	require.ErrorIs(t, err, common.ErrWordExists)
	require.ErrorIs(t, err, common.ErrDuplicate)

	words, err := e.svc.Words(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"казино", "ставки"}, words)

	out, err := e.svc.FormatWords(ctx)
	require.NoError(t, err)
	require.Contains(t, out, "• казино")
	require.Contains(t, out, "• ставки")

	_, err = e.svc.RemoveWord(ctx, "казино")
	require.NoError(t, err)
	_, err = e.svc.RemoveWord(ctx, "казино")
	require.ErrorIs(t, err, common.ErrWordNotFound)

	words, err = e.svc.Words(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ставки"}, words)
}

func TestFindForbiddenMatchesSubstring(t *testing.T) {
	e := setup(t, admin1)
	ctx := context.Background()

	word, found, err := e.svc.FindForbidden(ctx, "Лучшее КАЗИНОонлайн тут")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "казино", word)

	_, found, err = e.svc.FindForbidden(ctx, "Подскажите, как получить баллы?")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSupportRelayedToEveryAdmin(t *testing.T) {
	e := setup(t, admin1, admin2)
	ctx := context.Background()

	e.svc.StartSupport(user)
	require.True(t, e.svc.AwaitingSupport(user))

	require.NoError(t, e.svc.SubmitSupport(ctx, user, "  Не пришли баллы за рекомендацию  "))
	require.False(t, e.svc.AwaitingSupport(user))

	for _, id := range []int64{admin1, admin2} {
		msgs := e.notifier.To(id)
		require.Len(t, msgs, 1)
		require.Equal(t, "📩 Поддержка от @alice (id1):\nНе пришли баллы за рекомендацию", msgs[0])
	}
}

func TestSupportValidation(t *testing.T) {
	e := setup(t, admin1)
	ctx := context.Background()
	e.svc.StartSupport(user)

	require.ErrorIs(t, e.svc.SubmitSupport(ctx, user, "   "), common.ErrSupportEmpty)

	// Лимит считается в символах, а не в байтах
	require.NoError(t, e.svc.SubmitSupport(ctx, user, strings.Repeat("я", moderation.SupportMaxRunes)))
	err := e.svc.SubmitSupport(ctx, user, strings.Repeat("я", moderation.SupportMaxRunes+1))
	require.ErrorIs(t, err, common.ErrSupportTooLong)
	require.ErrorIs(t, err, common.ErrValidation)

	e.svc.StartSupport(user)
	require.ErrorIs(t, e.svc.SubmitSupport(ctx, user, "Где тут Казино?"), common.ErrSupportForbidden)
	// После отказа можно прислать исправленный текст
	require.True(t, e.svc.AwaitingSupport(user))

	require.Len(t, e.notifier.To(admin1), 1)
}

func TestSupportWithoutAdmins(t *testing.T) {
	e := setup(t)
	err := e.svc.SubmitSupport(context.Background(), user, "помогите")
	require.ErrorIs(t, err, common.ErrSupportUnavailable)
	require.Empty(t, e.notifier.Messages())
}

func TestSupportStoreFailureIsRetryable(t *testing.T) {
	e := setup(t, admin1)
	e.words.FailList = common.Infra("moderation list words", errors.New("connection reset"))

	err := e.svc.SubmitSupport(context.Background(), user, "помогите")
	require.True(t, common.IsRetryable(err))
	require.Empty(t, e.notifier.Messages())
}

func TestSupportStateExpiresAndCancels(t *testing.T) {
	e := setup(t, admin1)

	require.False(t, e.svc.CancelSupport(user))

	e.svc.StartSupport(user)
	require.True(t, e.svc.CancelSupport(user))
	require.False(t, e.svc.AwaitingSupport(user))

	e.svc.StartSupport(user)
	e.clock.Advance(5*time.Minute + time.Second)
	require.False(t, e.svc.AwaitingSupport(user))
}
