package admin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/features/admin"
	"serotonyl.ru/points-bot/internal/features/members"
	"serotonyl.ru/points-bot/internal/features/moderation"
	"serotonyl.ru/points-bot/internal/features/penalties"
	"serotonyl.ru/points-bot/internal/features/points"
	"serotonyl.ru/points-bot/internal/testutil"
)

type attempt struct {
	userID  int64
	at      time.Time
	success bool
}

// sessionStore — admin.Store в памяти.
type sessionStore struct {
	mu       sync.Mutex
	clock    common.Clock
	sessions map[int64]*admin.AdminSession
	attempts []attempt
}

func newSessionStore(clock common.Clock) *sessionStore {
	return &sessionStore{clock: clock, sessions: make(map[int64]*admin.AdminSession)}
}

func (s *sessionStore) CreateSession(_ context.Context, session *admin.AdminSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	cp.IsActive = true
	s.sessions[session.UserID] = &cp
	return nil
}

func (s *sessionStore) GetActiveSession(_ context.Context, userID int64, now time.Time) (*admin.AdminSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok || !session.IsActive || !session.ExpiresAt.After(now) {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *sessionStore) DeactivateSession(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[userID]; ok {
		session.IsActive = false
	}
	return nil
}

func (s *sessionStore) UpdateActivity(context.Context, int64) error { return nil }

func (s *sessionStore) LogAttempt(_ context.Context, userID int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt{userID: userID, at: s.clock.Now(), success: success})
	return nil
}

func (s *sessionStore) CountFailedAttempts(_ context.Context, userID int64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.userID == userID && !a.success && a.at.After(since) {
			n++
		}
	}
	return n, nil
}

type env struct {
	svc    *admin.Service
	clock  *common.ManualClock
	ledger *points.Service
	pen    *penalties.Service
	dir    *members.Service
	words  *moderation.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	clock := common.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ledger := points.NewService(testutil.NewPointsStore(clock), points.Config{})
	pen := penalties.NewService(testutil.NewPenaltyStore(), clock, penalties.Config{})
	dir := members.NewService(testutil.NewMemberStore(
		&members.Member{UserID: 10, Username: "boss", FirstName: "Boss", IsAdmin: true},
		&members.Member{UserID: 20, Username: "bob", FirstName: "Bob"},
	))
	words := moderation.NewService(testutil.NewWordStore(), dir, &testutil.Recorder{}, clock, moderation.Config{})
	svc := admin.NewService(newSessionStore(clock), dir, ledger, pen, words, clock, admin.Config{
		PasswordHash: admin.HashArgon2id("secret", []byte("0123456789abcdef")),
		AdminIDs:     []int64{1},
	})
	return &env{svc: svc, clock: clock, ledger: ledger, pen: pen, dir: dir, words: words}
}

func TestArgon2idRoundTrip(t *testing.T) {
	hash := admin.HashArgon2id("пароль", []byte("saltsaltsaltsalt"))
	require.True(t, admin.VerifyArgon2id("пароль", hash))
	require.False(t, admin.VerifyArgon2id("Пароль", hash))
	require.False(t, admin.VerifyArgon2id("пароль", "не хеш"))
}

func TestIsAdmin(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for id, want := range map[int64]bool{1: true, 10: true, 20: false, 99: false} {
		got, err := e.svc.IsAdmin(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got, "user %d", id)
	}
}

func TestLoginSessionAndLockout(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.False(t, e.svc.HasActiveSession(ctx, 1))
	require.NoError(t, e.svc.VerifyPassword(ctx, 1, "secret"))
	require.True(t, e.svc.HasActiveSession(ctx, 1))

	require.NoError(t, e.svc.Logout(ctx, 1))
	require.False(t, e.svc.HasActiveSession(ctx, 1))

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, e.svc.VerifyPassword(ctx, 1, "wrong"), common.ErrWrongPassword)
	}
	require.ErrorIs(t, e.svc.VerifyPassword(ctx, 1, "secret"), common.ErrTooManyAttempts)

	e.clock.Advance(time.Hour + time.Minute)
	require.NoError(t, e.svc.VerifyPassword(ctx, 1, "secret"))

	// Сессия живёт сутки
	e.clock.Advance(25 * time.Hour)
	require.False(t, e.svc.HasActiveSession(ctx, 1))
}

func TestDialogStateExpires(t *testing.T) {
	e := setup(t)
	e.svc.SetState(1, admin.StateAwardInput)
	require.Equal(t, admin.StateAwardInput, e.svc.GetState(1).State)

	e.clock.Advance(6 * time.Minute)
	require.Nil(t, e.svc.GetState(1))
}

func TestAdminActions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	target, res, err := e.svc.AwardPoints(ctx, 1, "@bob", 40, "")
	require.NoError(t, err)
	require.Equal(t, int64(20), target.UserID)
	require.Equal(t, int64(40), res.Balance)

	_, _, err = e.svc.AwardPoints(ctx, 1, "@nobody", 40, "")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, res, err = e.svc.ResetPoints(ctx, 1, "bob", "")
	require.NoError(t, err)
	require.Zero(t, res.Balance)

	_, until, err := e.svc.BlockUser(ctx, "@bob", 2*time.Hour, "спам")
	require.NoError(t, err)
	require.Equal(t, e.clock.Now().Add(2*time.Hour), until)

	text, err := e.svc.FormatBlocked(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "@bob до 01.03.2025 14:00")
	require.Contains(t, text, "спам")

	_, err = e.svc.UnblockUser(ctx, "@bob")
	require.NoError(t, err)
	text, err = e.svc.FormatBlocked(ctx)
	require.NoError(t, err)
	require.Equal(t, "Заблокированных нет", text)

	_, err = e.svc.SetScorer(ctx, "@bob", true)
	require.NoError(t, err)
	text, err = e.svc.FormatScorers(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "1. @bob")

	report, err := e.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, "✅ Журнал баллов сходится с балансами", report)
}

func TestBanAndUnban(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	target, err := e.svc.BanUser(ctx, 1, "@bob", "реклама")
	require.NoError(t, err)
	require.Equal(t, int64(20), target.UserID)

	banned, reason, err := e.dir.BanStatus(ctx, 20)
	require.NoError(t, err)
	require.True(t, banned)
	require.Equal(t, "реклама", reason)

	text, err := e.svc.FormatBlocked(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "Нет доступа к боту")
	require.Contains(t, text, "• @bob — реклама")
	require.NotContains(t, text, "в голосовании")

	// Администраторов из базы и из конфигурации банить нельзя
	_, err = e.svc.BanUser(ctx, 1, "@boss", "")
	require.ErrorIs(t, err, common.ErrCannotBanAdmin)
	_, err = e.svc.BanUser(ctx, 1, "@nobody", "")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.svc.UnbanUser(ctx, 1, "bob")
	require.NoError(t, err)
	banned, _, err = e.dir.BanStatus(ctx, 20)
	require.NoError(t, err)
	require.False(t, banned)

	text, err = e.svc.FormatBlocked(ctx)
	require.NoError(t, err)
	require.Equal(t, "Заблокированных нет", text)
}

func TestForbiddenWordsFromPanel(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	word, err := e.svc.SetForbiddenWord(ctx, "Казино", true)
	require.NoError(t, err)
	require.Equal(t, "казино", word)
	_, err = e.svc.SetForbiddenWord(ctx, "казино", true)
	require.ErrorIs(t, err, common.ErrWordExists)

	text, err := e.svc.FormatForbiddenWords(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "• казино")

	_, found, err := e.words.FindForbidden(ctx, "лучшее КАЗИНО")
	require.NoError(t, err)
	require.True(t, found)

	_, err = e.svc.SetForbiddenWord(ctx, "казино", false)
	require.NoError(t, err)
	_, err = e.svc.SetForbiddenWord(ctx, "казино", false)
	require.ErrorIs(t, err, common.ErrWordNotFound)
}

func TestParseInputs(t *testing.T) {
	user, amount, reason, err := admin.ParseAwardInput("@bob 15 за помощь новичкам")
	require.NoError(t, err)
	require.Equal(t, "@bob", user)
	require.Equal(t, int64(15), amount)
	require.Equal(t, "за помощь новичкам", reason)

	_, _, _, err = admin.ParseAwardInput("@bob")
	require.ErrorIs(t, err, common.ErrValidation)
	_, _, _, err = admin.ParseAwardInput("@bob 0")
	require.ErrorIs(t, err, common.ErrInvalidAmount)

	user, d, reason, err := admin.ParseBlockInput("@bob 12 флуд")
	require.NoError(t, err)
	require.Equal(t, "@bob", user)
	require.Equal(t, 12*time.Hour, d)
	require.Equal(t, "флуд", reason)

	_, d, reason, err = admin.ParseBlockInput("@bob флуд")
	require.NoError(t, err)
	require.Zero(t, d)
	require.Equal(t, "флуд", reason)

	_, _, _, err = admin.ParseBlockInput("@bob -1")
	require.ErrorIs(t, err, common.ErrValidation)

	user, grant, err := admin.ParseScorerInput(" +@bob ")
	require.NoError(t, err)
	require.True(t, grant)
	require.Equal(t, "@bob", user)

	_, grant, err = admin.ParseScorerInput("-@bob")
	require.NoError(t, err)
	require.False(t, grant)

	_, _, err = admin.ParseScorerInput("@bob")
	require.ErrorIs(t, err, common.ErrValidation)

	word, add, err := admin.ParseWordInput("+ставки")
	require.NoError(t, err)
	require.True(t, add)
	require.Equal(t, "ставки", word)

	_, add, err = admin.ParseWordInput(" -ставки")
	require.NoError(t, err)
	require.False(t, add)

	_, _, err = admin.ParseWordInput("+")
	require.ErrorIs(t, err, common.ErrWordInvalid)
	_, _, err = admin.ParseWordInput("ставки")
	require.ErrorIs(t, err, common.ErrValidation)
}
