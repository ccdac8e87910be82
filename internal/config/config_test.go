package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseThresholdsSorted(t *testing.T) {
	got, err := ParseThresholds("2000:Приз 2, 500:Оценщик ,1000:Приз 1")
	require.NoError(t, err)
	require.Equal(t, []Threshold{
		{Value: 500, Label: "Оценщик"},
		{Value: 1000, Label: "Приз 1"},
		{Value: 2000, Label: "Приз 2"},
	}, got)
}

func TestParseThresholdsRejectsGarbage(t *testing.T) {
	_, err := ParseThresholds("500")
	require.Error(t, err)
	_, err = ParseThresholds("abc:x")
	require.Error(t, err)
	_, err = ParseThresholds("500:a,500:b")
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("COMMUNITY_CHAT_ID", "-100500")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("ADMIN_PASSWORD_HASH", "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA")
	t.Setenv("ADMIN_IDS", "1, 2")
	t.Setenv("REWARD_MULTIPLIER", "1.5")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, cfg.AdminIDs)
	require.True(t, cfg.IsAdminID(2))
	require.False(t, cfg.IsAdminID(3))
	require.Equal(t, "1.5", cfg.RewardMultiplier.String())
	require.Len(t, cfg.PointsThresholds, 3)
	require.Equal(t, 3, cfg.VoteQuorum)
	require.Equal(t, "minority", cfg.VotePenaltyPolicy)
}

func TestValidateRejectsBadVoting(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("COMMUNITY_CHAT_ID", "-100500")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("ADMIN_PASSWORD_HASH", "x")
	t.Setenv("VOTE_QUORUM", "11")

	_, err := Load()
	require.Error(t, err)
}
