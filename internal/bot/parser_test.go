package bot

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/config"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cases := []struct {
		text    string
		command string
		args    []string
		ok      bool
	}{
		{text: "!баллы", command: "баллы", ok: true},
		{text: ".ТОП", command: "топ", ok: true},
		{text: "/start@points_bot", command: "start", ok: true},
		{text: "  !рекомендую br.shp.ee/abc 5 ", command: "рекомендую", args: []string{"br.shp.ee/abc", "5"}, ok: true},
		{text: "!история 2", command: "история", args: []string{"2"}, ok: true},
		{text: "привет всем"},
		{text: "!"},
		{text: ""},
	}
	for _, tc := range cases {
		command, args, ok := p.ParseCommand(tc.text)
		require.Equal(t, tc.ok, ok, tc.text)
		require.Equal(t, tc.command, command, tc.text)
		require.Equal(t, tc.args, args, tc.text)
	}
}

func TestHowToEarn(t *testing.T) {
	cfg := &config.Config{
		FeatureDailyBonusEnabled:      true,
		FeatureRecommendationsEnabled: true,
		PointsDailyBonus:              1,
		RecommendMinCoins:             5,
		RewardMultiplier:              decimal.NewFromInt(10),
		VoteMinPoints:                 10,
		PenaltyStrikeCeiling:          3,
		PointsThresholds:              []config.Threshold{{Value: 500, Label: "Оценщик"}},
	}
	text := HowToEarn(cfg)
	require.Contains(t, text, "от 5 монет")
	require.Contains(t, text, "монеты × 10")
	require.Contains(t, text, "Оценщик")

	cfg.FeatureRecommendationsEnabled = false
	require.NotContains(t, HowToEarn(cfg), "промо-ссылки")
}

func TestCommandTail(t *testing.T) {
	require.Equal(t, "привет\nмир", CommandTail("!поддержка  привет\nмир "))
	require.Equal(t, "", CommandTail("!поддержка"))
	require.Equal(t, "", CommandTail("  /support   "))
}
