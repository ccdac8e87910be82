package bot

import (
	"fmt"
	"strings"
	"unicode"

	"serotonyl.ru/points-bot/internal/common"
	"serotonyl.ru/points-bot/internal/config"
)

// CommandParser парсит русские команды с префиксами ! . и /
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// "/start@points_bot" даёт команду "start".
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}

// CommandTail возвращает текст после команды с сохранением переносов строк.
// "!поддержка  привет\nмир" даёт "привет\nмир".
func CommandTail(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

const helpText = `👋 Я считаю баллы сообщества.

!баллы — баланс и уровень
!история [страница] — история начислений
!топ — рейтинг
!какзаработать — как получить баллы
!рекомендую <ссылка> <монеты> — предложить промо-ссылку
!рекомендации — открытые рекомендации
!штрафы — ваши страйки
!поддержка [текст] — написать администраторам (в личке)
!начислить @username N [причина] — для оценщиков`

// HowToEarn — текст для !какзаработать.
func HowToEarn(cfg *config.Config) string {
	var sb strings.Builder
	sb.WriteString("💡 Как заработать баллы:\n\n")
	if cfg.FeatureDailyBonusEnabled {
		sb.WriteString(fmt.Sprintf("• Пишите в чате: %s в день\n", common.FormatPoints(cfg.PointsDailyBonus)))
	}
	if cfg.FeatureRecommendationsEnabled {
		sb.WriteString(fmt.Sprintf("• Рекомендуйте промо-ссылки (от %d монет): если сообщество одобрит, получите монеты × %s\n",
			cfg.RecommendMinCoins, cfg.RewardMultiplier.String()))
		sb.WriteString(fmt.Sprintf("• Голосовать можно с %s. За голос против решения большинства — страйк, %d %s = блокировка голосования\n",
			common.FormatPoints(cfg.VoteMinPoints), cfg.PenaltyStrikeCeiling, common.PluralizeStrikes(cfg.PenaltyStrikeCeiling)))
	}
	sb.WriteString("• Оценщики могут начислить баллы за вклад в сообщество\n")

	if len(cfg.PointsThresholds) > 0 {
		sb.WriteString("\n🎁 Награды:\n")
		for _, t := range cfg.PointsThresholds {
			sb.WriteString(fmt.Sprintf("• %s — %s\n", common.FormatPoints(t.Value), t.Label))
		}
	}
	return sb.String()
}
