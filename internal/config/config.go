// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// перед этим подхватывается .env (godotenv), если он есть.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Threshold — порог баллов и название награды за него.
type Threshold struct {
	Value int64
	Label string
}

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS"`
	AdminIDs         []int64 `ignored:"true"` // заполним вручную
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// ID чата сообщества (единственный разрешённый групповой чат)
	CommunityChatID int64 `envconfig:"COMMUNITY_CHAT_ID" required:"true"`

	// --- Database ---
	// Дефолт "postgres" — имя сервиса в docker-compose, для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"points_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	// Все «сегодня» (ежедневный бонус, cron) считаются в этом поясе
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"America/Sao_Paulo"`
	// Сколько раз повторять операцию при сбое БД
	RetryMaxTries uint `envconfig:"RETRY_MAX_TRIES" default:"3"`

	// --- HTTP ---
	// Пустой адрес выключает HTTP API
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Points ---
	PointsThresholdsRaw   string      `envconfig:"POINTS_THRESHOLDS" default:"500:Оценщик,1000:Приз 1 уровня,2000:Приз 2 уровня"`
	PointsThresholds      []Threshold `ignored:"true"`
	PointsScorerThreshold int64       `envconfig:"POINTS_SCORER_THRESHOLD" default:"500"`
	PointsScorerMaxAward  int64       `envconfig:"POINTS_SCORER_MAX_AWARD" default:"100"`
	PointsHistoryPageSize int         `envconfig:"POINTS_HISTORY_PAGE_SIZE" default:"10"`
	PointsDailyBonus      int64       `envconfig:"DAILY_BONUS" default:"1"`
	AuditSchedule         string      `envconfig:"AUDIT_SCHEDULE" default:"30 4 * * *"`

	// --- Recommendations & voting ---
	RecommendMinCoins   int64           `envconfig:"RECOMMEND_MIN_COINS" default:"5"`
	VoteMinPoints       int64           `envconfig:"VOTE_MIN_POINTS" default:"10"`
	VoteQuorum          int             `envconfig:"VOTE_QUORUM" default:"3"`
	VoteCap             int             `envconfig:"VOTE_CAP" default:"10"`
	VotePenaltyPolicy   string          `envconfig:"VOTE_PENALTY_POLICY" default:"minority"`
	RewardMultiplierRaw string          `envconfig:"REWARD_MULTIPLIER" default:"10"`
	RewardMultiplier    decimal.Decimal `ignored:"true"`
	RevealDelay         time.Duration   `envconfig:"REVEAL_DELAY" default:"6m"`
	SettleSweepSchedule string          `envconfig:"SETTLE_SWEEP_SCHEDULE" default:"*/5 * * * *"`

	// --- Penalties ---
	PenaltyStrikeCeiling int           `envconfig:"PENALTY_STRIKE_CEILING" default:"3"`
	PenaltyBlockDuration time.Duration `envconfig:"PENALTY_BLOCK_DURATION" default:"72h"`

	// --- Notifications ---
	NotifyBuffer    int     `envconfig:"NOTIFY_BUFFER" default:"256"`
	NotifyPerSecond float64 `envconfig:"NOTIFY_PER_SECOND" default:"20"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureDailyBonusEnabled      bool `envconfig:"FEATURE_DAILY_BONUS_ENABLED" default:"true"`
	FeatureRecommendationsEnabled bool `envconfig:"FEATURE_RECOMMENDATIONS_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdminID — указан ли пользователь в ADMIN_IDS.
func (c *Config) IsAdminID(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.CommunityChatID == 0 {
		return fmt.Errorf("COMMUNITY_CHAT_ID не задан или равен 0")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.VoteQuorum <= 0 || c.VoteCap < c.VoteQuorum {
		return fmt.Errorf("VOTE_QUORUM должен быть > 0 и не больше VOTE_CAP")
	}
	if c.VotePenaltyPolicy != "minority" && c.VotePenaltyPolicy != "deciding_voter" {
		return fmt.Errorf("VOTE_PENALTY_POLICY: ожидается minority или deciding_voter, получено %q", c.VotePenaltyPolicy)
	}
	if c.RecommendMinCoins <= 0 {
		return fmt.Errorf("RECOMMEND_MIN_COINS должен быть > 0")
	}
	if !c.RewardMultiplier.IsPositive() {
		return fmt.Errorf("REWARD_MULTIPLIER должен быть > 0")
	}
	if c.PenaltyStrikeCeiling <= 0 || c.PenaltyBlockDuration <= 0 {
		return fmt.Errorf("некорректные PENALTY_STRIKE_CEILING/PENALTY_BLOCK_DURATION")
	}
	if c.PointsDailyBonus <= 0 {
		return fmt.Errorf("DAILY_BONUS должен быть > 0")
	}
	if c.PointsHistoryPageSize <= 0 {
		return fmt.Errorf("POINTS_HISTORY_PAGE_SIZE должен быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не удалось прочитать .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.parseDerived(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseDerived заполняет поля, которые envconfig не умеет разбирать сам.
func (c *Config) parseDerived() error {
	ids, err := parseInt64CSV(c.AdminIDsRaw)
	if err != nil {
		return fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	c.AdminIDs = ids

	thresholds, err := ParseThresholds(c.PointsThresholdsRaw)
	if err != nil {
		return fmt.Errorf("POINTS_THRESHOLDS parse: %w", err)
	}
	c.PointsThresholds = thresholds

	mult, err := decimal.NewFromString(strings.TrimSpace(c.RewardMultiplierRaw))
	if err != nil {
		return fmt.Errorf("REWARD_MULTIPLIER parse: %w", err)
	}
	c.RewardMultiplier = mult
	return nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseThresholds разбирает строку вида "500:Оценщик,1000:Приз".
// Результат отсортирован по возрастанию, повторяющиеся значения запрещены.
func ParseThresholds(s string) ([]Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []Threshold
	seen := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		valueRaw, label, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("ожидается value:label, получено %q", part)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(valueRaw), 10, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("bad threshold %q", valueRaw)
		}
		if seen[v] {
			return nil, fmt.Errorf("порог %d указан дважды", v)
		}
		seen[v] = true
		out = append(out, Threshold{Value: v, Label: strings.TrimSpace(label)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}
