// Package config loads signal-service configuration from environment
// variables, following the teacher's mustEnv/getEnv pattern.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Universe
	Symbols []string

	// Ingestion cadence
	PollSeconds          int
	DataSourcePreferred  string // "ws" or "rest"
	StaleSeconds         int
	KlineStaleMs         int64
	KlineLimit           int
	WSBackoffMinMs       int
	WSBackoffMaxMs       int
	WSRecoverGoodTicks   int
	RESTKlinePollSeconds int
	RESTFundingPollSeconds int
	RESTOIPollSeconds   int
	StateSyncKlines     int

	// Strategy thresholds
	ReturnThreshold     float64
	ATRSpikeMultiplier  float64
	FundingExtreme      float64
	OIZScoreThreshold   float64
	OIDeltaPctThreshold float64
	SweepPct            float64
	WickBodyRatio       float64
	StopBufferATR       float64
	MinATRPct           float64

	// Arbitrator
	DedupeWindowSeconds int
	EntrySimilarPct     float64
	StopSimilarPct      float64
	PriorityByStrategy  map[string]int

	// Risk
	MaxRiskUSDT                  float64
	LeverageSuggest              int
	TTLMinutes                   int
	MaxDailyLossUSDT             float64
	MaxCardsPerDay               int
	CooldownAfterTriggerMinutes  int
	KillSwitch                   bool
	RiskStatePath                string
	PnLCSVPath                   string

	// Clock sanity
	ClockSkewDegradedMs int64

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Notification
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols: splitCSV(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),

		PollSeconds:            getEnvInt("POLL_SECONDS", 5),
		DataSourcePreferred:    getEnv("DATA_SOURCE_PREFERRED", "ws"),
		StaleSeconds:           getEnvInt("STALE_SECONDS", 30),
		KlineStaleMs:           getEnvInt64("KLINE_STALE_MS", 180_000),
		KlineLimit:             getEnvInt("KLINE_LIMIT", 100),
		WSBackoffMinMs:         getEnvInt("WS_BACKOFF_MIN_MS", 500),
		WSBackoffMaxMs:         getEnvInt("WS_BACKOFF_MAX_MS", 30_000),
		WSRecoverGoodTicks:     getEnvInt("WS_RECOVER_GOOD_TICKS", 20),
		RESTKlinePollSeconds:   getEnvInt("REST_KLINE_POLL_SECONDS", 10),
		RESTFundingPollSeconds: getEnvInt("REST_FUNDING_POLL_SECONDS", 30),
		RESTOIPollSeconds:      getEnvInt("REST_OI_POLL_SECONDS", 30),
		StateSyncKlines:        getEnvInt("STATE_SYNC_KLINES", 20),

		ReturnThreshold:     getEnvFloat("RETURN_THRESHOLD", 0.015),
		ATRSpikeMultiplier:  getEnvFloat("ATR_SPIKE_MULTIPLIER", 2.0),
		FundingExtreme:      getEnvFloat("FUNDING_EXTREME", 0.0015),
		OIZScoreThreshold:   getEnvFloat("OI_ZSCORE", 2.0),
		OIDeltaPctThreshold: getEnvFloat("OI_DELTA_PCT", 0.05),
		SweepPct:            getEnvFloat("SWEEP_PCT", 0.002),
		WickBodyRatio:       getEnvFloat("WICK_BODY_RATIO", 2.0),
		StopBufferATR:       getEnvFloat("STOP_BUFFER_ATR", 0.5),
		MinATRPct:           getEnvFloat("MIN_ATR_PCT", 0.001),

		DedupeWindowSeconds: getEnvInt("DEDUPE_WINDOW_SECONDS", 300),
		EntrySimilarPct:     getEnvFloat("ENTRY_SIMILAR_PCT", 0.003),
		StopSimilarPct:      getEnvFloat("STOP_SIMILAR_PCT", 0.003),
		PriorityByStrategy: map[string]int{
			"fake_breakout_reversal": getEnvInt("PRIORITY_FAKE_BREAKOUT_REVERSAL", 3),
			"funding_oi_skew":        getEnvInt("PRIORITY_FUNDING_OI_SKEW", 2),
			"liquidation_follow":     getEnvInt("PRIORITY_LIQUIDATION_FOLLOW", 4),
			"vol_breakout":           getEnvInt("PRIORITY_VOL_BREAKOUT", 1),
		},

		MaxRiskUSDT:                 getEnvFloat("MAX_RISK_USDT", 50.0),
		LeverageSuggest:             getEnvInt("LEVERAGE_SUGGEST", 5),
		TTLMinutes:                  getEnvInt("TTL_MINUTES", 30),
		MaxDailyLossUSDT:            getEnvFloat("MAX_DAILY_LOSS_USDT", 200.0),
		MaxCardsPerDay:              getEnvInt("MAX_CARDS_PER_DAY", 20),
		CooldownAfterTriggerMinutes: getEnvInt("COOLDOWN_AFTER_TRIGGER_MINUTES", 15),
		KillSwitch:                  getEnvBool("KILL_SWITCH", false),
		RiskStatePath:               getEnv("RISK_STATE_PATH", "data/risk_state.json"),
		PnLCSVPath:                  getEnv("PNL_CSV_PATH", "data/pnl_ledger.csv"),

		ClockSkewDegradedMs: getEnvInt64("CLOCK_SKEW_DEGRADED_MS", 5000),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/cards.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid int64 for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}
