// internal/config/environment.go
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath          string
	SourcesPath     string
	SubscribersPath string
	TelegramToken   string
	SlotSpec        string

	ItemsPerCategory   int
	MaxPerSource       int
	RecencyWindowHours int
	SourceTimeoutSecs  int
	CycleTimeoutSecs   int
	TickSeconds        int
	MarketEnabled      bool
}

func GetConfig() Config {
	// Missing .env is fine; environment variables may be set directly.
	_ = godotenv.Load()

	config := Config{
		DBPath:             "data/newsdigest.db",
		SourcesPath:        "",
		SubscribersPath:    "data/subscribers.json",
		SlotSpec:           "08:00,13:00,19:00,23:00",
		ItemsPerCategory:   5,
		MaxPerSource:       3,
		RecencyWindowHours: 48,
		SourceTimeoutSecs:  15,
		CycleTimeoutSecs:   120,
		TickSeconds:        60,
		MarketEnabled:      true,
	}

	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if v := os.Getenv("NEWSDIGEST_DB_PATH"); v != "" {
		config.DBPath = v
	}
	if v := os.Getenv("NEWSDIGEST_SOURCES_PATH"); v != "" {
		config.SourcesPath = v
	}
	if v := os.Getenv("NEWSDIGEST_SUBSCRIBERS_PATH"); v != "" {
		config.SubscribersPath = v
	}
	if v := os.Getenv("NEWSDIGEST_SLOTS"); v != "" {
		config.SlotSpec = v
	}
	if n, ok := envInt("NEWSDIGEST_ITEMS_PER_CATEGORY"); ok && n > 0 {
		config.ItemsPerCategory = n
	}
	if n, ok := envInt("NEWSDIGEST_MAX_PER_SOURCE"); ok && n > 0 {
		config.MaxPerSource = n
	}
	if n, ok := envInt("NEWSDIGEST_RECENCY_WINDOW_HOURS"); ok && n > 0 {
		config.RecencyWindowHours = n
	}
	if n, ok := envInt("NEWSDIGEST_SOURCE_TIMEOUT_SECS"); ok && n > 0 {
		config.SourceTimeoutSecs = n
	}
	if n, ok := envInt("NEWSDIGEST_CYCLE_TIMEOUT_SECS"); ok && n > 0 {
		config.CycleTimeoutSecs = n
	}
	if n, ok := envInt("NEWSDIGEST_TICK_SECONDS"); ok && n > 0 {
		config.TickSeconds = n
	}
	if v := os.Getenv("NEWSDIGEST_MARKET_ENABLED"); v != "" {
		config.MarketEnabled = v == "true" || v == "1"
	}

	return config
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
