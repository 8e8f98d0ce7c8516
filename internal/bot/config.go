package bot

import (
	"os"
	"strconv"
)

// BotConfig represents the configuration for the bot.
type BotConfig struct {
	// Directory with the content banks and the sqlite database
	DataDir string
	// Long polling timeout in seconds
	UpdateTimeout int
	// Default hour of day for the daily phrase of new users
	DefaultPhraseHour int
}

// DefaultConfig returns the configuration with environment overrides applied.
func DefaultConfig() *BotConfig {
	cfg := &BotConfig{
		DataDir:           "data",
		UpdateTimeout:     60,
		DefaultPhraseHour: 9,
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if hourStr := os.Getenv("PHRASE_HOUR"); hourStr != "" {
		if h, err := strconv.Atoi(hourStr); err == nil && h >= 0 && h <= 23 {
			cfg.DefaultPhraseHour = h
		}
	}

	return cfg
}
