package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port    string
	LogMode string

	GeminiKey   string
	GeminiModel string

	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string

	GenerationTimeout time.Duration
	AutoAdvanceDelay  time.Duration
	MaxUploadBytes    int64

	// HistoryDatabase is the SQLite path of the upload/review ledger. Empty disables it.
	HistoryDatabase string

	AllowedOrigins []string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		LogMode:         getEnv("LOG_MODE", "development"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint:  getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		HistoryDatabase: os.Getenv("HISTORY_DB_PATH"),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
	}

	var err error
	if cfg.GenerationTimeout, err = getDuration("GENERATION_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AutoAdvanceDelay, err = getDuration("AUTO_ADVANCE_DELAY", 1200*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.MaxUploadBytes, err = getInt64("MAX_UPLOAD_BYTES", 20<<20); err != nil {
		return Config{}, err
	}

	if cfg.HistoryDatabase != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDatabase), 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure history dir %s: %w", cfg.HistoryDatabase, err)
		}
	}

	return cfg, nil
}

// MockMode reports whether no generation credential is configured.
func (c Config) MockMode() bool {
	return c.GeminiKey == "" && c.OpenAIKey == ""
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
