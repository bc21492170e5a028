package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Working hours defaults
	DefaultTimezone  string
	DefaultStartHour int
	DefaultEndHour   int
	DefaultWorkDays  []time.Weekday

	// Query
	LookaheadDays int
	MaxRangeDays  int

	// Provider
	ProviderTimeout       time.Duration
	ProviderMaxConcurrent int
	ProviderRatePerSec    float64
	ProviderBurst         int
	FreeBusyEndpoint      string
	ICSFetchMaxSize       int64

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、またはデフォルト稼働時間が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DefaultTimezone = getEnvString("DEFAULT_TIMEZONE", "Asia/Tokyo")
	cfg.DefaultStartHour = getEnvInt("DEFAULT_START_HOUR", 9)
	cfg.DefaultEndHour = getEnvInt("DEFAULT_END_HOUR", 18)
	cfg.DefaultWorkDays = getEnvWeekdays("DEFAULT_WORK_DAYS", []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	})
	cfg.LookaheadDays = getEnvInt("LOOKAHEAD_DAYS", 14)
	cfg.MaxRangeDays = getEnvInt("MAX_RANGE_DAYS", 62)
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.ProviderMaxConcurrent = getEnvInt("PROVIDER_MAX_CONCURRENT", 8)
	cfg.ProviderRatePerSec = getEnvFloat("PROVIDER_RATE_PER_SEC", 5)
	cfg.ProviderBurst = getEnvInt("PROVIDER_BURST", 10)
	cfg.FreeBusyEndpoint = getEnvString("FREEBUSY_ENDPOINT", "https://www.googleapis.com/calendar/v3/freeBusy")
	cfg.ICSFetchMaxSize = getEnvInt64("ICS_FETCH_MAX_SIZE", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validateWorkingHours(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validateWorkingHours() error {
	if c.DefaultStartHour < 0 || c.DefaultStartHour > 23 || c.DefaultEndHour < 0 || c.DefaultEndHour > 23 {
		return fmt.Errorf("default working hours must be within 0-23: start=%d end=%d", c.DefaultStartHour, c.DefaultEndHour)
	}
	if c.DefaultStartHour >= c.DefaultEndHour {
		return fmt.Errorf("DEFAULT_START_HOUR must be less than DEFAULT_END_HOUR: start=%d end=%d", c.DefaultStartHour, c.DefaultEndHour)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvWeekdays は "1,2,3" 形式の曜日リストを読み込む。
// 0-6以外のトークンは読み飛ばし、有効な曜日が1つもなければデフォルトを返す。
func getEnvWeekdays(key string, defaultVal []time.Weekday) []time.Weekday {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var days []time.Weekday
	seen := make(map[int]bool)
	for _, tok := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || i < 0 || i > 6 || seen[i] {
			continue
		}
		seen[i] = true
		days = append(days, time.Weekday(i))
	}
	if len(days) == 0 {
		return defaultVal
	}
	return days
}
