package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the proctoring engine and its
// companion surfaces.
type Config struct {
	Scoring ScoringConfig
	Proctor ProctorConfig
	Monitor MonitorConfig
	Redis   RedisConfig
	History HistoryConfig
	Speech  SpeechConfig
}

// ScoringConfig points at the external scoring/question service.
type ScoringConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ProctorConfig carries every timing knob of the question cycle and the
// gaze policy. All windows are durations so tests can compress time.
type ProctorConfig struct {
	PrepWindow      time.Duration // question spoken, candidate prepares
	RecordWindow    time.Duration // mic capture window per question
	IntroDelay      time.Duration // scripted introduction before question 1
	AwayThreshold   time.Duration // continuous inattention before a warning
	SignalStale     time.Duration // gaze signal older than this counts as away
	WarningCooldown time.Duration // minimum spacing between warnings
	MaxWarnings     int           // warnings before lockout

	// Tick intervals for the overall countdown and the violation monitor.
	// One second in production; tests compress them with the windows.
	CountdownInterval time.Duration
	ViolationInterval time.Duration
}

// MonitorConfig holds the invigilator monitor server configuration.
type MonitorConfig struct {
	Enabled   bool
	Host      string
	Port      int
	JWTSecret string // empty disables auth
}

// RedisConfig holds the optional live event feed configuration.
type RedisConfig struct {
	Addr string // empty disables the Redis sink
}

// HistoryConfig holds the local attempt-history store configuration.
type HistoryConfig struct {
	Path string // SQLite file path; empty disables history
}

// SpeechConfig selects the question read-aloud synthesizer.
type SpeechConfig struct {
	Provider string // "none" | "google"
	Language string
	Voice    string
}

// Load reads configuration from environment variables with defaults
// matching the production proctoring policy.
func Load() (*Config, error) {
	cfg := &Config{
		Scoring: ScoringConfig{
			BaseURL: getEnv("SCORING_BASE_URL", "http://localhost:9090"),
			Timeout: getEnvAsDuration("SCORING_TIMEOUT", 30*time.Second),
		},
		Proctor: ProctorConfig{
			PrepWindow:      getEnvAsDuration("PROCTOR_PREP_WINDOW", 10*time.Second),
			RecordWindow:    getEnvAsDuration("PROCTOR_RECORD_WINDOW", 60*time.Second),
			IntroDelay:      getEnvAsDuration("PROCTOR_INTRO_DELAY", 3*time.Second),
			AwayThreshold:   getEnvAsDuration("PROCTOR_AWAY_THRESHOLD", 2500*time.Millisecond),
			SignalStale:     getEnvAsDuration("PROCTOR_SIGNAL_STALE", 2500*time.Millisecond),
			WarningCooldown: getEnvAsDuration("PROCTOR_WARNING_COOLDOWN", 4*time.Second),
			MaxWarnings:     getEnvAsInt("PROCTOR_MAX_WARNINGS", 5),

			CountdownInterval: getEnvAsDuration("PROCTOR_COUNTDOWN_INTERVAL", time.Second),
			ViolationInterval: getEnvAsDuration("PROCTOR_VIOLATION_INTERVAL", time.Second),
		},
		Monitor: MonitorConfig{
			Enabled:   getEnvAsBool("MONITOR_ENABLED", true),
			Host:      getEnv("MONITOR_HOST", "127.0.0.1"),
			Port:      getEnvAsInt("MONITOR_PORT", 8085),
			JWTSecret: getEnv("PROCTOR_JWT_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		History: HistoryConfig{
			Path: getEnv("HISTORY_DB_PATH", "proctor_history.db"),
		},
		Speech: SpeechConfig{
			Provider: getEnv("SPEECH_PROVIDER", "none"),
			Language: getEnv("SPEECH_LANGUAGE", "en-US"),
			Voice:    getEnv("SPEECH_VOICE", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
