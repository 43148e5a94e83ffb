package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDBPath          = "./dtf.db"
	defaultPort            = "8080"
	defaultEnv             = "development"
	defaultMaxUploadMB     = 50
	defaultPixelMB         = 5
	defaultAnalysisWorkers = 4
	defaultSessionTTL      = 30 * time.Minute
	defaultKafkaTopic      = "dtf-orders"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env             string
	DBPath          string
	Port            string
	MaxUploadBytes  int64
	PixelLimitBytes int64
	AnalysisWorkers int
	SessionTTL      time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	PricesFile      string
	LogLevel        slog.Level
	LogFormat       string
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	return c.Env == defaultEnv || c.Env == "dev"
}

// Load reads environment variables and returns a populated Config. Malformed
// numeric values fall back to their defaults with a warning.
func Load() Config {
	if err := loadDotEnv(".env"); err != nil {
		slog.Warn("Ignoring unreadable .env file.", "err", err)
	}

	cfg := Config{
		Env:             envOr("APP_ENV", defaultEnv),
		DBPath:          envOr("DB_PATH", defaultDBPath),
		Port:            envOr("PORT", defaultPort),
		MaxUploadBytes:  int64(envInt("MAX_UPLOAD_MB", defaultMaxUploadMB)) << 20,
		PixelLimitBytes: int64(envInt("PIXEL_EXTRACTION_MB", defaultPixelMB)) << 20,
		AnalysisWorkers: envInt("ANALYSIS_WORKERS", defaultAnalysisWorkers),
		SessionTTL:      envDuration("SESSION_TTL", defaultSessionTTL),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      envOr("KAFKA_TOPIC", defaultKafkaTopic),
		PricesFile:      os.Getenv("PRICES_FILE"),
		LogLevel:        parseLevel(os.Getenv("LOG_LEVEL")),
		LogFormat:       strings.ToLower(envOr("LOG_FORMAT", "text")),
	}

	if len(cfg.KafkaBrokers) == 0 {
		slog.Warn("KAFKA_BROKERS is not set, orders will only be logged")
	}

	return cfg
}

// NewLogger builds the process logger described by the config.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn(fmt.Sprintf("%s is not a positive integer, using default", key), "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		slog.Warn(fmt.Sprintf("%s is not a valid duration, using default", key), "value", raw, "default", fallback)
		return fallback
	}
	return v
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

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
