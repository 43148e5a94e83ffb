package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "DB_PATH", "PORT", "MAX_UPLOAD_MB", "PIXEL_EXTRACTION_MB", "ANALYSIS_WORKERS", "SESSION_TTL", "KAFKA_BROKERS", "KAFKA_TOPIC", "PRICES_FILE", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())

	cfg := Load()

	if cfg.DBPath != "./dtf.db" || cfg.Port != "8080" || !cfg.IsDev() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxUploadBytes != 50<<20 || cfg.PixelLimitBytes != 5<<20 {
		t.Fatalf("unexpected limits: %d %d", cfg.MaxUploadBytes, cfg.PixelLimitBytes)
	}
	if cfg.AnalysisWorkers != 4 || cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("unexpected workers/ttl: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.KafkaTopic != "dtf-orders" {
		t.Fatalf("unexpected kafka settings: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "text" {
		t.Fatalf("unexpected log settings: %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_UPLOAD_MB", "10")
	t.Setenv("ANALYSIS_WORKERS", "oops")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Chdir(t.TempDir())

	cfg := Load()

	if cfg.IsDev() || cfg.Port != "9090" || cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.AnalysisWorkers != 4 {
		t.Fatalf("malformed worker count should fall back, got %d", cfg.AnalysisWorkers)
	}
	if cfg.SessionTTL != 45*time.Minute {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log settings: %+v", cfg)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: slog.LevelWarn, LogFormat: "json"}

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output: %q", out)
	}
}
