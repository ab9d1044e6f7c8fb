package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string

	// Artifact locations: a filesystem path or s3://bucket/key.
	ModelPath        string
	PreprocessorPath string

	// AWSRegion is only used when an artifact lives on S3.
	AWSRegion          string
	ArtifactMaxRetries int

	CORSAllowOrigins string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	LogLevel slog.Level

	// LegacyErrorStatus reports every failure, including bad input, as 500.
	LegacyErrorStatus bool
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "5000")
	cfg.ModelPath = getenvDefault("MODEL_PATH", "model.json")
	cfg.PreprocessorPath = getenvDefault("PREPROCESSOR_PATH", "preprocessor.json")
	cfg.AWSRegion = os.Getenv("AWS_REGION")
	cfg.ArtifactMaxRetries = getenvInt("ARTIFACT_MAX_RETRIES", 3)
	cfg.CORSAllowOrigins = getenvDefault("CORS_ALLOW_ORIGINS", "*")

	var err error
	if cfg.ReadTimeout, err = getenvDuration("READ_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getenvDuration("WRITE_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	legacy := getenvDefault("LEGACY_ERROR_STATUS", "false")
	if cfg.LegacyErrorStatus, err = strconv.ParseBool(legacy); err != nil {
		return nil, fmt.Errorf("invalid LEGACY_ERROR_STATUS: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
