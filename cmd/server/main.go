// Package main is the entry point for the intake tracker server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (from env vars and an optional .env file)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/intake-tracker/internal/inference"
	"github.com/sakif/intake-tracker/internal/server"
)

func main() {
	// === 1. LOAD .env ===
	// Values already in the environment win; a missing .env file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error
	level, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// === 3. READ CONFIGURATION ===
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. DATABASE DIRECTORY ===
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if cfg.StoreDriver == server.DriverSQLite {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if cfg.Inference.Token == "" {
		logger.Warn("INFERENCE_TOKEN not set, inference requests are sent without credentials")
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig reads every setting from the environment. Required values:
// API_SECRET, RELAY_SIGNING_KEY, INFERENCE_URL.
func loadConfig() (server.Config, error) {
	cfg := server.Config{
		StoreDriver:      getenv("STORE_DRIVER", server.DriverSQLite),
		DBPath:           getenv("DB_PATH", "data/intake.db"),
		RedisURL:         getenv("REDIS_URL", "redis://localhost:6379/0"),
		APISecret:        os.Getenv("API_SECRET"),
		RelaySigningKey:  os.Getenv("RELAY_SIGNING_KEY"),
		SystemPromptFile: os.Getenv("SYSTEM_PROMPT_FILE"),
		Inference: inference.HTTPConfig{
			BaseURL: os.Getenv("INFERENCE_URL"),
			Model:   os.Getenv("INFERENCE_MODEL"),
			Token:   os.Getenv("INFERENCE_TOKEN"),
		},
	}

	var err error
	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		return cfg, err
	}
	if cfg.IntakeRatePerMinute, err = intEnv("INTAKE_RATE_PER_MINUTE", 10); err != nil {
		return cfg, err
	}
	if cfg.AuthFailuresPerMinute, err = intEnv("AUTH_FAILURES_PER_MINUTE", server.DefaultAuthFailuresPerMinute); err != nil {
		return cfg, err
	}
	if cfg.Inference.Stream, err = boolEnv("INFERENCE_STREAM", false); err != nil {
		return cfg, err
	}
	if cfg.SerializeUserWrites, err = boolEnv("SERIALIZE_USER_WRITES", false); err != nil {
		return cfg, err
	}
	if cfg.Inference.Timeout, err = durationEnv("INFERENCE_TIMEOUT", 60*time.Second); err != nil {
		return cfg, err
	}
	if cfg.TargetZone, err = parseOffset(getenv("TARGET_TZ_OFFSET", "+00:00")); err != nil {
		return cfg, err
	}
	if origins := os.Getenv("RELAY_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.RelayAllowedOrigins = append(cfg.RelayAllowedOrigins, o)
			}
		}
	}

	if cfg.APISecret == "" {
		return cfg, errors.New("API_SECRET is required")
	}
	if cfg.RelaySigningKey == "" {
		return cfg, errors.New("RELAY_SIGNING_KEY is required (e.g. $(openssl rand -hex 32))")
	}
	if cfg.Inference.BaseURL == "" {
		return cfg, errors.New("INFERENCE_URL is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v) // Atoi = ASCII to Integer
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", key, v)
	}
	return b, nil
}

// durationEnv accepts Go durations ("90s", "2m") or a bare number of seconds.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

// parseOffset turns "+05:30", "-08:00" or "Z" into a fixed zone.
func parseOffset(s string) (*time.Location, error) {
	if s == "Z" || s == "UTC" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", s)
	if err != nil {
		return nil, fmt.Errorf("TARGET_TZ_OFFSET must look like +05:30, got %q", s)
	}
	_, offset := t.Zone()
	if offset == 0 {
		return time.UTC, nil
	}
	return time.FixedZone(s, offset), nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}
