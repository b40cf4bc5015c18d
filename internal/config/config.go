// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string  // Base directory for the SQLite databases (always absolute)
	Port            int     // HTTP API port
	LogLevel        string  // debug, info, warn, error
	DevMode         bool    // Pretty console logging, relaxed CORS
	RiskFreeRate    float64 // Annual risk-free rate as a decimal (0.02 = 2%)
	BenchmarkSymbol string  // Default benchmark for relative metrics
	LookbackDays    int     // Calendar days of NAV history per calculation
	BatchWorkers    int     // Concurrent accounts per batch run
	BatchSchedule   string  // Cron expression for the nightly calculation run
	BatchOnStart    bool    // Run a full batch immediately at startup
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("PORTLIGHT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("PORTLIGHT_PORT", 8080),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.0),
		BenchmarkSymbol: getEnv("BENCHMARK_SYMBOL", "SPY"),
		LookbackDays:    getEnvAsInt("LOOKBACK_DAYS", 730),
		BatchWorkers:    getEnvAsInt("BATCH_WORKERS", 4),
		BatchSchedule:   getEnv("BATCH_SCHEDULE", "0 30 2 * * *"), // 02:30 daily
		BatchOnStart:    getEnvAsBool("BATCH_ON_START", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.BatchWorkers < 1 {
		return fmt.Errorf("batch workers must be at least 1, got %d", c.BatchWorkers)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("lookback days must be at least 1, got %d", c.LookbackDays)
	}
	if c.RiskFreeRate < -1 || c.RiskFreeRate > 1 {
		return fmt.Errorf("risk-free rate %.4f is outside [-1, 1]", c.RiskFreeRate)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
