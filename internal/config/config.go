// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string        // Base directory for portfolio file, cache database and audit log
	Port             int           // HTTP API port
	LogLevel         string        // debug, info, warn, error
	DevMode          bool          // Pretty logging, permissive CORS
	PriceCacheTTL    time.Duration // Freshness window for cached current prices
	PrevCloseTTL     time.Duration // Freshness window for cached previous closes (longer - rarely changes intraday)
	FetchWorkers     int           // Fixed size of the price fetch worker pool
	FetchBatchWait   time.Duration // Upper bound on a single batch fetch call
	FetchThrottle    time.Duration // Minimum gap between two provider calls for the same ticker
	RefreshSchedule  string        // Cron spec for the background price refresh job
	PruneOnZero      bool          // Delete positions immediately when quantity reaches zero
	PortfolioFile    string        // JSON portfolio store (derived from DataDir)
	BackupFile       string        // Emergency backup target (derived from DataDir)
	AuditLogFile     string        // Append-only change audit log (derived from DataDir)
	CacheDBPath      string        // SQLite price snapshot database (derived from DataDir)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory:
	// 1. Check FOLIO_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path and ensure it exists
	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("FOLIO_PORT", 8010),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		PriceCacheTTL:   time.Duration(getEnvAsInt("PRICE_CACHE_TTL_MINUTES", 15)) * time.Minute,
		PrevCloseTTL:    time.Duration(getEnvAsInt("PREV_CLOSE_TTL_MINUTES", 360)) * time.Minute,
		FetchWorkers:    getEnvAsInt("FETCH_WORKERS", 5),
		FetchBatchWait:  time.Duration(getEnvAsInt("FETCH_BATCH_TIMEOUT_SECONDS", 30)) * time.Second,
		FetchThrottle:   time.Duration(getEnvAsInt("FETCH_THROTTLE_SECONDS", 2)) * time.Second,
		RefreshSchedule: getEnv("REFRESH_CRON", "*/15 * * * *"),
		PruneOnZero:     getEnvAsBool("PRUNE_ON_ZERO", false),
		PortfolioFile:   filepath.Join(absDataDir, "portfolios.json"),
		BackupFile:      filepath.Join(absDataDir, "portfolios_backup.json"),
		AuditLogFile:    filepath.Join(absDataDir, "portfolio_audit.log"),
		CacheDBPath:     filepath.Join(absDataDir, "cache.db"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.FetchWorkers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be at least 1, got %d", c.FetchWorkers)
	}
	if c.PriceCacheTTL <= 0 {
		return fmt.Errorf("PRICE_CACHE_TTL_MINUTES must be positive")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("FOLIO_PORT out of range: %d", c.Port)
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
