// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/portfolio-engine/internal/archive"
	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the engine databases, always absolute
	LogLevel string
	DBDriver string
	Port     int
	DevMode  bool

	SolverTimeout        time.Duration
	SolverMaxIterations  int
	MaterialityThreshold float64
	TransactionCostRate  float64
	RiskFreeRate         float64
	BenchmarkReturn      float64

	CacheTTL             time.Duration
	CacheCleanupSchedule string

	Archive ArchiveConfig
}

// ArchiveConfig holds the optional report archive settings.
type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Load reads configuration from environment variables, after loading a .env
// file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("ENGINE_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	defaults := optimization.DefaultConfig()
	riskDefaults := risk.DefaultOptions()

	cfg := &Config{
		DataDir:  dataDir,
		Port:     getEnvAsInt("ENGINE_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DBDriver: getEnv("ENGINE_DB_DRIVER", database.DriverModernc),

		SolverTimeout:        getEnvAsDuration("ENGINE_SOLVER_TIMEOUT", defaults.Timeout),
		SolverMaxIterations:  getEnvAsInt("ENGINE_SOLVER_MAX_ITERATIONS", defaults.MaxIterations),
		MaterialityThreshold: getEnvAsFloat("ENGINE_MATERIALITY_THRESHOLD", defaults.MaterialityThreshold),
		TransactionCostRate:  getEnvAsFloat("ENGINE_TRANSACTION_COST_RATE", defaults.TransactionCostRate),
		RiskFreeRate:         getEnvAsFloat("ENGINE_RISK_FREE_RATE", defaults.RiskFreeRate),
		BenchmarkReturn:      getEnvAsFloat("ENGINE_BENCHMARK_RETURN", riskDefaults.BenchmarkReturn),

		CacheTTL:             getEnvAsDuration("ENGINE_CACHE_TTL", 15*time.Minute),
		CacheCleanupSchedule: getEnv("ENGINE_CACHE_CLEANUP_SCHEDULE", "0 */10 * * * *"),

		Archive: ArchiveConfig{
			Enabled:         getEnvAsBool("ARCHIVE_ENABLED", false),
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("ARCHIVE_PREFIX", "reports"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("ENGINE_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DBDriver != database.DriverModernc && c.DBDriver != database.DriverMattn {
		errs = append(errs, fmt.Errorf("ENGINE_DB_DRIVER must be %q or %q, got %q", database.DriverModernc, database.DriverMattn, c.DBDriver))
	}
	if c.SolverTimeout <= 0 {
		errs = append(errs, errors.New("ENGINE_SOLVER_TIMEOUT must be positive"))
	}
	if c.SolverMaxIterations < 1 {
		errs = append(errs, errors.New("ENGINE_SOLVER_MAX_ITERATIONS must be at least 1"))
	}
	if c.MaterialityThreshold < 0 || c.MaterialityThreshold >= 1 {
		errs = append(errs, errors.New("ENGINE_MATERIALITY_THRESHOLD must be in [0, 1)"))
	}
	if c.TransactionCostRate < 0 || c.TransactionCostRate >= 1 {
		errs = append(errs, errors.New("ENGINE_TRANSACTION_COST_RATE must be in [0, 1)"))
	}
	if c.RiskFreeRate < -1 || c.RiskFreeRate > 1 {
		errs = append(errs, errors.New("ENGINE_RISK_FREE_RATE must be in [-1, 1]"))
	}
	if c.BenchmarkReturn < -1 || c.BenchmarkReturn > 10 {
		errs = append(errs, errors.New("ENGINE_BENCHMARK_RETURN must be in [-1, 10]"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("ENGINE_CACHE_TTL must not be negative"))
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.CacheCleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("ENGINE_CACHE_CLEANUP_SCHEDULE is invalid: %w", err))
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Bucket) == "" {
		errs = append(errs, errors.New("ARCHIVE_BUCKET is required when ARCHIVE_ENABLED is set"))
	}
	return errors.Join(errs...)
}

// Optimizer returns the optimizer settings.
func (c *Config) Optimizer() optimization.Config {
	return optimization.Config{
		Timeout:              c.SolverTimeout,
		MaxIterations:        c.SolverMaxIterations,
		MaterialityThreshold: c.MaterialityThreshold,
		TransactionCostRate:  c.TransactionCostRate,
		RiskFreeRate:         c.RiskFreeRate,
	}
}

// RiskDefaults returns the risk assessment defaults for requests that omit
// options.
func (c *Config) RiskDefaults() risk.Options {
	opts := risk.DefaultOptions()
	opts.RiskFreeRate = c.RiskFreeRate
	opts.BenchmarkReturn = c.BenchmarkReturn
	return opts
}

// ArchiveSettings converts the archive settings for the archive package.
func (c *Config) ArchiveSettings() archive.Config {
	return archive.Config{
		Bucket:          c.Archive.Bucket,
		Endpoint:        c.Archive.Endpoint,
		Region:          c.Archive.Region,
		AccessKeyID:     c.Archive.AccessKeyID,
		SecretAccessKey: c.Archive.SecretAccessKey,
		Prefix:          c.Archive.Prefix,
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
