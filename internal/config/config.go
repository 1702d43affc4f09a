package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	DevMode      bool
	DatabasePath string
	LogLevel     string

	// Price source (Alpaca daily bars)
	AlpacaAPIKeyID     string
	AlpacaAPISecretKey string
	AlpacaBaseURL      string

	// Engine tunables. The two lookbacks are independent windows: metrics
	// are derived from the stats history, turnover from the trade ledger.
	MetricsLookbackDays  int
	TurnoverLookbackDays int
	RiskFreeRate         float64
	BenchmarkSymbol      string

	// Backtest seeding
	BacktestYear        int
	BacktestSeedBalance float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/finn.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		AlpacaAPIKeyID:     getEnv("ALPACA_API_KEY_ID", ""),
		AlpacaAPISecretKey: getEnv("ALPACA_API_SECRET_KEY", ""),
		AlpacaBaseURL:      getEnv("ALPACA_BASE_URL", "https://data.alpaca.markets/v2/stocks"),

		MetricsLookbackDays:  getEnvAsInt("METRICS_LOOKBACK_DAYS", 90),
		TurnoverLookbackDays: getEnvAsInt("TURNOVER_LOOKBACK_DAYS", 60),
		RiskFreeRate:         getEnvAsFloat("RISK_FREE_RATE", 0.02),
		BenchmarkSymbol:      getEnv("BENCHMARK_SYMBOL", "SPY"),

		BacktestYear:        getEnvAsInt("BACKTEST_YEAR", 2024),
		BacktestSeedBalance: getEnvAsFloat("BACKTEST_SEED_BALANCE", 1000000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	if c.MetricsLookbackDays < 2 {
		return fmt.Errorf("METRICS_LOOKBACK_DAYS must be at least 2, got %d", c.MetricsLookbackDays)
	}

	if c.TurnoverLookbackDays < 1 {
		return fmt.Errorf("TURNOVER_LOOKBACK_DAYS must be at least 1, got %d", c.TurnoverLookbackDays)
	}

	// Note: Alpaca credentials optional - prices can be imported in bulk instead

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
