package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"papertrader/internal/engine"
)

// Config holds all service configuration.
type Config struct {
	// Server
	Port string

	// Database
	MongoURI     string
	DatabaseName string

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Simulation
	CatalogFile     string
	InitialBalance  decimal.Decimal
	Commission      decimal.Decimal
	TickInterval    time.Duration
	HistoryCapacity int
	Volatility      float64
	SessionIdleTTL  time.Duration

	// Market data seeding (disabled when the key is empty)
	AlphaVantageKey string
	AlphaVantageURL string
}

const devJWTSecret = "dev-secret-change-me"

// Load reads .env files (if present) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env: %w", err)
	}

	c := &Config{
		Port:            envStr("PORT", "8080"),
		MongoURI:        envStr("MONGODB_URI", ""),
		DatabaseName:    envStr("DATABASE_NAME", "papertrader"),
		JWTSecret:       envStr("JWT_SECRET", devJWTSecret),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFormat:       envStr("LOG_FORMAT", "json"),
		CatalogFile:     envStr("CATALOG_FILE", ""),
		AlphaVantageKey: envStr("ALPHA_VANTAGE_API_KEY", ""),
		AlphaVantageURL: envStr("ALPHA_VANTAGE_URL", "https://www.alphavantage.co/query"),
	}

	var err error
	if c.JWTTTL, err = envDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.InitialBalance, err = envDecimal("INITIAL_BALANCE", engine.DefaultInitialBalance); err != nil {
		return nil, err
	}
	if c.Commission, err = envDecimal("COMMISSION_PER_TRADE", engine.DefaultCommission); err != nil {
		return nil, err
	}
	if c.TickInterval, err = envDuration("TICK_INTERVAL", engine.DefaultTickInterval); err != nil {
		return nil, err
	}
	if c.HistoryCapacity, err = envInt("PRICE_HISTORY_CAPACITY", engine.DefaultHistoryCapacity); err != nil {
		return nil, err
	}
	if c.Volatility, err = envFloat("VOLATILITY", engine.DefaultVolatility); err != nil {
		return nil, err
	}
	if c.SessionIdleTTL, err = envDuration("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	return c, nil
}

// EngineOptions translates the simulation settings into engine options.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithInitialBalance(c.InitialBalance),
		engine.WithCommission(c.Commission),
		engine.WithTickInterval(c.TickInterval),
		engine.WithHistoryCapacity(c.HistoryCapacity),
		engine.WithVolatility(c.Volatility),
	}
}

// UsingDevSecret reports whether JWT_SECRET was left at its default.
func (c *Config) UsingDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// envDuration accepts Go duration strings or a bare number of milliseconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
