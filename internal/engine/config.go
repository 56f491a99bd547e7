package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultTickInterval    = 1500 * time.Millisecond
	DefaultHistoryCapacity = 60
)

var (
	DefaultInitialBalance = decimal.NewFromInt(10000)
	DefaultCommission     = decimal.RequireFromString("0.99")
)

// Config holds the tunables of one simulation.
type Config struct {
	InitialBalance  decimal.Decimal
	Commission      decimal.Decimal
	TickInterval    time.Duration
	HistoryCapacity int
	Volatility      float64
	PriceFloor      float64

	Rand  RandSource
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		InitialBalance:  DefaultInitialBalance,
		Commission:      DefaultCommission,
		TickInterval:    DefaultTickInterval,
		HistoryCapacity: DefaultHistoryCapacity,
		Volatility:      DefaultVolatility,
		PriceFloor:      DefaultPriceFloor,
		Clock:           time.Now,
	}
}

func (c Config) validate() error {
	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("initial balance %s must not be negative", c.InitialBalance)
	}
	if c.Commission.IsNegative() {
		return fmt.Errorf("commission %s must not be negative", c.Commission)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval %v must be positive", c.TickInterval)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity %d must be positive", c.HistoryCapacity)
	}
	return nil
}

type Option func(*Config)

func WithInitialBalance(d decimal.Decimal) Option {
	return func(c *Config) { c.InitialBalance = d }
}

func WithCommission(d decimal.Decimal) Option {
	return func(c *Config) { c.Commission = d }
}

func WithTickInterval(d time.Duration) Option {
	return func(c *Config) { c.TickInterval = d }
}

func WithHistoryCapacity(n int) Option {
	return func(c *Config) { c.HistoryCapacity = n }
}

func WithVolatility(v float64) Option {
	return func(c *Config) { c.Volatility = v }
}

func WithPriceFloor(f float64) Option {
	return func(c *Config) { c.PriceFloor = f }
}

// WithRand makes the walk reproducible. The source is only used under the
// engine lock, so it need not be safe for concurrent use.
func WithRand(r RandSource) Option {
	return func(c *Config) { c.Rand = r }
}

func WithClock(clock func() time.Time) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithConfig replaces every field at once; later options still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}
