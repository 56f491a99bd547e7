package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a simulated tradable symbol. The catalog is fixed for the
// lifetime of an engine.
type Instrument struct {
	Symbol       string  `yaml:"symbol" json:"symbol"`
	DisplayName  string  `yaml:"name" json:"name"`
	Sector       string  `yaml:"sector" json:"sector"`
	InitialPrice float64 `yaml:"initial_price" json:"initialPrice"`
}

type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

type Holding struct {
	Symbol      string          `json:"symbol"`
	Quantity    int             `json:"quantity"`
	AverageCost decimal.Decimal `json:"averageCost"`
}

type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Transaction is the immutable record of an executed trade. TotalValue is
// price*quantity and excludes commission.
type Transaction struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       TradeType       `json:"type"`
	Symbol     string          `json:"symbol"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Commission decimal.Decimal `json:"commission"`
}

type HoldingMetrics struct {
	Symbol               string          `json:"symbol" yaml:"symbol"`
	Name                 string          `json:"name" yaml:"name"`
	Quantity             int             `json:"quantity" yaml:"quantity"`
	AverageCost          decimal.Decimal `json:"averageCost" yaml:"average_cost"`
	CurrentPrice         decimal.Decimal `json:"currentPrice" yaml:"current_price"`
	CurrentValue         decimal.Decimal `json:"currentValue" yaml:"current_value"`
	CostBasis            decimal.Decimal `json:"costBasis" yaml:"cost_basis"`
	UnrealizedPnL        decimal.Decimal `json:"unrealizedPnl" yaml:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealizedPnlPercent" yaml:"unrealized_pnl_percent"`
}

// PortfolioMetrics is a read-only view derived from the ledger and the
// current prices at the moment it was taken.
type PortfolioMetrics struct {
	CashBalance               decimal.Decimal  `json:"cashBalance" yaml:"cash_balance"`
	Holdings                  []HoldingMetrics `json:"holdings" yaml:"holdings"`
	TotalValue                decimal.Decimal  `json:"totalValue" yaml:"total_value"`
	TotalCostBasis            decimal.Decimal  `json:"totalCostBasis" yaml:"total_cost_basis"`
	TotalUnrealizedPnL        decimal.Decimal  `json:"totalUnrealizedPnl" yaml:"total_unrealized_pnl"`
	TotalUnrealizedPnLPercent decimal.Decimal  `json:"totalUnrealizedPnlPercent" yaml:"total_unrealized_pnl_percent"`
	AccountValue              decimal.Decimal  `json:"accountValue" yaml:"account_value"`
}

type PriceChange struct {
	Absolute float64 `json:"absolute"`
	Percent  float64 `json:"percent"`
	IsUp     bool    `json:"isUp"`
}

type Quote struct {
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name"`
	Sector    string      `json:"sector"`
	Price     float64     `json:"price"`
	DayChange PriceChange `json:"dayChange"`
	Timestamp time.Time   `json:"timestamp"`
}

// JournalEntry is a persisted transaction tagged with its owner.
type JournalEntry struct {
	UserID      string      `json:"userId"`
	SessionID   string      `json:"sessionId"`
	Transaction Transaction `json:"transaction"`
	RecordedAt  time.Time   `json:"recordedAt"`
}
