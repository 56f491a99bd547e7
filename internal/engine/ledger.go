package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrader/internal/models"
)

// ledger holds cash, holdings and the transaction log. It is not safe for
// concurrent use; the engine serializes access.
type ledger struct {
	cash       decimal.Decimal
	commission decimal.Decimal
	holdings   map[string]*models.Holding
	txs        []models.Transaction // oldest first
	seq        uint64
}

func newLedger(initialCash, commission decimal.Decimal) *ledger {
	return &ledger{
		cash:       initialCash,
		commission: commission,
		holdings:   make(map[string]*models.Holding),
	}
}

func (l *ledger) buy(symbol string, qty int, price decimal.Decimal, now time.Time) (models.Transaction, error) {
	if qty <= 0 {
		return models.Transaction{}, ErrInvalidQuantity
	}
	value := price.Mul(decimal.NewFromInt(int64(qty)))
	cost := value.Add(l.commission)
	if cost.GreaterThan(l.cash) {
		return models.Transaction{}, fmt.Errorf("%w: need %s (incl. %s fee), have %s",
			ErrInsufficientFunds, cost.StringFixed(2), l.commission.StringFixed(2), l.cash.StringFixed(2))
	}

	if h, ok := l.holdings[symbol]; ok {
		newQty := h.Quantity + qty
		blended := h.AverageCost.Mul(decimal.NewFromInt(int64(h.Quantity))).Add(value)
		h.AverageCost = blended.Div(decimal.NewFromInt(int64(newQty)))
		h.Quantity = newQty
	} else {
		l.holdings[symbol] = &models.Holding{Symbol: symbol, Quantity: qty, AverageCost: price}
	}
	l.cash = l.cash.Sub(cost)
	return l.record(models.TradeBuy, symbol, qty, price, value, now), nil
}

func (l *ledger) sell(symbol string, qty int, price decimal.Decimal, now time.Time) (models.Transaction, error) {
	if qty <= 0 {
		return models.Transaction{}, ErrInvalidQuantity
	}
	h, ok := l.holdings[symbol]
	if !ok || h.Quantity < qty {
		held := 0
		if ok {
			held = h.Quantity
		}
		return models.Transaction{}, fmt.Errorf("%w: you own %d %s", ErrInsufficientShares, held, symbol)
	}
	value := price.Mul(decimal.NewFromInt(int64(qty)))
	proceeds := value.Sub(l.commission)
	if proceeds.IsNegative() {
		return models.Transaction{}, fmt.Errorf("%w: fee %s exceeds sale value %s",
			ErrFeeExceedsProceeds, l.commission.StringFixed(2), value.StringFixed(2))
	}

	// Average cost is left as-is on a sell.
	if remaining := h.Quantity - qty; remaining == 0 {
		delete(l.holdings, symbol)
	} else {
		h.Quantity = remaining
	}
	l.cash = l.cash.Add(proceeds)
	return l.record(models.TradeSell, symbol, qty, price, value, now), nil
}

func (l *ledger) record(typ models.TradeType, symbol string, qty int, price, value decimal.Decimal, now time.Time) models.Transaction {
	l.seq++
	tx := models.Transaction{
		ID:         uuid.NewString(),
		Seq:        l.seq,
		Timestamp:  now,
		Type:       typ,
		Symbol:     symbol,
		Quantity:   qty,
		Price:      price,
		TotalValue: value,
		Commission: l.commission,
	}
	l.txs = append(l.txs, tx)
	return tx
}

// holdingList returns copies of all holdings ordered by symbol.
func (l *ledger) holdingList() []models.Holding {
	out := make([]models.Holding, 0, len(l.holdings))
	for _, h := range l.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// transactions returns the log newest first.
func (l *ledger) transactions() []models.Transaction {
	out := make([]models.Transaction, len(l.txs))
	for i, tx := range l.txs {
		out[len(l.txs)-1-i] = tx
	}
	return out
}
