// Package engine implements a self-contained paper-trading simulation: a
// random-walk price feed over a fixed instrument catalog, a cash and
// holdings ledger with commission accounting, and metrics derived from both.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/models"
)

// TickEvent carries the prices committed by one tick.
type TickEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Quotes    []models.Quote `json:"quotes"`
}

// Listener observes committed state changes. Callbacks run on the goroutine
// that made the change, after the engine lock is released, one commit at a
// time and in commit order. Reads and new commits do not wait for callbacks,
// but the call that made a change returns only after its own callbacks and
// those of earlier commits have run. A callback must not call Buy, Sell or
// Tick on the same engine.
type Listener interface {
	PricesUpdated(TickEvent)
	TradeExecuted(models.Transaction)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnPrices func(TickEvent)
	OnTrade  func(models.Transaction)
}

func (l ListenerFuncs) PricesUpdated(ev TickEvent) {
	if l.OnPrices != nil {
		l.OnPrices(ev)
	}
}

func (l ListenerFuncs) TradeExecuted(tx models.Transaction) {
	if l.OnTrade != nil {
		l.OnTrade(tx)
	}
}

// Engine owns all state of one simulation. All mutation goes through Tick,
// Buy and Sell.
type Engine struct {
	cfg      Config
	catalog  []models.Instrument
	bySymbol map[string]models.Instrument
	sim      *PriceSimulator

	mu       sync.Mutex
	prices   map[string]float64
	history  map[string]*priceRing
	ledger   *ledger
	lastTick time.Time
	stopped  bool
	// next delivery ticket, handed out under mu in commit order
	notifySeq uint64

	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	notifyNext uint64 // ticket whose callbacks may run now

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int

	lifeMu  sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds an engine with every price at its instrument's initial price and
// one history point per instrument. The tick driver is not started.
func New(catalog []models.Instrument, opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("empty instrument catalog")
	}
	sim, err := NewPriceSimulator(cfg.Volatility, cfg.PriceFloor, cfg.Rand)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		catalog:   make([]models.Instrument, 0, len(catalog)),
		bySymbol:  make(map[string]models.Instrument, len(catalog)),
		sim:       sim,
		prices:    make(map[string]float64, len(catalog)),
		history:   make(map[string]*priceRing, len(catalog)),
		ledger:    newLedger(cfg.InitialBalance, cfg.Commission),
		listeners: make(map[int]Listener),
	}
	e.notifyCond = sync.NewCond(&e.notifyMu)

	now := cfg.Clock()
	for _, inst := range catalog {
		if inst.Symbol == "" {
			return nil, fmt.Errorf("instrument with empty symbol")
		}
		if _, dup := e.bySymbol[inst.Symbol]; dup {
			return nil, fmt.Errorf("duplicate instrument %q", inst.Symbol)
		}
		if !ValidPrice(inst.InitialPrice) {
			return nil, fmt.Errorf("instrument %s: %w", inst.Symbol, ErrInvalidPrice)
		}
		e.catalog = append(e.catalog, inst)
		e.bySymbol[inst.Symbol] = inst
		e.prices[inst.Symbol] = inst.InitialPrice
		ring := newPriceRing(cfg.HistoryCapacity)
		ring.push(models.PricePoint{Timestamp: now, Price: inst.InitialPrice})
		e.history[inst.Symbol] = ring
	}
	e.lastTick = now
	return e, nil
}

// Initialize builds an engine funded with initialCash and starts its tick
// driver.
func Initialize(catalog []models.Instrument, initialCash decimal.Decimal, opts ...Option) (*Engine, error) {
	opts = append(opts, WithInitialBalance(initialCash))
	e, err := New(catalog, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

// Start launches the tick driver. It is a no-op while already running and
// fails once the engine has been shut down.
func (e *Engine) Start() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	go e.run(ctx, e.done)
	return nil
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Shutdown stops the tick driver and waits for it to exit. No price changes
// after Shutdown returns. Calling it again is a no-op.
func (e *Engine) Shutdown() {
	e.lifeMu.Lock()
	if e.closed {
		e.lifeMu.Unlock()
		return
	}
	e.closed = true
	running, cancel, done := e.running, e.cancel, e.done
	e.running = false
	e.lifeMu.Unlock()

	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	if running {
		cancel()
		<-done
	}
}

// Running reports whether the tick driver is active.
func (e *Engine) Running() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.running
}

// Tick advances every instrument by one step. It returns false once the
// engine is shut down.
func (e *Engine) Tick() (TickEvent, bool) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return TickEvent{}, false
	}
	now := e.cfg.Clock()
	for _, inst := range e.catalog {
		next := e.sim.Next(e.prices[inst.Symbol])
		e.prices[inst.Symbol] = next
		e.history[inst.Symbol].push(models.PricePoint{Timestamp: now, Price: next})
	}
	e.lastTick = now
	ev := TickEvent{Timestamp: now, Quotes: e.quotesLocked()}
	ticket := e.takeTicketLocked()
	e.mu.Unlock()

	e.deliver(ticket, func(l Listener) { l.PricesUpdated(ev) })
	return ev, true
}

// Buy purchases qty units of symbol at the current price.
func (e *Engine) Buy(symbol string, qty int) (models.Transaction, error) {
	return e.trade(models.TradeBuy, symbol, qty)
}

// Sell disposes of qty units of symbol at the current price.
func (e *Engine) Sell(symbol string, qty int) (models.Transaction, error) {
	return e.trade(models.TradeSell, symbol, qty)
}

func (e *Engine) trade(typ models.TradeType, symbol string, qty int) (models.Transaction, error) {
	if qty <= 0 {
		return models.Transaction{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}

	e.mu.Lock()
	price, ok := e.prices[symbol]
	if !ok || price <= 0 {
		e.mu.Unlock()
		return models.Transaction{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	var (
		tx  models.Transaction
		err error
	)
	px := decimal.NewFromFloat(price)
	if typ == models.TradeBuy {
		tx, err = e.ledger.buy(symbol, qty, px, e.cfg.Clock())
	} else {
		tx, err = e.ledger.sell(symbol, qty, px, e.cfg.Clock())
	}
	if err != nil {
		e.mu.Unlock()
		return models.Transaction{}, err
	}

	ticket := e.takeTicketLocked()
	e.mu.Unlock()

	e.deliver(ticket, func(l Listener) { l.TradeExecuted(tx) })
	return tx, nil
}

// takeTicketLocked reserves the next delivery slot. Callers hold mu.
func (e *Engine) takeTicketLocked() uint64 {
	t := e.notifySeq
	e.notifySeq++
	return t
}

// deliver waits until every earlier ticket has been delivered, then runs fn
// for each subscribed listener. mu is not held, so a slow listener only
// delays later deliveries.
func (e *Engine) deliver(ticket uint64, fn func(Listener)) {
	e.notifyMu.Lock()
	for e.notifyNext != ticket {
		e.notifyCond.Wait()
	}
	e.notifyMu.Unlock()

	defer func() {
		e.notifyMu.Lock()
		e.notifyNext++
		e.notifyCond.Broadcast()
		e.notifyMu.Unlock()
	}()
	for _, l := range e.listenerSnapshot() {
		fn(l)
	}
}

// Subscribe registers l and returns a function that removes it.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	e.listenerMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.listenerMu.Lock()
			delete(e.listeners, id)
			e.listenerMu.Unlock()
		})
	}
}

func (e *Engine) listenerSnapshot() []Listener {
	e.listenerMu.RLock()
	defer e.listenerMu.RUnlock()
	out := make([]Listener, 0, len(e.listeners))
	for id := 0; id < e.nextID; id++ {
		if l, ok := e.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// SetPrice overrides the current price of symbol without recording history.
func (e *Engine) SetPrice(symbol string, price float64) error {
	if !ValidPrice(price) {
		return ErrInvalidPrice
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.prices[symbol]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	e.prices[symbol] = price
	return nil
}

// Price returns the current price of symbol.
func (e *Engine) Price(symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return p, nil
}

// Prices returns a copy of all current prices.
func (e *Engine) Prices() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.prices))
	for k, v := range e.prices {
		out[k] = v
	}
	return out
}

// PriceHistory returns the retained window for symbol, oldest first.
func (e *Engine) PriceHistory(symbol string) ([]models.PricePoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ring, ok := e.history[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return ring.snapshot(), nil
}

// DayChange compares the current price of symbol with its initial price.
func (e *Engine) DayChange(symbol string) (models.PriceChange, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.bySymbol[symbol]
	if !ok {
		return models.PriceChange{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return dayChange(e.prices[symbol], inst.InitialPrice), nil
}

// Quotes returns price and day change for every instrument in catalog order.
func (e *Engine) Quotes() []models.Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quotesLocked()
}

func (e *Engine) quotesLocked() []models.Quote {
	out := make([]models.Quote, 0, len(e.catalog))
	for _, inst := range e.catalog {
		p := e.prices[inst.Symbol]
		out = append(out, models.Quote{
			Symbol:    inst.Symbol,
			Name:      inst.DisplayName,
			Sector:    inst.Sector,
			Price:     p,
			DayChange: dayChange(p, inst.InitialPrice),
			Timestamp: e.lastTick,
		})
	}
	return out
}

// PortfolioMetrics derives valuation and unrealized P&L from the current
// ledger and prices.
func (e *Engine) PortfolioMetrics() models.PortfolioMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return derivePortfolio(e.ledger.cash, e.ledger.holdingList(), e.prices, e.bySymbol)
}

func (e *Engine) Cash() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.cash
}

// Holdings returns open positions ordered by symbol.
func (e *Engine) Holdings() []models.Holding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.holdingList()
}

func (e *Engine) Holding(symbol string) (models.Holding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.ledger.holdings[symbol]
	if !ok {
		return models.Holding{}, false
	}
	return *h, true
}

// Transactions returns every executed trade, newest first.
func (e *Engine) Transactions() []models.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.transactions()
}

// Instruments returns the catalog in its original order.
func (e *Engine) Instruments() []models.Instrument {
	out := make([]models.Instrument, len(e.catalog))
	copy(out, e.catalog)
	return out
}

func (e *Engine) Config() Config { return e.cfg }
