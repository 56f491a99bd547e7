package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/engine"
	"papertrader/internal/models"
	"papertrader/internal/observability"
)

type fakeBroadcaster struct {
	mu      sync.Mutex
	sent    map[string][]Message
	clients map[string]bool
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{sent: make(map[string][]Message), clients: make(map[string]bool)}
}

func (f *fakeBroadcaster) SendToUser(userID string, msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[userID] = append(f.sent[userID], msg)
}

func (f *fakeBroadcaster) HasClients(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[userID]
}

func (f *fakeBroadcaster) types(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent[userID] {
		out = append(out, m.Type)
	}
	return out
}

type failingJournal struct{}

func (failingJournal) Append(context.Context, models.JournalEntry) error {
	return errors.New("mongo unavailable")
}

func (failingJournal) History(context.Context, string, int) ([]models.JournalEntry, error) {
	return nil, errors.New("mongo unavailable")
}

// gatedJournal holds every Append until release is closed.
type gatedJournal struct {
	*MemoryJournal
	release chan struct{}
}

func newGatedJournal() *gatedJournal {
	return &gatedJournal{MemoryJournal: NewMemoryJournal(), release: make(chan struct{})}
}

func (g *gatedJournal) Append(ctx context.Context, entry models.JournalEntry) error {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.MemoryJournal.Append(ctx, entry)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sessionFixture struct {
	svc     *SessionService
	hub     *fakeBroadcaster
	journal *MemoryJournal
	metrics *observability.Metrics
	clock   *clock
}

func newSessionFixture(t *testing.T, journal TransactionJournal) sessionFixture {
	t.Helper()
	f := sessionFixture{
		hub:     newFakeBroadcaster(),
		metrics: observability.NewMetrics("test"),
		clock:   &clock{now: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)},
	}
	if journal == nil {
		f.journal = NewMemoryJournal()
		journal = f.journal
	}
	svc, err := NewSessionService(SessionOptions{
		Catalog: []models.Instrument{
			{Symbol: "AAPL", DisplayName: "Apple Inc.", InitialPrice: 100},
			{Symbol: "MSFT", DisplayName: "Microsoft", InitialPrice: 50},
		},
		EngineOptions: []engine.Option{engine.WithRand(rand.New(rand.NewPCG(1, 2)))},
		IdleTTL:       10 * time.Minute,
		Clock:         f.clock.Now,
	}, journal, f.hub, f.metrics, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func TestSessionCreatedLazilyAndReused(t *testing.T) {
	f := newSessionFixture(t, nil)
	assert.Equal(t, 0, f.svc.Count())

	a, err := f.svc.Get("u1")
	require.NoError(t, err)
	b, err := f.svc.Get("u1")
	require.NoError(t, err)
	c, err := f.svc.Get("u2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, 2, f.svc.Count())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ActiveSessions))
}

func TestNewSessionServiceRejectsBadCatalog(t *testing.T) {
	_, err := NewSessionService(SessionOptions{}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestTradeIsJournaledAndBroadcast(t *testing.T) {
	f := newSessionFixture(t, nil)

	bought, err := f.svc.Buy("u1", "AAPL", 10)
	require.NoError(t, err)
	_, err = f.svc.Sell("u1", "AAPL", 4)
	require.NoError(t, err)

	var entries []models.JournalEntry
	require.Eventually(t, func() bool {
		entries, err = f.svc.Journal(context.Background(), "u1", 10)
		return err == nil && len(entries) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.TradeSell, entries[0].Transaction.Type)
	assert.Equal(t, bought.Transaction.ID, entries[1].Transaction.ID)

	sess, err := f.svc.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, entries[0].SessionID)

	assert.Equal(t, []string{MessageTrade, MessageTrade}, f.hub.types("u1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradesTotal.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradesTotal.WithLabelValues("SELL")))
}

func TestRejectedTradeCountsCode(t *testing.T) {
	f := newSessionFixture(t, nil)

	_, err := f.svc.Buy("u1", "AAPL", 1000)
	require.ErrorIs(t, err, engine.ErrInsufficientFunds)
	_, err = f.svc.Sell("u1", "ZZZ", 1)
	require.ErrorIs(t, err, engine.ErrUnknownSymbol)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradeRejects.WithLabelValues("INSUFFICIENT_FUNDS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradeRejects.WithLabelValues("UNKNOWN_SYMBOL")))

	entries, err := f.svc.Journal(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalFailureDoesNotUndoTrade(t *testing.T) {
	f := newSessionFixture(t, failingJournal{})

	_, err := f.svc.Buy("u1", "AAPL", 1)
	require.NoError(t, err)

	sess, err := f.svc.Get("u1")
	require.NoError(t, err)
	h, ok := sess.Engine.Holding("AAPL")
	require.True(t, ok)
	assert.Equal(t, 1, h.Quantity)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.JournalErrors) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSlowJournalDoesNotDelayTrades(t *testing.T) {
	journal := newGatedJournal()
	f := newSessionFixture(t, journal)

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 3; i++ {
			if _, err := f.svc.Buy("u1", "AAPL", 1); err != nil {
				done <- err
				return
			}
		}
		sess, err := f.svc.Get("u1")
		if err == nil {
			sess.Engine.PortfolioMetrics()
		}
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("trades waited on the journal")
	}

	entries, err := journal.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "writes are still held")

	close(journal.release)
	require.Eventually(t, func() bool {
		entries, err = journal.History(context.Background(), "u1", 0)
		return err == nil && len(entries) == 3
	}, time.Second, 5*time.Millisecond)
	for i, e := range entries {
		assert.Equal(t, uint64(3-i), e.Transaction.Seq)
	}
}

func TestResetFlushesPendingJournalWrites(t *testing.T) {
	journal := newGatedJournal()
	f := newSessionFixture(t, journal)

	bought, err := f.svc.Buy("u1", "AAPL", 2)
	require.NoError(t, err)

	reset := make(chan struct{})
	go func() {
		_, err := f.svc.Reset("u1")
		assert.NoError(t, err)
		close(reset)
	}()
	close(journal.release)
	<-reset

	entries, err := journal.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, bought.Transaction.ID, entries[0].Transaction.ID)
	assert.Equal(t, bought.SessionID, entries[0].SessionID)
}

func TestTradeResultComesFromExecutingSession(t *testing.T) {
	f := newSessionFixture(t, nil)

	res, err := f.svc.Buy("u1", "AAPL", 3)
	require.NoError(t, err)
	sess, err := f.svc.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, res.SessionID)
	require.Len(t, res.Portfolio.Holdings, 1)
	assert.Equal(t, 3, res.Portfolio.Holdings[0].Quantity)

	// resets racing with trades never pair a fill with a fresh portfolio
	var wg sync.WaitGroup
	results := make(chan TradeResult, 20)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if r, err := f.svc.Buy("u1", "MSFT", 1); err == nil {
				results <- r
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Reset("u1")
		}()
	}
	wg.Wait()
	close(results)

	for r := range results {
		assert.NotEmpty(t, r.SessionID)
		assert.Equal(t, "MSFT", r.Transaction.Symbol)
		var held bool
		for _, h := range r.Portfolio.Holdings {
			held = held || h.Symbol == "MSFT"
		}
		assert.True(t, held, "portfolio of session %s lacks the fill", r.SessionID)
	}
}

func TestResetStartsFresh(t *testing.T) {
	f := newSessionFixture(t, nil)

	_, err := f.svc.Buy("u1", "AAPL", 5)
	require.NoError(t, err)
	old, err := f.svc.Get("u1")
	require.NoError(t, err)

	fresh, err := f.svc.Reset("u1")
	require.NoError(t, err)

	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Empty(t, fresh.Engine.Holdings())
	assert.Empty(t, fresh.Engine.Transactions())
	assert.True(t, fresh.Engine.Cash().Equal(engine.DefaultInitialBalance))

	_, ok := old.Engine.Tick()
	assert.False(t, ok, "old engine must be shut down")
	assert.Contains(t, f.hub.types("u1"), MessageReset)
	assert.Equal(t, 1, f.svc.Count())
}

func TestTicksAreForwarded(t *testing.T) {
	f := newSessionFixture(t, nil)
	sess, err := f.svc.Get("u1")
	require.NoError(t, err)

	_, ok := sess.Engine.Tick()
	require.True(t, ok)

	assert.Equal(t, []string{MessagePrices}, f.hub.types("u1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TicksTotal))
}

func TestReapExpiresIdleSessions(t *testing.T) {
	f := newSessionFixture(t, nil)
	_, err := f.svc.Get("idle")
	require.NoError(t, err)
	_, err = f.svc.Get("watching")
	require.NoError(t, err)
	f.hub.clients["watching"] = true

	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.Get("busy")
	require.NoError(t, err)
	assert.Equal(t, 0, f.svc.Reap(f.clock.Now()))

	f.clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, f.svc.Reap(f.clock.Now()))
	assert.Equal(t, 2, f.svc.Count())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ActiveSessions))
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	f := newSessionFixture(t, nil)
	sess, err := f.svc.Get("u1")
	require.NoError(t, err)

	f.svc.Close()
	f.svc.Close()

	_, err = f.svc.Get("u1")
	assert.ErrorIs(t, err, ErrSessionsClosed)
	_, err = f.svc.Buy("u1", "AAPL", 1)
	assert.ErrorIs(t, err, ErrSessionsClosed)
	_, ok := sess.Engine.Tick()
	assert.False(t, ok)
}

func TestAutoStartDrivesTicks(t *testing.T) {
	hub := newFakeBroadcaster()
	svc, err := NewSessionService(SessionOptions{
		Catalog:       []models.Instrument{{Symbol: "AAPL", InitialPrice: 100}},
		EngineOptions: []engine.Option{engine.WithTickInterval(5 * time.Millisecond)},
		AutoStart:     true,
	}, nil, hub, nil, nil)
	require.NoError(t, err)
	defer svc.Close()

	sess, err := svc.Get("u1")
	require.NoError(t, err)
	assert.True(t, sess.Engine.Running())
	require.Eventually(t, func() bool { return len(hub.types("u1")) >= 2 }, time.Second, 5*time.Millisecond)
}
