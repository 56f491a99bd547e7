package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"papertrader/internal/engine"
	"papertrader/internal/models"
	"papertrader/internal/observability"
)

const journalWriteTimeout = 2 * time.Second

var ErrSessionsClosed = errors.New("session service is closed")

// Broadcaster delivers session events to a user's live connections.
type Broadcaster interface {
	SendToUser(userID string, msg Message)
	HasClients(userID string) bool
}

// Session is one user's simulation.
type Session struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	CreatedAt time.Time      `json:"createdAt"`
	Engine    *engine.Engine `json:"-"`

	lastUsed    time.Time
	unsubscribe func()
	journal     *journalWriter
}

// TradeResult is a filled trade together with the portfolio of the session
// that filled it.
type TradeResult struct {
	SessionID   string                  `json:"sessionId"`
	Transaction models.Transaction      `json:"transaction"`
	Portfolio   models.PortfolioMetrics `json:"portfolio"`
}

type SessionOptions struct {
	Catalog       []models.Instrument
	EngineOptions []engine.Option
	IdleTTL       time.Duration
	// AutoStart launches the tick driver when a session is created.
	AutoStart bool
	Clock     func() time.Time
}

// SessionService owns one engine per user.
type SessionService struct {
	opts    SessionOptions
	journal TransactionJournal
	hub     Broadcaster
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewSessionService validates opts by building a throwaway engine. journal,
// hub and metrics may be nil.
func NewSessionService(opts SessionOptions, journal TransactionJournal, hub Broadcaster, metrics *observability.Metrics, logger *zap.Logger) (*SessionService, error) {
	if _, err := engine.New(opts.Catalog, opts.EngineOptions...); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		opts:     opts,
		journal:  journal,
		hub:      hub,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns the user's session, creating and starting one if needed.
func (s *SessionService) Get(userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionsClosed
	}
	if sess, ok := s.sessions[userID]; ok {
		sess.lastUsed = s.opts.Clock()
		return sess, nil
	}
	sess, err := s.create(userID)
	if err != nil {
		return nil, err
	}
	s.sessions[userID] = sess
	s.gauge()
	return sess, nil
}

// Reset discards the user's session and returns a fresh one.
func (s *SessionService) Reset(userID string) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionsClosed
	}
	old := s.sessions[userID]
	sess, err := s.create(userID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.sessions[userID] = sess
	s.gauge()
	s.mu.Unlock()

	if old != nil {
		s.stop(old)
	}
	s.logger.Info("session reset", zap.String("user_id", userID), zap.String("session_id", sess.ID))
	if s.hub != nil {
		s.hub.SendToUser(userID, Message{Type: MessageReset, Data: sess.Engine.PortfolioMetrics()})
	}
	return sess, nil
}

// create builds a session. Caller holds s.mu.
func (s *SessionService) create(userID string) (*Session, error) {
	eng, err := engine.New(s.opts.Catalog, s.opts.EngineOptions...)
	if err != nil {
		return nil, err
	}
	now := s.opts.Clock()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		Engine:    eng,
		lastUsed:  now,
	}
	if s.journal != nil {
		sess.journal = newJournalWriter(s.journal, s.metrics, s.logger)
	}
	sess.unsubscribe = eng.Subscribe(engine.ListenerFuncs{
		OnPrices: func(ev engine.TickEvent) { s.onPrices(sess, ev) },
		OnTrade:  func(tx models.Transaction) { s.onTrade(sess, tx) },
	})
	if s.opts.AutoStart {
		if err := eng.Start(); err != nil {
			s.stop(sess)
			return nil, err
		}
	}
	s.logger.Info("session created", zap.String("user_id", userID), zap.String("session_id", sess.ID))
	return sess, nil
}

func (s *SessionService) onPrices(sess *Session, ev engine.TickEvent) {
	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
	}
	if s.hub != nil {
		s.hub.SendToUser(sess.UserID, Message{Type: MessagePrices, Data: ev})
	}
}

func (s *SessionService) onTrade(sess *Session, tx models.Transaction) {
	if s.hub != nil {
		s.hub.SendToUser(sess.UserID, Message{Type: MessageTrade, Data: tx})
	}
	if sess.journal == nil {
		return
	}
	sess.journal.enqueue(models.JournalEntry{
		UserID:      sess.UserID,
		SessionID:   sess.ID,
		Transaction: tx,
		RecordedAt:  s.opts.Clock(),
	})
}

func (s *SessionService) Buy(userID, symbol string, qty int) (TradeResult, error) {
	return s.trade(models.TradeBuy, userID, symbol, qty)
}

func (s *SessionService) Sell(userID, symbol string, qty int) (TradeResult, error) {
	return s.trade(models.TradeSell, userID, symbol, qty)
}

// trade executes on the user's current session. The returned portfolio comes
// from that same session even if it is reset concurrently.
func (s *SessionService) trade(side models.TradeType, userID, symbol string, qty int) (TradeResult, error) {
	sess, err := s.Get(userID)
	if err != nil {
		return TradeResult{}, err
	}

	start := time.Now()
	var tx models.Transaction
	if side == models.TradeBuy {
		tx, err = sess.Engine.Buy(symbol, qty)
	} else {
		tx, err = sess.Engine.Sell(symbol, qty)
	}
	elapsed := time.Since(start)

	if err != nil {
		code := engine.ErrorCode(err)
		if s.metrics != nil {
			s.metrics.RecordReject(code)
		}
		s.logger.Info("trade rejected",
			zap.String("user_id", userID), zap.String("side", string(side)),
			zap.String("symbol", symbol), zap.Int("quantity", qty),
			zap.String("code", code), zap.Error(err))
		return TradeResult{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordTrade(string(side), elapsed.Seconds())
	}
	s.logger.Info("trade executed",
		zap.String("user_id", userID), zap.String("tx_id", tx.ID), zap.String("side", string(side)),
		zap.String("symbol", tx.Symbol), zap.Int("quantity", tx.Quantity),
		zap.String("price", tx.Price.String()), zap.Duration("elapsed", elapsed))
	return TradeResult{
		SessionID:   sess.ID,
		Transaction: tx,
		Portfolio:   sess.Engine.PortfolioMetrics(),
	}, nil
}

// Journal reads the user's persisted trades, newest first.
func (s *SessionService) Journal(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	if s.journal == nil {
		return []models.JournalEntry{}, nil
	}
	return s.journal.History(ctx, userID, limit)
}

// Reap shuts down sessions idle since before now-IdleTTL whose user has no
// live connection. It returns the number removed.
func (s *SessionService) Reap(now time.Time) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.opts.IdleTTL)

	s.mu.Lock()
	var expired []*Session
	for userID, sess := range s.sessions {
		if !sess.lastUsed.Before(cutoff) {
			continue
		}
		if s.hub != nil && s.hub.HasClients(userID) {
			continue
		}
		delete(s.sessions, userID)
		expired = append(expired, sess)
	}
	s.gauge()
	s.mu.Unlock()

	for _, sess := range expired {
		s.stop(sess)
		s.logger.Info("session expired", zap.String("user_id", sess.UserID), zap.String("session_id", sess.ID))
	}
	return len(expired)
}

// RunJanitor calls Reap every interval until ctx is done.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Reap(s.opts.Clock()); n > 0 {
				s.logger.Debug("janitor reaped sessions", zap.Int("count", n))
			}
		}
	}
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close shuts every session down. Later calls to Get fail.
func (s *SessionService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.gauge()
	s.mu.Unlock()

	for _, sess := range sessions {
		s.stop(sess)
	}
	s.logger.Info("sessions closed", zap.Int("count", len(sessions)))
}

// stop shuts the engine down and flushes the session's pending journal
// writes.
func (s *SessionService) stop(sess *Session) {
	sess.Engine.Shutdown()
	sess.unsubscribe()
	if sess.journal != nil {
		sess.journal.close()
	}
}

// gauge publishes the session count. Caller holds s.mu.
func (s *SessionService) gauge() {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
}
