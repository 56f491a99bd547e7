package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"papertrader/internal/models"
	"papertrader/internal/observability"
)

const journalQueueSize = 256

// journalWriter persists one session's trades on its own goroutine, in the
// order they were enqueued.
type journalWriter struct {
	journal TransactionJournal
	metrics *observability.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	queue  chan models.JournalEntry
	closed bool
	done   chan struct{}
}

func newJournalWriter(journal TransactionJournal, metrics *observability.Metrics, logger *zap.Logger) *journalWriter {
	w := &journalWriter{
		journal: journal,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan models.JournalEntry, journalQueueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue never blocks. Entries that cannot be queued are counted as journal
// errors and dropped.
func (w *journalWriter) enqueue(entry models.JournalEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.dropped(entry, "session stopped")
		return
	}
	select {
	case w.queue <- entry:
	default:
		w.dropped(entry, "journal queue full")
	}
}

func (w *journalWriter) run() {
	defer close(w.done)
	for entry := range w.queue {
		w.write(entry)
	}
}

func (w *journalWriter) write(entry models.JournalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	if err := w.journal.Append(ctx, entry); err != nil {
		w.failed()
		w.logger.Error("journal append failed",
			zap.String("user_id", entry.UserID), zap.String("tx_id", entry.Transaction.ID), zap.Error(err))
	}
}

func (w *journalWriter) dropped(entry models.JournalEntry, reason string) {
	w.failed()
	w.logger.Warn("journal entry dropped",
		zap.String("user_id", entry.UserID), zap.String("tx_id", entry.Transaction.ID), zap.String("reason", reason))
}

func (w *journalWriter) failed() {
	if w.metrics != nil {
		w.metrics.JournalErrors.Inc()
	}
}

// close stops accepting entries and waits until the queued ones are written.
func (w *journalWriter) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}
