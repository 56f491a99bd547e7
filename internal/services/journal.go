package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"papertrader/internal/models"
)

const defaultJournalLimit = 100

// TransactionJournal is an append-only audit log of executed paper trades.
// The engine ledger stays the source of truth; the journal only records.
type TransactionJournal interface {
	Append(ctx context.Context, entry models.JournalEntry) error
	History(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error)
}

// journalDoc stores money as strings so no precision is lost in BSON.
type journalDoc struct {
	UserID     string    `bson:"user_id"`
	SessionID  string    `bson:"session_id"`
	TxID       string    `bson:"tx_id"`
	Seq        uint64    `bson:"seq"`
	Timestamp  time.Time `bson:"timestamp"`
	Type       string    `bson:"type"`
	Symbol     string    `bson:"symbol"`
	Quantity   int       `bson:"quantity"`
	Price      string    `bson:"price"`
	TotalValue string    `bson:"total_value"`
	Commission string    `bson:"commission"`
	RecordedAt time.Time `bson:"recorded_at"`
}

func toJournalDoc(e models.JournalEntry) journalDoc {
	tx := e.Transaction
	return journalDoc{
		UserID:     e.UserID,
		SessionID:  e.SessionID,
		TxID:       tx.ID,
		Seq:        tx.Seq,
		Timestamp:  tx.Timestamp,
		Type:       string(tx.Type),
		Symbol:     tx.Symbol,
		Quantity:   tx.Quantity,
		Price:      tx.Price.String(),
		TotalValue: tx.TotalValue.String(),
		Commission: tx.Commission.String(),
		RecordedAt: e.RecordedAt,
	}
}

func (d journalDoc) entry() (models.JournalEntry, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return models.JournalEntry{}, fmt.Errorf("journal %s price: %w", d.TxID, err)
	}
	total, err := decimal.NewFromString(d.TotalValue)
	if err != nil {
		return models.JournalEntry{}, fmt.Errorf("journal %s total: %w", d.TxID, err)
	}
	commission, err := decimal.NewFromString(d.Commission)
	if err != nil {
		return models.JournalEntry{}, fmt.Errorf("journal %s commission: %w", d.TxID, err)
	}
	return models.JournalEntry{
		UserID:    d.UserID,
		SessionID: d.SessionID,
		Transaction: models.Transaction{
			ID:         d.TxID,
			Seq:        d.Seq,
			Timestamp:  d.Timestamp,
			Type:       models.TradeType(d.Type),
			Symbol:     d.Symbol,
			Quantity:   d.Quantity,
			Price:      price,
			TotalValue: total,
			Commission: commission,
		},
		RecordedAt: d.RecordedAt,
	}, nil
}

type MongoJournal struct {
	coll *mongo.Collection
}

func NewMongoJournal(coll *mongo.Collection) *MongoJournal {
	return &MongoJournal{coll: coll}
}

// EnsureIndexes creates the per-user lookup index.
func (j *MongoJournal) EnsureIndexes(ctx context.Context) error {
	_, err := j.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "recorded_at", Value: -1}},
	})
	return err
}

func (j *MongoJournal) Append(ctx context.Context, entry models.JournalEntry) error {
	_, err := j.coll.InsertOne(ctx, toJournalDoc(entry))
	return err
}

// History returns the newest entries for userID first.
func (j *MongoJournal) History(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := j.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []journalDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.JournalEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// MemoryJournal keeps entries in process memory.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[string][]journalDoc
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string][]journalDoc)}
}

func (j *MemoryJournal) Append(_ context.Context, entry models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.UserID] = append(j.entries[entry.UserID], toJournalDoc(entry))
	return nil
}

func (j *MemoryJournal) History(_ context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	j.mu.RLock()
	docs := append([]journalDoc(nil), j.entries[userID]...)
	j.mu.RUnlock()

	// insertion order is commit order, so reverse first and let the stable
	// sort keep newest-first within equal timestamps
	for i, k := 0, len(docs)-1; i < k; i, k = i+1, k-1 {
		docs[i], docs[k] = docs[k], docs[i]
	}
	sort.SliceStable(docs, func(a, b int) bool { return docs[a].RecordedAt.After(docs[b].RecordedAt) })
	if len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]models.JournalEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
