package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/models"
)

func journalEntry(user string, seq uint64, at time.Time) models.JournalEntry {
	return models.JournalEntry{
		UserID:    user,
		SessionID: "s-1",
		Transaction: models.Transaction{
			ID:         fmt.Sprintf("tx-%d", seq),
			Seq:        seq,
			Timestamp:  at,
			Type:       models.TradeBuy,
			Symbol:     "AAPL",
			Quantity:   3,
			Price:      decimal.RequireFromString("175.123456"),
			TotalValue: decimal.RequireFromString("525.370368"),
			Commission: decimal.RequireFromString("0.99"),
		},
		RecordedAt: at,
	}
}

func TestMemoryJournalNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	base := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx, journalEntry("u1", 1, base)))
	require.NoError(t, j.Append(ctx, journalEntry("u1", 2, base)))
	require.NoError(t, j.Append(ctx, journalEntry("u1", 3, base.Add(time.Second))))
	require.NoError(t, j.Append(ctx, journalEntry("u2", 1, base)))

	got, err := j.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Transaction.Seq)
	assert.Equal(t, uint64(2), got[1].Transaction.Seq)
	assert.Equal(t, uint64(1), got[2].Transaction.Seq)

	limited, err := j.History(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := j.History(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournalDocKeepsDecimalPrecision(t *testing.T) {
	in := journalEntry("u1", 7, time.Now().UTC())
	out, err := toJournalDoc(in).entry()
	require.NoError(t, err)
	assert.True(t, in.Transaction.Price.Equal(out.Transaction.Price))
	assert.True(t, in.Transaction.TotalValue.Equal(out.Transaction.TotalValue))
	assert.Equal(t, in.Transaction.ID, out.Transaction.ID)

	bad := toJournalDoc(in)
	bad.Price = "not-a-number"
	_, err = bad.entry()
	assert.Error(t, err)
}
