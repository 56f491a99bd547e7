package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTradeAndReject(t *testing.T) {
	m := NewMetrics("")
	m.RecordTrade("BUY", 0.0001)
	m.RecordTrade("BUY", 0.0002)
	m.RecordTrade("SELL", 0.0001)
	m.RecordReject("INSUFFICIENT_FUNDS")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("SELL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradeRejects.WithLabelValues("INSUFFICIENT_FUNDS")))
}

func TestInstancesAreIsolated(t *testing.T) {
	a := NewMetrics("a")
	b := NewMetrics("a")
	a.TicksTotal.Add(3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TicksTotal))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := NewMetrics("papertrader")
	m.ActiveSessions.Set(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "papertrader_sessions_active 2")
}
