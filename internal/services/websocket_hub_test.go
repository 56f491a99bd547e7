package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/observability"
)

func startHub(t *testing.T) (*WebSocketHub, *observability.Metrics, string) {
	t.Helper()
	metrics := observability.NewMetrics("test")
	hub := NewWebSocketHub(nil, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client, ok := hub.RegisterClient(conn, r.URL.Query().Get("user"))
		if !ok {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return hub, metrics, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversOnlyToTargetUser(t *testing.T) {
	hub, metrics, url := startHub(t)
	alice := dial(t, url+"?user=alice")
	bob := dial(t, url+"?user=bob")

	require.Eventually(t, func() bool {
		return hub.HasClients("alice") && hub.HasClients("bob")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WSClients))

	hub.SendToUser("alice", Message{Type: MessageTrade, Data: map[string]string{"symbol": "AAPL"}})

	alice.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := alice.ReadMessage()
	require.NoError(t, err)
	var got struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, MessageTrade, got.Type)
	assert.Equal(t, "AAPL", got.Data["symbol"])

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's messages")
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub, metrics, url := startHub(t)
	conn := dial(t, url+"?user=carol")
	require.Eventually(t, func() bool { return hub.HasClients("carol") }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return !hub.HasClients("carol") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WSClients))
}

func TestSendToUserWithoutClientsIsNoop(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	hub.SendToUser("nobody", Message{Type: MessagePrices})
	assert.Empty(t, hub.broadcast)
}

func TestRegisterAfterStopFails(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, ok := hub.RegisterClient(nil, "u1")
	assert.False(t, ok)
}
