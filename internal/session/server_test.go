package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"quote_core/internal/config"
	"quote_core/internal/core"
	"quote_core/pkg/logging"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDecider echoes a single cancel intent and records resets
type fakeDecider struct {
	mu     sync.Mutex
	resets []string
	ticks  int
}

func (d *fakeDecider) OnStateUpdate(_ context.Context, upd *core.StateUpdate) *core.Response {
	d.mu.Lock()
	d.ticks++
	d.mu.Unlock()
	return &core.Response{
		SessionID: upd.SessionID,
		Timestamp: upd.Timestamp,
		Intents: []core.OrderIntent{{
			Type:     core.IntentCancel,
			BookID:   "BTC-0",
			OrderIDs: []int64{42},
		}},
	}
}

func (d *fakeDecider) ResetSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets = append(d.resets, sessionID)
}

func (d *fakeDecider) tickCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		AllowedOrigins: []string{"*"},
		MaxConnections: 4,
		RateLimit:      100,
		RateBurst:      100,
	}
}

func startServer(t *testing.T, cfg config.SessionConfig, decider core.IDecider) *httptest.Server {
	t.Helper()
	s := NewServer(cfg, decider, logging.GetGlobalLogger())
	ts := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sampleUpdate(sessionID string) StateUpdateMsg {
	return StateUpdateMsg{
		SessionID: sessionID,
		Timestamp: 1,
		Config: MarketConfigMsg{
			PriceDecimals:    2,
			QuantityDecimals: 4,
			TickIntervalMs:   1000,
			MaxOpenOrders:    50,
		},
		Books: map[string]BookMsg{
			"BTC-0": {
				Bids: []PriceLevelMsg{{Price: decimal.NewFromFloat(99), Quantity: decimal.NewFromFloat(2)}},
				Asks: []PriceLevelMsg{{Price: decimal.NewFromFloat(101), Quantity: decimal.NewFromFloat(2)}},
			},
		},
		Accounts: map[string]AccountMsg{
			"BTC-0": {QuoteTotal: decimal.NewFromFloat(1000)},
		},
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	msg, err := NewMessage(msgType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

func unmarshalData(msg Message, v interface{}) error {
	return json.Unmarshal(msg.Data, v)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestServer_StateUpdateRoundTrip(t *testing.T) {
	decider := &fakeDecider{}
	ts := startServer(t, testSessionConfig(), decider)
	conn := dial(t, ts)

	send(t, conn, TypeStateUpdate, sampleUpdate("s1"))

	msg := readMessage(t, conn)
	require.Equal(t, TypeResponse, msg.Type)

	var resp ResponseMsg
	require.NoError(t, unmarshalData(msg, &resp))
	assert.Equal(t, "s1", resp.SessionID)
	require.Len(t, resp.Intents, 1)
	assert.Equal(t, string(core.IntentCancel), resp.Intents[0].Type)
	assert.Equal(t, []int64{42}, resp.Intents[0].OrderIDs)
}

func TestServer_TicksAreOrderedPerConnection(t *testing.T) {
	decider := &fakeDecider{}
	ts := startServer(t, testSessionConfig(), decider)
	conn := dial(t, ts)

	for i := 0; i < 5; i++ {
		send(t, conn, TypeStateUpdate, sampleUpdate("s1"))
		msg := readMessage(t, conn)
		require.Equal(t, TypeResponse, msg.Type)
	}
	assert.Equal(t, 5, decider.tickCount())
}

func TestServer_SessionReset(t *testing.T) {
	decider := &fakeDecider{}
	ts := startServer(t, testSessionConfig(), decider)
	conn := dial(t, ts)

	send(t, conn, TypeSessionReset, SessionResetMsg{SessionID: "s1"})

	// A reset owes no reply; the next update proves the connection survived
	send(t, conn, TypeStateUpdate, sampleUpdate("s1"))
	msg := readMessage(t, conn)
	assert.Equal(t, TypeResponse, msg.Type)

	decider.mu.Lock()
	defer decider.mu.Unlock()
	assert.Equal(t, []string{"s1"}, decider.resets)
}

func TestServer_UnknownTypeGetsError(t *testing.T) {
	decider := &fakeDecider{}
	ts := startServer(t, testSessionConfig(), decider)
	conn := dial(t, ts)

	send(t, conn, "bogus", map[string]string{})

	msg := readMessage(t, conn)
	require.Equal(t, TypeError, msg.Type)

	var e ErrorMsg
	require.NoError(t, unmarshalData(msg, &e))
	assert.Contains(t, e.Message, "bogus")
}

func TestServer_MalformedPayloadGetsError(t *testing.T) {
	decider := &fakeDecider{}
	ts := startServer(t, testSessionConfig(), decider)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"state_update","data":"not an object"}`)))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, 0, decider.tickCount())
}

func TestServer_ConnectionLimit(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxConnections = 1
	ts := startServer(t, cfg, &fakeDecider{})

	dial(t, ts)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testSessionConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 1
	ts := startServer(t, cfg, &fakeDecider{})

	dial(t, ts)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
