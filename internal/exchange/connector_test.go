package exchange

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantex/mexc-stream/internal/connection"
	"github.com/quantex/mexc-stream/internal/model"
)

// fakeConn is an in-process connection.Manager that records sends and
// exposes the frame/down handlers for injection.
type fakeConn struct {
	cfg connection.Config

	mu        sync.Mutex
	connected bool
	sent      [][]byte
}

func (f *fakeConn) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return connection.ErrNotConnected
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) Status() model.ConnectionState {
	if f.IsConnected() {
		return model.StateConnected
	}
	return model.StateDisconnected
}

func (f *fakeConn) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

type fakePinger struct {
	calls atomic.Int32
	err   error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

type testHarness struct {
	c     *Connector
	mu    sync.Mutex
	conns []*fakeConn
}

func newHarness(cfg Config, pinger Pinger) *testHarness {
	h := &testHarness{}
	h.c = NewConnector(cfg, pinger, nil, nil)
	h.c.dial = func(cc connection.Config) connection.Manager {
		fc := &fakeConn{cfg: cc}
		h.mu.Lock()
		h.conns = append(h.conns, fc)
		h.mu.Unlock()
		return fc
	}
	return h
}

func (h *testHarness) conn(i int) *fakeConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.conns) {
		return nil
	}
	return h.conns[i]
}

func (h *testHarness) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testConnectorConfig() Config {
	cfg := DefaultConfig()
	cfg.WSURL = "wss://test.invalid/ws"
	cfg.HealthCheckInterval = time.Hour // only explicit triggers in tests
	return cfg
}

func TestConnector_ConnectProbesRest(t *testing.T) {
	pinger := &fakePinger{}
	h := newHarness(testConnectorConfig(), pinger)

	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	if pinger.calls.Load() != 1 {
		t.Errorf("ping calls = %d, want 1", pinger.calls.Load())
	}
	if !h.c.IsConnected() {
		t.Error("expected IsConnected after Connect")
	}
	if h.c.WebSocketStatus() != model.StateConnected {
		t.Errorf("WebSocketStatus = %v, want connected", h.c.WebSocketStatus())
	}
}

func TestConnector_ConnectFailsOnPingError(t *testing.T) {
	pinger := &fakePinger{err: errors.New("api down")}
	h := newHarness(testConnectorConfig(), pinger)

	if err := h.c.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail on ping error")
	}
	if h.connCount() != 0 {
		t.Errorf("sockets dialed = %d, want 0 when ping fails", h.connCount())
	}
}

func TestConnector_SubscribeTicker(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	id, err := h.c.SubscribeTicker("BTC/USDT", func(model.TickerUpdate) {})
	if err != nil {
		t.Fatalf("SubscribeTicker failed: %v", err)
	}

	if ok, _ := regexp.MatchString(`^ticker_BTCUSDT_\d+$`, id); !ok {
		t.Errorf("id = %q, want ticker_BTCUSDT_<number>", id)
	}

	sent := h.conn(0).sentFrames()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want exactly 1", len(sent))
	}
	want := `{"method":"SUBSCRIPTION","params":["spot@public.aggre.bookTicker.v3.api.pb@100ms@BTCUSDT"]}`
	if sent[0] != want {
		t.Errorf("subscribe frame = %q, want %q", sent[0], want)
	}
}

func TestConnector_SubscribeBeforeConnectFails(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)

	if _, err := h.c.SubscribeTicker("BTC/USDT", func(model.TickerUpdate) {}); err == nil {
		t.Error("SubscribeTicker before Connect should fail")
	}
	if _, err := h.c.SubscribeTrades("BTC/USDT", func([]model.TradeUpdate) {}); err == nil {
		t.Error("SubscribeTrades before Connect should fail")
	}
}

func TestConnector_TickerCallback(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	var mu sync.Mutex
	var got []model.TickerUpdate
	h.c.SubscribeTicker("BTC/USDT", func(u model.TickerUpdate) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})

	var ethHits atomic.Int32
	h.c.SubscribeTicker("ETH/USDT", func(model.TickerUpdate) { ethHits.Add(1) })

	h.conn(0).cfg.OnFrame([]byte(
		"spot@public.aggre.bookTicker.v3.api.pb@100ms@BTCUSDT 65000.10 65000.20 1.5 2.5"))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("callback hits = %d, want 1", len(got))
	}
	if got[0].Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %q, want BTC/USDT", got[0].Symbol)
	}
	if got[0].Bid.String() != "65000.10" {
		t.Errorf("Bid = %s, want 65000.10", got[0].Bid)
	}
	if got[0].Ask.String() != "65000.20" {
		t.Errorf("Ask = %s, want 65000.20", got[0].Ask)
	}
	if ethHits.Load() != 0 {
		t.Errorf("ETH callback hits = %d, want 0", ethHits.Load())
	}
}

func TestConnector_TradesCallback(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	var mu sync.Mutex
	var got []model.TradeUpdate
	h.c.SubscribeTrades("BTC/USDT", func(trades []model.TradeUpdate) {
		mu.Lock()
		got = append(got, trades...)
		mu.Unlock()
	})

	h.conn(0).cfg.OnFrame([]byte(
		"spot@public.aggre.deals.v3.api.pb@100ms@BTCUSDT 65000.5 0.25 T:1"))

	// A deal frame with no numbers means no trade; the callback stays
	// silent rather than delivering an empty slice.
	h.conn(0).cfg.OnFrame([]byte("spot@public.aggre.deals.v3.api.pb@100ms@BTCUSDT"))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("trades delivered = %d, want 1", len(got))
	}
	if got[0].Price.String() != "65000.5" {
		t.Errorf("Price = %s, want 65000.5", got[0].Price)
	}
	if got[0].Side != model.SideBuy {
		t.Errorf("Side = %q, want buy", got[0].Side)
	}
}

func TestConnector_Unsubscribe(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	id, _ := h.c.SubscribeTicker("BTC/USDT", func(model.TickerUpdate) {})
	h.c.Unsubscribe(id)

	sent := h.conn(0).sentFrames()
	if len(sent) != 2 {
		t.Fatalf("sent %d frames, want subscribe + unsubscribe", len(sent))
	}
	want := `{"method":"UNSUBSCRIPTION","params":["spot@public.aggre.bookTicker.v3.api.pb@100ms@BTCUSDT"]}`
	if sent[1] != want {
		t.Errorf("unsubscribe frame = %q, want %q", sent[1], want)
	}

	// Unknown ids do nothing on the wire.
	h.c.Unsubscribe("nonexistent")
	if n := len(h.conn(0).sentFrames()); n != 2 {
		t.Errorf("sent %d frames after unknown unsubscribe, want 2", n)
	}
}

func TestConnector_UnsubscribeKeepsSharedChannel(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	id1, _ := h.c.SubscribeTicker("BTC/USDT", func(model.TickerUpdate) {})
	h.c.SubscribeTicker("BTC/USDT", func(model.TickerUpdate) {})

	h.c.Unsubscribe(id1)

	for _, frame := range h.conn(0).sentFrames() {
		if strings.Contains(frame, "UNSUBSCRIPTION") {
			t.Errorf("unsubscribe sent while channel still in use: %q", frame)
		}
	}
}

func TestConnector_ReconnectReplaysChannels(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	var hits atomic.Int32
	h.c.SubscribeTicker("BTC/USDT", func(model.TickerUpdate) { hits.Add(1) })
	h.c.SubscribeTrades("ETH/USDT", func([]model.TradeUpdate) { hits.Add(1) })

	first := h.conn(0)
	first.Disconnect()
	first.cfg.OnDown(errors.New("server closed"))

	waitFor(t, "reconnect", func() bool { return h.connCount() == 2 && h.c.IsConnected() })

	second := h.conn(1)
	replayed := second.sentFrames()
	if len(replayed) != 2 {
		t.Fatalf("replayed %d frames, want 2", len(replayed))
	}
	joined := strings.Join(replayed, "\n")
	if !strings.Contains(joined, "bookTicker.v3.api.pb@100ms@BTCUSDT") {
		t.Errorf("ticker channel not replayed: %v", replayed)
	}
	if !strings.Contains(joined, "deals.v3.api.pb@100ms@ETHUSDT") {
		t.Errorf("trades channel not replayed: %v", replayed)
	}

	// Callbacks registered before the drop keep working.
	second.cfg.OnFrame([]byte(
		"spot@public.aggre.bookTicker.v3.api.pb@100ms@BTCUSDT 65000.10 65000.20 1.5 2.5"))
	if hits.Load() != 1 {
		t.Errorf("callback hits after reconnect = %d, want 1", hits.Load())
	}
}

func TestConnector_EventSink(t *testing.T) {
	var mu sync.Mutex
	var kinds []model.EventKind

	cfg := testConnectorConfig()
	cfg.OnEvent = func(ev model.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}

	h := newHarness(cfg, nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer h.c.Disconnect()

	onFrame := h.conn(0).cfg.OnFrame
	onFrame([]byte("spot@public.aggre.bookTicker.v3.api.pb@100ms@BTCUSDT 1.0 2.0"))
	onFrame([]byte("garbage with no namespace"))

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 {
		t.Fatalf("sink saw %d events, want 2", len(kinds))
	}
	if kinds[0] != model.EventTicker {
		t.Errorf("first event = %v, want ticker", kinds[0])
	}
	// The sink sees frames the registry never dispatches.
	if kinds[1] == model.EventTicker {
		t.Errorf("second event = %v, want non-ticker", kinds[1])
	}
}

func TestConnector_NoUserDataStream(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)

	if err := h.c.ConnectUserDataStream(context.Background()); !errors.Is(err, ErrNoUserDataStream) {
		t.Errorf("ConnectUserDataStream = %v, want ErrNoUserDataStream", err)
	}
	if _, err := h.c.SubscribeUserOrders(func(model.OrderUpdate) {}); !errors.Is(err, ErrNoUserDataStream) {
		t.Errorf("SubscribeUserOrders = %v, want ErrNoUserDataStream", err)
	}
	if h.c.IsUserDataStreamConnected() {
		t.Error("IsUserDataStreamConnected = true without a stream")
	}
}

func TestConnector_DisconnectWebSocketClearsSubscriptions(t *testing.T) {
	h := newHarness(testConnectorConfig(), nil)
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	h.c.SubscribeTicker("BTC/USDT", func(model.TickerUpdate) {})
	h.c.DisconnectWebSocket()

	if h.c.IsConnected() {
		t.Error("expected not connected after DisconnectWebSocket")
	}
	if n := h.c.registry.Len(); n != 0 {
		t.Errorf("registry len = %d after DisconnectWebSocket, want 0", n)
	}
	if h.c.WebSocketStatus() != model.StateDisconnected {
		t.Errorf("WebSocketStatus = %v, want disconnected", h.c.WebSocketStatus())
	}
}
