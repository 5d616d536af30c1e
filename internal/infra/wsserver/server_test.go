package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"convert_invoices/internal/domain"

	"github.com/gorilla/websocket"
)

// fakeSession echoes every input straight into its state.
type fakeSession struct {
	mu       sync.Mutex
	state    domain.ConversionState
	onUpdate func(domain.ConversionState)
	ran      chan struct{}
	exited   chan struct{}
}

func (f *fakeSession) Run(ctx context.Context) {
	close(f.ran)
	<-ctx.Done()
	close(f.exited)
}

func (f *fakeSession) apply(fn func(*domain.ConversionState)) {
	f.mu.Lock()
	fn(&f.state)
	f.state.Seq++
	s := f.state
	f.mu.Unlock()
	f.onUpdate(s)
}

func (f *fakeSession) SetFromCurrency(n string) {
	f.apply(func(s *domain.ConversionState) { s.FromCurrency = n })
}
func (f *fakeSession) SetToCurrency(n string) {
	f.apply(func(s *domain.ConversionState) { s.ToCurrency = n })
}
func (f *fakeSession) SetAmount(a string) {
	f.apply(func(s *domain.ConversionState) { s.Amount = a })
}
func (f *fakeSession) ToggleIDontCare() {
	f.apply(func(s *domain.ConversionState) { s.IDontCare = !s.IDontCare })
}

func (f *fakeSession) InvoiceTerms(dest string) (domain.InvoiceTerms, error) {
	if dest == "" {
		return domain.InvoiceTerms{}, domain.ValidationError("invoice", context.Canceled)
	}
	return domain.InvoiceTerms{Amount: 150000000, Destination: dest, RequestedCurrencyID: "i5w5MuNik5NtLcYmNzcvaoixooEebB6MGV"}, nil
}

func (f *fakeSession) Snapshot() domain.ConversionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type testServer struct {
	*httptest.Server
	ws       *Server
	mu       sync.Mutex
	sessions []*fakeSession
}

func newTestServer(t *testing.T, origins []string) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.ws = NewServer(func(id string, onUpdate func(domain.ConversionState)) Session {
		s := &fakeSession{onUpdate: onUpdate, ran: make(chan struct{}), exited: make(chan struct{})}
		ts.mu.Lock()
		ts.sessions = append(ts.sessions, s)
		ts.mu.Unlock()
		return s
	}, origins)
	ts.ws.PingInterval = 50 * time.Millisecond
	ts.Server = httptest.NewServer(ts.ws.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func httpToWS(url string) string {
	return "ws" + strings.TrimPrefix(url, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(httpToWS(url)+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return msg
}

// readUntil skips messages until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(serverMessage) bool) serverMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := readMsg(t, conn); match(msg) {
			return msg
		}
	}
	t.Fatal("expected message never arrived")
	return serverMessage{}
}

func TestServer_InitialStateAndUpdates(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.URL)

	first := readMsg(t, conn)
	if first.Type != TypeState || first.State == nil {
		t.Fatalf("expected initial state, got %+v", first)
	}

	if err := conn.WriteJSON(clientMessage{Op: OpSetFromCurrency, Value: "tBTC.vETH"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(clientMessage{Op: OpSetAmount, Value: "1.5"}); err != nil {
		t.Fatal(err)
	}

	msg := readUntil(t, conn, func(m serverMessage) bool {
		return m.Type == TypeState && m.State.Amount == "1.5"
	})
	if msg.State.FromCurrency != "tBTC.vETH" {
		t.Errorf("expected from tBTC.vETH, got %q", msg.State.FromCurrency)
	}
}

func TestServer_InvoiceTerms(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.URL)
	readMsg(t, conn)

	if err := conn.WriteJSON(clientMessage{Op: OpInvoiceTerms, Value: "alice@"}); err != nil {
		t.Fatal(err)
	}
	msg := readUntil(t, conn, func(m serverMessage) bool { return m.Type != TypeState })
	if msg.Type != TypeInvoice || msg.Invoice == nil {
		t.Fatalf("expected invoice, got %+v", msg)
	}
	if msg.Invoice.Amount != 150000000 || msg.Invoice.Destination != "alice@" {
		t.Errorf("unexpected terms: %+v", msg.Invoice)
	}

	if err := conn.WriteJSON(clientMessage{Op: OpInvoiceTerms}); err != nil {
		t.Fatal(err)
	}
	msg = readUntil(t, conn, func(m serverMessage) bool { return m.Type != TypeState })
	if msg.Type != TypeError || msg.Kind != "VALIDATION_ERROR" {
		t.Errorf("expected validation error, got %+v", msg)
	}
}

func TestServer_RejectsBadMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.URL)
	readMsg(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	msg := readUntil(t, conn, func(m serverMessage) bool { return m.Type != TypeState })
	if msg.Type != TypeError || msg.Kind != "VALIDATION_ERROR" {
		t.Errorf("expected validation error, got %+v", msg)
	}

	if err := conn.WriteJSON(clientMessage{Op: "launchRocket"}); err != nil {
		t.Fatal(err)
	}
	msg = readUntil(t, conn, func(m serverMessage) bool { return m.Type != TypeState })
	if msg.Type != TypeError || !strings.Contains(msg.Message, "launchRocket") {
		t.Errorf("expected unknown op error, got %+v", msg)
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.URL)
	readMsg(t, conn)

	if n := ts.ws.SessionCount(); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}
	if snaps := ts.ws.Snapshots(); len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}

	ts.mu.Lock()
	sess := ts.sessions[0]
	ts.mu.Unlock()
	select {
	case <-sess.ran:
	case <-time.After(time.Second):
		t.Fatal("session Run was not started")
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for ts.ws.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_Pings(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.URL)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})

	// Control frames are handled inside ReadMessage.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestServer_OriginCheck(t *testing.T) {
	ts := newTestServer(t, []string{"https://wallet.example"})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(httpToWS(ts.URL)+"/ws", header)
	if err == nil {
		t.Fatal("expected handshake to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}

	header.Set("Origin", "https://wallet.example")
	conn, _, err := websocket.DefaultDialer.Dial(httpToWS(ts.URL)+"/ws", header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Sessions != 0 {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestServer_ShutdownClosesSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts.URL)
	readMsg(t, conn)

	ts.mu.Lock()
	sess := ts.sessions[0]
	ts.mu.Unlock()
	<-sess.ran

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ts.ws.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case <-sess.exited:
	default:
		t.Fatal("Shutdown returned before the session stopped")
	}
	if n := ts.ws.SessionCount(); n != 0 {
		t.Errorf("SessionCount = %d after shutdown", n)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.Logf("connection ended with %v", err)
			}
			break
		}
	}

	late := dial(t, ts.URL)
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close for a late connection, got %v", err)
	}
}
