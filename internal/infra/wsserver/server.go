// Package wsserver exposes conversion sessions over WebSocket.
//
// Each connection owns one session. The client sends operations and the
// server pushes the full session state after every change.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"convert_invoices/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client operations.
const (
	OpSetFromCurrency = "setFromCurrency"
	OpSetToCurrency   = "setToCurrency"
	OpSetAmount       = "setAmount"
	OpToggleIDontCare = "toggleIDontCare"
	OpInvoiceTerms    = "invoiceTerms"
)

// Server message types.
const (
	TypeState   = "state"
	TypeInvoice = "invoice"
	TypeError   = "error"
)

var (
	errUnknownOp    = errors.New("unknown operation")
	ErrShuttingDown = errors.New("server shutting down")
)

// Session is the per-connection state machine.
type Session interface {
	Run(ctx context.Context)
	SetFromCurrency(systemName string)
	SetToCurrency(systemName string)
	SetAmount(amount string)
	ToggleIDontCare()
	InvoiceTerms(destination string) (domain.InvoiceTerms, error)
	Snapshot() domain.ConversionState
}

// SessionFactory builds a session; onUpdate must receive every state change.
type SessionFactory func(id string, onUpdate func(domain.ConversionState)) Session

type clientMessage struct {
	Op    string `json:"op"`
	Value string `json:"value,omitempty"`
}

type serverMessage struct {
	Type    string                  `json:"type"`
	State   *domain.ConversionState `json:"state,omitempty"`
	Invoice *domain.InvoiceTerms    `json:"invoice,omitempty"`
	Kind    string                  `json:"kind,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// Server upgrades HTTP requests to session connections.
type Server struct {
	newSession SessionFactory
	upgrader   websocket.Upgrader

	// ctx parents every session; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	active sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]Session
	closing  bool

	ReadTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// NewServer accepts origins from allowedOrigins; "*" allows any. With no
// origins configured only same-host requests are accepted.
func NewServer(factory SessionFactory, allowedOrigins []string) *Server {
	s := &Server{
		newSession:   factory,
		sessions:     make(map[string]Session),
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil // gorilla's same-host default
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set["*"] || set[r.Header.Get("Origin")]
	}
}

// Handler serves /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "sessions": s.SessionCount()})
	})
	return mux
}

// SessionCount returns the number of live connections.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshots returns the state of every live session.
func (s *Server) Snapshots() map[string]domain.ConversionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.ConversionState, len(s.sessions))
	for id, sess := range s.sessions {
		out[id] = sess.Snapshot()
	}
	return out
}

// ServeHTTP runs one session for the lifetime of the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WS Upgrade failed", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		return
	}

	id := uuid.NewString()
	c := newConn(conn, s.WriteTimeout, s.PingInterval)

	sess := s.newSession(id, c.pushState)
	if !s.track(id, sess) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrShuttingDown.Error()),
			time.Now().Add(s.WriteTimeout))
		conn.Close()
		return
	}
	defer s.untrack(id)

	// Hijacked connections outlive http.Server.Shutdown, so sessions hang
	// off the server context rather than the request.
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sess.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
		cancel()
		conn.Close() // unblocks the reader
	}()

	slog.Info("WS Session opened", slog.String("id", id), slog.String("remote", r.RemoteAddr))
	c.pushState(sess.Snapshot())

	s.readLoop(ctx, conn, sess, c)

	cancel()
	conn.Close()
	wg.Wait()
	slog.Info("WS Session closed", slog.String("id", id))
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess Session, c *wsConn) {
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("WS Read error", slog.Any("error", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(ctx, errorMessage(domain.ValidationError("ws", fmt.Errorf("malformed message: %w", err))))
			continue
		}
		if reply := dispatch(sess, msg); reply != nil {
			c.reply(ctx, reply)
		}
	}
}

// dispatch applies msg to sess and returns an immediate reply, if any.
func dispatch(sess Session, msg clientMessage) *serverMessage {
	switch msg.Op {
	case OpSetFromCurrency:
		sess.SetFromCurrency(msg.Value)
	case OpSetToCurrency:
		sess.SetToCurrency(msg.Value)
	case OpSetAmount:
		sess.SetAmount(msg.Value)
	case OpToggleIDontCare:
		sess.ToggleIDontCare()
	case OpInvoiceTerms:
		terms, err := sess.InvoiceTerms(msg.Value)
		if err != nil {
			return errorMessage(err)
		}
		return &serverMessage{Type: TypeInvoice, Invoice: &terms}
	default:
		return errorMessage(domain.ValidationError("ws", fmt.Errorf("%w: %q", errUnknownOp, msg.Op)))
	}
	return nil
}

func errorMessage(err error) *serverMessage {
	return &serverMessage{Type: TypeError, Kind: domain.KindOf(err).String(), Message: err.Error()}
}

// track registers a session unless Shutdown has started.
func (s *Server) track(id string, sess Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[id] = sess
	s.active.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.active.Done()
}

// Shutdown refuses new sessions, closes live ones and waits until every
// session goroutine has returned or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	n := len(s.sessions)
	s.mu.Unlock()

	slog.Info("WS Closing sessions", slog.Int("count", n))
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wsserver shutdown: %w", ctx.Err())
	}
}
