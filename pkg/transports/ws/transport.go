// Package ws serves chat conversations over websockets, one conversation
// per connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/agrichat/pkg/chat"
	"github.com/harunnryd/agrichat/pkg/logging"
	"github.com/harunnryd/agrichat/pkg/redact"
	"github.com/harunnryd/agrichat/pkg/turn"
)

type Config struct {
	ServerAddr     string        `mapstructure:"addr"`
	ChatPath       string        `mapstructure:"chat_path"`
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxMessage     int64         `mapstructure:"max_message_bytes"`
	// Routes are extra handlers mounted on the same server, e.g. /metrics.
	Routes map[string]http.Handler `mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.ChatPath == "" {
		c.ChatPath = "/chat"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessage <= 0 {
		c.MaxMessage = 16 << 10
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Message is the server → client envelope.
type Message struct {
	Type   string       `json:"type"`
	TurnID string       `json:"turnId,omitempty"`
	State  string       `json:"state,omitempty"`
	Output *chat.Output `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

const (
	MessageAccepted = "accepted"
	MessageState    = "state"
	MessageTurn     = "turn"
	MessageError    = "error"
)

type Transport struct {
	cfg      Config
	hub      *chat.Hub
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger
	addr     atomic.Value
	draining atomic.Bool
}

func New(cfg Config, hub *chat.Hub, logger *slog.Logger) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logging.NewComponentLogger(logger, "ws_transport"),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "websocket" }

func (t *Transport) ReadyFields() map[string]any {
	addr, _ := t.addr.Load().(string)
	if addr == "" {
		addr = t.cfg.ServerAddr
	}
	return map[string]any{"addr": addr, "chat_path": t.cfg.ChatPath}
}

// Handler returns the mux served by Start, for embedding in tests.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(t.cfg.ChatPath, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if t.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	for path, h := range t.cfg.Routes {
		if h != nil {
			mux.Handle(path, h)
		}
	}
	return mux
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return err
	}
	t.addr.Store(ln.Addr().String())
	t.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("ws_server_error", "error", err.Error())
		}
	}()
	return nil
}

// Stop refuses new connections and closes the listener. Open
// conversations are torn down by the hub's drain.
func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(t.cfg.MaxMessage)
	sess := &session{conn: conn, writeTimeout: t.cfg.WriteTimeout}
	defer sess.close()

	conv := t.hub.Open()
	defer conv.Close()
	logger := t.logger.With("conversation_id", conv.ID())
	logger.Info("conversation_opened", "remote", r.RemoteAddr)

	conv.States().AddListener(turn.ListenerFunc(func(ev turn.StateChange) {
		_ = sess.write(Message{Type: MessageState, TurnID: ev.TurnID, State: ev.ToState.String()})
	}))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for out := range conv.Results() {
			if err := sess.write(Message{Type: MessageTurn, TurnID: out.TurnID, Output: &out}); err != nil {
				logger.Warn("ws_send_failed", "turn_id", out.TurnID, "error", err)
			}
		}
		// Results closes when the hub drains the conversation; closing the
		// socket unblocks the read loop below.
		sess.close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in chat.Input
		if err := json.Unmarshal(msg, &in); err != nil {
			_ = sess.write(Message{Type: MessageError, Error: "invalid input"})
			continue
		}
		// accepted goes out before the turn is queued so it always precedes
		// the turn's state messages.
		id := uuid.NewString()
		if err := sess.write(Message{Type: MessageAccepted, TurnID: id}); err != nil {
			break
		}
		if err := conv.SubmitAs(context.Background(), id, in); err != nil {
			logger.Debug("submit_rejected", "turn_id", id, "error", err, "text", redact.Snippet(in.Text, 40))
			_ = sess.write(Message{Type: MessageError, TurnID: id, Error: "conversation closed"})
			break
		}
	}
	conv.Close()
	<-writerDone
	logger.Info("conversation_closed")
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

// session serializes writes; gorilla connections allow one concurrent
// writer.
type session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       bool
}

func (s *session) write(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = s.conn.Close()
}
