package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/agrichat/pkg/catalog"
	"github.com/harunnryd/agrichat/pkg/chain"
	"github.com/harunnryd/agrichat/pkg/chat"
	"github.com/harunnryd/agrichat/pkg/intent"
	"github.com/harunnryd/agrichat/pkg/language"
)

func newHub(t *testing.T) *chat.Hub {
	t.Helper()
	set, err := language.Builtin()
	require.NoError(t, err)
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	ch, err := chain.New(chain.Config{Catalog: cat, Names: set})
	require.NoError(t, err)
	orch, err := chat.NewOrchestrator(chat.Options{Matcher: language.NewMatcher(set), Chain: ch, Catalog: cat})
	require.NoError(t, err)
	return chat.NewHub(orch, 4)
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readUntilTurn(t *testing.T, conn *websocket.Conn) (Message, []Message) {
	t.Helper()
	var seen []Message
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		seen = append(seen, msg)
		if msg.Type == MessageTurn {
			return msg, seen
		}
	}
}

func TestChatOverWebsocket(t *testing.T) {
	hub := newHub(t)
	tr := New(Config{}, hub, nil)
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/chat")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chat.Input{Text: "Ina son farashi na masara a kasuwa"}))
	turnMsg, seen := readUntilTurn(t, conn)
	require.NotNil(t, turnMsg.Output)
	require.Equal(t, "ha", turnMsg.Output.DetectedLanguage)
	require.Equal(t, intent.Market, turnMsg.Output.Intent)
	require.Equal(t, chain.FallbackName, turnMsg.Output.Provider)

	var states []string
	for _, m := range seen {
		if m.Type == MessageState {
			states = append(states, m.State)
		}
	}
	require.Contains(t, states, "GENERATING")
	require.Equal(t, 1, hub.Len())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == MessageError {
			break
		}
	}

	conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestAcceptedPrecedesTurnStates(t *testing.T) {
	tr := New(Config{}, newHub(t), nil)
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/chat")
	defer conn.Close()

	texts := []string{"Will it rain tomorrow?", "fall armyworm on my maize", "best seed variety for cassava"}
	for _, text := range texts {
		require.NoError(t, conn.WriteJSON(chat.Input{Text: text}))
	}

	accepted := map[string]bool{}
	turns := 0
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for turns < len(texts) {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case MessageAccepted:
			accepted[msg.TurnID] = true
		case MessageState, MessageTurn:
			require.True(t, accepted[msg.TurnID], "%s for turn %s arrived before accepted", msg.Type, msg.TurnID)
			if msg.Type == MessageTurn {
				turns++
			}
		}
	}
	require.Len(t, accepted, len(texts))
}

func TestHealthAndExtraRoutes(t *testing.T) {
	metricsHit := false
	tr := New(Config{Routes: map[string]http.Handler{
		"/metrics": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { metricsHit = true }),
	}}, newHub(t), nil)
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.True(t, metricsHit)

	require.NoError(t, tr.Stop())
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	tr := New(Config{AllowedOrigins: []string{"https://agri.example.com", "farm.example.org"}}, nil, nil)
	cases := map[string]bool{
		"":                         true,
		"https://agri.example.com": true,
		"http://farm.example.org":  true,
		"https://evil.example.com": false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/chat", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := tr.checkOrigin(r); got != want {
			t.Fatalf("origin %q: expected %v, got %v", origin, want, got)
		}
	}
}

func TestMessageJSON(t *testing.T) {
	b, err := json.Marshal(Message{Type: MessageAccepted, TurnID: "t1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"accepted","turnId":"t1"}`, string(b))
}

func TestHubDrainClosesSocket(t *testing.T) {
	hub := newHub(t)
	tr := New(Config{}, hub, nil)
	srv := httptest.NewServer(tr.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/chat")
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Drain(ctx))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}
}
