package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunilpie-kumar/kustom-backend/internal/chat"
	"github.com/sunilpie-kumar/kustom-backend/internal/config"
	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
	"github.com/sunilpie-kumar/kustom-backend/internal/realtime"
	"github.com/sunilpie-kumar/kustom-backend/internal/store"
)

const testSecret = "test-secret-0123456789"

var (
	alice = domain.User("u1")
	acme  = domain.Provider("p1")
	bob   = domain.User("u2")
)

type testEnv struct {
	srv *Server
	ts  *httptest.Server
	db  *store.DB
	hub *realtime.Hub
}

func testServer(t *testing.T, opts ...ServerOption) *testEnv {
	return testServerWithConfig(t, func(*config.Config) {}, opts...)
}

func testServerWithConfig(t *testing.T, mutate func(*config.Config), opts ...ServerOption) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = testSecret
	cfg.Gateway.RateLimit.Requests = 0
	mutate(&cfg)

	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := realtime.NewHub(log, nil)
	svc := chat.NewFromDB(db, chat.Config{
		Notifier: realtime.NewFanout(hub),
		Log:      log,
	})

	srv, err := New(cfg, svc, hub, log, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testEnv{srv: srv, ts: ts, db: db, hub: hub}
}

func (e *testEnv) token(t *testing.T, p domain.Participant) string {
	t.Helper()
	tok, err := e.srv.Authenticator().Sign(p, time.Hour)
	require.NoError(t, err)
	return tok
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a JSON request and decodes the response envelope.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, testEnvelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env testEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (e *testEnv) ensure(t *testing.T, caller, peer domain.Participant) domain.Conversation {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/chat/conversations/ensure", e.token(t, caller),
		map[string]string{"peerType": string(peer.Type), "peerId": peer.ID})
	require.Equal(t, http.StatusOK, status, env.Message)
	var data struct {
		Conversation domain.Conversation `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Conversation
}

// dial connects and completes the handshake. An empty token connects
// anonymously.
func (e *testEnv) dial(t *testing.T, token string) (*websocket.Conn, HelloOK) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, "connect.challenge", challenge.Event)

	params := ConnectParams{Client: ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"}}
	if token != "" {
		params.Auth = &ConnectAuth{Token: token}
	}
	req, err := NewRequest("connect-1", "connect", params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var res Frame
	require.NoError(t, conn.ReadJSON(&res))
	require.NotNil(t, res.OK)
	require.True(t, *res.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(res.Payload, &hello))
	return conn, hello
}

// call sends a request and returns its response, skipping events.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))
	for {
		f := readFrame(t, conn)
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

// waitEvent reads frames until the named event arrives.
func waitEvent(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	for {
		f := readFrame(t, conn)
		if f.Type == FrameTypeEvent && f.Event == event {
			return f
		}
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func requireOK(t *testing.T, f Frame) {
	t.Helper()
	require.NotNil(t, f.OK)
	if !*f.OK {
		require.Failf(t, "rpc failed", "%s: %s", f.Error.Code, f.Error.Message)
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	cfg := config.Defaults()
	log := logging.New(nil, "silent")
	_, err := New(cfg, nil, realtime.NewHub(log, nil), log)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestHealthEndpoint(t *testing.T) {
	env := testServer(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	// Public endpoint only returns status
	assert.Empty(t, health.Version)
}

func TestHealthEndpoint_Unavailable(t *testing.T) {
	env := testServer(t, WithHealthCheck(func(context.Context) error {
		return errors.New("database is locked")
	}))

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "unavailable", health.Status)
}

func TestNotFoundEndpoint(t *testing.T) {
	env := testServer(t)

	status, body := env.do(t, http.MethodGet, "/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "/nonexistent")
}

func TestMethods_Sorted(t *testing.T) {
	env := testServer(t)
	methods := env.srv.Methods()
	assert.IsNonDecreasing(t, methods)
	assert.Contains(t, methods, "chat.join")
	assert.Contains(t, methods, "chat.messages.send")
}

// Start must not return while a request accepted before cancellation is
// still being served.
func TestStart_DrainsInFlightRequests(t *testing.T) {
	hm := hooks.NewManager(logging.New(nil, "silent"))
	addrs := make(chan string, 1)
	hm.On(hooks.EventGatewayStart, "addr", func(_ context.Context, p hooks.Payload) error {
		addrs <- p.Data["addr"].(string)
		return nil
	})
	env := testServerWithConfig(t, func(c *config.Config) {
		c.Gateway.Bind = "loopback"
		c.Gateway.Port = 0
	}, WithHooks(hm))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.srv.Start(ctx) }()

	var addr string
	select {
	case addr = <-addrs:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not start")
	}

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	body := `{"peerType":"provider","peerId":"p1"}`
	_, err = fmt.Fprintf(conn, "POST /api/chat/conversations/ensure HTTP/1.1\r\nHost: %s\r\n"+
		"Authorization: Bearer %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s",
		addr, env.token(t, alice), len(body), body[:10])
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		t.Fatalf("Start returned with a request in flight: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	_, err = io.WriteString(conn, body[10:])
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownGrace):
		t.Fatal("Start did not return after draining")
	}
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.GatewayConfig
		want string
	}{
		{config.GatewayConfig{Port: 5000, Bind: "loopback"}, "127.0.0.1:5000"},
		{config.GatewayConfig{Port: 5000, Bind: "lan"}, "0.0.0.0:5000"},
		{config.GatewayConfig{Port: 5000, Bind: "auto"}, "0.0.0.0:5000"},
		{config.GatewayConfig{Port: 5000, Bind: "custom", CustomBindHost: "10.0.0.2"}, "10.0.0.2:5000"},
		{config.GatewayConfig{Port: 5000, Bind: "custom"}, "0.0.0.0:5000"},
		{config.GatewayConfig{Port: 5000}, "127.0.0.1:5000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
	}
}

// --- WebSocket handshake ---

func TestWebSocketHandshake_Authenticated(t *testing.T) {
	env := testServer(t)

	_, hello := env.dial(t, env.token(t, alice))

	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	require.NotNil(t, hello.Participant)
	assert.True(t, hello.Participant.Equal(alice))
	assert.Contains(t, hello.Features.Methods, "chat.typing")
	assert.Contains(t, hello.Features.Events, realtime.EventNewMessage)
	assert.Greater(t, hello.Policy.MaxPayload, 0)

	// The personal channel is joined on connect.
	assert.Eventually(t, func() bool { return env.hub.Members(alice.String()) == 1 },
		time.Second, 10*time.Millisecond)
}

func TestWebSocketHandshake_Anonymous(t *testing.T) {
	env := testServer(t)

	_, hello := env.dial(t, "")
	assert.Nil(t, hello.Participant)
	assert.NotEmpty(t, hello.Server.ConnID)
}

func TestWebSocketHandshake_InvalidTokenIsAnonymous(t *testing.T) {
	env := testServer(t)

	_, hello := env.dial(t, "not-a-jwt")
	assert.Nil(t, hello.Participant)
}

func TestWebSocketHandshake_HeaderToken(t *testing.T) {
	env := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + env.token(t, acme)}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("c1", "connect", ConnectParams{Client: ClientInfo{ID: "hdr"}})
	require.NoError(t, conn.WriteJSON(req))

	var res Frame
	require.NoError(t, conn.ReadJSON(&res))
	var hello HelloOK
	require.NoError(t, json.Unmarshal(res.Payload, &hello))
	require.NotNil(t, hello.Participant)
	assert.True(t, hello.Participant.Equal(acme))
}

func TestWebSocketHandshake_ExpectsConnect(t *testing.T) {
	env := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("r1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	require.NotNil(t, errResp.OK)
	assert.False(t, *errResp.OK)
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "protocol_error", errResp.Error.Code)
}

// --- RPC ---

func TestWebSocketRPCHealth(t *testing.T) {
	env := testServer(t)
	conn, _ := env.dial(t, env.token(t, alice))

	resp := call(t, conn, "req-2", "health", nil)
	requireOK(t, resp)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
	assert.NotEmpty(t, health.Version)
}

func TestWebSocketUnknownMethod(t *testing.T) {
	env := testServer(t)
	conn, _ := env.dial(t, "")

	resp := call(t, conn, "req-1", "nope", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	env := testServer(t)
	conn, _ := env.dial(t, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := readFrame(t, conn)
	require.NotNil(t, f.Error)
	assert.Equal(t, "invalid_argument", f.Error.Code)

	requireOK(t, call(t, conn, "after", "health", nil))
}

func TestWebSocketAnonymousCannotList(t *testing.T) {
	env := testServer(t)
	conn, _ := env.dial(t, "")

	resp := call(t, conn, "l1", "chat.conversations.list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unauthenticated", resp.Error.Code)
}

func TestWebSocketJoinRequiresMembership(t *testing.T) {
	env := testServer(t)
	conv := env.ensure(t, alice, acme)

	conn, _ := env.dial(t, env.token(t, bob))
	resp := call(t, conn, "j1", "chat.join", conversationParams{ConversationID: conv.ID})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
	assert.Equal(t, 0, env.hub.Members(conv.Channel()))
}

func TestWebSocketJoinAndLeave(t *testing.T) {
	env := testServer(t)
	conv := env.ensure(t, alice, acme)

	conn, _ := env.dial(t, env.token(t, alice))
	requireOK(t, call(t, conn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))
	assert.Equal(t, 1, env.hub.Members(conv.Channel()))

	requireOK(t, call(t, conn, "l1", "chat.leave", conversationParams{ConversationID: conv.ID}))
	assert.Equal(t, 0, env.hub.Members(conv.Channel()))
}

func TestWebSocketEnsureAndList(t *testing.T) {
	env := testServer(t)
	conn, _ := env.dial(t, env.token(t, alice))

	resp := call(t, conn, "e1", "chat.conversations.ensure", peerParams{PeerType: "provider", PeerID: "p1"})
	requireOK(t, resp)
	var ensured struct {
		Conversation domain.Conversation `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &ensured))
	assert.True(t, ensured.Conversation.Has(acme))

	resp = call(t, conn, "e2", "chat.conversations.ensure", peerParams{PeerType: "admin", PeerID: "x"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_argument", resp.Error.Code)
	assert.Equal(t, "peer", resp.Error.Field)

	resp = call(t, conn, "l1", "chat.conversations.list", nil)
	requireOK(t, resp)
	var listed struct {
		Conversations []domain.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &listed))
	require.Len(t, listed.Conversations, 1)
	assert.Equal(t, ensured.Conversation.ID, listed.Conversations[0].ID)
}

// A user and a provider exchange a message: the room sees it, the receiver
// gets a personal notification and read receipts flow back.
func TestWebSocketConversationFlow(t *testing.T) {
	env := testServer(t)
	conv := env.ensure(t, alice, acme)

	aliceConn, _ := env.dial(t, env.token(t, alice))
	acmeConn, _ := env.dial(t, env.token(t, acme))
	requireOK(t, call(t, aliceConn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))
	requireOK(t, call(t, acmeConn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))

	resp := call(t, aliceConn, "s1", "chat.messages.send", sendRequest{ConversationID: conv.ID, Content: "hello"})
	requireOK(t, resp)

	ev := waitEvent(t, acmeConn, realtime.EventNewMessage)
	var pushed realtime.MessagePayload
	require.NoError(t, json.Unmarshal(ev.Payload, &pushed))
	assert.Equal(t, conv.ID, pushed.ConversationID)
	assert.Equal(t, "hello", pushed.Message.Content)
	assert.Equal(t, domain.ParticipantUser, pushed.Message.SenderType)

	ev = waitEvent(t, acmeConn, realtime.EventNotify)
	require.NoError(t, json.Unmarshal(ev.Payload, &pushed))
	assert.Equal(t, "hello", pushed.Message.Content)

	resp = call(t, acmeConn, "r1", "chat.read", conversationParams{ConversationID: conv.ID})
	requireOK(t, resp)
	var marked struct {
		Updated int64 `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &marked))
	assert.Equal(t, int64(1), marked.Updated)

	ev = waitEvent(t, aliceConn, realtime.EventRead)
	var read realtime.ReadPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &read))
	assert.True(t, read.Reader.Equal(acme))

	resp = call(t, acmeConn, "m1", "chat.messages.list", conversationParams{ConversationID: conv.ID})
	requireOK(t, resp)
	var listed struct {
		Messages []domain.MessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Payload, &listed))
	require.Len(t, listed.Messages, 1)
	assert.Len(t, listed.Messages[0].ReadBy, 2)
}

func TestWebSocketTypingSkipsSender(t *testing.T) {
	env := testServer(t)
	conv := env.ensure(t, alice, acme)

	aliceConn, _ := env.dial(t, env.token(t, alice))
	acmeConn, _ := env.dial(t, env.token(t, acme))
	requireOK(t, call(t, aliceConn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))
	requireOK(t, call(t, acmeConn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))

	req, _ := NewRequest("t1", "chat.typing", map[string]any{"conversationId": conv.ID})
	require.NoError(t, aliceConn.WriteJSON(req))

	// The typist's next frame is the response, not its own event.
	f := readFrame(t, aliceConn)
	assert.Equal(t, FrameTypeResponse, f.Type)
	assert.Equal(t, "t1", f.ID)

	ev := waitEvent(t, acmeConn, realtime.EventTyping)
	var typing realtime.TypingPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &typing))
	assert.Equal(t, conv.ID, typing.ConversationID)
	assert.True(t, typing.IsTyping)
	require.NotNil(t, typing.From)
	assert.True(t, typing.From.Equal(alice))
}

func TestWebSocketTypingRequiresMembership(t *testing.T) {
	env := testServer(t)
	conv := env.ensure(t, alice, acme)

	aliceConn, _ := env.dial(t, env.token(t, alice))
	requireOK(t, call(t, aliceConn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))

	bobConn, _ := env.dial(t, env.token(t, bob))
	resp := call(t, bobConn, "t1", "chat.typing", map[string]any{"conversationId": conv.ID})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)

	// Nothing was relayed, so alice's next frame is her own response.
	req, err := NewRequest("h1", "health", nil)
	require.NoError(t, err)
	require.NoError(t, aliceConn.WriteJSON(req))
	f := readFrame(t, aliceConn)
	assert.Equal(t, FrameTypeResponse, f.Type)
	assert.Equal(t, "h1", f.ID)
}

func TestWebSocketTypingAnonymous(t *testing.T) {
	env := testServer(t)
	conv := env.ensure(t, alice, acme)

	aliceConn, _ := env.dial(t, env.token(t, alice))
	requireOK(t, call(t, aliceConn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))

	anonConn, _ := env.dial(t, "")
	requireOK(t, call(t, anonConn, "t1", "chat.typing", map[string]any{"conversationId": conv.ID, "isTyping": false}))

	ev := waitEvent(t, aliceConn, realtime.EventTyping)
	var typing realtime.TypingPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &typing))
	assert.Nil(t, typing.From)
	assert.False(t, typing.IsTyping)
}

func TestWebSocketDisconnectDetaches(t *testing.T) {
	env := testServer(t)
	conv := env.ensure(t, alice, acme)

	conn, _ := env.dial(t, env.token(t, alice))
	requireOK(t, call(t, conn, "j1", "chat.join", conversationParams{ConversationID: conv.ID}))
	require.Equal(t, 1, env.hub.Members(conv.Channel()))

	conn.Close()
	assert.Eventually(t, func() bool {
		return env.hub.Members(conv.Channel()) == 0 && env.hub.Members(alice.String()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
