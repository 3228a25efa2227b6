package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/hooks"
	"github.com/sunilpie-kumar/kustom-backend/internal/realtime"
	"github.com/sunilpie-kumar/kustom-backend/internal/version"
)

const handshakeTimeout = 10 * time.Second

// handshakeError is reported to the peer before the socket is dropped.
type handshakeError struct {
	reqID string
	code  string
	msg   string
	err   error
}

func (e *handshakeError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *handshakeError) Unwrap() error { return e.err }

// socketOriginCheck accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func socketOriginCheck(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// handleWebSocket upgrades the request and serves the socket until it
// disconnects. Authenticated sockets join their personal channel.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn, bearerToken(r))
	if err != nil {
		var hsErr *handshakeError
		if errors.As(err, &hsErr) {
			rejectConnect(conn, hsErr)
		}
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		conn.Close()
		return
	}

	s.attach(client)
	defer s.detach(client)

	s.serveFrames(client)
}

func (s *Server) attach(c *Client) {
	c.startWriter()
	if c.Participant != nil {
		s.hub.Join(c.Participant.String(), c)
	}
	s.clients.Add(c)
	s.metrics.ConnectionOpened()
	s.hooks.EmitAsync(c.Context(), hooks.EventClientConnected, clientHookData(c))
}

func (s *Server) detach(c *Client) {
	s.hub.Detach(c)
	s.clients.Remove(c.ConnID)
	c.Close()
	s.metrics.ConnectionClosed()
	s.hooks.EmitAsync(context.Background(), hooks.EventClientDisconnected, clientHookData(c))
}

func clientHookData(c *Client) map[string]any {
	data := map[string]any{"connId": c.ConnID, "client": c.Info.ID}
	if c.Participant != nil {
		data["participant"] = c.Participant.String()
	}
	return data
}

// handshake sends connect.challenge, waits for the connect request and
// answers hello-ok. The token in the connect params wins over the upgrade
// request's Authorization header. A missing or rejected token leaves the
// client anonymous.
func (s *Server) handshake(conn *websocket.Conn, headerToken string) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("write challenge: %w", err)
	}

	reqID, params, err := readConnect(conn)
	if err != nil {
		return nil, err
	}

	token := headerToken
	if params.Auth != nil && params.Auth.Token != "" {
		token = params.Auth.Token
	}
	participant := s.identify(token)

	ping := time.Duration(s.cfg.Realtime.PingIntervalSeconds) * time.Second
	client := NewClient(conn, params.Client, participant, s.cfg.Realtime.SendBuffer, ping, s.log.Sub("ws"))

	resp, err := NewResponse(reqID, s.hello(client))
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("write hello: %w", err)
	}

	ev := s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Bool("anonymous", participant == nil)
	if participant != nil {
		ev = ev.Stringer("participant", participant)
	}
	ev.Msg("client connected")
	return client, nil
}

// readConnect reads the first client frame, which must be a connect request.
func readConnect(conn *websocket.Conn) (string, ConnectParams, error) {
	var params ConnectParams

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", params, fmt.Errorf("read connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", params, fmt.Errorf("decode connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		return "", params, &handshakeError{
			reqID: frame.ID,
			code:  "protocol_error",
			msg:   "expected connect request",
			err:   fmt.Errorf("got type=%q method=%q", frame.Type, frame.Method),
		}
	}
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			return "", params, &handshakeError{
				reqID: frame.ID,
				code:  "invalid_argument",
				msg:   "invalid connect params",
				err:   err,
			}
		}
	}
	return frame.ID, params, nil
}

// identify resolves a bearer token to a participant, or nil.
func (s *Server) identify(token string) *domain.Participant {
	if token == "" {
		return nil
	}
	p, err := s.auth.Verify(token)
	if err != nil {
		s.log.Debug().Err(err).Msg("socket token rejected, continuing anonymously")
		return nil
	}
	return &p
}

func (s *Server) hello(c *Client) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Get().Commit,
			ConnID:  c.ConnID,
		},
		Participant: c.Participant,
		Features: Features{
			Methods: s.Methods(),
			Events: []string{
				"connect.challenge",
				realtime.EventNewMessage,
				realtime.EventNotify,
				realtime.EventRead,
				realtime.EventTyping,
			},
		},
		Policy: ServerPolicy{
			MaxPayload:     maxPayload,
			SendBuffer:     cap(c.send),
			TickIntervalMs: int(c.pingInterval.Milliseconds()),
		},
	}
}

// rejectConnect answers a bad connect request and closes the socket.
func rejectConnect(conn *websocket.Conn, e *handshakeError) {
	resp := NewErrorResponse(e.reqID, ErrorShape{Code: e.code, Message: e.msg})
	conn.WriteJSON(resp)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, e.msg))
}

// serveFrames answers requests until the socket fails. Malformed frames
// get an error response and the connection stays open. Requests are
// handled on this goroutine, so a client's responses arrive in order.
func (s *Server) serveFrames(c *Client) {
	for {
		frame, err := c.ReadFrame()
		switch {
		case err == nil:
		case isDecodeError(err):
			c.RespondError("", ErrorShape{Code: "invalid_argument", Message: "malformed frame"})
			continue
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			s.log.Debug().Str("connId", c.ConnID).Msg("client closed connection")
			return
		default:
			s.log.Debug().Err(err).Str("connId", c.ConnID).Msg("socket read failed")
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("connId", c.ConnID).Str("type", frame.Type).Msg("dropping non-request frame")
			continue
		}
		s.dispatch(c, frame)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (s *Server) dispatch(c *Client, frame Frame) {
	handler, ok := s.rpc[frame.Method]
	if !ok {
		c.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: fmt.Sprintf("unknown method %q", frame.Method),
		})
		return
	}
	handler(&RequestContext{Client: c, Frame: frame, Server: s})
}
