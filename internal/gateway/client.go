package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
)

const writeWait = 10 * time.Second

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrSlowConsumer = errors.New("client send buffer full")
)

// Client is a websocket connection past the handshake. Frames are queued
// and written by a single writer goroutine; a client whose queue is full is
// disconnected.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Participant *domain.Participant // nil for anonymous connections
	ConnectedAt time.Time

	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	seq          atomic.Int64
	pingInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	log    *logging.Logger
}

// NewClient wraps an upgraded connection. participant may be nil.
func NewClient(conn *websocket.Conn, info ClientInfo, participant *domain.Participant, sendBuffer int, pingInterval time.Duration, log *logging.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Client{
		ConnID:       id,
		Info:         info,
		Participant:  participant,
		ConnectedAt:  time.Now(),
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		ctx:          ctx,
		cancel:       cancel,
		log:          log.With("connId", id),
	}
}

// ID identifies the client to the realtime hub.
func (c *Client) ID() string { return c.ConnID }

// Context is cancelled when the client closes.
func (c *Client) Context() context.Context { return c.ctx }

// Done is closed when the client closes.
func (c *Client) Done() <-chan struct{} { return c.done }

// Deliver queues a hub event for the client.
func (c *Client) Deliver(event string, payload any) error {
	return c.SendEvent(event, payload)
}

// Send queues a frame. It never blocks.
func (c *Client) Send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.log.Warn().Int("buffer", cap(c.send)).Msg("send buffer full, disconnecting slow client")
		c.Close()
		return ErrSlowConsumer
	}
}

// SendEvent queues a named event with the next sequence number.
func (c *Client) SendEvent(event string, payload any) error {
	f, err := NewEvent(event, payload, c.seq.Add(1))
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond queues a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError queues an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// startWriter arms the pong deadline and starts the writer goroutine.
func (c *Client) startWriter() {
	pongWait := 2 * c.pingInterval
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.writeLoop()
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// Close closes the connection. The send queue is never closed, so late
// publishers see ErrClientClosed instead of panicking.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// ClientRegistry manages connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	ev := r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID)
	if c.Participant != nil {
		ev = ev.Str("participant", c.Participant.String())
	}
	ev.Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
