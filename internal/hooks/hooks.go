// Package hooks dispatches chat lifecycle events to registered handlers.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
)

const (
	EventConversationCreated = "conversation_created"
	EventMessageSent         = "message_sent"
	EventMessagesRead        = "messages_read"
	EventClientConnected     = "client_connected"
	EventClientDisconnected  = "client_disconnected"
	EventGatewayStart        = "gateway_start"
	EventGatewayStop         = "gateway_stop"
)

// AllEvents lists every event the gateway and chat service emit.
var AllEvents = []string{
	EventConversationCreated,
	EventMessageSent,
	EventMessagesRead,
	EventClientConnected,
	EventClientDisconnected,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload is what a handler receives. Command hooks get it as JSON on stdin.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to an event. Errors and panics are logged; they never
// stop the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

type registration struct {
	name string
	fn   Handler
}

// Manager holds handler registrations per event. A nil *Manager is valid
// and drops every emit.
type Manager struct {
	log *logging.Logger

	mu   sync.RWMutex
	regs map[string][]registration

	inflight sync.WaitGroup
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		log:  log.Sub("hooks"),
		regs: make(map[string][]registration),
	}
}

// On appends a handler for event. Handlers run in registration order.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	m.regs[event] = append(m.regs[event], registration{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off drops every handler called name from event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[event] = slices.DeleteFunc(m.regs[event], func(r registration) bool {
		return r.name == name
	})
}

func (m *Manager) handlersFor(event string) []registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.regs[event])
}

func (m *Manager) invoke(ctx context.Context, r registration, p Payload) {
	defer func() {
		if v := recover(); v != nil {
			m.log.Error().
				Str("event", p.Event).
				Str("handler", r.name).
				Str("panic", fmt.Sprint(v)).
				Msg("hook handler panicked")
		}
	}()
	if err := r.fn(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", r.name).Msg("hook handler failed")
	}
}

// Emit runs the handlers for event one after another and returns when the
// last has finished.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	regs := m.handlersFor(event)
	if len(regs) == 0 {
		return
	}
	p := Payload{Event: event, At: time.Now().UTC(), Data: data}
	for _, r := range regs {
		m.invoke(ctx, r, p)
	}
}

// EmitAsync starts each handler on its own goroutine and returns at once.
// The handlers keep ctx's values but not its cancellation, so they outlive
// the request that triggered them. Wait blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	regs := m.handlersFor(event)
	if len(regs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p := Payload{Event: event, At: time.Now().UTC(), Data: data}
	for _, r := range regs {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.invoke(ctx, r, p)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	if m != nil {
		m.inflight.Wait()
	}
}

// Count is the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.regs[event])
}

// Events lists, sorted, the events that have at least one handler.
func (m *Manager) Events() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for event, regs := range m.regs {
		if len(regs) > 0 {
			out = append(out, event)
		}
	}
	slices.Sort(out)
	return out
}
