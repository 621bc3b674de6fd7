// Package hooks dispatches lifecycle events (turns, agent transfers, stored
// memories, gateway start and stop) to registered handlers.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/tripdesk/internal/logging"
)

const (
	EventTurnStart     = "turn_start"
	EventTurnEnd       = "turn_end"
	EventAgentTransfer = "agent_transfer"
	EventAgentEscalate = "agent_escalate"
	EventMemoryStored  = "memory_stored"
	EventGatewayStart  = "gateway_start"
	EventGatewayStop   = "gateway_stop"
)

// AllEvents is every event in the order config hooks are registered.
var AllEvents = []string{
	EventTurnStart,
	EventTurnEnd,
	EventAgentTransfer,
	EventAgentEscalate,
	EventMemoryStored,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload is what a handler receives, and what command hooks read as JSON
// on stdin.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler errors are logged and never stop the emitter.
type Handler func(ctx context.Context, p Payload) error

type hook struct {
	name string
	fn   Handler
}

// Manager holds handlers per event. A nil *Manager accepts Emit, EmitAsync
// and Wait as no-ops so callers need not check.
type Manager struct {
	mu    sync.RWMutex
	hooks map[string][]hook
	wg    sync.WaitGroup
	log   *logging.Logger
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{hooks: make(map[string][]hook), log: log.Sub("hooks")}
}

// On appends a handler; name only shows up in logs.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	m.hooks[event] = append(m.hooks[event], hook{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[event])
}

func (m *Manager) snapshot(event string) []hook {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]hook(nil), m.hooks[event]...)
}

func (m *Manager) run(ctx context.Context, h hook, p Payload) {
	if err := h.fn(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", h.name).Msg("hook failed")
	}
}

// Emit runs the event's handlers in registration order and returns when
// all are done.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.run(ctx, h, p)
	}
}

// EmitAsync starts each handler in its own goroutine and returns at once.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.run(ctx, h, p)
		}()
	}
}

// Wait blocks until handlers started by EmitAsync have returned.
func (m *Manager) Wait() {
	if m != nil {
		m.wg.Wait()
	}
}
