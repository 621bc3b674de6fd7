package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/tripdesk/internal/logging"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestEmitRunsHandlersInOrder(t *testing.T) {
	m := testManager()
	var seen []string
	m.On(EventAgentTransfer, "broken", func(context.Context, Payload) error {
		seen = append(seen, "broken")
		return errors.New("boom")
	})
	m.On(EventAgentTransfer, "audit", func(_ context.Context, p Payload) error {
		seen = append(seen, "audit:"+p.Data["agent"].(string))
		return nil
	})
	m.On(EventTurnEnd, "other", func(context.Context, Payload) error {
		seen = append(seen, "other")
		return nil
	})

	m.Emit(context.Background(), EventAgentTransfer, map[string]any{"agent": "hotel"})
	assert.Equal(t, []string{"broken", "audit:hotel"}, seen)
	assert.Equal(t, 2, m.Count(EventAgentTransfer))
	assert.Equal(t, 0, m.Count(EventGatewayStop))
}

func TestEmitAsyncAndWait(t *testing.T) {
	m := testManager()
	var n atomic.Int32
	for range 3 {
		m.On(EventMemoryStored, "count", func(context.Context, Payload) error {
			time.Sleep(10 * time.Millisecond)
			n.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventMemoryStored, nil)
	done := make(chan struct{})
	go func() { m.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async hooks did not finish")
	}
	assert.Equal(t, int32(3), n.Load())
}

func TestNilManagerIsNoop(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.Emit(context.Background(), EventTurnStart, nil)
		m.EmitAsync(context.Background(), EventTurnStart, nil)
		m.Wait()
	})
}
