package eventbus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
)

func newTestBus() *Bus {
	return New(zap.NewNop())
}

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	bus := newTestBus()
	var order []int

	bus.On("order:created", func(p Payload) error {
		order = append(order, 1)
		return nil
	})
	bus.On("order:created", func(p Payload) error {
		order = append(order, 2)
		return nil
	})
	bus.On("order:created", func(p Payload) error {
		order = append(order, 3)
		return nil
	})

	ok := bus.Emit("order:created", Payload{"id": "42"})
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestHandlerErrorIsIsolated(t *testing.T) {
	bus := newTestBus()
	var secondRan bool

	bus.On("client:updated", func(p Payload) error {
		return errors.New("boom")
	})
	bus.On("client:updated", func(p Payload) error {
		secondRan = true
		return nil
	})

	ok := bus.Emit("client:updated", Payload{})
	assert.False(t, ok, "Emit must report the failing handler")
	assert.True(t, secondRan, "later handlers must still run")

	stats := bus.Stats()
	assert.Equal(t, 1, stats.HandlerErrors)
	assert.Equal(t, 2, stats.HandlerCalls)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	bus := newTestBus()
	bus.On("order:deleted", func(p Payload) error {
		panic("listener gone wrong")
	})

	var ran bool
	bus.On("order:deleted", func(p Payload) error {
		ran = true
		return nil
	})

	ok := bus.Emit("order:deleted", Payload{})
	assert.False(t, ok)
	assert.True(t, ran)
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	calls := 0
	off := bus.On("month:changed", func(p Payload) error {
		calls++
		return nil
	})

	bus.Emit("month:changed", Payload{})
	off()
	bus.Emit("month:changed", Payload{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount("month:changed"))
}

func TestOnce(t *testing.T) {
	bus := newTestBus()
	calls := 0
	bus.Once("expenses:reset", func(p Payload) error {
		calls++
		return nil
	})

	bus.Emit("expenses:reset", Payload{})
	bus.Emit("expenses:reset", Payload{})
	assert.Equal(t, 1, calls)
}

func TestFilterSkipsUnmatchedPayloads(t *testing.T) {
	bus := newTestBus()
	var seen []string

	bus.On("order:created", func(p Payload) error {
		seen = append(seen, p["month"].(string))
		return nil
	}, WithFilter(func(p Payload) bool {
		return p["month"] == "2026-03"
	}))

	bus.Emit("order:created", Payload{"month": "2026-02"})
	bus.Emit("order:created", Payload{"month": "2026-03"})

	assert.Equal(t, []string{"2026-03"}, seen)
}

func TestContextMergedUnderPayload(t *testing.T) {
	bus := newTestBus()
	var got Payload

	bus.On("data:invalidate", func(p Payload) error {
		got = p
		return nil
	}, WithContext(Payload{"source": "cache", "scope": "all"}))

	bus.Emit("data:invalidate", Payload{"scope": "orders"})

	assert.Equal(t, "cache", got["source"])
	assert.Equal(t, "orders", got["scope"], "payload keys win over context keys")
}

func TestInvalidTopicRejected(t *testing.T) {
	bus := newTestBus()
	off := bus.On("bad topic!", func(p Payload) error { return nil })
	off()

	assert.False(t, bus.Emit("bad topic!", Payload{}))
	assert.Empty(t, bus.EventNames())
}

func TestEmitAsyncDelivers(t *testing.T) {
	bus := newTestBus()
	done := make(chan struct{})
	bus.On("storage:health-warning", func(p Payload) error {
		close(done)
		return nil
	})

	bus.EmitAsync("storage:health-warning", Payload{}, time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async emission never arrived")
	}
}

func TestDestroyedBusIsNoOp(t *testing.T) {
	bus := newTestBus()
	calls := 0
	bus.On("order:created", func(p Payload) error {
		calls++
		return nil
	})

	bus.Destroy()

	assert.False(t, bus.Emit("order:created", Payload{}))
	bus.On("order:created", func(p Payload) error {
		calls++
		return nil
	})
	assert.Equal(t, 0, bus.ListenerCount("order:created"))
	assert.Equal(t, 0, calls)
}

func TestDestroyedBusLogsClosedError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := New(zap.New(core))
	bus.Destroy()

	assert.False(t, bus.Emit("order:created", Payload{}))
	bus.On("order:created", func(p Payload) error { return nil })

	var found int
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			if f.Key == "error" {
				err, ok := f.Interface.(error)
				require.True(t, ok)
				assert.ErrorIs(t, err, cdperr.ErrBusClosed)
				found++
			}
		}
	}
	assert.Equal(t, 2, found, "both Emit and On must report the closed bus")
}

func TestIntrospection(t *testing.T) {
	bus := newTestBus()
	bus.On("order:created", func(p Payload) error { return nil })
	bus.On("order:created", func(p Payload) error { return errors.New("x") })
	bus.On("client:created", func(p Payload) error { return nil })

	bus.Emit("order:created", Payload{})

	assert.Equal(t, []string{"client:created", "order:created"}, bus.EventNames())
	infos := bus.Listeners("order:created")
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].CallCount)
	assert.Equal(t, 0, infos[0].ErrorCount)
	assert.Equal(t, 1, infos[1].ErrorCount)
}
